// Package memprovider implements blinded.ProviderFactory over plain Go
// maps. It is the reference implementation used by this module's own
// tests, and is a reasonable starting point for callers that materialize
// an entire proof set up front rather than fetching nodes from a database.
package memprovider

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/nibble"
)

// Factory is a concurrency-safe, map-backed blinded.ProviderFactory.
type Factory struct {
	mu      sync.RWMutex
	account map[string][]byte
	storage map[common.Hash]map[string][]byte
}

// New returns an empty Factory.
func New() *Factory {
	return &Factory{
		account: make(map[string][]byte),
		storage: make(map[common.Hash]map[string][]byte),
	}
}

// PutAccountNode registers the encoded node bytes for path in the account
// trie, as if they had been revealed by an earlier multiproof.
func (f *Factory) PutAccountNode(path nibble.Path, encoded []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account[path.String()] = encoded
}

// PutStorageNode registers the encoded node bytes for path in the storage
// trie of the account identified by hashedAddr.
func (f *Factory) PutStorageNode(hashedAddr common.Hash, path nibble.Path, encoded []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byPath, ok := f.storage[hashedAddr]
	if !ok {
		byPath = make(map[string][]byte)
		f.storage[hashedAddr] = byPath
	}
	byPath[path.String()] = encoded
}

// AccountProvider implements blinded.ProviderFactory.
func (f *Factory) AccountProvider() blinded.AccountNodeProvider {
	return accountProvider{f}
}

// StorageProvider implements blinded.ProviderFactory.
func (f *Factory) StorageProvider(hashedAddr common.Hash) blinded.StorageNodeProvider {
	return storageProvider{f, hashedAddr}
}

type accountProvider struct{ f *Factory }

func (p accountProvider) AccountNode(path nibble.Path) ([]byte, error) {
	p.f.mu.RLock()
	defer p.f.mu.RUnlock()
	enc, ok := p.f.account[path.String()]
	if !ok {
		return nil, blinded.ErrNotFound
	}
	return enc, nil
}

type storageProvider struct {
	f          *Factory
	hashedAddr common.Hash
}

func (p storageProvider) StorageNode(path nibble.Path) ([]byte, error) {
	p.f.mu.RLock()
	defer p.f.mu.RUnlock()
	byPath, ok := p.f.storage[p.hashedAddr]
	if !ok {
		return nil, blinded.ErrNotFound
	}
	enc, ok := byPath[path.String()]
	if !ok {
		return nil, blinded.ErrNotFound
	}
	return enc, nil
}
