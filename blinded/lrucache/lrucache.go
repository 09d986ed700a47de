// Package lrucache wraps a blinded.ProviderFactory with bounded in-memory
// caches over resolved node bytes, the same hashicorp/golang-lru pattern
// go-ethereum leans on throughout core (bloom index caches, header caches)
// for a bounded-memory "remember what we just looked up" layer in front of
// a slower backing lookup.
package lrucache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/nibble"
)

// Factory wraps an inner blinded.ProviderFactory, caching resolved node
// bytes in fixed-size LRU caches so that repeatedly blinded paths (common
// when a batch touches the same shallow subtree from multiple goroutines)
// are only resolved against the inner factory once.
type Factory struct {
	inner   blinded.ProviderFactory
	account *lru.Cache
	storage *lru.Cache
}

// New returns a Factory that caches up to size resolved account nodes and
// up to size resolved storage nodes (across all accounts), delegating
// misses to inner. A non-positive size disables caching for that side
// (every lookup passes through to inner).
func New(inner blinded.ProviderFactory, size int) *Factory {
	f := &Factory{inner: inner}
	if size > 0 {
		f.account, _ = lru.New(size)
		f.storage, _ = lru.New(size)
	}
	return f
}

// AccountProvider implements blinded.ProviderFactory.
func (f *Factory) AccountProvider() blinded.AccountNodeProvider {
	return accountProvider{f, f.inner.AccountProvider()}
}

// StorageProvider implements blinded.ProviderFactory.
func (f *Factory) StorageProvider(hashedAddr common.Hash) blinded.StorageNodeProvider {
	return storageProvider{f, hashedAddr, f.inner.StorageProvider(hashedAddr)}
}

type accountProvider struct {
	f     *Factory
	inner blinded.AccountNodeProvider
}

func (p accountProvider) AccountNode(path nibble.Path) ([]byte, error) {
	if p.f.account == nil {
		return p.inner.AccountNode(path)
	}
	key := path.String()
	if cached, ok := p.f.account.Get(key); ok {
		return cached.([]byte), nil
	}
	enc, err := p.inner.AccountNode(path)
	if err != nil {
		return nil, err
	}
	p.f.account.Add(key, enc)
	return enc, nil
}

type storageProvider struct {
	f          *Factory
	hashedAddr common.Hash
	inner      blinded.StorageNodeProvider
}

func (p storageProvider) StorageNode(path nibble.Path) ([]byte, error) {
	if p.f.storage == nil {
		return p.inner.StorageNode(path)
	}
	key := p.hashedAddr.String() + path.String()
	if cached, ok := p.f.storage.Get(key); ok {
		return cached.([]byte), nil
	}
	enc, err := p.inner.StorageNode(path)
	if err != nil {
		return nil, err
	}
	p.f.storage.Add(key, enc)
	return enc, nil
}
