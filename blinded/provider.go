// Package blinded specifies the read-only lookup the sparse trie uses to
// materialize subtrees it has not yet had revealed to it by a multiproof.
package blinded

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/nibble"
)

// ErrNotFound is returned by a provider when no node is known for the
// requested path.
var ErrNotFound = errors.New("blinded: node not found")

// AccountNodeProvider resolves account-trie paths to encoded node bytes.
// Implementations must be safe for concurrent use; the engine never
// mutates a provider and may call it from multiple goroutines.
type AccountNodeProvider interface {
	AccountNode(path nibble.Path) ([]byte, error)
}

// StorageNodeProvider resolves one account's storage-trie paths to encoded
// node bytes. Implementations must be safe for concurrent use.
type StorageNodeProvider interface {
	StorageNode(path nibble.Path) ([]byte, error)
}

// ProviderFactory produces account and storage node providers on demand.
// The factory itself, and every provider it returns, must tolerate
// concurrent calls: the applier's parallel storage phase calls
// StorageProvider once per account and then calls the resulting provider
// from a worker goroutine.
//
// hashedAddr identifies the account by its hashed address (Keccak256 of the
// 20-byte address), the same key space as the account trie's own leaves and
// the one HashedPostState and Multiproof use throughout this module.
type ProviderFactory interface {
	AccountProvider() AccountNodeProvider
	StorageProvider(hashedAddr common.Hash) StorageNodeProvider
}
