// Package updates defines the persistable journal a sparse-trie batch
// produces: the set of node additions and removals a caller must apply
// atomically with the block.
package updates

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/nibble"
)

// NodeUpdate describes one trie node's change: either an upsert (NewHash
// and NewEncoded set, Removed false) or a deletion (Removed true).
type NodeUpdate struct {
	Path       nibble.Path
	NewHash    *common.Hash
	NewEncoded []byte
	Removed    bool
}

// NodeSet accumulates NodeUpdate entries keyed by path, so that a later
// write to the same path within one batch naturally overwrites an earlier
// one instead of duplicating a journal entry.
type NodeSet struct {
	order   []string
	entries map[string]NodeUpdate
}

// NewNodeSet returns an empty NodeSet.
func NewNodeSet() *NodeSet {
	return &NodeSet{entries: make(map[string]NodeUpdate)}
}

// Upsert records path's new node.
func (s *NodeSet) Upsert(path nibble.Path, hash common.Hash, encoded []byte) {
	key := path.String()
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = NodeUpdate{Path: path.Clone(), NewHash: &hash, NewEncoded: encoded}
}

// Delete records path's node as removed.
func (s *NodeSet) Delete(path nibble.Path) {
	key := path.String()
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = NodeUpdate{Path: path.Clone(), Removed: true}
}

// Entries returns the recorded updates in the order their paths were first
// touched.
func (s *NodeSet) Entries() []NodeUpdate {
	out := make([]NodeUpdate, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.entries[key])
	}
	return out
}

// Len reports how many distinct paths have recorded updates.
func (s *NodeSet) Len() int { return len(s.order) }

// StorageNodeSet is a NodeSet for one account's storage trie, plus whether
// that storage trie was wiped during the batch.
type StorageNodeSet struct {
	*NodeSet
	Wiped bool
}

// NewStorageNodeSet returns an empty StorageNodeSet.
func NewStorageNodeSet() *StorageNodeSet {
	return &StorageNodeSet{NodeSet: NewNodeSet()}
}

// TrieUpdates is the full update journal produced by a batch: the account
// trie's node changes, plus each touched account's storage trie changes.
type TrieUpdates struct {
	Account *NodeSet
	Storage map[common.Hash]*StorageNodeSet
}

// New returns an empty TrieUpdates.
func New() *TrieUpdates {
	return &TrieUpdates{
		Account: NewNodeSet(),
		Storage: make(map[common.Hash]*StorageNodeSet),
	}
}

// ForStorage returns the StorageNodeSet for hashedAddr, creating one if
// this is the first update recorded for that account.
func (u *TrieUpdates) ForStorage(hashedAddr common.Hash) *StorageNodeSet {
	set, ok := u.Storage[hashedAddr]
	if !ok {
		set = NewStorageNodeSet()
		u.Storage[hashedAddr] = set
	}
	return set
}
