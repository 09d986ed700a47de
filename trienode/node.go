// Package trienode defines the tagged node variants of a sparse
// Merkle-Patricia trie and their canonical RLP encoding.
package trienode

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/nibble"
)

// Node is implemented by every trie node variant: *Leaf, *Extension,
// *Branch, and *Blinded.
type Node interface {
	isNode()
}

// Leaf terminates a key with a value. Suffix is the remaining path from the
// leaf's parent to the key.
type Leaf struct {
	Suffix nibble.Path
	Value  []byte
}

func (*Leaf) isNode() {}

// NewLeaf returns a leaf node, copying suffix and value so callers may
// reuse their backing arrays.
func NewLeaf(suffix nibble.Path, value []byte) *Leaf {
	return &Leaf{Suffix: suffix.Clone(), Value: append([]byte(nil), value...)}
}

// Extension shares a path prefix between the branch above it and the
// single child below it.
type Extension struct {
	Suffix nibble.Path
	Child  Node
}

func (*Extension) isNode() {}

// NumChildren is the fan-out of a Branch node (one per hex nibble value).
const NumChildren = 16

// Branch has up to 16 children, one per nibble value, plus an optional
// terminator Value for a key that ends exactly at this branch. Children are
// present/absent; an absent child is represented as a nil Node.
type Branch struct {
	Children [NumChildren]Node
	Value    []byte
}

func (*Branch) isNode() {}

// LivingChildren returns how many non-nil children a branch has, and the
// index of the last one seen (valid only when count == 1).
func (b *Branch) LivingChildren() (count int, lastIndex int) {
	lastIndex = -1
	for i, c := range b.Children {
		if c != nil {
			count++
			lastIndex = i
		}
	}
	return count, lastIndex
}

// Blinded is a placeholder for a subtree that has not been materialized
// locally. Hash is the subtree's committed root hash; a provider from a
// blinded.ProviderFactory can resolve it to encoded node bytes on demand.
type Blinded struct {
	Hash common.Hash
}

func (*Blinded) isNode() {}
