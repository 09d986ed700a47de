// Package multiproof defines the bundle of Merkle proof nodes the applier
// reveals into the sparse trie before touching any new account or slot.
package multiproof

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/nibble"
)

// ProofSet maps a nibble path to the encoded node bytes revealed at that
// path. Paths are keyed by their hex string since nibble.Path (a byte
// slice) is not itself a valid map key.
type ProofSet map[string][]byte

// NewProofSet returns an empty ProofSet.
func NewProofSet() ProofSet { return make(ProofSet) }

// Set records the encoded node for path.
func (s ProofSet) Set(path nibble.Path, encoded []byte) {
	s[path.String()] = encoded
}

// Get returns the encoded node for path, if any.
func (s ProofSet) Get(path nibble.Path) ([]byte, bool) {
	enc, ok := s[path.String()]
	return enc, ok
}

// Multiproof bundles the account-subtree proof together with the per-
// account storage-subtree proofs needed to reveal every path an update
// touches, keyed by the account's hashed address.
type Multiproof struct {
	AccountSubtree ProofSet
	Storages       map[common.Hash]ProofSet
}

// New returns an empty Multiproof.
func New() Multiproof {
	return Multiproof{
		AccountSubtree: NewProofSet(),
		Storages:       make(map[common.Hash]ProofSet),
	}
}

// Extend merges other into m in place: proof sets are unioned entry by
// entry, with other's entries winning on conflicting paths, matching the
// "later wins" rule updates use throughout this module.
func (m *Multiproof) Extend(other Multiproof) {
	for path, enc := range other.AccountSubtree {
		m.AccountSubtree[path] = enc
	}
	for hashedAddr, proofs := range other.Storages {
		existing, ok := m.Storages[hashedAddr]
		if !ok {
			existing = NewProofSet()
			m.Storages[hashedAddr] = existing
		}
		for path, enc := range proofs {
			existing[path] = enc
		}
	}
}
