// Package hashedstate defines the mutation payload the sparse trie task
// consumes: hashed account and storage changes bundled with the multiproof
// needed to reveal the subtrees they touch.
package hashedstate

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/accounts"
	"github.com/go-state-trie/sparsetrie/multiproof"
)

// StorageUpdate is one account's pending storage mutations. Wiped, when
// true, means the entire storage trie is cleared before Storage's entries
// (if any) are applied.
type StorageUpdate struct {
	Wiped   bool
	Storage map[common.Hash][32]byte
}

// HashedPostState is the concrete state mutation payload: accounts keyed
// by hashed address, with a nil record meaning the account was deleted,
// and per-account storage mutations keyed the same way.
type HashedPostState struct {
	Accounts map[common.Hash]*accounts.Account
	Storages map[common.Hash]*StorageUpdate
}

// New returns an empty HashedPostState.
func New() HashedPostState {
	return HashedPostState{
		Accounts: make(map[common.Hash]*accounts.Account),
		Storages: make(map[common.Hash]*StorageUpdate),
	}
}

// Extend merges other into s in place:
//   - an account entry in other overwrites the same address in s (later
//     wins, including deletions);
//   - a storage entry merges by slot, with other's slot values winning on
//     conflicts, and Wiped true on either side makes the merged entry
//     Wiped, resetting the retained slot map to other's entries (the
//     nibble path a wipe clears can't retroactively apply to slots s
//     already recorded before the wipe).
func (s *HashedPostState) Extend(other HashedPostState) {
	for hashedAddr, acct := range other.Accounts {
		s.Accounts[hashedAddr] = acct
	}

	for hashedAddr, update := range other.Storages {
		existing, ok := s.Storages[hashedAddr]
		if !ok {
			s.Storages[hashedAddr] = update
			continue
		}

		if update.Wiped || existing.Wiped {
			existing.Wiped = true
			existing.Storage = update.Storage
			continue
		}

		if existing.Storage == nil {
			existing.Storage = make(map[common.Hash][32]byte, len(update.Storage))
		}
		for slot, value := range update.Storage {
			existing.Storage[slot] = value
		}
	}
}

// Update is one message delivered over the inbound channel: the proof
// nodes needed to reveal every address and slot State touches, bundled
// with the state mutation itself.
type Update struct {
	Multiproof multiproof.Multiproof
	State      HashedPostState
}

// NewUpdate returns an empty Update.
func NewUpdate() Update {
	return Update{Multiproof: multiproof.New(), State: New()}
}

// Extend merges other into u in place: proofs union (other wins on
// conflicting paths) and state merges per HashedPostState.Extend. This is
// the coalescing operation the sparse-trie task uses to fold a burst of
// ready updates into a single applier call.
func (u *Update) Extend(other Update) {
	u.Multiproof.Extend(other.Multiproof)
	u.State.Extend(other.State)
}
