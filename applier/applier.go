// Package applier folds one hashedstate.Update into a statetrie.Trie: the
// five-step order of reveal, parallel storage-root computation, re-attach,
// remaining accounts, and incremental hashing. The parallel phase is
// implemented with golang.org/x/sync/errgroup over disjoint
// *storagetrie.Trie values obtained via ownership transfer
// (statetrie.Trie.TakeOrCreateStorageTrie / InsertStorageTrie), the same
// detach-process-reattach shape the teacher's monorepo uses for its
// per-address trie subfetchers, adapted here to avoid sharing mutable
// state between workers instead of avoiding redundant prefetch work.
package applier

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/go-state-trie/sparsetrie/accounts"
	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/hashedstate"
	"github.com/go-state-trie/sparsetrie/nibble"
	"github.com/go-state-trie/sparsetrie/statetrie"
	"github.com/go-state-trie/sparsetrie/storagetrie"
)

// storageResult is one account's processed storage sub-trie, passed back
// from a worker goroutine to the serial re-attach step.
type storageResult struct {
	hashedAddr common.Hash
	trie       *storagetrie.Trie
}

// Apply folds update into trie: reveals update's multiproof, computes
// every touched account's storage root in parallel (bounded to workers
// goroutines), re-attaches each sub-trie and updates its account leaf,
// updates the remaining accounts with no storage delta this batch, and
// opportunistically hashes everything below the incremental level.
//
// factory is bound fresh for each call so the applier never holds a
// provider past the batch it was issued for; it is not currently consulted
// directly (trie already carries the providers it needs from when it was
// constructed or last re-bound), but is accepted here to match the
// provider-per-batch contract future reveal steps may need.
//
// Apply returns how long the batch took to fold in, for the caller to feed
// into its update-duration metric.
func Apply(ctx context.Context, trie *statetrie.Trie, update hashedstate.Update, factory blinded.ProviderFactory, workers int) (time.Duration, error) {
	start := time.Now()

	if err := trie.RevealMultiproof(update.Multiproof); err != nil {
		return time.Since(start), err
	}

	if err := applyStorage(ctx, trie, update.State, workers); err != nil {
		return time.Since(start), err
	}

	// Remaining accounts: whatever's left in update.State.Accounts had no
	// storage delta this batch, so no re-attach step consumed it.
	for hashedAddr, acct := range update.State.Accounts {
		if err := trie.UpdateAccount(hashedAddr, acct); err != nil {
			return time.Since(start), err
		}
	}

	err := trie.CalculateBelowLevel(incrementalLevel)
	return time.Since(start), err
}

// incrementalLevel mirrors sparsetrie.IncrementalLevel without importing
// the root package, which would create an import cycle (sparsetrie
// imports applier, not the reverse).
const incrementalLevel = 2

func applyStorage(ctx context.Context, trie *statetrie.Trie, state hashedstate.HashedPostState, workers int) error {
	if len(state.Storages) == 0 {
		return nil
	}

	group, _ := errgroup.WithContext(ctx)
	if workers > 0 {
		group.SetLimit(workers)
	}

	results := make(chan storageResult, len(state.Storages))

	for hashedAddr, upd := range state.Storages {
		hashedAddr, upd := hashedAddr, upd
		sub := trie.TakeOrCreateStorageTrie(hashedAddr)
		group.Go(func() error {
			if err := applyStorageUpdate(sub, upd); err != nil {
				return err
			}
			results <- storageResult{hashedAddr: hashedAddr, trie: sub}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	close(results)

	// Re-attach & account update: drain serially. For each address, if
	// state.Accounts still carries an entry, consume it (encoding the
	// fresh storage root in one pass); otherwise, if the account is
	// revealed, just patch its storage_root field.
	for res := range results {
		trie.InsertStorageTrie(res.hashedAddr, res.trie)

		if acct, ok := state.Accounts[res.hashedAddr]; ok {
			delete(state.Accounts, res.hashedAddr)
			if err := trie.UpdateAccount(res.hashedAddr, acct); err != nil {
				return err
			}
			continue
		}

		if trie.IsAccountRevealed(res.hashedAddr) {
			if err := trie.UpdateAccountStorageRoot(res.hashedAddr); err != nil {
				return err
			}
		}
	}

	return nil
}

func applyStorageUpdate(sub *storagetrie.Trie, upd *hashedstate.StorageUpdate) error {
	if upd == nil {
		return nil
	}
	if upd.Wiped {
		sub.Wipe()
	}
	for hashedSlot, value := range upd.Storage {
		key := nibble.Unpack(hashedSlot)
		if isZero(value) {
			if err := sub.RemoveLeaf(key); err != nil {
				return err
			}
			continue
		}
		enc, err := accounts.EncodeStorageValue(value)
		if err != nil {
			return err
		}
		if err := sub.UpdateLeaf(key, enc); err != nil {
			return err
		}
	}
	return nil
}

func isZero(v [32]byte) bool {
	for _, b := range v {
		if b != 0 {
			return false
		}
	}
	return true
}
