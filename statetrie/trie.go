// Package statetrie implements the state sparse trie: the account trie
// plus the set of per-account storage sub-tries currently attached to it,
// mirroring spec.md's State sparse trie component with ownership-transfer
// hooks (TakeStorageTrie/InsertStorageTrie) so storage roots can be
// computed in parallel without sharing mutable state.
package statetrie

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/accounts"
	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/multiproof"
	"github.com/go-state-trie/sparsetrie/nibble"
	"github.com/go-state-trie/sparsetrie/sparseerr"
	"github.com/go-state-trie/sparsetrie/storagetrie"
	"github.com/go-state-trie/sparsetrie/trienode"
	"github.com/go-state-trie/sparsetrie/updates"
)

// Shell is the account trie's node structure, retained across blocks. Leaf
// values are not cleared: a trie seeded from a Shell holds the same
// account records, and so the same root, as the trie it was taken from.
// Since our account leaves
// and internal nodes are immutable values (a mutation always allocates a
// replacement rather than editing in place), the "skeleton" is simply the
// account trie's current root: reusing it doesn't save allocations the way
// an in-place mutable implementation would, but it does save the
// multiproof-driven reveal work a cold start would otherwise repeat.
type Shell struct {
	Root trienode.Node
}

// Trie is the state sparse trie: the account trie plus every storage
// sub-trie currently attached to a revealed account.
type Trie struct {
	accounts *storagetrie.Trie
	storages map[common.Hash]*storagetrie.Trie

	factory blinded.ProviderFactory
}

// New returns an empty state trie that resolves blinded subtrees via
// factory.
func New(factory blinded.ProviderFactory) *Trie {
	return &Trie{
		accounts: storagetrie.New(accountLookup(factory)),
		storages: make(map[common.Hash]*storagetrie.Trie),
		factory:  factory,
	}
}

// FromShell returns a state trie seeded with a retained account-trie
// shell from a prior block.
func FromShell(shell *Shell, factory blinded.ProviderFactory) *Trie {
	t := New(factory)
	if shell != nil {
		t.accounts = storagetrie.FromRoot(shell.Root, accountLookup(factory))
	}
	return t
}

func accountLookup(factory blinded.ProviderFactory) storagetrie.NodeLookup {
	if factory == nil {
		return nil
	}
	provider := factory.AccountProvider()
	return func(path nibble.Path) ([]byte, error) { return provider.AccountNode(path) }
}

func storageLookup(factory blinded.ProviderFactory, hashedAddr common.Hash) storagetrie.NodeLookup {
	if factory == nil {
		return nil
	}
	provider := factory.StorageProvider(hashedAddr)
	return func(path nibble.Path) ([]byte, error) { return provider.StorageNode(path) }
}

// storageTrie returns the sub-trie for hashedAddr, creating an empty one
// bound to the batch's provider factory if this is the first time this
// address is touched.
func (t *Trie) storageTrie(hashedAddr common.Hash) *storagetrie.Trie {
	sub, ok := t.storages[hashedAddr]
	if !ok {
		sub = storagetrie.New(storageLookup(t.factory, hashedAddr))
		t.storages[hashedAddr] = sub
	}
	return sub
}

// IsAccountRevealed reports whether the account trie currently holds a
// leaf for hashedAddr, whether from this batch's updates or a prior
// reveal.
func (t *Trie) IsAccountRevealed(hashedAddr common.Hash) bool {
	_, found, err := t.accounts.GetLeaf(nibble.Unpack(hashedAddr))
	return err == nil && found
}

// RevealMultiproof splices mp's account-trie nodes and per-address
// storage-trie nodes into the state trie. The account-trie subtree is
// revealed before any storage proof, so a storage sub-trie always attaches
// under an already-revealed account leaf. Within each proof set, nodes are
// revealed in ascending path length, so a parent is always in place before
// its children.
func (t *Trie) RevealMultiproof(mp multiproof.Multiproof) error {
	for _, pathStr := range parentFirst(mp.AccountSubtree) {
		encoded := mp.AccountSubtree[pathStr]
		path, err := pathFromString(pathStr)
		if err != nil {
			return err
		}
		if err := t.accounts.Reveal(path, encoded); err != nil {
			return err
		}
	}

	for hashedAddr, proofs := range mp.Storages {
		sub := t.storageTrie(hashedAddr)
		for _, pathStr := range parentFirst(proofs) {
			encoded := proofs[pathStr]
			path, err := pathFromString(pathStr)
			if err != nil {
				return err
			}
			if err := sub.Reveal(path, encoded); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateAccount upserts acct at hashedAddr, or removes the account leaf and
// drops its storage sub-trie if acct is nil. When a storage sub-trie is
// attached for hashedAddr, UpdateAccount computes that sub-trie's root
// itself and encodes acct with it; otherwise acct's own Root field is
// encoded as given.
func (t *Trie) UpdateAccount(hashedAddr common.Hash, acct *accounts.Account) error {
	key := nibble.Unpack(hashedAddr)

	if acct == nil {
		delete(t.storages, hashedAddr)
		return t.accounts.RemoveLeaf(key)
	}

	resolved := acct
	if sub, ok := t.storages[hashedAddr]; ok {
		root, err := sub.Root()
		if err != nil {
			return err
		}
		resolved = acct.WithStorageRoot(root)
	}

	enc, err := accounts.Encode(resolved)
	if err != nil {
		return sparseerr.New(sparseerr.Codec, err)
	}
	return t.accounts.UpdateLeaf(key, enc)
}

// UpdateAccountStorageRoot re-encodes hashedAddr's existing account leaf,
// replacing only storage_root with its sub-trie's current root.
func (t *Trie) UpdateAccountStorageRoot(hashedAddr common.Hash) error {
	sub, ok := t.storages[hashedAddr]
	if !ok {
		return sparseerr.Newf(sparseerr.Internal, "no storage trie attached for account %s", hashedAddr)
	}
	root, err := sub.Root()
	if err != nil {
		return err
	}

	key := nibble.Unpack(hashedAddr)
	enc, found, err := t.accounts.GetLeaf(key)
	if err != nil {
		return err
	}
	if !found {
		return sparseerr.Newf(sparseerr.Internal, "no revealed account record for %s to patch storage root on", hashedAddr)
	}
	prior, err := accounts.Decode(enc)
	if err != nil {
		return sparseerr.New(sparseerr.Codec, err)
	}

	updated := prior.WithStorageRoot(root)
	newEnc, err := accounts.Encode(updated)
	if err != nil {
		return sparseerr.New(sparseerr.Codec, err)
	}
	return t.accounts.UpdateLeaf(key, newEnc)
}

// TakeStorageTrie detaches hashedAddr's storage sub-trie for exclusive use
// by a parallel worker, returning false if no sub-trie is attached.
func (t *Trie) TakeStorageTrie(hashedAddr common.Hash) (*storagetrie.Trie, bool) {
	sub, ok := t.storages[hashedAddr]
	if !ok {
		return nil, false
	}
	delete(t.storages, hashedAddr)
	return sub, true
}

// TakeOrCreateStorageTrie is TakeStorageTrie, except an address with no
// sub-trie attached yet (e.g. a freshly created account with no reveal
// proof, since its storage trie starts empty) gets one created on demand
// rather than reporting absence.
func (t *Trie) TakeOrCreateStorageTrie(hashedAddr common.Hash) *storagetrie.Trie {
	sub := t.storageTrie(hashedAddr)
	delete(t.storages, hashedAddr)
	return sub
}

// InsertStorageTrie re-attaches a sub-trie previously detached with
// TakeStorageTrie.
func (t *Trie) InsertStorageTrie(hashedAddr common.Hash, sub *storagetrie.Trie) {
	t.storages[hashedAddr] = sub
}

// CalculateBelowLevel opportunistically hashes every dirty subtree rooted
// below nibble depth level, in both the account trie and every currently
// attached storage sub-trie.
func (t *Trie) CalculateBelowLevel(level int) error {
	if err := t.accounts.CalculateBelowLevel(level); err != nil {
		return err
	}
	for _, sub := range t.storages {
		if err := sub.CalculateBelowLevel(level); err != nil {
			return err
		}
	}
	return nil
}

// RootWithUpdates completes any remaining hashing and returns the state
// root plus the accumulated update journal, consuming it from both the
// account trie and every currently attached storage sub-trie.
func (t *Trie) RootWithUpdates() (common.Hash, *updates.TrieUpdates, error) {
	root, err := t.accounts.Root()
	if err != nil {
		return common.Hash{}, nil, err
	}

	out := updates.New()
	out.Account = t.accounts.TakeUpdates()

	for hashedAddr, sub := range t.storages {
		if _, err := sub.Root(); err != nil {
			return common.Hash{}, nil, err
		}
		set := out.ForStorage(hashedAddr)
		set.NodeSet = sub.TakeUpdates()
		set.Wiped = sub.Wiped()
	}

	return root, out, nil
}

// TakeClearedAccountTrieState returns the account trie's current root node
// as a Shell for reuse on the next block; leaf values are kept as they are.
func (t *Trie) TakeClearedAccountTrieState() *Shell {
	return &Shell{Root: t.accounts.RootNode()}
}

// parentFirst returns ps's paths in ascending length order.
func parentFirst(ps multiproof.ProofSet) []string {
	paths := make([]string, 0, len(ps))
	for p := range ps {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) < len(paths[j]) })
	return paths
}

func pathFromString(s string) (nibble.Path, error) {
	p := make(nibble.Path, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			p[i] = c - '0'
		case c >= 'a' && c <= 'f':
			p[i] = c - 'a' + 10
		default:
			return nil, sparseerr.Newf(sparseerr.Internal, "malformed multiproof path %q", s)
		}
	}
	return p, nil
}
