package applier

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/go-state-trie/sparsetrie/accounts"
	"github.com/go-state-trie/sparsetrie/hashedstate"
	"github.com/go-state-trie/sparsetrie/statetrie"
)

func TestApplyUpdatesAccountAndStorage(t *testing.T) {
	trie := statetrie.New(nil)

	addr := common.HexToHash("0x01")
	slot := common.HexToHash("0xaa")

	update := hashedstate.NewUpdate()
	update.State.Accounts[addr] = &accounts.Account{Nonce: 1, Balance: accounts.Empty().Balance}
	update.State.Storages[addr] = &hashedstate.StorageUpdate{
		Storage: map[common.Hash][32]byte{slot: {1: 42}},
	}

	_, err := Apply(context.Background(), trie, update, nil, 2)
	require.NoError(t, err)

	root, upds, err := trie.RootWithUpdates()
	require.NoError(t, err)
	require.NotZero(t, root)
	require.NotZero(t, upds.Account.Len())

	storageSet, ok := upds.Storage[addr]
	require.True(t, ok)
	require.False(t, storageSet.Wiped)
	require.NotZero(t, storageSet.Len())
}

func TestApplyRemovesAccountOnNilRecord(t *testing.T) {
	trie := statetrie.New(nil)

	addr := common.HexToHash("0x02")
	first := hashedstate.NewUpdate()
	first.State.Accounts[addr] = &accounts.Account{Nonce: 1, Balance: accounts.Empty().Balance}
	_, err := Apply(context.Background(), trie, first, nil, 1)
	require.NoError(t, err)

	rootAfterCreate, _, err := trie.RootWithUpdates()
	require.NoError(t, err)

	second := hashedstate.NewUpdate()
	second.State.Accounts[addr] = nil
	_, err = Apply(context.Background(), trie, second, nil, 1)
	require.NoError(t, err)

	rootAfterRemove, _, err := trie.RootWithUpdates()
	require.NoError(t, err)
	require.NotEqual(t, rootAfterCreate, rootAfterRemove)
}

func TestApplyWipeStorageSetsWipedFlag(t *testing.T) {
	trie := statetrie.New(nil)
	addr := common.HexToHash("0x03")
	slot := common.HexToHash("0xbb")

	first := hashedstate.NewUpdate()
	first.State.Accounts[addr] = &accounts.Account{Nonce: 1, Balance: accounts.Empty().Balance}
	first.State.Storages[addr] = &hashedstate.StorageUpdate{Storage: map[common.Hash][32]byte{slot: {1: 7}}}
	_, err := Apply(context.Background(), trie, first, nil, 1)
	require.NoError(t, err)
	_, _, err = trie.RootWithUpdates()
	require.NoError(t, err)

	second := hashedstate.NewUpdate()
	second.State.Storages[addr] = &hashedstate.StorageUpdate{Wiped: true}
	_, err = Apply(context.Background(), trie, second, nil, 1)
	require.NoError(t, err)

	_, upds, err := trie.RootWithUpdates()
	require.NoError(t, err)
	require.True(t, upds.Storage[addr].Wiped)
}

func TestApplyZeroValueRemovesSlot(t *testing.T) {
	trie := statetrie.New(nil)
	addr := common.HexToHash("0x04")
	slot := common.HexToHash("0xcc")

	first := hashedstate.NewUpdate()
	first.State.Accounts[addr] = &accounts.Account{Nonce: 1, Balance: accounts.Empty().Balance}
	first.State.Storages[addr] = &hashedstate.StorageUpdate{Storage: map[common.Hash][32]byte{slot: {1: 9}}}
	_, err := Apply(context.Background(), trie, first, nil, 1)
	require.NoError(t, err)
	rootWithSlot, _, err := trie.RootWithUpdates()
	require.NoError(t, err)

	second := hashedstate.NewUpdate()
	second.State.Storages[addr] = &hashedstate.StorageUpdate{Storage: map[common.Hash][32]byte{slot: {}}}
	_, err = Apply(context.Background(), trie, second, nil, 1)
	require.NoError(t, err)
	rootWithoutSlot, _, err := trie.RootWithUpdates()
	require.NoError(t, err)

	require.NotEqual(t, rootWithSlot, rootWithoutSlot)
}

// TestApplyRootMatchesDenseReferenceTrie checks spec.md §8 property 1: the
// root the applier produces must agree bit-for-bit with a straightforward
// dense trie (github.com/ethereum/go-ethereum/trie's StackTrie) built over
// the same leaves, independently of this module's own sparse/incremental
// hashing machinery.
func TestApplyRootMatchesDenseReferenceTrie(t *testing.T) {
	st := statetrie.New(nil)

	addrNoStorage := common.HexToHash("0x10")
	addrWithStorage := common.HexToHash("0x11")
	slotA := common.HexToHash("0xa1")
	slotB := common.HexToHash("0xa2")
	valA := [32]byte{1: 0xaa}
	valB := [32]byte{1: 0xbb}

	acctNoStorage := &accounts.Account{Nonce: 1, Balance: accounts.Empty().Balance, CodeHash: accounts.EmptyCodeHash}
	acctWithStorage := &accounts.Account{Nonce: 2, Balance: accounts.Empty().Balance, CodeHash: accounts.EmptyCodeHash}

	update := hashedstate.NewUpdate()
	update.State.Accounts[addrNoStorage] = acctNoStorage
	update.State.Accounts[addrWithStorage] = acctWithStorage
	update.State.Storages[addrWithStorage] = &hashedstate.StorageUpdate{
		Storage: map[common.Hash][32]byte{slotA: valA, slotB: valB},
	}

	_, err := Apply(context.Background(), st, update, nil, 2)
	require.NoError(t, err)

	root, _, err := st.RootWithUpdates()
	require.NoError(t, err)

	encA, err := accounts.EncodeStorageValue(valA)
	require.NoError(t, err)
	encB, err := accounts.EncodeStorageValue(valB)
	require.NoError(t, err)
	storageRoot := denseTrieRoot(map[common.Hash][]byte{slotA: encA, slotB: encB})

	encNoStorage, err := accounts.Encode(acctNoStorage)
	require.NoError(t, err)
	encWithStorage, err := accounts.Encode(acctWithStorage.WithStorageRoot(storageRoot))
	require.NoError(t, err)
	expectedRoot := denseTrieRoot(map[common.Hash][]byte{
		addrNoStorage:   encNoStorage,
		addrWithStorage: encWithStorage,
	})

	require.Equal(t, expectedRoot, root)
}

// denseTrieRoot builds a straightforward dense trie over leaves (already
// pre-hashed 32-byte keys, matching this module's own key space) using
// go-ethereum's StackTrie, which requires keys inserted in ascending order.
func denseTrieRoot(leaves map[common.Hash][]byte) common.Hash {
	keys := make([]common.Hash, 0, len(leaves))
	for k := range leaves {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	st := gethtrie.NewStackTrie(nil)
	for _, k := range keys {
		st.Update(k.Bytes(), leaves[k])
	}
	return st.Hash()
}
