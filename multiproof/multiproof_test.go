package multiproof

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/go-state-trie/sparsetrie/nibble"
)

func path(n byte) nibble.Path {
	var raw [32]byte
	raw[31] = n
	return nibble.Unpack(raw)
}

func TestExtendUnionsAccountSubtree(t *testing.T) {
	m := New()
	m.AccountSubtree.Set(path(1), []byte("a"))

	other := New()
	other.AccountSubtree.Set(path(2), []byte("b"))
	m.Extend(other)

	_, ok := m.AccountSubtree.Get(path(1))
	require.True(t, ok)
	_, ok = m.AccountSubtree.Get(path(2))
	require.True(t, ok)
}

func TestExtendLaterWinsOnConflict(t *testing.T) {
	m := New()
	m.AccountSubtree.Set(path(1), []byte("old"))

	other := New()
	other.AccountSubtree.Set(path(1), []byte("new"))
	m.Extend(other)

	enc, ok := m.AccountSubtree.Get(path(1))
	require.True(t, ok)
	require.Equal(t, []byte("new"), enc)
}

func TestExtendMergesPerAddressStorageProofs(t *testing.T) {
	addr := common.HexToHash("0x01")

	m := New()
	m.Storages[addr] = NewProofSet()
	m.Storages[addr].Set(path(1), []byte("s1"))

	other := New()
	other.Storages[addr] = NewProofSet()
	other.Storages[addr].Set(path(2), []byte("s2"))
	m.Extend(other)

	require.Len(t, m.Storages[addr], 2)
}
