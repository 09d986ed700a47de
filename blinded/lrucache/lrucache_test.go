package lrucache

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/nibble"
)

type countingFactory struct {
	accountCalls int
	storageCalls int
	enc          []byte
}

func (f *countingFactory) AccountProvider() blinded.AccountNodeProvider { return countingAccount{f} }
func (f *countingFactory) StorageProvider(common.Hash) blinded.StorageNodeProvider {
	return countingStorage{f}
}

type countingAccount struct{ f *countingFactory }

func (p countingAccount) AccountNode(nibble.Path) ([]byte, error) {
	p.f.accountCalls++
	return p.f.enc, nil
}

type countingStorage struct{ f *countingFactory }

func (p countingStorage) StorageNode(nibble.Path) ([]byte, error) {
	p.f.storageCalls++
	return p.f.enc, nil
}

func path(n byte) nibble.Path {
	var raw [32]byte
	raw[31] = n
	return nibble.Unpack(raw)
}

func TestAccountLookupIsCachedAcrossProviders(t *testing.T) {
	inner := &countingFactory{enc: []byte("leaf")}
	f := New(inner, 8)

	p1 := f.AccountProvider()
	enc, err := p1.AccountNode(path(1))
	require.NoError(t, err)
	require.Equal(t, []byte("leaf"), enc)

	// A fresh provider from the same factory still hits the shared cache.
	p2 := f.AccountProvider()
	_, err = p2.AccountNode(path(1))
	require.NoError(t, err)

	require.Equal(t, 1, inner.accountCalls)
}

func TestStorageLookupIsScopedByAddress(t *testing.T) {
	inner := &countingFactory{enc: []byte("slot")}
	f := New(inner, 8)

	addrA := common.HexToHash("0x01")
	addrB := common.HexToHash("0x02")

	_, err := f.StorageProvider(addrA).StorageNode(path(1))
	require.NoError(t, err)
	_, err = f.StorageProvider(addrA).StorageNode(path(1))
	require.NoError(t, err)
	_, err = f.StorageProvider(addrB).StorageNode(path(1))
	require.NoError(t, err)

	require.Equal(t, 2, inner.storageCalls)
}

func TestZeroSizeDisablesCaching(t *testing.T) {
	inner := &countingFactory{enc: []byte("leaf")}
	f := New(inner, 0)

	p := f.AccountProvider()
	_, _ = p.AccountNode(path(1))
	_, _ = p.AccountNode(path(1))

	require.Equal(t, 2, inner.accountCalls)
}
