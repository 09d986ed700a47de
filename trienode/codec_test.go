package trienode

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/go-state-trie/sparsetrie/nibble"
)

func TestEncodeDecodeLeaf(t *testing.T) {
	leaf := &Leaf{Suffix: nibble.Path{1, 2, 3}, Value: []byte("hello")}
	enc, err := Encode(leaf)
	require.NoError(t, err)

	decoded, err := Decode(enc)
	require.NoError(t, err)

	got, ok := decoded.(*Leaf)
	require.True(t, ok)
	require.True(t, leaf.Suffix.Equal(got.Suffix))
	require.Equal(t, leaf.Value, got.Value)
}

func TestEncodeBranchWithBlindedChild(t *testing.T) {
	hash := common.HexToHash("0x0102030405060708091011121314151617181920212223242526272829303a")
	var branch Branch
	branch.Children[3] = &Blinded{Hash: hash}
	branch.Children[9] = &Leaf{Suffix: nibble.Path{0xa}, Value: []byte("v")}

	enc, err := Encode(&branch)
	require.NoError(t, err)

	decoded, err := Decode(enc)
	require.NoError(t, err)

	got, ok := decoded.(*Branch)
	require.True(t, ok)

	blinded, ok := got.Children[3].(*Blinded)
	require.True(t, ok)
	require.Equal(t, hash, blinded.Hash)

	leaf, ok := got.Children[9].(*Leaf)
	require.True(t, ok)
	require.Equal(t, []byte("v"), leaf.Value)

	for i, c := range got.Children {
		if i != 3 && i != 9 {
			require.Nil(t, c)
		}
	}
}

func TestEmptyTrieHash(t *testing.T) {
	hash, err := Hash(nil)
	require.NoError(t, err)
	require.Equal(t, EmptyRootHash, hash)
}

func TestHashStableForEquivalentNodes(t *testing.T) {
	a := &Leaf{Suffix: nibble.Path{1, 2}, Value: []byte("x")}
	b := &Leaf{Suffix: nibble.Path{1, 2}, Value: []byte("x")}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}
