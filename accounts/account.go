// Package accounts defines the RLP-encoded account record stored as a leaf
// value in the account trie.
package accounts

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Account is the canonical Ethereum state account record: nonce, balance,
// storage root, and code hash, RLP-encoded in that order as a 4-item list.
// A nil *Account (used throughout this module's maps) means "account
// deleted"; a non-nil *Account, even one with every field at its zero
// value, means "account present with this record".
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     common.Hash
	CodeHash []byte
}

// EmptyCodeHash is Keccak256("").
var EmptyCodeHash = crypto.Keccak256(nil)

// Empty returns the account record assigned to an address with no balance,
// no nonce, no code, and an empty storage trie.
func Empty() *Account {
	return &Account{
		Balance:  new(uint256.Int),
		Root:     emptyRoot(),
		CodeHash: EmptyCodeHash,
	}
}

// rlpAccount is the wire representation: the same four fields in
// go-ethereum's StateAccount order, with the balance kept as *uint256.Int,
// which the rlp package encodes and decodes directly.
type rlpAccount struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     common.Hash
	CodeHash []byte
}

// Encode produces the canonical RLP encoding of a, substituting the empty
// account record if a is nil is the caller's responsibility (callers must
// not call Encode(nil); removal is expressed by omitting the leaf, not by
// encoding a nil account).
func Encode(a *Account) ([]byte, error) {
	return rlp.EncodeToBytes(&rlpAccount{
		Nonce:    a.Nonce,
		Balance:  a.Balance,
		Root:     a.Root,
		CodeHash: a.CodeHash,
	})
}

// Decode parses an RLP-encoded account record.
func Decode(enc []byte) (*Account, error) {
	var r rlpAccount
	if err := rlp.DecodeBytes(enc, &r); err != nil {
		return nil, err
	}
	return &Account{Nonce: r.Nonce, Balance: r.Balance, Root: r.Root, CodeHash: r.CodeHash}, nil
}

// WithStorageRoot returns a shallow copy of a with its storage root field
// replaced, used when re-encoding an account leaf after its storage
// sub-trie's root has been recomputed.
func (a *Account) WithStorageRoot(root common.Hash) *Account {
	clone := *a
	clone.Root = root
	return &clone
}

// HashedAddress returns the nibble-path key under which addr's account
// leaf is stored: Keccak256(addr).
func HashedAddress(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(addr.Bytes())
}

// HashedSlot returns the nibble-path key under which storage slot key is
// stored within an account's storage trie: Keccak256(key).
func HashedSlot(key common.Hash) common.Hash {
	return crypto.Keccak256Hash(key.Bytes())
}

// EncodeStorageValue produces the canonical RLP encoding of a storage
// slot's 32-byte word: the big-endian value with leading zero bytes
// stripped, then RLP string-encoded, matching go-ethereum's StateDB
// storage trie convention.
func EncodeStorageValue(v [32]byte) ([]byte, error) {
	trimmed := bytes.TrimLeft(v[:], "\x00")
	return rlp.EncodeToBytes(trimmed)
}

// DecodeStorageValue parses a storage slot's RLP encoding back into a
// 32-byte word.
func DecodeStorageValue(enc []byte) ([32]byte, error) {
	var trimmed []byte
	if err := rlp.DecodeBytes(enc, &trimmed); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[32-len(trimmed):], trimmed)
	return out, nil
}

func emptyRoot() common.Hash {
	// Mirrors trienode.EmptyRootHash without importing trienode, to avoid a
	// dependency cycle (trienode does not need to know about accounts).
	return common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
}
