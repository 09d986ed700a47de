package trienode

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/go-state-trie/sparsetrie/nibble"
)

// EmptyRootHash is the Keccak256 hash of the RLP-encoded empty string,
// which is the canonical root hash of a trie with no entries.
var EmptyRootHash = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

const branchArity = 17 // 16 nibble slots + one value slot

// CodecError reports malformed node encoding (the "Codec" error kind of the
// engine's error taxonomy).
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string { return fmt.Sprintf("trienode: %s", e.Reason) }

func codecErrorf(format string, args ...any) error {
	return &CodecError{Reason: fmt.Sprintf(format, args...)}
}

// Hash returns the canonical root hash of n, unconditionally Keccak256-ing
// its RLP encoding regardless of size (root nodes are always referenced by
// hash, never inlined).
func Hash(n Node) (common.Hash, error) {
	if n == nil {
		return EmptyRootHash, nil
	}
	if b, ok := n.(*Blinded); ok {
		return b.Hash, nil
	}
	enc, err := Encode(n)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Encode produces the canonical Merkle-Patricia RLP encoding of n: a
// 2-item hex-prefix list for Leaf/Extension, or a 17-item list for Branch.
// Children are referenced by their own Encode output when it is shorter
// than a hash (inlined) or by their Keccak256 hash otherwise, matching the
// classic go-ethereum hasher rule.
func Encode(n Node) ([]byte, error) {
	switch v := n.(type) {
	case nil:
		return rlp.EncodeToBytes([]byte{})
	case *Leaf:
		return rlp.EncodeToBytes([]any{v.Suffix.Compact(true), v.Value})
	case *Extension:
		childRef, err := childReference(v.Child)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes([]any{v.Suffix.Compact(false), childRef})
	case *Branch:
		var items [branchArity]any
		for i, c := range v.Children {
			ref, err := childReference(c)
			if err != nil {
				return nil, err
			}
			items[i] = ref
		}
		if v.Value == nil {
			items[branchArity-1] = []byte{}
		} else {
			items[branchArity-1] = v.Value
		}
		return rlp.EncodeToBytes(items[:])
	case *Blinded:
		return nil, codecErrorf("cannot encode a blinded node directly, hash %s", v.Hash)
	default:
		return nil, codecErrorf("unsupported node type %T", n)
	}
}

// childReference returns the RLP item used to reference a child from
// inside its parent's encoding: the child's own encoding, raw, if that
// encoding is shorter than a Keccak256 digest, or the digest itself
// otherwise. A nil child reference is the RLP empty string.
func childReference(n Node) (rlp.RawValue, error) {
	if n == nil {
		return rlp.EncodeToBytes([]byte{})
	}
	if b, ok := n.(*Blinded); ok {
		return rlp.EncodeToBytes(b.Hash.Bytes())
	}

	enc, err := Encode(n)
	if err != nil {
		return nil, err
	}
	if len(enc) < common.HashLength {
		return rlp.RawValue(enc), nil
	}
	hash := crypto.Keccak256(enc)
	return rlp.EncodeToBytes(hash)
}

// Decode decodes a single node from its canonical encoding without
// recursing into out-of-line (hash-referenced) children: those children
// become *Blinded placeholders carrying the referenced hash. Children that
// were inlined in the parent's encoding are decoded fully, since they carry
// no separate storage representation.
func Decode(enc []byte) (Node, error) {
	kind, content, rest, err := rlp.Split(enc)
	if err != nil {
		return nil, codecErrorf("malformed node: %v", err)
	}
	if len(rest) != 0 {
		return nil, codecErrorf("trailing bytes after node encoding")
	}
	if kind != rlp.List {
		return nil, codecErrorf("expected a node list, got a string of length %d", len(content))
	}
	return decodeListContent(content)
}

func decodeListContent(content []byte) (Node, error) {
	numElems, err := rlp.CountValues(content)
	if err != nil {
		return nil, codecErrorf("malformed node list: %v", err)
	}

	switch numElems {
	case 2:
		return decodeShortNode(content)
	case branchArity:
		return decodeBranchNode(content)
	default:
		return nil, codecErrorf("node list has unsupported arity %d", numElems)
	}
}

func decodeShortNode(content []byte) (Node, error) {
	keyBytes, rest, err := rlp.SplitString(content)
	if err != nil {
		return nil, codecErrorf("malformed node key: %v", err)
	}
	path, terminator, err := nibble.FromCompact(keyBytes)
	if err != nil {
		return nil, codecErrorf("malformed hex-prefix key: %v", err)
	}

	if terminator {
		value, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, codecErrorf("malformed leaf value: %v", err)
		}
		return &Leaf{Suffix: path, Value: append([]byte(nil), value...)}, nil
	}

	child, err := decodeChild(rest)
	if err != nil {
		return nil, err
	}
	return &Extension{Suffix: path, Child: child}, nil
}

func decodeBranchNode(content []byte) (*Branch, error) {
	var b Branch
	rest := content
	for i := 0; i < NumChildren; i++ {
		kind, childContent, remaining, err := rlp.Split(rest)
		if err != nil {
			return nil, codecErrorf("malformed branch child %d: %v", i, err)
		}
		rest = remaining

		if kind == rlp.String && len(childContent) == 0 {
			continue
		}
		if kind == rlp.String && len(childContent) == common.HashLength {
			b.Children[i] = &Blinded{Hash: common.BytesToHash(childContent)}
			continue
		}
		if kind == rlp.List {
			child, err := decodeListContent(childContent)
			if err != nil {
				return nil, err
			}
			b.Children[i] = child
			continue
		}
		return nil, codecErrorf("branch child %d has unsupported encoding", i)
	}

	value, _, err := rlp.SplitString(rest)
	if err != nil {
		return nil, codecErrorf("malformed branch value: %v", err)
	}
	if len(value) > 0 {
		b.Value = append([]byte(nil), value...)
	}
	return &b, nil
}

func decodeChild(rest []byte) (Node, error) {
	kind, content, _, err := rlp.Split(rest)
	if err != nil {
		return nil, codecErrorf("malformed extension child: %v", err)
	}
	if kind == rlp.String && len(content) == common.HashLength {
		return &Blinded{Hash: common.BytesToHash(content)}, nil
	}
	if kind == rlp.List {
		return decodeListContent(content)
	}
	return nil, codecErrorf("extension child has unsupported encoding")
}
