// Package storagetrie implements the per-account sparse Merkle-Patricia
// trie: a revealed subset of a trie's nodes, pending mutations, and
// amortized hash recomputation. The same implementation backs both an
// individual account's storage trie and the account trie itself (whose
// leaves just happen to carry RLP-encoded account records instead of raw
// storage values).
//
// The structural edit logic (split a leaf into a branch, collapse a branch
// back into an extension or leaf) is adapted from the teacher's
// TurboTrie.put/remove/replaceChild, generalized to drop per-node
// versioning (this trie lives only for one block, never persisted node by
// node) and to materialize *trienode.Blinded placeholders on demand via a
// caller-supplied lookup instead of loading them from a version-keyed
// store.
package storagetrie

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/go-state-trie/sparsetrie/blinded"
	"github.com/go-state-trie/sparsetrie/nibble"
	"github.com/go-state-trie/sparsetrie/sparseerr"
	"github.com/go-state-trie/sparsetrie/trienode"
	"github.com/go-state-trie/sparsetrie/updates"
)

// NodeLookup resolves a blinded node's encoded bytes given the path it was
// referenced from. It is the trie-local view of blinded.AccountNodeProvider
// / blinded.StorageNodeProvider: both satisfy this signature.
type NodeLookup func(path nibble.Path) ([]byte, error)

// Trie is a sparse Merkle-Patricia trie: some subset of its nodes are
// revealed in memory (trienode.Leaf/Extension/Branch), the rest are
// trienode.Blinded placeholders materialized on demand via lookup.
type Trie struct {
	root  trienode.Node
	lookup NodeLookup

	dirty     map[string]struct{}
	hashCache map[string]common.Hash
	encCache  map[string][]byte
	journal   *updates.NodeSet
	wiped     bool
}

// New returns an empty Trie that resolves blinded subtrees via lookup.
// lookup may be nil if the trie is never expected to need on-demand
// materialization (e.g. a trie built entirely from reveals up front).
func New(lookup NodeLookup) *Trie {
	return &Trie{
		lookup:    lookup,
		dirty:     make(map[string]struct{}),
		hashCache: make(map[string]common.Hash),
		encCache:  make(map[string][]byte),
		journal:   updates.NewNodeSet(),
	}
}

// FromRoot returns a Trie seeded with an already-materialized root node
// (e.g. a retained account-trie shell), resolving further blinded subtrees
// via lookup.
func FromRoot(root trienode.Node, lookup NodeLookup) *Trie {
	t := New(lookup)
	t.root = root
	return t
}

// RootNode exposes the trie's current root node, e.g. to extract a
// cleared shell for reuse on the next block.
func (t *Trie) RootNode() trienode.Node { return t.root }

// SetLookup rebinds the blinded-node resolver.
func (t *Trie) SetLookup(lookup NodeLookup) { t.lookup = lookup }

// Wiped reports whether Wipe has been called on this trie since it was
// constructed.
func (t *Trie) Wiped() bool { return t.wiped }

// Updates returns the node updates accumulated since the trie was
// constructed or last had TakeUpdates called, without consuming them.
func (t *Trie) Updates() *updates.NodeSet { return t.journal }

// TakeUpdates returns the accumulated node updates and resets the trie's
// journal to empty.
func (t *Trie) TakeUpdates() *updates.NodeSet {
	j := t.journal
	t.journal = updates.NewNodeSet()
	return j
}

// Reveal decodes encoded and splices it into the trie at path, replacing
// whatever *trienode.Blinded placeholder (or nil, for a first-time root
// reveal) currently sits there. If a fully revealed node already occupies
// path, its hash must match encoded's; otherwise Reveal returns a
// RevealConflict error and leaves the trie unchanged.
func (t *Trie) Reveal(path nibble.Path, encoded []byte) error {
	decoded, err := trienode.Decode(encoded)
	if err != nil {
		return sparseerr.New(sparseerr.Codec, err)
	}

	newRoot, err := t.revealAt(t.root, nibble.Path{}, path, decoded)
	if err != nil {
		return err
	}
	t.root = newRoot
	t.markDirty(path)
	return nil
}

func (t *Trie) revealAt(n trienode.Node, consumed, target nibble.Path, decoded trienode.Node) (trienode.Node, error) {
	if consumed.Equal(target) {
		switch existing := n.(type) {
		case nil:
			return decoded, nil
		case *trienode.Blinded:
			h, err := trienode.Hash(decoded)
			if err != nil {
				return nil, sparseerr.New(sparseerr.Codec, err)
			}
			if h != existing.Hash {
				return nil, sparseerr.Newf(sparseerr.RevealConflict,
					"revealed node at %s hashes to %s, expected %s", target, h, existing.Hash)
			}
			return decoded, nil
		default:
			existingHash, err := trienode.Hash(existing)
			if err != nil {
				return nil, sparseerr.New(sparseerr.Internal, err)
			}
			newHash, err := trienode.Hash(decoded)
			if err != nil {
				return nil, sparseerr.New(sparseerr.Codec, err)
			}
			if existingHash != newHash {
				return nil, sparseerr.Newf(sparseerr.RevealConflict,
					"path %s already revealed with hash %s, conflicts with %s", target, existingHash, newHash)
			}
			return existing, nil
		}
	}

	switch v := n.(type) {
	case *trienode.Extension:
		rest := target[len(consumed):]
		if len(rest) < len(v.Suffix) || !rest[:len(v.Suffix)].Equal(v.Suffix) {
			return nil, sparseerr.Newf(sparseerr.Internal, "reveal path %s diverges from extension at %s", target, consumed)
		}
		newChild, err := t.revealAt(v.Child, consumed.Append(v.Suffix), target, decoded)
		if err != nil {
			return nil, err
		}
		return &trienode.Extension{Suffix: v.Suffix, Child: newChild}, nil
	case *trienode.Branch:
		idx := target[len(consumed)]
		newChild, err := t.revealAt(v.Children[idx], consumed.Append(nibble.Path{idx}), target, decoded)
		if err != nil {
			return nil, err
		}
		nb := *v
		nb.Children[idx] = newChild
		return &nb, nil
	default:
		return nil, sparseerr.Newf(sparseerr.Internal, "cannot descend past %T at %s toward reveal target %s", n, consumed, target)
	}
}

// UpdateLeaf upserts value at key, the full nibble path to the leaf
// (unpack(keccak(...)) of an address or slot), revealing blinded nodes
// along the way as needed.
func (t *Trie) UpdateLeaf(key nibble.Path, value []byte) error {
	newRoot, changed, err := t.putAt(t.root, nibble.Path{}, key, value)
	if err != nil {
		return err
	}
	if changed {
		t.root = newRoot
		t.markDirty(key)
	}
	return nil
}

func (t *Trie) putAt(n trienode.Node, consumed, key nibble.Path, value []byte) (trienode.Node, bool, error) {
	switch v := n.(type) {
	case nil:
		return &trienode.Leaf{Suffix: key.Clone(), Value: value}, true, nil

	case *trienode.Blinded:
		resolved, err := t.resolve(v.Hash, consumed)
		if err != nil {
			return nil, false, err
		}
		return t.putAt(resolved, consumed, key, value)

	case *trienode.Leaf:
		match := key.CommonPrefixLen(v.Suffix)
		if match == len(key) && match == len(v.Suffix) {
			if bytes.Equal(v.Value, value) {
				return v, false, nil
			}
			return &trienode.Leaf{Suffix: v.Suffix, Value: value}, true, nil
		}

		branch := &trienode.Branch{}
		if match == len(v.Suffix) {
			branch.Value = v.Value
		} else {
			idx := v.Suffix[match]
			branch.Children[idx] = &trienode.Leaf{Suffix: v.Suffix[match+1:], Value: v.Value}
		}
		if match == len(key) {
			branch.Value = value
		} else {
			idx := key[match]
			branch.Children[idx] = &trienode.Leaf{Suffix: key[match+1:], Value: value}
		}

		var result trienode.Node = branch
		if match > 0 {
			result = &trienode.Extension{Suffix: key[:match], Child: branch}
		}
		return result, true, nil

	case *trienode.Extension:
		match := key.CommonPrefixLen(v.Suffix)
		if match == len(v.Suffix) {
			newChild, changed, err := t.putAt(v.Child, consumed.Append(v.Suffix), key[match:], value)
			if err != nil || !changed {
				return n, changed, err
			}
			return &trienode.Extension{Suffix: v.Suffix, Child: newChild}, true, nil
		}

		// The new key diverges partway through the extension: split it
		// into a branch at the common prefix.
		branch := &trienode.Branch{}
		remExt := v.Suffix[match+1:]
		extIdx := v.Suffix[match]
		if len(remExt) == 0 {
			branch.Children[extIdx] = v.Child
		} else {
			branch.Children[extIdx] = &trienode.Extension{Suffix: remExt, Child: v.Child}
		}

		if match == len(key) {
			branch.Value = value
		} else {
			idx := key[match]
			branch.Children[idx] = &trienode.Leaf{Suffix: key[match+1:], Value: value}
		}

		var result trienode.Node = branch
		if match > 0 {
			result = &trienode.Extension{Suffix: key[:match], Child: branch}
		}
		return result, true, nil

	case *trienode.Branch:
		if len(key) == 0 {
			if bytes.Equal(v.Value, value) {
				return v, false, nil
			}
			nb := *v
			nb.Value = value
			return &nb, true, nil
		}
		idx := key[0]
		newChild, changed, err := t.putAt(v.Children[idx], consumed.Append(nibble.Path{idx}), key[1:], value)
		if err != nil || !changed {
			return n, changed, err
		}
		nb := *v
		nb.Children[idx] = newChild
		return &nb, true, nil

	default:
		return nil, false, sparseerr.Newf(sparseerr.Internal, "put: unsupported node type %T", n)
	}
}

// RemoveLeaf deletes the value at key, if present, revealing blinded nodes
// along the way and collapsing any branch left with fewer than two
// occupants.
func (t *Trie) RemoveLeaf(key nibble.Path) error {
	newRoot, changed, err := t.removeAt(t.root, nibble.Path{}, key)
	if err != nil {
		return err
	}
	if changed {
		t.root = newRoot
		t.markDirty(key)
	}
	return nil
}

func (t *Trie) removeAt(n trienode.Node, consumed, key nibble.Path) (trienode.Node, bool, error) {
	switch v := n.(type) {
	case nil:
		return nil, false, nil

	case *trienode.Blinded:
		resolved, err := t.resolve(v.Hash, consumed)
		if err != nil {
			return nil, false, err
		}
		return t.removeAt(resolved, consumed, key)

	case *trienode.Leaf:
		if !key.Equal(v.Suffix) {
			return n, false, nil
		}
		return nil, true, nil

	case *trienode.Extension:
		match := key.CommonPrefixLen(v.Suffix)
		if match < len(v.Suffix) {
			return n, false, nil
		}
		newChild, changed, err := t.removeAt(v.Child, consumed.Append(v.Suffix), key[match:])
		if err != nil || !changed {
			return n, changed, err
		}
		merged, err := t.mergeAfterChildRemoved(v.Suffix, newChild, consumed)
		return merged, true, err

	case *trienode.Branch:
		if len(key) == 0 {
			if v.Value == nil {
				return n, false, nil
			}
			nb := *v
			nb.Value = nil
			collapsed, err := t.collapseBranch(&nb, consumed)
			return collapsed, true, err
		}
		idx := key[0]
		newChild, changed, err := t.removeAt(v.Children[idx], consumed.Append(nibble.Path{idx}), key[1:])
		if err != nil || !changed {
			return n, changed, err
		}
		nb := *v
		nb.Children[idx] = newChild
		collapsed, err := t.collapseBranch(&nb, consumed)
		return collapsed, true, err

	default:
		return nil, false, sparseerr.Newf(sparseerr.Internal, "remove: unsupported node type %T", n)
	}
}

func (t *Trie) collapseBranch(b *trienode.Branch, path nibble.Path) (trienode.Node, error) {
	count, lastIndex := b.LivingChildren()

	if count == 0 {
		if b.Value == nil {
			t.journal.Delete(path)
			return nil, nil
		}
		return &trienode.Leaf{Value: b.Value}, nil
	}

	if count == 1 && b.Value == nil {
		childPath := path.Append(nibble.Path{byte(lastIndex)})
		merged, err := t.mergeChildUp(b.Children[lastIndex], nibble.Path{byte(lastIndex)}, childPath)
		if err != nil {
			return nil, err
		}
		t.journal.Delete(childPath)
		return merged, nil
	}

	return b, nil
}

// mergeChildUp absorbs a branch's sole remaining child into the branch's
// own position, prepending ownSuffix (the nibble that selected the child)
// to whatever suffix the child already carries.
func (t *Trie) mergeChildUp(child trienode.Node, ownSuffix, childPath nibble.Path) (trienode.Node, error) {
	switch c := child.(type) {
	case *trienode.Leaf:
		return &trienode.Leaf{Suffix: ownSuffix.Append(c.Suffix), Value: c.Value}, nil
	case *trienode.Extension:
		return &trienode.Extension{Suffix: ownSuffix.Append(c.Suffix), Child: c.Child}, nil
	case *trienode.Branch:
		return &trienode.Extension{Suffix: ownSuffix, Child: c}, nil
	case *trienode.Blinded:
		resolved, err := t.resolve(c.Hash, childPath)
		if err != nil {
			return nil, err
		}
		return t.mergeChildUp(resolved, ownSuffix, childPath)
	default:
		return nil, sparseerr.Newf(sparseerr.Internal, "collapse: unsupported node type %T", child)
	}
}

func (t *Trie) mergeAfterChildRemoved(extSuffix nibble.Path, newChild trienode.Node, consumed nibble.Path) (trienode.Node, error) {
	if newChild == nil {
		t.journal.Delete(consumed)
		return nil, nil
	}
	switch c := newChild.(type) {
	case *trienode.Leaf:
		return &trienode.Leaf{Suffix: extSuffix.Append(c.Suffix), Value: c.Value}, nil
	case *trienode.Extension:
		return &trienode.Extension{Suffix: extSuffix.Append(c.Suffix), Child: c.Child}, nil
	default:
		return &trienode.Extension{Suffix: extSuffix, Child: c}, nil
	}
}

// GetLeaf returns the value stored at key, resolving any blinded nodes
// along the way, and whether a leaf exists there at all.
func (t *Trie) GetLeaf(key nibble.Path) ([]byte, bool, error) {
	return t.getAt(t.root, nibble.Path{}, key)
}

func (t *Trie) getAt(n trienode.Node, consumed, key nibble.Path) ([]byte, bool, error) {
	switch v := n.(type) {
	case nil:
		return nil, false, nil
	case *trienode.Blinded:
		resolved, err := t.resolve(v.Hash, consumed)
		if err != nil {
			return nil, false, err
		}
		return t.getAt(resolved, consumed, key)
	case *trienode.Leaf:
		if key.Equal(v.Suffix) {
			return v.Value, true, nil
		}
		return nil, false, nil
	case *trienode.Extension:
		match := key.CommonPrefixLen(v.Suffix)
		if match < len(v.Suffix) {
			return nil, false, nil
		}
		return t.getAt(v.Child, consumed.Append(v.Suffix), key[match:])
	case *trienode.Branch:
		if len(key) == 0 {
			return v.Value, v.Value != nil, nil
		}
		idx := key[0]
		return t.getAt(v.Children[idx], consumed.Append(nibble.Path{idx}), key[1:])
	default:
		return nil, false, sparseerr.Newf(sparseerr.Internal, "get: unsupported node type %T", n)
	}
}

// Wipe resets the trie to empty, discarding every pending mutation. The
// caller is expected to record that this account's storage trie was wiped
// in the final update journal (a StorageNodeSet-level flag, not per-node
// delete entries, since a consumer persisting the journal can just drop
// every previously stored node for the account wholesale).
func (t *Trie) Wipe() {
	t.root = nil
	t.dirty = make(map[string]struct{})
	t.hashCache = make(map[string]common.Hash)
	t.encCache = make(map[string][]byte)
	t.journal = updates.NewNodeSet()
	t.wiped = true
}

// Root recomputes any hashes left dirty by pending mutations and returns
// the trie's root hash.
func (t *Trie) Root() (common.Hash, error) {
	if t.root == nil {
		return trienode.EmptyRootHash, nil
	}
	hash, _, err := t.recompute(t.root, nibble.Path{}, true)
	return hash, err
}

// CalculateBelowLevel opportunistically computes and caches hashes for
// every dirty subtree rooted strictly below the given nibble depth,
// leaving shallower branches lazy so a later Root() call only has to walk
// the top of the trie.
func (t *Trie) CalculateBelowLevel(level int) error {
	return t.calcBelow(t.root, nibble.Path{}, level)
}

func (t *Trie) calcBelow(n trienode.Node, path nibble.Path, level int) error {
	if n == nil {
		return nil
	}
	if len(path) > level {
		_, _, err := t.recompute(n, path, false)
		return err
	}

	switch v := n.(type) {
	case *trienode.Branch:
		for i, c := range v.Children {
			if c == nil {
				continue
			}
			if err := t.calcBelow(c, path.Append(nibble.Path{byte(i)}), level); err != nil {
				return err
			}
		}
	case *trienode.Extension:
		return t.calcBelow(v.Child, path.Append(v.Suffix), level)
	}
	return nil
}

func (t *Trie) recompute(n trienode.Node, path nibble.Path, forceJournal bool) (common.Hash, []byte, error) {
	key := path.String()
	if !t.dirtyUnder(path) {
		if h, ok := t.hashCache[key]; ok {
			return h, t.encCache[key], nil
		}
	}

	var enc []byte
	var err error

	switch v := n.(type) {
	case *trienode.Blinded:
		t.hashCache[key] = v.Hash
		return v.Hash, nil, nil

	case *trienode.Leaf:
		enc, err = trienode.Encode(v)

	case *trienode.Extension:
		childPath := path.Append(v.Suffix)
		_, _, cerr := t.recompute(v.Child, childPath, false)
		if cerr != nil {
			return common.Hash{}, nil, cerr
		}
		enc, err = trienode.Encode(v)

	case *trienode.Branch:
		for i, c := range v.Children {
			if c == nil {
				continue
			}
			if _, _, cerr := t.recompute(c, path.Append(nibble.Path{byte(i)}), false); cerr != nil {
				return common.Hash{}, nil, cerr
			}
		}
		enc, err = trienode.Encode(v)

	default:
		return common.Hash{}, nil, sparseerr.Newf(sparseerr.Internal, "recompute: unsupported node type %T", n)
	}

	if err != nil {
		return common.Hash{}, nil, sparseerr.New(sparseerr.Codec, err)
	}

	hash, err := trienode.Hash(n)
	if err != nil {
		return common.Hash{}, nil, sparseerr.New(sparseerr.Codec, err)
	}

	t.hashCache[key] = hash
	t.encCache[key] = enc
	t.clearDirtyUnder(path)

	if forceJournal || len(enc) >= common.HashLength {
		t.journal.Upsert(path, hash, enc)
	}

	return hash, enc, nil
}

// resolve materializes a blinded subtree rooted at path via the trie's
// lookup function, decoding it into a concrete node.
func (t *Trie) resolve(hash common.Hash, path nibble.Path) (trienode.Node, error) {
	if t.lookup == nil {
		return nil, sparseerr.Newf(sparseerr.Blind, "no provider bound to resolve path %s (hash %s)", path, hash)
	}
	enc, err := t.lookup(path)
	if err != nil {
		if errors.Is(err, blinded.ErrNotFound) {
			return nil, sparseerr.Newf(sparseerr.Blind, "blinded node at path %s not found: %v", path, err)
		}
		return nil, sparseerr.New(sparseerr.ProviderError, err)
	}
	decoded, err := trienode.Decode(enc)
	if err != nil {
		return nil, sparseerr.New(sparseerr.Codec, err)
	}
	gotHash, err := trienode.Hash(decoded)
	if err != nil {
		return nil, sparseerr.New(sparseerr.Codec, err)
	}
	if gotHash != hash {
		return nil, sparseerr.Newf(sparseerr.RevealConflict, "resolved node at %s hashes to %s, expected %s", path, gotHash, hash)
	}
	return decoded, nil
}

func (t *Trie) markDirty(path nibble.Path) {
	t.dirty[path.String()] = struct{}{}
}

func (t *Trie) dirtyUnder(path nibble.Path) bool {
	prefix := path.String()
	for d := range t.dirty {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

func (t *Trie) clearDirtyUnder(path nibble.Path) {
	prefix := path.String()
	for d := range t.dirty {
		if strings.HasPrefix(d, prefix) {
			delete(t.dirty, d)
		}
	}
}
