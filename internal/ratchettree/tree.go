// Package ratchettree implements the ratchet tree and the
// path-secret encryption that re-keys an authentication path after
// every group operation. A RatchetTree is a flat array keyed by node
// index: contiguous storage, no pointer aliasing between subtrees.
package ratchettree

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/credential"
	"github.com/kindlyrobotics/ratchet/internal/mlserr"
	"github.com/kindlyrobotics/ratchet/internal/treemath"
)

// RatchetTree is the logical mapping from node index to DH public
// key. Leaf nodes additionally carry a credential. A node is blank
// when its subtree contains no live members.
type RatchetTree struct {
	suite       ciphersuite.Suite
	numLeaves   uint32
	publicKeys  [][]byte
	blanks      *bitset.BitSet
	credentials []credential.Credential // indexed by leaf position (leaf i -> credentials[i])

	// privateKeys holds the secrets the local party currently has for
	// nodes on its own direct path. Never serialized.
	privateKeys map[uint32][]byte

	generation      uint64
	resolutionCache map[uint64][]uint32
}

// New creates a tree of numLeaves, entirely blank.
func New(suite ciphersuite.Suite, numLeaves uint32) *RatchetTree {
	if numLeaves == 0 {
		mlserr.Invalid("ratchettree: numLeaves must be >= 1")
	}
	n := treemath.NumNodes(numLeaves)
	return &RatchetTree{
		suite:           suite,
		numLeaves:       numLeaves,
		publicKeys:      make([][]byte, n),
		blanks:          bitset.New(uint(n)).Complement(), // all blank initially
		credentials:     make([]credential.Credential, numLeaves),
		privateKeys:     map[uint32][]byte{},
		resolutionCache: map[uint64][]uint32{},
	}
}

func (t *RatchetTree) NumLeaves() uint32 { return t.numLeaves }
func (t *RatchetTree) NumNodes() uint32  { return treemath.NumNodes(t.numLeaves) }

// PublicKey returns the public key stored at node i and whether the
// node is non-blank.
func (t *RatchetTree) PublicKey(i uint32) ([]byte, bool) {
	if i >= t.NumNodes() {
		mlserr.Invalid("ratchettree: node index %d out of range", i)
	}
	if t.blanks.Test(uint(i)) {
		return nil, false
	}
	return t.publicKeys[i], true
}

// IsBlank reports whether node i is blank.
func (t *RatchetTree) IsBlank(i uint32) bool {
	if i >= t.NumNodes() {
		mlserr.Invalid("ratchettree: node index %d out of range", i)
	}
	return t.blanks.Test(uint(i))
}

// SetPublicKey installs pub at node i and marks it non-blank.
func (t *RatchetTree) SetPublicKey(i uint32, pub []byte) {
	if i >= t.NumNodes() {
		mlserr.Invalid("ratchettree: node index %d out of range", i)
	}
	t.publicKeys[i] = pub
	t.blanks.Clear(uint(i))
	t.bumpGeneration()
}

// Blank marks node i (and, for leaves, drops its credential) as
// containing no live member. Roster holes are never compacted: the
// leaf index is retained, only its content is wiped.
func (t *RatchetTree) Blank(i uint32) {
	if i >= t.NumNodes() {
		mlserr.Invalid("ratchettree: node index %d out of range", i)
	}
	t.suite.Zeroize(t.publicKeys[i])
	t.publicKeys[i] = nil
	t.blanks.Set(uint(i))
	if priv, ok := t.privateKeys[i]; ok {
		t.suite.Zeroize(priv)
		delete(t.privateKeys, i)
	}
	t.bumpGeneration()
}

// Credential returns the credential bound to leaf position leafIdx
// (0-based roster position, not the doubled node index).
func (t *RatchetTree) Credential(leafIdx uint32) (credential.Credential, bool) {
	if leafIdx >= t.numLeaves {
		mlserr.Invalid("ratchettree: leaf position %d out of range", leafIdx)
	}
	node := leafIdx * 2
	if t.blanks.Test(uint(node)) {
		return credential.Credential{}, false
	}
	return t.credentials[leafIdx], true
}

// SetCredential binds a credential to leaf position leafIdx, without
// touching its public key (callers set both when filling a leaf).
func (t *RatchetTree) SetCredential(leafIdx uint32, c credential.Credential) {
	if leafIdx >= t.numLeaves {
		mlserr.Invalid("ratchettree: leaf position %d out of range", leafIdx)
	}
	t.credentials[leafIdx] = c
}

// PrivateKey returns the locally-held private key for node i, if any.
func (t *RatchetTree) PrivateKey(i uint32) ([]byte, bool) {
	k, ok := t.privateKeys[i]
	return k, ok
}

// SetPrivateKey records the local party's private key for node i.
func (t *RatchetTree) SetPrivateKey(i uint32, priv []byte) {
	t.privateKeys[i] = priv
}

func (t *RatchetTree) bumpGeneration() {
	t.generation++
	// Any mutation invalidates every cached resolution; clearing the
	// whole map is simpler than tracking which ancestors are affected,
	// and resolutions are cheap to recompute on the next lookup.
	t.resolutionCache = map[uint64][]uint32{}
}

// Resolution returns the minimal set of non-blank subtree roots
// covering all live members below node i. Results
// are memoized per tree generation, keyed by xxhash of (generation,
// node) the way a content-addressed cache would key on a digest.
func (t *RatchetTree) Resolution(i uint32) []uint32 {
	if i >= t.NumNodes() {
		mlserr.Invalid("ratchettree: node index %d out of range", i)
	}

	key := resolutionCacheKey(t.generation, i)
	if cached, ok := t.resolutionCache[key]; ok {
		return cached
	}

	var res []uint32
	if !t.blanks.Test(uint(i)) {
		res = []uint32{i}
	} else if treemath.IsLeaf(i) {
		res = nil
	} else {
		left := t.Resolution(treemath.LeftChild(i))
		right := t.Resolution(treemath.RightChild(i, t.numLeaves))
		res = make([]uint32, 0, len(left)+len(right))
		res = append(res, left...)
		res = append(res, right...)
	}

	t.resolutionCache[key] = res
	return res
}

func resolutionCacheKey(generation uint64, node uint32) uint64 {
	var buf [12]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(generation >> (8 * i))
	}
	for i := 0; i < 4; i++ {
		buf[8+i] = byte(node >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// IsAncestor reports whether node x is an ancestor of, or identical
// to, leaf position leafIdx within a tree of n leaves.
func IsAncestor(x uint32, leafIdx, n uint32) bool {
	leaf := leafIdx * 2
	if x == leaf || x == treemath.Root(n) {
		return true
	}
	for _, a := range treemath.DirectPath(leaf, n) {
		if a == x {
			return true
		}
	}
	return false
}

// BlankPath blanks leafIdx's leaf node and every internal node on its
// direct path, leaving the root untouched. Removing a member wipes
// every key its departure invalidates; the accompanying path message
// re-keys the root for the members who remain.
func (t *RatchetTree) BlankPath(leafIdx uint32) {
	if leafIdx >= t.numLeaves {
		mlserr.Invalid("ratchettree: leaf position %d out of range", leafIdx)
	}
	leaf := leafIdx * 2
	t.Blank(leaf)
	for _, node := range treemath.DirectPath(leaf, t.numLeaves) {
		t.Blank(node)
	}
}

// Clone deep-copies the tree, used by groupstate.Apply to stage a
// group operation against a scratch copy so a rejected handshake
// never leaves the caller's tree half-mutated.
func (t *RatchetTree) Clone() *RatchetTree {
	out := &RatchetTree{
		suite:           t.suite,
		numLeaves:       t.numLeaves,
		publicKeys:      make([][]byte, len(t.publicKeys)),
		blanks:          t.blanks.Clone(),
		credentials:     make([]credential.Credential, len(t.credentials)),
		privateKeys:     make(map[uint32][]byte, len(t.privateKeys)),
		resolutionCache: map[uint64][]uint32{},
	}
	for i, pub := range t.publicKeys {
		if pub != nil {
			out.publicKeys[i] = append([]byte(nil), pub...)
		}
	}
	copy(out.credentials, t.credentials)
	for k, v := range t.privateKeys {
		out.privateKeys[k] = append([]byte(nil), v...)
	}
	return out
}

// LeftmostBlankLeaf returns the lowest leaf position that is blank, or
// (0, false) if every leaf is occupied — used by the Add operation's
// "fill the leftmost blank if one exists, else extend" rule.
func (t *RatchetTree) LeftmostBlankLeaf() (uint32, bool) {
	for leaf := uint32(0); leaf < t.numLeaves; leaf++ {
		if t.blanks.Test(uint(leaf * 2)) {
			return leaf, true
		}
	}
	return 0, false
}

// Grow returns a new tree of newNumLeaves (which must be >= NumLeaves),
// carrying over every existing node's public key, blank state, and
// credential at the same index. This relies on the left-balanced
// array layout's key property: growing a tree by appending leaves
// never moves an existing node to a different index, it only appends
// new indices to the right.
func (t *RatchetTree) Grow(newNumLeaves uint32) *RatchetTree {
	if newNumLeaves < t.numLeaves {
		mlserr.Invalid("ratchettree: Grow: %d is smaller than current %d leaves", newNumLeaves, t.numLeaves)
	}
	out := New(t.suite, newNumLeaves)
	for i := uint32(0); i < uint32(len(t.publicKeys)); i++ {
		if t.blanks.Test(uint(i)) {
			continue
		}
		out.publicKeys[i] = t.publicKeys[i]
		out.blanks.Clear(uint(i))
	}
	copy(out.credentials, t.credentials)
	for k, v := range t.privateKeys {
		out.privateKeys[k] = v
	}
	return out
}

// ExportPublicKeys returns a copy of every node's public key, in node
// index order, with a nil entry for blank nodes — the shape
// welcome.WelcomeInfo.TreePublicKeys needs to hand a newcomer the
// tree's public portion.
func (t *RatchetTree) ExportPublicKeys() [][]byte {
	out := make([][]byte, len(t.publicKeys))
	for i := range out {
		if t.blanks.Test(uint(i)) {
			continue
		}
		out[i] = append([]byte(nil), t.publicKeys[i]...)
	}
	return out
}

// ExportCredentials returns a copy of every roster slot's credential,
// serialized, with a nil entry for a hole.
func (t *RatchetTree) ExportCredentials() ([][]byte, error) {
	out := make([][]byte, t.numLeaves)
	for i := range out {
		if t.blanks.Test(uint(i * 2)) {
			continue
		}
		b, err := t.credentials[i].MarshalTLS()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// FromExport reconstructs a tree from the public-key/credential
// vectors a Welcome carries, the inverse of ExportPublicKeys /
// ExportCredentials. Used by a joiner bootstrapping its GroupState.
func FromExport(suite ciphersuite.Suite, numLeaves uint32, pubKeys [][]byte, credentialBytes [][]byte) (*RatchetTree, error) {
	t := New(suite, numLeaves)
	want := t.NumNodes()
	if uint32(len(pubKeys)) != want {
		mlserr.Invalid("ratchettree: FromExport: got %d public keys, want %d", len(pubKeys), want)
	}
	if uint32(len(credentialBytes)) != numLeaves {
		mlserr.Invalid("ratchettree: FromExport: got %d credentials, want %d", len(credentialBytes), numLeaves)
	}
	for i, pub := range pubKeys {
		if len(pub) == 0 {
			continue
		}
		t.SetPublicKey(uint32(i), append([]byte(nil), pub...))
	}
	for leaf, raw := range credentialBytes {
		if len(raw) == 0 {
			continue
		}
		var c credential.Credential
		if _, err := c.UnmarshalTLS(raw); err != nil {
			return nil, err
		}
		t.SetCredential(uint32(leaf), c)
	}
	return t, nil
}
