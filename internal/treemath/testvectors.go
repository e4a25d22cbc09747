package treemath

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kindlyrobotics/ratchet/internal/mlserr"
)

// TestVectors mirrors the binary test-vector interface: four
// length-prefixed uint32 vectors (each length-prefixed as
// <0..2^32-1>), plus the root vector. root[i] is the root of a tree
// with i+1 leaves; the remaining vectors are all within the context of
// a tree of 255 leaves.
type TestVectors struct {
	Root    []uint32
	Left    []uint32
	Right   []uint32
	Parent  []uint32
	Sibling []uint32
}

// ReadTestVectors parses the binary layout
// { root:[u32], left:[u32], right:[u32], parent:[u32], sibling:[u32] },
// each vector prefixed with a big-endian uint32 element count.
func ReadTestVectors(r io.Reader) (*TestVectors, error) {
	tv := &TestVectors{}
	fields := []*[]uint32{&tv.Root, &tv.Left, &tv.Right, &tv.Parent, &tv.Sibling}
	for _, f := range fields {
		vec, err := readU32Vector(r)
		if err != nil {
			return nil, err
		}
		*f = vec
	}
	return tv, nil
}

func readU32Vector(r io.Reader) ([]uint32, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, mlserr.MalformedWire("reading vector length prefix", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])

	out := make([]uint32, n)
	for i := range out {
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, mlserr.MalformedWire(fmt.Sprintf("reading vector element %d", i), err)
		}
		out[i] = binary.BigEndian.Uint32(buf[:])
	}
	return out, nil
}

// Check validates tv against this package's tree-math functions:
// root[i] must equal Root(i+1), and left/right/parent/sibling must
// match the functions evaluated over a tree of 255 leaves. Returns a
// descriptive error for the first mismatch found.
func (tv *TestVectors) Check() error {
	for i, want := range tv.Root {
		got := Root(uint32(i) + 1)
		if got != want {
			return fmt.Errorf("root[%d]: got %d, want %d", i, got, want)
		}
	}

	const size = 255
	checks := []struct {
		name string
		vec  []uint32
		fn   func(i uint32) uint32
	}{
		{"left", tv.Left, func(i uint32) uint32 { return LeftChild(i) }},
		{"right", tv.Right, func(i uint32) uint32 { return RightChild(i, size) }},
		{"parent", tv.Parent, func(i uint32) uint32 { return Parent(i, size) }},
		{"sibling", tv.Sibling, func(i uint32) uint32 { return Sibling(i, size) }},
	}
	for _, c := range checks {
		for i, want := range c.vec {
			got := c.fn(uint32(i))
			if got != want {
				return fmt.Errorf("%s[%d]: got %d, want %d", c.name, i, got, want)
			}
		}
	}
	return nil
}
