// Package wire carries the TLS-presentation-style encoding used
// throughout this module: length-prefixed opaque vectors, 1-byte enum
// tags, big-endian integers. Domain types elsewhere in this module
// carry `tls:"..."` struct tags and call through Marshal/Unmarshal
// here rather than hand-rolling their own length-prefix bookkeeping.
package wire

import (
	"fmt"

	"github.com/bifurcation/mint/syntax"

	"github.com/kindlyrobotics/ratchet/internal/mlserr"
)

// Marshal encodes v per its tls struct tags.
func Marshal(v interface{}) ([]byte, error) {
	out, err := syntax.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", v, err)
	}
	return out, nil
}

// Unmarshal decodes data into v per its tls struct tags. Any failure —
// a length prefix that overruns the buffer, an unrecognized enum tag,
// a short read — is categorized as MalformedWire: the
// caller should reject at the deserialization boundary without having
// mutated anything. Unmarshal requires data to be consumed exactly;
// use UnmarshalPrefix to decode a value embedded inside a larger
// buffer (e.g. a tagged union's variant body).
func Unmarshal(data []byte, v interface{}) error {
	read, err := UnmarshalPrefix(data, v)
	if err != nil {
		return err
	}
	if read != len(data) {
		return mlserr.MalformedWire(fmt.Sprintf("unmarshal %T: %d trailing bytes", v, len(data)-read), nil)
	}
	return nil
}

// UnmarshalPrefix decodes a v from the front of data and reports how
// many bytes it consumed, leaving any remainder unexamined. This is
// what a type's own custom UnmarshalTLS method should call when it
// needs to decode a nested TLS value without knowing its encoded
// length in advance (the same two-return-value contract
// bifurcation/mint/syntax expects from custom UnmarshalTLS methods).
func UnmarshalPrefix(data []byte, v interface{}) (int, error) {
	read, err := syntax.Unmarshal(data, v)
	if err != nil {
		return 0, mlserr.MalformedWire(fmt.Sprintf("unmarshal %T", v), err)
	}
	return read, nil
}

// Opaque2 is an opaque byte vector carrying its own 2-byte length
// head. Struct tags can only express the outermost vector's head, so
// a vector-of-vectors field uses []Opaque2 and lets each element
// prefix itself.
type Opaque2 []byte

func (o Opaque2) MarshalTLS() ([]byte, error) {
	return syntax.Marshal(struct {
		Data []byte `tls:"head=2"`
	}{o})
}

func (o *Opaque2) UnmarshalTLS(data []byte) (int, error) {
	var inner struct {
		Data []byte `tls:"head=2"`
	}
	read, err := syntax.Unmarshal(data, &inner)
	if err != nil {
		return 0, err
	}
	*o = inner.Data
	return read, nil
}

// Opaque2Slice converts a [][]byte into nested-vector form. Nil inner
// slices become zero-length entries.
func Opaque2Slice(bs [][]byte) []Opaque2 {
	out := make([]Opaque2, len(bs))
	for i, b := range bs {
		out[i] = Opaque2(b)
	}
	return out
}

// ByteSlices is the inverse of Opaque2Slice.
func ByteSlices(os []Opaque2) [][]byte {
	out := make([][]byte, len(os))
	for i, o := range os {
		out[i] = []byte(o)
	}
	return out
}
