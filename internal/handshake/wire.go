package handshake

import (
	"encoding/binary"

	"github.com/kindlyrobotics/ratchet/internal/ratchettree"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// MarshalTLS encodes RemoveOperation as its 4-byte big-endian Removed
// index followed by the DirectPathMessage's own encoding. A plain
// struct tag can't express "pointer to a TLS-encodable struct", so
// this is written out by hand the same way GroupOperation is.
func (r RemoveOperation) MarshalTLS() ([]byte, error) {
	if r.Path == nil {
		return nil, malformedf("RemoveOperation: nil DirectPathMessage")
	}
	pathBytes, err := wire.Marshal(r.Path)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(pathBytes))
	binary.BigEndian.PutUint32(out, r.Removed)
	out = append(out, pathBytes...)
	return out, nil
}

// UnmarshalTLS is the inverse of MarshalTLS, reporting bytes consumed.
func (r *RemoveOperation) UnmarshalTLS(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, malformedf("RemoveOperation: truncated removed index")
	}
	r.Removed = binary.BigEndian.Uint32(data[:4])
	path := new(ratchettree.DirectPathMessage)
	n, err := wire.UnmarshalPrefix(data[4:], path)
	if err != nil {
		return 0, err
	}
	r.Path = path
	return 4 + n, nil
}
