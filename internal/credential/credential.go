// Package credential binds a roster slot to a signature verification
// key. Every handshake validation step that resolves signer_index
// needs one of these.
package credential

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/kindlyrobotics/ratchet/internal/mlserr"
)

// Credential is the identity a roster slot presents: a verification
// key under some ciphersuite's signature scheme, plus a human-readable
// label for logs and diagnostics.
type Credential struct {
	Label         string
	SignatureKey  []byte
	CipherSuiteID uint16
}

// New constructs a Credential, copying the key so the caller's buffer
// can be reused or zeroized independently.
func New(label string, signatureKey []byte, cipherSuiteID uint16) Credential {
	key := make([]byte, len(signatureKey))
	copy(key, signatureKey)
	return Credential{Label: label, SignatureKey: key, CipherSuiteID: cipherSuiteID}
}

// Fingerprint returns the hex-encoded SHA-256 digest of the
// verification key.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256(c.SignatureKey)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two credentials present the same verification
// key under the same suite. Labels are diagnostic only and not
// compared.
func (c Credential) Equal(other Credential) bool {
	if c.CipherSuiteID != other.CipherSuiteID || len(c.SignatureKey) != len(other.SignatureKey) {
		return false
	}
	for i := range c.SignatureKey {
		if c.SignatureKey[i] != other.SignatureKey[i] {
			return false
		}
	}
	return true
}

// MarshalTLS encodes Credential as a 2-byte cipher suite ID, a
// 1-byte-length-prefixed label, and a 2-byte-length-prefixed
// signature key (Dilithium verification keys run to a couple of
// kilobytes). Hand-written rather than struct-tagged since the
// library's tag inference doesn't cover a bare Go string field.
func (c Credential) MarshalTLS() ([]byte, error) {
	if len(c.Label) > 255 {
		return nil, mlserrTooLong("credential label", 255)
	}
	if len(c.SignatureKey) > 65535 {
		return nil, mlserrTooLong("credential signature key", 65535)
	}
	out := make([]byte, 0, 2+1+len(c.Label)+2+len(c.SignatureKey))
	var suiteID [2]byte
	binary.BigEndian.PutUint16(suiteID[:], c.CipherSuiteID)
	out = append(out, suiteID[:]...)
	out = append(out, byte(len(c.Label)))
	out = append(out, c.Label...)
	var keyLen [2]byte
	binary.BigEndian.PutUint16(keyLen[:], uint16(len(c.SignatureKey)))
	out = append(out, keyLen[:]...)
	out = append(out, c.SignatureKey...)
	return out, nil
}

// UnmarshalTLS is the inverse of MarshalTLS, reporting bytes consumed.
func (c *Credential) UnmarshalTLS(data []byte) (int, error) {
	if len(data) < 3 {
		return 0, mlserrTruncated("credential")
	}
	c.CipherSuiteID = binary.BigEndian.Uint16(data[:2])
	pos := 2
	labelLen := int(data[pos])
	pos++
	if len(data) < pos+labelLen+2 {
		return 0, mlserrTruncated("credential label")
	}
	c.Label = string(data[pos : pos+labelLen])
	pos += labelLen
	keyLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if len(data) < pos+keyLen {
		return 0, mlserrTruncated("credential signature key")
	}
	c.SignatureKey = append([]byte(nil), data[pos:pos+keyLen]...)
	pos += keyLen
	return pos, nil
}

func mlserrTooLong(what string, limit int) error {
	return mlserr.MalformedWire(fmt.Sprintf("credential: %s exceeds %d bytes", what, limit), nil)
}

func mlserrTruncated(what string) error {
	return mlserr.MalformedWire("credential: "+what+" truncated", nil)
}
