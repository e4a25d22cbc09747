// Package ciphersuite models the external cryptographic collaborator
// the rest of the core depends on: an opaque capability set of dh, kdf,
// aead, hmac, signature, and ecies primitives. The core never branches
// on which concrete suite it holds — it only calls through this
// interface — so ciphersuite agility is a configuration choice, not a
// dispatch-by-inheritance hierarchy.
package ciphersuite

// Suite is the capability set a Group State is configured with. Every
// method is a pure (modulo randomness) call into the concrete
// provider; the core treats signature verification and ECIES as
// atomic.
type Suite interface {
	// ID is the wire identifier for this suite.
	ID() uint16
	// Name is a human-readable label for logs and error messages.
	Name() string

	// DH key generation and sizes. A DH keypair also serves as the
	// keypair ECIES encrypts to / decrypts from.
	DHKeyGen(seed []byte) (pub, priv []byte, err error)
	DHPublicKeySize() int
	DHPrivateKeySize() int

	// KDF expands a secret under a domain-separation label into
	// length fresh bytes — used both for the next path secret
	// and for deriving epoch keys.
	KDFExpand(secret []byte, label string, length int) []byte

	// HMAC is a fixed-output-length MAC, used for the confirmation
	// tag.
	HMAC(key, data []byte) []byte
	HMACSize() int

	// Hash is the ciphersuite's plain hash function H, used for the
	// running transcript hash: transcript_hash_k =
	// H(transcript_hash_{k-1} || canonical_bytes(handshake_k)).
	Hash(data []byte) []byte
	HashSize() int

	// Signature key generation, signing and verification, used for
	// identity keys and UserInitKey/Welcome signing.
	SignatureKeyGen(seed []byte) (pub, priv []byte, err error)
	SignatureSign(priv, msg []byte) ([]byte, error)
	SignatureVerify(pub, msg, sig []byte) bool

	// ECIES hybrid-encrypts a symmetric payload to a DH public key,
	// yielding a self-contained ciphertext.
	ECIESEncrypt(pub, plaintext []byte) ([]byte, error)
	ECIESDecrypt(priv, ciphertext []byte) ([]byte, error)

	// Zeroize wipes a secret-bearing buffer in place.
	Zeroize(buf []byte)
}

// Registry maps the recognized cipher-suite identifiers to concrete
// suites. Ciphersuite identifiers are opaque capability objects; this
// repo registers the two it ships with.
var Registry = map[uint16]Suite{}

func register(s Suite) {
	Registry[s.ID()] = s
}

// ByID looks up a registered suite by its wire identifier. Returns
// (nil, false) for an unrecognized suite — callers should treat that as
// a ProtocolMismatch, not a panic, since the identifier comes from
// remote input.
func ByID(id uint16) (Suite, bool) {
	s, ok := Registry[id]
	return s, ok
}
