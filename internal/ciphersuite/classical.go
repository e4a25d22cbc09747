package ciphersuite

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/templexxx/xor"
)

// ClassicalID is the wire identifier for the classical (non-PQ) suite:
// X25519 + HKDF-SHA256 + XChaCha20-Poly1305 + HMAC-SHA256 + Ed25519.
const ClassicalID uint16 = 0x0001

func init() {
	register(classicalSuite{})
}

type classicalSuite struct{}

func (classicalSuite) ID() uint16   { return ClassicalID }
func (classicalSuite) Name() string { return "X25519-HKDF-SHA256-XChaCha20Poly1305-Ed25519" }

func (classicalSuite) DHPublicKeySize() int  { return 32 }
func (classicalSuite) DHPrivateKeySize() int { return 32 }

// DHKeyGen derives an X25519 keypair from seed, clamping it per the
// X25519 spec. If seed is nil, fresh randomness is read.
func (s classicalSuite) DHKeyGen(seed []byte) ([]byte, []byte, error) {
	priv := make([]byte, 32)
	if seed != nil {
		derived := s.KDFExpand(seed, "dh-key-seed", 32)
		copy(priv, derived)
	} else if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return nil, nil, fmt.Errorf("classical: generate X25519 private key: %w", err)
	}

	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("classical: derive X25519 public key: %w", err)
	}
	return pub, priv, nil
}

func (classicalSuite) KDFExpand(secret []byte, label string, length int) []byte {
	r := hkdf.Expand(sha256.New, secret, []byte("ratchet "+label))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf.Expand only fails when length exceeds 255*hash size;
		// every caller in this repo stays far under that bound.
		panic(fmt.Sprintf("classical: KDFExpand: %v", err))
	}
	return out
}

func (classicalSuite) HMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (classicalSuite) HMACSize() int { return sha256.Size }

func (classicalSuite) Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (classicalSuite) HashSize() int { return sha256.Size }

func (s classicalSuite) SignatureKeyGen(seed []byte) ([]byte, []byte, error) {
	if seed != nil {
		seed32 := s.KDFExpand(seed, "sig-key-seed", ed25519.SeedSize)
		priv := ed25519.NewKeyFromSeed(seed32)
		return []byte(priv.Public().(ed25519.PublicKey)), []byte(priv), nil
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("classical: generate Ed25519 key: %w", err)
	}
	return []byte(pub), []byte(priv), nil
}

func (classicalSuite) SignatureSign(priv, msg []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("classical: invalid Ed25519 private key size: %d", len(priv))
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), msg), nil
}

func (classicalSuite) SignatureVerify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// ECIESEncrypt performs a one-shot X25519 ECIES: generate an ephemeral
// DH keypair, derive a shared secret with the recipient's public key,
// expand it into an AEAD key via HKDF, and seal the plaintext. The
// ciphertext is self-contained: ephemeral public key || nonce || seal.
func (s classicalSuite) ECIESEncrypt(pub, plaintext []byte) ([]byte, error) {
	ephPub, ephPriv, err := s.DHKeyGen(nil)
	if err != nil {
		return nil, fmt.Errorf("classical: ecies ephemeral keygen: %w", err)
	}
	defer s.Zeroize(ephPriv)

	shared, err := curve25519.X25519(ephPriv, pub)
	if err != nil {
		return nil, fmt.Errorf("classical: ecies DH: %w", err)
	}
	defer s.Zeroize(shared)

	aead, err := chacha20poly1305.NewX(s.KDFExpand(shared, "ecies-key", chacha20poly1305.KeySize))
	if err != nil {
		return nil, fmt.Errorf("classical: ecies aead init: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("classical: ecies nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(sealed))
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (s classicalSuite) ECIESDecrypt(priv, ciphertext []byte) ([]byte, error) {
	const pubSize = 32
	const nonceSize = chacha20poly1305.NonceSizeX
	if len(ciphertext) < pubSize+nonceSize {
		return nil, fmt.Errorf("classical: ecies ciphertext too short")
	}
	ephPub := ciphertext[:pubSize]
	nonce := ciphertext[pubSize : pubSize+nonceSize]
	sealed := ciphertext[pubSize+nonceSize:]

	shared, err := curve25519.X25519(priv, ephPub)
	if err != nil {
		return nil, fmt.Errorf("classical: ecies DH: %w", err)
	}
	defer s.Zeroize(shared)

	aead, err := chacha20poly1305.NewX(s.KDFExpand(shared, "ecies-key", chacha20poly1305.KeySize))
	if err != nil {
		return nil, fmt.Errorf("classical: ecies aead init: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("classical: ecies open: %w", err)
	}
	return plaintext, nil
}

// Zeroize wipes buf in place by XORing it against itself.
func (classicalSuite) Zeroize(buf []byte) {
	if len(buf) == 0 {
		return
	}
	xor.BytesSameLen(buf, buf, buf)
}
