package ciphersuite

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/templexxx/xor"
)

// PQHybridID is the wire identifier for the post-quantum suite: Kyber1024
// backs the dh/ecies capability, Dilithium3 backs signature, and the
// symmetric layer is unchanged from the classical suite.
const PQHybridID uint16 = 0x0002

func init() {
	register(pqHybridSuite{})
}

type pqHybridSuite struct{}

func (pqHybridSuite) ID() uint16   { return PQHybridID }
func (pqHybridSuite) Name() string { return "Kyber1024-HKDF-SHA256-XChaCha20Poly1305-Dilithium3" }

func (pqHybridSuite) DHPublicKeySize() int  { return kyber1024.PublicKeySize }
func (pqHybridSuite) DHPrivateKeySize() int { return kyber1024.PrivateKeySize }

// DHKeyGen generates a Kyber1024 KEM keypair. A non-nil seed (every
// path-secret-derived call from ratchettree.BuildDirectPath passes
// one) is expanded to Kyber1024's seed length and fed to
// NewKeyFromSeed for a deterministic keypair, mirroring how the
// classical suite clamps an X25519 key from the same seed; a nil seed
// reads fresh randomness instead.
func (s pqHybridSuite) DHKeyGen(seed []byte) ([]byte, []byte, error) {
	var pub *kyber1024.PublicKey
	var priv *kyber1024.PrivateKey
	if seed == nil {
		var err error
		pub, priv, err = kyber1024.GenerateKeyPair(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("pqhybrid: generate Kyber1024 key pair: %w", err)
		}
	} else {
		derived := s.KDFExpand(seed, "dh-key-seed", kyber1024.KeySeedSize)
		pub, priv = kyber1024.NewKeyFromSeed(derived)
	}
	pubBytes := make([]byte, kyber1024.PublicKeySize)
	privBytes := make([]byte, kyber1024.PrivateKeySize)
	pub.Pack(pubBytes)
	priv.Pack(privBytes)
	return pubBytes, privBytes, nil
}

func (pqHybridSuite) KDFExpand(secret []byte, label string, length int) []byte {
	r := hkdf.Expand(sha256.New, secret, []byte("ratchet "+label))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(fmt.Sprintf("pqhybrid: KDFExpand: %v", err))
	}
	return out
}

func (pqHybridSuite) HMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (pqHybridSuite) HMACSize() int { return sha256.Size }

func (pqHybridSuite) Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (pqHybridSuite) HashSize() int { return sha256.Size }

func (pqHybridSuite) SignatureKeyGen(seed []byte) ([]byte, []byte, error) {
	if seed != nil {
		return nil, nil, fmt.Errorf("pqhybrid: seeded key generation is not supported")
	}
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("pqhybrid: generate Dilithium3 key pair: %w", err)
	}
	return pub.Bytes(), priv.Bytes(), nil
}

func (pqHybridSuite) SignatureSign(priv, msg []byte) ([]byte, error) {
	if len(priv) != mode3.PrivateKeySize {
		return nil, fmt.Errorf("pqhybrid: invalid Dilithium3 private key size: %d", len(priv))
	}
	var privArr [mode3.PrivateKeySize]byte
	copy(privArr[:], priv)
	var privateKey mode3.PrivateKey
	privateKey.Unpack(&privArr)

	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(&privateKey, msg, sig)
	return sig, nil
}

func (pqHybridSuite) SignatureVerify(pub, msg, sig []byte) bool {
	if len(pub) != mode3.PublicKeySize || len(sig) != mode3.SignatureSize {
		return false
	}
	var pubArr [mode3.PublicKeySize]byte
	copy(pubArr[:], pub)
	var publicKey mode3.PublicKey
	publicKey.Unpack(&pubArr)
	return mode3.Verify(&publicKey, msg, sig)
}

// ECIESEncrypt encapsulates a fresh shared secret to pub with Kyber1024,
// expands it into an AEAD key, and seals plaintext under it. The
// ciphertext is self-contained: kyber ciphertext || nonce || seal.
func (s pqHybridSuite) ECIESEncrypt(pub, plaintext []byte) ([]byte, error) {
	if len(pub) != kyber1024.PublicKeySize {
		return nil, fmt.Errorf("pqhybrid: invalid Kyber1024 public key size: %d", len(pub))
	}
	var publicKey kyber1024.PublicKey
	publicKey.Unpack(pub)

	kemCiphertext := make([]byte, kyber1024.CiphertextSize)
	shared := make([]byte, kyber1024.SharedKeySize)
	publicKey.EncapsulateTo(kemCiphertext, shared, nil)
	defer s.Zeroize(shared)

	aead, err := chacha20poly1305.NewX(s.KDFExpand(shared, "ecies-key", chacha20poly1305.KeySize))
	if err != nil {
		return nil, fmt.Errorf("pqhybrid: ecies aead init: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("pqhybrid: ecies nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(kemCiphertext)+len(nonce)+len(sealed))
	out = append(out, kemCiphertext...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (s pqHybridSuite) ECIESDecrypt(priv, ciphertext []byte) ([]byte, error) {
	if len(priv) != kyber1024.PrivateKeySize {
		return nil, fmt.Errorf("pqhybrid: invalid Kyber1024 private key size: %d", len(priv))
	}
	const kemSize = kyber1024.CiphertextSize
	const nonceSize = chacha20poly1305.NonceSizeX
	if len(ciphertext) < kemSize+nonceSize {
		return nil, fmt.Errorf("pqhybrid: ecies ciphertext too short")
	}
	kemCiphertext := ciphertext[:kemSize]
	nonce := ciphertext[kemSize : kemSize+nonceSize]
	sealed := ciphertext[kemSize+nonceSize:]

	var privateKey kyber1024.PrivateKey
	privateKey.Unpack(priv)

	shared := make([]byte, kyber1024.SharedKeySize)
	privateKey.DecapsulateTo(shared, kemCiphertext)
	defer s.Zeroize(shared)

	aead, err := chacha20poly1305.NewX(s.KDFExpand(shared, "ecies-key", chacha20poly1305.KeySize))
	if err != nil {
		return nil, fmt.Errorf("pqhybrid: ecies aead init: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("pqhybrid: ecies open: %w", err)
	}
	return plaintext, nil
}

func (pqHybridSuite) Zeroize(buf []byte) {
	if len(buf) == 0 {
		return
	}
	xor.BytesSameLen(buf, buf, buf)
}
