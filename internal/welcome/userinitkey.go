// Package welcome implements the UserInitKey bundle a prospective
// member publishes to enable asynchronous join, and the Welcome blob
// that bootstraps a joiner into the current epoch.
package welcome

import (
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/credential"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// MaxUserInitKeyIDLen is the bound on user_init_key_id.
const MaxUserInitKeyIDLen = 255

// UserInitKey is the signed bundle published by a would-be member: a
// unique identifier, parallel lists of supported cipher suites and
// their corresponding DH public keys, the publisher's credential, and
// a signature over the other fields under the credential's identity
// key.
type UserInitKey struct {
	UserInitKeyID []byte         `tls:"head=1"`
	CipherSuites  []uint16       `tls:"head=1"`
	InitKeys      []wire.Opaque2 `tls:"head=2"`
	Credential    credential.Credential
	Signature     []byte `tls:"head=2"`

	// LocalID is a local correlation handle for init keys this process
	// is tracking (e.g. ones it published and is waiting to see
	// consumed). It never crosses the wire — the wire identifier is
	// UserInitKeyID.
	LocalID uuid.UUID `tls:"omit"`
}

// New builds and signs a UserInitKey over one DH keypair per entry in
// suites (which must be registered). seed, if non-nil, is expanded
// per-suite to derive each DH keypair deterministically; otherwise
// fresh randomness is used. Returns the UserInitKey and the parallel
// slice of DH private keys the caller must retain to process a
// matching Welcome later.
func New(id []byte, suites []ciphersuite.Suite, signingSuite ciphersuite.Suite, signingPriv []byte, cred credential.Credential, seed []byte) (*UserInitKey, [][]byte, error) {
	if len(id) > MaxUserInitKeyIDLen {
		return nil, nil, protocolf("user_init_key_id exceeds %d bytes", MaxUserInitKeyIDLen)
	}
	if len(suites) == 0 {
		return nil, nil, protocolf("user init key must offer at least one cipher suite")
	}

	cipherSuiteIDs := make([]uint16, len(suites))
	initKeys := make([]wire.Opaque2, len(suites))
	privKeys := make([][]byte, len(suites))
	for i, s := range suites {
		var perSuiteSeed []byte
		if seed != nil {
			perSuiteSeed = s.KDFExpand(seed, "user-init-key", s.DHPrivateKeySize())
		}
		pub, priv, err := s.DHKeyGen(perSuiteSeed)
		if err != nil {
			return nil, nil, cryptof("generate init key for suite %d: %v", s.ID(), err)
		}
		cipherSuiteIDs[i] = s.ID()
		initKeys[i] = pub
		privKeys[i] = priv
	}

	uik := &UserInitKey{
		UserInitKeyID: append([]byte(nil), id...),
		CipherSuites:  cipherSuiteIDs,
		InitKeys:      initKeys,
		Credential:    cred,
		LocalID:       uuid.New(),
	}

	signable, err := uik.signableBytes()
	if err != nil {
		return nil, nil, err
	}
	sig, err := signingSuite.SignatureSign(signingPriv, signable)
	if err != nil {
		return nil, nil, cryptof("sign user init key: %v", err)
	}
	uik.Signature = sig

	return uik, privKeys, nil
}

// signableBytes is the canonical serialization of every UserInitKey
// field except Signature itself — what the publisher signs and what a
// verifier recomputes.
func (u *UserInitKey) signableBytes() ([]byte, error) {
	cp := *u
	cp.Signature = nil
	return marshalSignable(&cp)
}

// Validate checks the structural invariants of a UserInitKey:
// parallel-vector lengths, a non-empty key list, the ID length bound,
// and that Signature verifies under Credential's key. Every defect
// found is accumulated via go-multierror rather than stopping at the
// first.
func (u *UserInitKey) Validate() error {
	var result *multierror.Error
	if len(u.UserInitKeyID) > MaxUserInitKeyIDLen {
		result = multierror.Append(result, protocolf("user_init_key_id exceeds %d bytes", MaxUserInitKeyIDLen))
	}
	if len(u.CipherSuites) != len(u.InitKeys) {
		result = multierror.Append(result, protocolf("cipher_suites length %d != init_keys length %d", len(u.CipherSuites), len(u.InitKeys)))
	}
	if len(u.InitKeys) == 0 {
		result = multierror.Append(result, protocolf("init_keys must contain at least one entry"))
	}
	if len(u.Credential.SignatureKey) == 0 {
		result = multierror.Append(result, protocolf("credential carries no signature key"))
	}
	if result.ErrorOrNil() != nil {
		return result
	}

	suite, ok := ciphersuite.ByID(u.Credential.CipherSuiteID)
	if !ok {
		return protocolf("credential names unregistered cipher suite %d", u.Credential.CipherSuiteID)
	}
	signable, err := u.signableBytes()
	if err != nil {
		return err
	}
	if !suite.SignatureVerify(u.Credential.SignatureKey, signable, u.Signature) {
		return cryptof("user init key signature does not verify under its credential")
	}
	return nil
}

// InitKeyFor returns the DH public key and resolved suite for the
// given cipher suite ID, as selected by a joiner validating their own
// Welcome, or an Adder picking which entry of a newcomer's UserInitKey
// to encrypt against.
func (u *UserInitKey) InitKeyFor(suiteID uint16) ([]byte, ciphersuite.Suite, bool) {
	for i, id := range u.CipherSuites {
		if id == suiteID {
			suite, ok := ciphersuite.ByID(suiteID)
			if !ok {
				return nil, nil, false
			}
			return []byte(u.InitKeys[i]), suite, true
		}
	}
	return nil, nil, false
}
