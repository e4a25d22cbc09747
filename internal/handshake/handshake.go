package handshake

import (
	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// Handshake is the envelope of a group operation: the operation a
// sender is proposing, bound to the pre-application transcript hash by
// a signature and to the epoch's confirmation key by an HMAC. The
// signature covers only the pre-application transcript hash, which
// does not include this handshake's own prior_epoch, operation, or
// signer_index; Confirmation covers transcriptHash||signature.
type Handshake struct {
	PriorEpoch   uint32
	Operation    GroupOperation
	SignerIndex  uint32
	Signature    []byte `tls:"head=2"`
	Confirmation []byte `tls:"head=1"`
}

// New constructs and signs a Handshake for op, against the actor's
// current epoch, transcript hash, confirmation key, and identity
// signing key: sign the transcript hash, then MAC
// transcriptHash||signature under the confirmation key.
func New(suite ciphersuite.Suite, priorEpoch uint32, transcriptHash []byte, signerIndex uint32, identityPriv, confirmationKey []byte, op GroupOperation) (*Handshake, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	sig, err := suite.SignatureSign(identityPriv, transcriptHash)
	if err != nil {
		return nil, cryptof("sign handshake: %v", err)
	}

	confirmationData := append(append([]byte(nil), transcriptHash...), sig...)
	confirmation := suite.HMAC(confirmationKey, confirmationData)

	return &Handshake{
		PriorEpoch:   priorEpoch,
		Operation:    op,
		SignerIndex:  signerIndex,
		Signature:    sig,
		Confirmation: confirmation,
	}, nil
}

// CanonicalBytesWithoutConfirmation serializes exactly the first four
// fields (PriorEpoch, Operation, SignerIndex, Signature), excluding
// Confirmation — the scope the transcript hash extends with.
// Confirmation is excluded because it is itself computed from the
// pre-extension transcript hash.
func (h *Handshake) CanonicalBytesWithoutConfirmation() ([]byte, error) {
	shape := struct {
		PriorEpoch  uint32
		Operation   GroupOperation
		SignerIndex uint32
		Signature   []byte `tls:"head=2"`
	}{h.PriorEpoch, h.Operation, h.SignerIndex, h.Signature}
	out, err := wire.Marshal(&shape)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifySignature checks h.Signature against localTranscriptHash
// under signerPub. The caller resolves signerPub from h.SignerIndex
// against its own roster before calling this.
func (h *Handshake) VerifySignature(suite ciphersuite.Suite, signerPub, localTranscriptHash []byte) error {
	if !suite.SignatureVerify(signerPub, localTranscriptHash, h.Signature) {
		return cryptof("handshake signature does not verify under signer %d", h.SignerIndex)
	}
	return nil
}

// VerifyConfirmation recomputes the confirmation HMAC over
// localTranscriptHash||h.Signature under confirmationKey and compares
// it to h.Confirmation.
func (h *Handshake) VerifyConfirmation(suite ciphersuite.Suite, confirmationKey, localTranscriptHash []byte) error {
	confirmationData := append(append([]byte(nil), localTranscriptHash...), h.Signature...)
	want := suite.HMAC(confirmationKey, confirmationData)
	if !constantTimeEqual(want, h.Confirmation) {
		return cryptof("handshake confirmation MAC mismatch")
	}
	return nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
