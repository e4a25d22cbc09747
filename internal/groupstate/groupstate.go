// Package groupstate implements the Group State: the per-epoch
// snapshot (roster, tree, transcript hash, derived secrets) and the
// Apply transition that validates and applies a Handshake per the
// receiver validation order, extending the transcript hash.
package groupstate

import (
	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/credential"
	"github.com/kindlyrobotics/ratchet/internal/ratchettree"
	"github.com/kindlyrobotics/ratchet/internal/welcome"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// GroupState is the per-epoch snapshot of the group's key agreement
// state.
type GroupState struct {
	Suite ciphersuite.Suite
	Epoch uint32

	Tree *ratchettree.RatchetTree

	TranscriptHash    []byte
	InitSecret        []byte
	ConfirmationKey   []byte
	ApplicationSecret []byte

	IdentityKey        []byte // local party's private signature key; never sent on the wire, but Save writes it to the local snapshot
	MyPositionInRoster uint32

	ratchets map[uint32]*ApplicationRatchet // per-sender hash ratchet

	// selfCommit stashes the fresh path secret a locally-authored
	// Update/Remove generated, so this party's own call to Apply
	// installs it directly instead of trying to ECIES-decrypt its own
	// ciphertexts.
	selfCommit *pendingCommit
}

type pendingCommit struct {
	signerIndex uint32
	heldKeys    map[uint32][]byte
}

// New creates a fresh 1-member group at epoch 0. The founder occupies
// leaf 0, holding both halves of its own DH keypair (founderPub,
// founderPriv) so it can later decrypt path secrets sealed to it, and
// identityPriv, the signature key matching founder's credential.
func New(suite ciphersuite.Suite, founder credential.Credential, founderPub, founderPriv, identityPriv []byte, initSecret []byte) *GroupState {
	tree := ratchettree.New(suite, 1)
	tree.SetPublicKey(0, founderPub)
	tree.SetPrivateKey(0, founderPriv)
	tree.SetCredential(0, founder)

	gs := &GroupState{
		Suite:              suite,
		Epoch:              0,
		Tree:               tree,
		TranscriptHash:     suite.Hash(nil),
		IdentityKey:        identityPriv,
		MyPositionInRoster: 0,
		ratchets:           map[uint32]*ApplicationRatchet{},
	}
	gs.deriveEpochSecrets(initSecret)
	return gs
}

// Roster returns the credential bound to each leaf position, with a
// zero-value Credential for a hole.
func (gs *GroupState) Roster() []credential.Credential {
	out := make([]credential.Credential, gs.Tree.NumLeaves())
	for i := range out {
		if c, ok := gs.Tree.Credential(uint32(i)); ok {
			out[i] = c
		}
	}
	return out
}

// FromWelcome reconstructs a joining member's GroupState from a
// decrypted WelcomeInfo, the joiner's own leaf DH private key
// (retained from the UserInitKey that earned this Welcome), and its
// identity signing key, so it can validate the first handshake it
// sees.
func FromWelcome(suite ciphersuite.Suite, info *welcome.WelcomeInfo, leafPriv, identityPriv []byte) (*GroupState, error) {
	numLeaves := uint32(len(info.Roster))
	tree, err := ratchettree.FromExport(suite, numLeaves, wire.ByteSlices(info.TreePublicKeys), wire.ByteSlices(info.Roster))
	if err != nil {
		return nil, err
	}
	tree.SetPrivateKey(info.MyLeafIndex*2, append([]byte(nil), leafPriv...))
	return &GroupState{
		Suite:              suite,
		Epoch:              info.Epoch,
		Tree:               tree,
		TranscriptHash:     append([]byte(nil), info.TranscriptHash...),
		InitSecret:         append([]byte(nil), info.InitSecret...),
		ConfirmationKey:    append([]byte(nil), info.ConfirmationKey...),
		ApplicationSecret:  append([]byte(nil), info.ApplicationSecret...),
		IdentityKey:        identityPriv,
		MyPositionInRoster: info.MyLeafIndex,
		ratchets:           map[uint32]*ApplicationRatchet{},
	}, nil
}
