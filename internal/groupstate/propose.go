package groupstate

import (
	"github.com/kindlyrobotics/ratchet/internal/handshake"
	"github.com/kindlyrobotics/ratchet/internal/ratchettree"
	"github.com/kindlyrobotics/ratchet/internal/welcome"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// ProposeUpdate builds and signs a GroupUpdate handshake re-keying the
// local party's own direct path with fresh entropy from freshSecret.
// The caller still has to call Apply on the returned Handshake to
// actually transition gs — proposing and applying are the same
// synchronous operation for every party, sender included; the fresh
// path secrets are stashed so this party's own Apply call installs
// them directly instead of trying to ECIES-decrypt its own
// ciphertexts.
func (gs *GroupState) ProposeUpdate(freshSecret []byte) (*handshake.Handshake, error) {
	path, held, err := ratchettree.BuildDirectPath(gs.Suite, gs.Tree, gs.MyPositionInRoster, freshSecret)
	if err != nil {
		return nil, err
	}
	hs, err := handshake.New(gs.Suite, gs.Epoch, gs.TranscriptHash, gs.MyPositionInRoster, gs.IdentityKey, gs.ConfirmationKey, handshake.Update(path))
	if err != nil {
		return nil, err
	}
	gs.selfCommit = &pendingCommit{signerIndex: gs.MyPositionInRoster, heldKeys: held}
	return hs, nil
}

// ProposeRemove builds and signs a GroupRemove handshake blanking
// removed's leaf and direct path and re-keying the root with fresh
// entropy from freshSecret. The path is built against a scratch copy
// with the removal already applied, so the resolutions the secrets
// are sealed to match what every receiver computes after blanking.
func (gs *GroupState) ProposeRemove(removed uint32, freshSecret []byte) (*handshake.Handshake, error) {
	if _, ok := gs.Tree.Credential(removed); !ok {
		return nil, protocolf("cannot remove leaf %d: already blank", removed)
	}
	scratch := gs.Tree.Clone()
	scratch.BlankPath(removed)
	path, held, err := ratchettree.BuildDirectPath(gs.Suite, scratch, removed, freshSecret)
	if err != nil {
		return nil, err
	}
	hs, err := handshake.New(gs.Suite, gs.Epoch, gs.TranscriptHash, gs.MyPositionInRoster, gs.IdentityKey, gs.ConfirmationKey, handshake.Remove(removed, path))
	if err != nil {
		return nil, err
	}
	gs.selfCommit = &pendingCommit{signerIndex: gs.MyPositionInRoster, heldKeys: held}
	return hs, nil
}

// ProposeAdd builds and signs a GroupAdd handshake appending the
// member described by initKey. Add carries no DirectPath and
// contributes no fresh entropy, so there is no pendingCommit to
// stash; call SealWelcome after Apply to bootstrap the joiner.
func (gs *GroupState) ProposeAdd(initKey *welcome.UserInitKey) (*handshake.Handshake, error) {
	if err := initKey.Validate(); err != nil {
		return nil, err
	}
	return handshake.New(gs.Suite, gs.Epoch, gs.TranscriptHash, gs.MyPositionInRoster, gs.IdentityKey, gs.ConfirmationKey, handshake.Add(initKey))
}

// SealWelcome produces the Welcome bootstrapping initKey's owner into
// the current (post-Add) epoch. Call this after Apply has committed
// the corresponding GroupAdd handshake.
func (gs *GroupState) SealWelcome(initKey *welcome.UserInitKey) (*welcome.Welcome, error) {
	joinerPub, suite, ok := initKey.InitKeyFor(gs.Suite.ID())
	if !ok {
		return nil, protocolf("joiner's UserInitKey offers no entry for cipher suite %d", gs.Suite.ID())
	}

	leaf, ok := gs.leafForCredential(initKey.Credential)
	if !ok {
		return nil, protocolf("joiner's credential not found in roster; apply the Add first")
	}

	pubKeys := gs.Tree.ExportPublicKeys()
	credBytes, err := gs.Tree.ExportCredentials()
	if err != nil {
		return nil, err
	}

	info := &welcome.WelcomeInfo{
		Epoch:             gs.Epoch,
		Roster:            wire.Opaque2Slice(credBytes),
		TreePublicKeys:    wire.Opaque2Slice(pubKeys),
		MyLeafIndex:       leaf,
		InitSecret:        gs.InitSecret,
		ConfirmationKey:   gs.ConfirmationKey,
		ApplicationSecret: gs.ApplicationSecret,
		TranscriptHash:    gs.TranscriptHash,
	}
	return welcome.Seal(suite, initKey.UserInitKeyID, joinerPub, info)
}

func (gs *GroupState) leafForCredential(cred interface{ Fingerprint() string }) (uint32, bool) {
	want := cred.Fingerprint()
	for i := uint32(0); i < gs.Tree.NumLeaves(); i++ {
		if c, ok := gs.Tree.Credential(i); ok && c.Fingerprint() == want {
			return i, true
		}
	}
	return 0, false
}
