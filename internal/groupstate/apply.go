package groupstate

import (
	"github.com/kindlyrobotics/ratchet/internal/handshake"
	"github.com/kindlyrobotics/ratchet/internal/ratchettree"
	"github.com/kindlyrobotics/ratchet/internal/welcome"
)

// Apply validates hs in the receiver validation order and, if every
// step passes, transitions gs to the next epoch. Any failure in steps
// 1-5 returns a categorized error and leaves gs byte-for-byte
// unchanged; only a successful run through step 6 mutates gs.
func (gs *GroupState) Apply(hs *handshake.Handshake) error {
	// 1. prior_epoch matches.
	if hs.PriorEpoch != gs.Epoch {
		return protocolf("handshake prior_epoch %d != local epoch %d", hs.PriorEpoch, gs.Epoch)
	}

	// 2. signer_index resolves to a present credential. The index is
	// remote input, so range failures are rejections, not panics.
	if hs.SignerIndex >= gs.Tree.NumLeaves() {
		return protocolf("signer_index %d out of range for %d roster slots", hs.SignerIndex, gs.Tree.NumLeaves())
	}
	signerCred, ok := gs.Tree.Credential(hs.SignerIndex)
	if !ok {
		return protocolf("signer_index %d names a blank roster slot", hs.SignerIndex)
	}

	// 3. verify signature over the local (pre-application) transcript hash.
	if err := hs.VerifySignature(gs.Suite, signerCred.SignatureKey, gs.TranscriptHash); err != nil {
		return err
	}

	// 4. verify confirmation MAC.
	if err := hs.VerifyConfirmation(gs.Suite, gs.ConfirmationKey, gs.TranscriptHash); err != nil {
		return err
	}

	// 5. apply the operation to a scratch copy; any failure here
	// leaves gs.Tree untouched.
	if err := hs.Operation.Validate(); err != nil {
		return err
	}
	scratch := gs.Tree.Clone()
	commitSecret, err := gs.applyOperation(scratch, hs.SignerIndex, hs.Operation)
	if err != nil {
		return err
	}

	// 6. commit: derive the new epoch's secrets, extend the
	// transcript hash, and advance the epoch. Nothing above this line
	// may have mutated gs.
	canonical, err := hs.CanonicalBytesWithoutConfirmation()
	if err != nil {
		return err
	}
	gs.Tree = scratch
	gs.deriveEpochSecrets(commitSecret)
	gs.TranscriptHash = gs.Suite.Hash(append(append([]byte(nil), gs.TranscriptHash...), canonical...))
	gs.Epoch++
	gs.selfCommit = nil
	gs.ratchets = make(map[uint32]*ApplicationRatchet)
	return nil
}

// applyOperation mutates tree per op's variant and returns the fresh
// commit secret (nil for Init/Add, which contribute no new entropy).
func (gs *GroupState) applyOperation(tree *ratchettree.RatchetTree, signerIndex uint32, op handshake.GroupOperation) ([]byte, error) {
	switch op.Tag {
	case handshake.TagInit:
		// GroupInit semantics are unspecified upstream; accept the tag
		// and perform no mutation.
		return nil, nil
	case handshake.TagAdd:
		return nil, gs.applyAdd(tree, op.Add)
	case handshake.TagUpdate:
		return gs.installDirectPath(tree, signerIndex, signerIndex, op.Update, false)
	case handshake.TagRemove:
		if err := gs.applyRemove(tree, op.Remove); err != nil {
			return nil, err
		}
		return gs.installDirectPath(tree, op.Remove.Removed, signerIndex, op.Remove.Path, true)
	default:
		return nil, protocolf("unknown GroupOperation tag %d", op.Tag)
	}
}

// applyAdd appends the joiner's credential and DH public key to the
// leftmost blank leaf, or extends the tree by one leaf if none is
// blank. No DirectPath accompanies an Add: the Welcome carries the
// newcomer's initial path secrets.
func (gs *GroupState) applyAdd(tree *ratchettree.RatchetTree, add *welcome.UserInitKey) error {
	if err := add.Validate(); err != nil {
		return err
	}
	pub, _, ok := add.InitKeyFor(gs.Suite.ID())
	if !ok {
		return protocolf("joiner's UserInitKey offers no entry for cipher suite %d", gs.Suite.ID())
	}

	leaf, hasBlank := tree.LeftmostBlankLeaf()
	if !hasBlank {
		leaf = tree.NumLeaves()
		*tree = *tree.Grow(leaf + 1)
	}
	tree.SetPublicKey(leaf*2, append([]byte(nil), pub...))
	tree.SetCredential(leaf, add.Credential)
	return nil
}

// installDirectPath installs msg along anchorLeaf's re-key path and,
// where this party can recover them, the matching private keys. An
// Update (anchorLeaf == signerIndex, anchorRemoved false) re-keys the
// anchor leaf and every node up to and including the root; a Remove
// (anchorLeaf == the removed leaf, anchorRemoved true) leaves the
// blanked leaf and direct-path nodes blank and installs only the
// root, whose fresh secret is what the remaining members share.
// Returns the commit secret derived from the private key at the top
// of the path (the anchor leaf itself in a one-leaf tree), or nil if
// this party cannot recover one (it is the member being removed, or
// the tree has one leaf and this party did not author the handshake).
func (gs *GroupState) installDirectPath(tree *ratchettree.RatchetTree, anchorLeaf, signerIndex uint32, msg *ratchettree.DirectPathMessage, anchorRemoved bool) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	n := tree.NumLeaves()
	anchorNode := anchorLeaf * 2
	path := ratchettree.RekeyPath(anchorNode, n)
	if len(msg.Nodes) != len(path)+1 {
		return nil, protocolf("direct path message has %d node entries, want %d", len(msg.Nodes), len(path)+1)
	}

	if anchorRemoved {
		if len(path) > 0 {
			root := path[len(path)-1]
			tree.SetPublicKey(root, append([]byte(nil), msg.Nodes[len(path)].PublicKey...))
		}
	} else {
		tree.SetPublicKey(anchorNode, append([]byte(nil), msg.Nodes[0].PublicKey...))
		for i, node := range path {
			tree.SetPublicKey(node, append([]byte(nil), msg.Nodes[i+1].PublicKey...))
		}
	}

	var held map[uint32][]byte
	switch {
	case gs.selfCommit != nil && gs.selfCommit.signerIndex == signerIndex:
		held = gs.selfCommit.heldKeys
	case anchorLeaf == gs.MyPositionInRoster:
		// The member being removed observes its own removal: the
		// fresh secrets are deliberately unrecoverable for it.
		return nil, nil
	case len(path) == 0:
		// Single-node tree: nothing above the anchor to recover.
		return nil, nil
	default:
		var err error
		held, err = ratchettree.ConsumeDirectPath(gs.Suite, tree, anchorLeaf, gs.MyPositionInRoster, msg)
		if err != nil {
			return nil, err
		}
	}

	for node, priv := range held {
		if tree.IsBlank(node) {
			continue
		}
		tree.SetPrivateKey(node, priv)
	}
	if len(path) == 0 {
		if priv, ok := held[anchorNode]; ok {
			return gs.Suite.KDFExpand(priv, "commit-secret", secretSize), nil
		}
		return nil, nil
	}
	topPriv, ok := held[path[len(path)-1]]
	if !ok {
		return nil, nil
	}
	return gs.Suite.KDFExpand(topPriv, "commit-secret", secretSize), nil
}

// applyRemove blanks the removed leaf and every internal node on its
// direct path. The caller re-keys the root separately via
// installDirectPath.
func (gs *GroupState) applyRemove(tree *ratchettree.RatchetTree, rm *handshake.RemoveOperation) error {
	if rm.Removed >= tree.NumLeaves() {
		return protocolf("remove: leaf %d out of range", rm.Removed)
	}
	if _, ok := tree.Credential(rm.Removed); !ok {
		return protocolf("remove: leaf %d is already blank", rm.Removed)
	}
	tree.BlankPath(rm.Removed)
	return nil
}
