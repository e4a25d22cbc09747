package groupstate

import (
	"fmt"
	"testing"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/credential"
	"github.com/kindlyrobotics/ratchet/internal/welcome"
)

func testSuite(t *testing.T) ciphersuite.Suite {
	t.Helper()
	s, ok := ciphersuite.ByID(ciphersuite.ClassicalID)
	if !ok {
		t.Fatalf("classical suite not registered")
	}
	return s
}

func newMember(t *testing.T, suite ciphersuite.Suite, label string) (cred credential.Credential, sigPriv, dhPub, dhPriv []byte) {
	t.Helper()
	sigPub, sigPriv, err := suite.SignatureKeyGen(nil)
	if err != nil {
		t.Fatalf("SignatureKeyGen: %v", err)
	}
	dhPub, dhPriv, err = suite.DHKeyGen(nil)
	if err != nil {
		t.Fatalf("DHKeyGen: %v", err)
	}
	return credential.New(label, sigPub, suite.ID()), sigPriv, dhPub, dhPriv
}

// TestAddJoinUpdateRemoveScenario runs a founder through Add, lets the
// joiner reconstruct its state from the resulting Welcome, exercises
// an Update from the joiner, and finishes with the founder removing
// it — checking at each step that both parties converge on the same
// epoch, transcript hash, and application secret.
func TestAddJoinUpdateRemoveScenario(t *testing.T) {
	suite := testSuite(t)

	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("group init secret"))

	joinerCred, joinerSigPriv, _, _ := newMember(t, suite, "joiner")
	uik, joinerPrivKeys, err := welcome.New([]byte("joiner-uik"), []ciphersuite.Suite{suite}, suite, joinerSigPriv, joinerCred, nil)
	if err != nil {
		t.Fatalf("welcome.New: %v", err)
	}

	addHS, err := founder.ProposeAdd(uik)
	if err != nil {
		t.Fatalf("ProposeAdd: %v", err)
	}
	if err := founder.Apply(addHS); err != nil {
		t.Fatalf("founder Apply(add): %v", err)
	}
	if founder.Epoch != 1 {
		t.Fatalf("epoch = %d, want 1", founder.Epoch)
	}
	if founder.Tree.NumLeaves() != 2 {
		t.Fatalf("tree has %d leaves, want 2", founder.Tree.NumLeaves())
	}

	w, err := founder.SealWelcome(uik)
	if err != nil {
		t.Fatalf("SealWelcome: %v", err)
	}
	info, err := welcome.Open(joinerPrivKeys[0], w)
	if err != nil {
		t.Fatalf("welcome.Open: %v", err)
	}
	joiner, err := FromWelcome(suite, info, joinerPrivKeys[0], joinerSigPriv)
	if err != nil {
		t.Fatalf("FromWelcome: %v", err)
	}
	if joiner.Epoch != founder.Epoch || joiner.MyPositionInRoster != 1 {
		t.Fatalf("joiner state mismatch: epoch=%d pos=%d", joiner.Epoch, joiner.MyPositionInRoster)
	}
	if string(joiner.ApplicationSecret) != string(founder.ApplicationSecret) {
		t.Fatalf("joiner's application secret does not match founder's after Welcome")
	}

	updateHS, err := joiner.ProposeUpdate([]byte("fresh update secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	if err := joiner.Apply(updateHS); err != nil {
		t.Fatalf("joiner Apply(update): %v", err)
	}
	if err := founder.Apply(updateHS); err != nil {
		t.Fatalf("founder Apply(update): %v", err)
	}
	if joiner.Epoch != founder.Epoch {
		t.Fatalf("epochs diverged: joiner=%d founder=%d", joiner.Epoch, founder.Epoch)
	}
	if string(joiner.TranscriptHash) != string(founder.TranscriptHash) {
		t.Fatalf("transcript hashes diverged after update")
	}
	if string(joiner.ApplicationSecret) != string(founder.ApplicationSecret) {
		t.Fatalf("application secrets diverged after update")
	}

	removeHS, err := founder.ProposeRemove(1, []byte("fresh remove secret"))
	if err != nil {
		t.Fatalf("ProposeRemove: %v", err)
	}
	if err := founder.Apply(removeHS); err != nil {
		t.Fatalf("founder Apply(remove): %v", err)
	}
	if err := joiner.Apply(removeHS); err != nil {
		t.Fatalf("joiner Apply(remove): %v", err)
	}
	if _, ok := founder.Tree.Credential(1); ok {
		t.Fatalf("removed leaf still carries a credential")
	}
	if string(joiner.TranscriptHash) != string(founder.TranscriptHash) {
		t.Fatalf("transcript hashes diverged after remove")
	}
}

// growGroup founds a group and adds memberCount-1 joiners one at a
// time, with every existing member applying each Add before the next,
// returning everyone's state in roster order.
func growGroup(t *testing.T, suite ciphersuite.Suite, memberCount int) []*GroupState {
	t.Helper()
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "m0")
	members := []*GroupState{New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("group init secret"))}

	for i := 1; i < memberCount; i++ {
		cred, sigPriv, _, _ := newMember(t, suite, fmt.Sprintf("m%d", i))
		uik, privKeys, err := welcome.New([]byte(fmt.Sprintf("uik-%d", i)), []ciphersuite.Suite{suite}, suite, sigPriv, cred, nil)
		if err != nil {
			t.Fatalf("welcome.New(m%d): %v", i, err)
		}
		addHS, err := members[0].ProposeAdd(uik)
		if err != nil {
			t.Fatalf("ProposeAdd(m%d): %v", i, err)
		}
		for j, m := range members {
			if err := m.Apply(addHS); err != nil {
				t.Fatalf("m%d Apply(add m%d): %v", j, i, err)
			}
		}
		w, err := members[0].SealWelcome(uik)
		if err != nil {
			t.Fatalf("SealWelcome(m%d): %v", i, err)
		}
		info, err := welcome.Open(privKeys[0], w)
		if err != nil {
			t.Fatalf("welcome.Open(m%d): %v", i, err)
		}
		joiner, err := FromWelcome(suite, info, privKeys[0], sigPriv)
		if err != nil {
			t.Fatalf("FromWelcome(m%d): %v", i, err)
		}
		members = append(members, joiner)
	}
	return members
}

// TestRemoveBlanksDirectPath removes member 2 from a 4-member group
// and checks that its leaf and direct-path internal node end up
// blank, that the survivors converge on the same epoch secrets, and
// that the removed member keeps the transcript but not the secrets.
func TestRemoveBlanksDirectPath(t *testing.T) {
	suite := testSuite(t)
	members := growGroup(t, suite, 4)
	if got := members[0].Tree.NumLeaves(); got != 4 {
		t.Fatalf("tree has %d leaves, want 4", got)
	}

	removeHS, err := members[0].ProposeRemove(2, []byte("fresh remove secret"))
	if err != nil {
		t.Fatalf("ProposeRemove: %v", err)
	}
	for j, m := range members {
		if err := m.Apply(removeHS); err != nil {
			t.Fatalf("m%d Apply(remove): %v", j, err)
		}
	}

	survivors := []*GroupState{members[0], members[1], members[3]}
	for j, m := range survivors {
		// leaf 2 sits at node 4; its only direct-path internal node
		// in a 4-leaf tree is node 5
		if !m.Tree.IsBlank(4) {
			t.Fatalf("survivor %d: removed leaf node 4 is not blank", j)
		}
		if !m.Tree.IsBlank(5) {
			t.Fatalf("survivor %d: direct-path node 5 is not blank", j)
		}
		if string(m.ApplicationSecret) != string(members[0].ApplicationSecret) {
			t.Fatalf("survivor %d derived a different application secret", j)
		}
		if string(m.TranscriptHash) != string(members[0].TranscriptHash) {
			t.Fatalf("survivor %d diverged on the transcript hash", j)
		}
	}

	removed := members[2]
	if string(removed.TranscriptHash) != string(members[0].TranscriptHash) {
		t.Fatalf("removed member diverged on the transcript hash")
	}
	if string(removed.ApplicationSecret) == string(members[0].ApplicationSecret) {
		t.Fatalf("removed member still derives the group's application secret")
	}
}

// TestUpdateConvergesInThreeMemberGroup exercises an Update whose
// tree is not a full power of two, including a receiver hanging
// directly off the root.
func TestUpdateConvergesInThreeMemberGroup(t *testing.T) {
	suite := testSuite(t)
	members := growGroup(t, suite, 3)

	updateHS, err := members[1].ProposeUpdate([]byte("fresh update secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	for j, m := range members {
		if err := m.Apply(updateHS); err != nil {
			t.Fatalf("m%d Apply(update): %v", j, err)
		}
	}
	for j, m := range members[1:] {
		if string(m.ApplicationSecret) != string(members[0].ApplicationSecret) {
			t.Fatalf("m%d derived a different application secret after the update", j+1)
		}
	}
}

// TestProposeUpdatePQHybrid checks that an Update handshake's
// direct-path encryption and commit-secret derivation work end to end
// under the PQHybrid suite, whose DHKeyGen must accept the non-nil
// path secrets ProposeUpdate always supplies.
func TestProposeUpdatePQHybrid(t *testing.T) {
	suite, ok := ciphersuite.ByID(ciphersuite.PQHybridID)
	if !ok {
		t.Fatalf("pqhybrid suite not registered")
	}
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("group init secret"))

	preUpdateSecret := string(founder.ApplicationSecret)
	hs, err := founder.ProposeUpdate([]byte("fresh update secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	if err := founder.Apply(hs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if founder.Epoch != 1 {
		t.Fatalf("epoch = %d, want 1", founder.Epoch)
	}
	if string(founder.ApplicationSecret) == preUpdateSecret {
		t.Fatalf("ApplicationSecret did not rotate after an Update")
	}
}

func TestApplyRejectsReplay(t *testing.T) {
	suite := testSuite(t)
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("s"))

	hs, err := founder.ProposeUpdate([]byte("fresh secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	if err := founder.Apply(hs); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := founder.Apply(hs); err == nil {
		t.Fatalf("replayed (now stale prior_epoch) handshake was accepted")
	}
}

func TestApplyRejectsTamperedSignature(t *testing.T) {
	suite := testSuite(t)
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("s"))

	hs, err := founder.ProposeUpdate([]byte("fresh secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	hs.Signature[0] ^= 0xff
	if err := founder.Apply(hs); err == nil {
		t.Fatalf("handshake with a tampered signature was accepted")
	}
	if founder.Epoch != 0 {
		t.Fatalf("epoch advanced despite a rejected handshake")
	}
}

func TestApplyRejectsUnknownSigner(t *testing.T) {
	suite := testSuite(t)
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("s"))

	hs, err := founder.ProposeUpdate([]byte("fresh secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	hs.SignerIndex = 7
	if err := founder.Apply(hs); err == nil {
		t.Fatalf("handshake from an out-of-range signer_index was accepted")
	}
}

// TestApplicationRatchetRotatesAcrossEpoch checks that a sender's
// cached ApplicationRatchet is rebuilt from the new epoch's
// ApplicationSecret rather than continuing to chain off a prior
// epoch's, once Apply advances the epoch.
func TestApplicationRatchetRotatesAcrossEpoch(t *testing.T) {
	suite := testSuite(t)
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("s"))

	_, firstKey, firstNonce := founder.ApplicationRatchetFor(0).Next()
	firstSecret := string(founder.ApplicationSecret)

	hs, err := founder.ProposeUpdate([]byte("fresh update secret"))
	if err != nil {
		t.Fatalf("ProposeUpdate: %v", err)
	}
	if err := founder.Apply(hs); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(founder.ApplicationSecret) == firstSecret {
		t.Fatalf("ApplicationSecret did not change across the epoch transition")
	}

	_, secondKey, secondNonce := founder.ApplicationRatchetFor(0).Next()
	if string(firstKey) == string(secondKey) || string(firstNonce) == string(secondNonce) {
		t.Fatalf("sender 0's ratchet produced the same key/nonce before and after an epoch transition")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	suite := testSuite(t)
	founderCred, founderSigPriv, founderDHPub, founderDHPriv := newMember(t, suite, "founder")
	founder := New(suite, founderCred, founderDHPub, founderDHPriv, founderSigPriv, []byte("s"))

	path := t.TempDir() + "/group.state"
	if err := Save(path, founder); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, guard, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer guard.Unlock()

	if loaded.Epoch != founder.Epoch || loaded.MyPositionInRoster != founder.MyPositionInRoster {
		t.Fatalf("loaded state mismatch: %+v vs %+v", loaded, founder)
	}
	if string(loaded.ApplicationSecret) != string(founder.ApplicationSecret) {
		t.Fatalf("loaded application secret mismatch")
	}

	if _, _, err := Load(path); err == nil {
		t.Fatalf("Load succeeded while the first guard was still held")
	}
}
