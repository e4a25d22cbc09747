package group

import (
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

func TestFacadeAddJoinUpdate(t *testing.T) {
	suite := testSuite(t)

	founder, err := New(suite, "founder")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	joinerSigPub, joinerSigPriv, err := suite.SignatureKeyGen(nil)
	if err != nil {
		t.Fatalf("SignatureKeyGen: %v", err)
	}
	joinerCred := credential.New("joiner", joinerSigPub, suite.ID())
	uik, joinerPrivKeys, err := welcome.New([]byte("joiner-uik"), []ciphersuite.Suite{suite}, suite, joinerSigPriv, joinerCred, nil)
	if err != nil {
		t.Fatalf("welcome.New: %v", err)
	}

	hs, w, err := founder.Add(uik)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if hs.PriorEpoch != 0 {
		t.Fatalf("PriorEpoch = %d, want 0", hs.PriorEpoch)
	}

	joiner, err := Join(suite, w, joinerPrivKeys[0], joinerSigPriv)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(joiner.Roster()) != 2 {
		t.Fatalf("joiner roster has %d entries, want 2", len(joiner.Roster()))
	}

	updateHS, err := joiner.Update([]byte("fresh secret"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := founder.Accept(updateHS); err != nil {
		t.Fatalf("founder Accept(update): %v", err)
	}
	if founder.State.Epoch != joiner.State.Epoch {
		t.Fatalf("epochs diverged: founder=%d joiner=%d", founder.State.Epoch, joiner.State.Epoch)
	}
}
