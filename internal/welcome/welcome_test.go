package welcome

import (
	"testing"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/credential"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

func testSuite(t *testing.T) ciphersuite.Suite {
	t.Helper()
	s, ok := ciphersuite.ByID(ciphersuite.ClassicalID)
	if !ok {
		t.Fatalf("classical suite not registered")
	}
	return s
}

func testCredential(t *testing.T, suite ciphersuite.Suite) (credential.Credential, []byte) {
	t.Helper()
	pub, priv, err := suite.SignatureKeyGen(nil)
	if err != nil {
		t.Fatalf("SignatureKeyGen: %v", err)
	}
	return credential.New("joiner", pub, suite.ID()), priv
}

func TestUserInitKeyRoundTripAndValidate(t *testing.T) {
	suite := testSuite(t)
	cred, priv := testCredential(t, suite)

	uik, privKeys, err := New([]byte("uik-1"), []ciphersuite.Suite{suite}, suite, priv, cred, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(privKeys) != 1 {
		t.Fatalf("expected 1 retained private key, got %d", len(privKeys))
	}
	if err := uik.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestUserInitKeyValidateRejectsTamperedSignature(t *testing.T) {
	suite := testSuite(t)
	cred, priv := testCredential(t, suite)

	uik, _, err := New([]byte("uik-1"), []ciphersuite.Suite{suite}, suite, priv, cred, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	uik.Signature[0] ^= 0xff
	if err := uik.Validate(); err == nil {
		t.Fatalf("expected validation error for a tampered signature")
	}
}

func TestUserInitKeyValidateRejectsLengthMismatch(t *testing.T) {
	suite := testSuite(t)
	cred, priv := testCredential(t, suite)

	uik, _, err := New([]byte("uik-1"), []ciphersuite.Suite{suite}, suite, priv, cred, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	uik.CipherSuites = append(uik.CipherSuites, suite.ID())
	if err := uik.Validate(); err == nil {
		t.Fatalf("expected validation error for mismatched cipher_suites/init_keys lengths")
	}
}

func TestWelcomeSealOpenRoundTrip(t *testing.T) {
	suite := testSuite(t)
	joinerPub, joinerPriv, err := suite.DHKeyGen(nil)
	if err != nil {
		t.Fatalf("DHKeyGen: %v", err)
	}

	info := &WelcomeInfo{
		Epoch:             3,
		Roster:            []wire.Opaque2{wire.Opaque2("cred-0"), nil, wire.Opaque2("cred-2")},
		TreePublicKeys:    []wire.Opaque2{wire.Opaque2("pub-0"), nil, wire.Opaque2("pub-2"), nil, nil},
		MyLeafIndex:       2,
		InitSecret:        []byte("init-secret"),
		ConfirmationKey:   []byte("confirmation-key"),
		ApplicationSecret: []byte("application-secret"),
		TranscriptHash:    []byte("transcript-hash"),
	}

	w, err := Seal(suite, []byte("uik-1"), joinerPub, info)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if w.CipherSuite != suite.ID() {
		t.Fatalf("CipherSuite = %d, want %d", w.CipherSuite, suite.ID())
	}

	got, err := Open(joinerPriv, w)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.Epoch != info.Epoch || got.MyLeafIndex != info.MyLeafIndex {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, info)
	}
	if len(got.Roster) != len(info.Roster) || string(got.Roster[0]) != string(info.Roster[0]) {
		t.Fatalf("roster mismatch: got %v, want %v", got.Roster, info.Roster)
	}
}

func TestWelcomeOpenRejectsWrongKey(t *testing.T) {
	suite := testSuite(t)
	joinerPub, _, err := suite.DHKeyGen(nil)
	if err != nil {
		t.Fatalf("DHKeyGen: %v", err)
	}
	_, wrongPriv, err := suite.DHKeyGen(nil)
	if err != nil {
		t.Fatalf("DHKeyGen: %v", err)
	}

	info := &WelcomeInfo{Epoch: 1, InitSecret: []byte("s")}
	w, err := Seal(suite, []byte("uik-1"), joinerPub, info)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(wrongPriv, w); err == nil {
		t.Fatalf("Open succeeded with the wrong private key")
	}
}
