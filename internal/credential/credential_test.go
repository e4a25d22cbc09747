package credential

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	c1 := New("alice", []byte{1, 2, 3, 4}, 0x0001)
	c2 := New("alice-other-label", []byte{1, 2, 3, 4}, 0x0001)
	if c1.Fingerprint() != c2.Fingerprint() {
		t.Fatalf("fingerprint should depend only on the key, got %q vs %q", c1.Fingerprint(), c2.Fingerprint())
	}
}

func TestFingerprintDiffersOnKey(t *testing.T) {
	c1 := New("alice", []byte{1, 2, 3, 4}, 0x0001)
	c2 := New("alice", []byte{1, 2, 3, 5}, 0x0001)
	if c1.Fingerprint() == c2.Fingerprint() {
		t.Fatalf("different keys produced the same fingerprint")
	}
}

func TestEqual(t *testing.T) {
	c1 := New("alice", []byte{9, 9, 9}, 0x0001)
	c2 := New("alice-alias", []byte{9, 9, 9}, 0x0001)
	if !c1.Equal(c2) {
		t.Fatalf("expected equal credentials with matching key and suite")
	}

	c3 := New("alice", []byte{9, 9, 9}, 0x0002)
	if c1.Equal(c3) {
		t.Fatalf("credentials under different suites must not be equal")
	}

	c4 := New("alice", []byte{9, 9, 0}, 0x0001)
	if c1.Equal(c4) {
		t.Fatalf("credentials with different keys must not be equal")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	// a Dilithium3-sized verification key exercises the 2-byte length
	bigKey := make([]byte, 1952)
	for i := range bigKey {
		bigKey[i] = byte(i)
	}
	in := New("alice", bigKey, 0x0002)

	data, err := in.MarshalTLS()
	if err != nil {
		t.Fatalf("MarshalTLS: %v", err)
	}
	var out Credential
	n, err := out.UnmarshalTLS(data)
	if err != nil {
		t.Fatalf("UnmarshalTLS: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if out.Label != in.Label || out.CipherSuiteID != in.CipherSuiteID || !out.Equal(in) {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}

func TestNewCopiesKey(t *testing.T) {
	key := []byte{1, 2, 3}
	c := New("alice", key, 0x0001)
	key[0] = 0xff
	if c.SignatureKey[0] == 0xff {
		t.Fatalf("New must copy the key, not alias the caller's slice")
	}
}
