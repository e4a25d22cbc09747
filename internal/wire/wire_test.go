package wire

import "testing"

type sample struct {
	Tag   uint8
	Count uint32
	Blob  []byte `tls:"head=2"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := sample{Tag: 3, Count: 0xdeadbeef, Blob: []byte("hello, ratchet")}

	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := Unmarshal(encoded, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Tag != in.Tag || out.Count != in.Count || string(out.Blob) != string(in.Blob) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	in := sample{Tag: 1, Count: 1, Blob: []byte("x")}
	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := Unmarshal(append(encoded, 0xff), &out); err == nil {
		t.Fatalf("expected MalformedWire for trailing bytes")
	}
}

func TestOpaque2NestedVectorRoundTrip(t *testing.T) {
	type nested struct {
		Entries []Opaque2 `tls:"head=4"`
	}
	in := nested{Entries: []Opaque2{Opaque2("first"), nil, Opaque2("third")}}

	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out nested
	if err := Unmarshal(encoded, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(out.Entries))
	}
	if string(out.Entries[0]) != "first" || len(out.Entries[1]) != 0 || string(out.Entries[2]) != "third" {
		t.Fatalf("round trip mismatch: %q", out.Entries)
	}
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	in := sample{Tag: 1, Count: 1, Blob: []byte("hello")}
	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := Unmarshal(encoded[:len(encoded)-2], &out); err == nil {
		t.Fatalf("expected MalformedWire for a truncated buffer")
	}
}
