package refs_test

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/uniformhq/entitlement-engine/refs"
)

func TestParseClassification(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind refs.Kind
	}{
		{"hex string", "64a1b2c3d4e5f6a7b8c9d0e1", refs.KindHexString},
		{"upper hex string", "64A1B2C3D4E5F6A7B8C9D0E1", refs.KindHexString},
		{"numeric legacy id", "482913", refs.KindNumeric},
		{"padded whitespace", "  482913  ", refs.KindNumeric},
		{"opaque", "EMP-482913", refs.KindOpaque},
		{"short digits are opaque", "4829", refs.KindOpaque},
		{"empty", "", refs.KindZero},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := refs.Parse(tc.raw)
			if got.Kind() != tc.kind {
				t.Fatalf("Parse(%q).Kind() = %v, want %v", tc.raw, got.Kind(), tc.kind)
			}
		})
	}
}

func TestObjectIDAndHexStringResolveEqual(t *testing.T) {
	// GIVEN the same ObjectId stored natively and as its hex serialization
	oid := primitive.NewObjectID()
	native := refs.FromObjectID(oid)
	hex := refs.Parse(oid.Hex())

	// THEN both forms share one canonical value
	if !native.Equal(hex) {
		t.Fatalf("native %v and hex %v should be equal", native, hex)
	}
	if native.Canonical() != oid.Hex() {
		t.Fatalf("canonical = %q, want %q", native.Canonical(), oid.Hex())
	}

	// AND the hex form round-trips back to the ObjectId
	back, ok := hex.ObjectID()
	if !ok || back != oid {
		t.Fatalf("ObjectID() = %v, %v; want %v, true", back, ok, oid)
	}
}

func TestCandidatesCoverBothShapes(t *testing.T) {
	oid := primitive.NewObjectID()
	r := refs.Parse(oid.Hex())

	candidates := r.Candidates()
	if len(candidates) != 2 {
		t.Fatalf("expected hex string + ObjectId candidates, got %v", candidates)
	}

	var sawHex, sawOID bool
	for _, c := range candidates {
		switch v := c.(type) {
		case string:
			sawHex = v == oid.Hex()
		case primitive.ObjectID:
			sawOID = v == oid
		}
	}
	if !sawHex || !sawOID {
		t.Fatalf("candidates missing a shape: %v", candidates)
	}
}

func TestNumericRefCanonical(t *testing.T) {
	r := refs.Parse("482913")
	if r.Canonical() != "482913" {
		t.Fatalf("canonical = %q", r.Canonical())
	}
	if _, ok := r.ObjectID(); ok {
		t.Fatal("numeric ref must not resolve to an ObjectId")
	}
}

func TestZeroRef(t *testing.T) {
	var zero refs.Ref
	if !zero.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	if zero.Candidates() != nil {
		t.Fatal("zero ref has no candidates")
	}
	if zero.Equal(refs.Parse("482913")) {
		t.Fatal("zero ref equals nothing but zero")
	}
}
