package pii_test

import (
	"strings"
	"testing"

	"github.com/uniformhq/entitlement-engine/pii"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574" // "change this password to a secret"

func TestRoundTrip(t *testing.T) {
	c, err := pii.NewAESCBC(testKey)
	if err != nil {
		t.Fatalf("NewAESCBC: %v", err)
	}

	for _, plain := range []string{"Pilot", "First Officer", "", "a", strings.Repeat("x", 100)} {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if got := c.Decrypt(enc); got != plain {
			t.Fatalf("Decrypt(Encrypt(%q)) = %q", plain, got)
		}
	}
}

func TestDecryptFailureFallsBackToRawValue(t *testing.T) {
	c, err := pii.NewAESCBC(testKey)
	if err != nil {
		t.Fatalf("NewAESCBC: %v", err)
	}

	// Values that are not valid ciphertext come back unchanged, never an error.
	for _, raw := range []string{"Pilot", "not base64 !!", "c2hvcnQ=", ""} {
		if got := c.Decrypt(raw); got != raw {
			t.Fatalf("Decrypt(%q) = %q, want input unchanged", raw, got)
		}
	}
}

func TestDecryptWithWrongKeyFallsBack(t *testing.T) {
	c1, _ := pii.NewAESCBC(testKey)
	c2, _ := pii.NewAESCBC(strings.Repeat("ab", 32))

	enc, err := c1.Encrypt("Captain")
	if err != nil {
		t.Fatal(err)
	}

	// Wrong key: padding check almost certainly fails and the ciphertext
	// comes back verbatim. Either way the call must not panic or error.
	got := c2.Decrypt(enc)
	if got == "Captain" {
		t.Fatal("wrong key should not produce the plaintext")
	}
}

func TestNewAESCBCRejectsBadKeys(t *testing.T) {
	if _, err := pii.NewAESCBC("zz"); err == nil {
		t.Fatal("non-hex key accepted")
	}
	if _, err := pii.NewAESCBC("abcd"); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestPassthrough(t *testing.T) {
	var d pii.Decrypter = pii.Passthrough{}
	if d.Decrypt("Pilot") != "Pilot" {
		t.Fatal("passthrough must return input")
	}
}
