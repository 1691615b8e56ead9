/*
Package pii provides the decryption collaborator for PII fields.

PURPOSE:
  Employee PII (name, email, designation, company name) is encrypted at
  rest with AES-256-CBC. The engine never fails on a value it cannot
  decrypt: rule matching falls back to the raw (possibly still-encrypted)
  string, because historical data mixes plaintext and ciphertext in the
  same fields.

WIRE FORMAT:
  base64( IV || CBC(ciphertext) ), PKCS#7 padded, 32-byte key.

FAILURE SEMANTICS:
  Decrypt NEVER returns an error. Any failure (bad base64, short input,
  invalid padding) yields the input unchanged. Callers treat the result
  as the best-available value, not a guarantee of plaintext.

SEE ALSO:
  - eligibility: decrypts designations before rule matching
*/
package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Decrypter turns a possibly-encrypted stored value into its
// best-available plaintext. Implementations never fail: on error the
// input is returned unchanged.
type Decrypter interface {
	Decrypt(value string) string
}

// =============================================================================
// PASSTHROUGH - For plaintext deployments and tests
// =============================================================================

type Passthrough struct{}

func (Passthrough) Decrypt(value string) string { return value }

// =============================================================================
// AES-256-CBC - The platform's at-rest cipher
// =============================================================================

type AESCBC struct {
	key []byte
}

// NewAESCBC builds the cipher from a 64-char hex key (32 bytes).
func NewAESCBC(hexKey string) (*AESCBC, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("pii: invalid hex key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("pii: key must be 32 bytes, got %d", len(key))
	}
	return &AESCBC{key: key}, nil
}

// Decrypt decodes base64(IV || ciphertext) and strips PKCS#7 padding.
// Any failure returns the input unchanged.
func (c *AESCBC) Decrypt(value string) string {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return value
	}
	if len(raw) < aes.BlockSize*2 || len(raw)%aes.BlockSize != 0 {
		return value
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return value
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	unpadded, ok := pkcs7Unpad(plain)
	if !ok {
		return value
	}
	return string(unpadded)
}

// Encrypt is the inverse of Decrypt. Used by fixtures and the admin
// tooling; the engine itself only reads.
func (c *AESCBC) Encrypt(value string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(value), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// =============================================================================
// PKCS#7
// =============================================================================

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
