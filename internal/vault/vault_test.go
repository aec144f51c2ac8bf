package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	e, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRoundTrip(t *testing.T) {
	e := testEngine(t)
	large := make([]byte, 1<<20)
	if _, err := rand.Read(large); err != nil {
		t.Fatalf("rand: %v", err)
	}
	payloads := map[string][]byte{
		"empty": {},
		"small": []byte("patient record 42"),
		"large": large,
	}
	for name, plaintext := range payloads {
		t.Run(name, func(t *testing.T) {
			env, err := e.Encrypt(plaintext, "asset-1", "application/pdf", "v1")
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if len(env.Nonce) != 12 || len(env.Tag) != 16 {
				t.Fatalf("unexpected envelope shape: nonce=%d tag=%d", len(env.Nonce), len(env.Tag))
			}
			got, err := e.Decrypt(env, "asset-1", "application/pdf")
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestTamperSensitivity(t *testing.T) {
	e := testEngine(t)
	plaintext := []byte("confidential body")
	env, err := e.Encrypt(plaintext, "asset-7", "text/plain", "v1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	flip := func(b []byte) []byte {
		out := make([]byte, len(b))
		copy(out, b)
		out[0] ^= 0x01
		return out
	}

	cases := []struct {
		name     string
		env      Envelope
		assetID  string
		mimeType string
	}{
		{"ciphertext bit flip", Envelope{flip(env.Ciphertext), env.Nonce, env.Tag, env.KeyVersion}, "asset-7", "text/plain"},
		{"nonce bit flip", Envelope{env.Ciphertext, flip(env.Nonce), env.Tag, env.KeyVersion}, "asset-7", "text/plain"},
		{"tag bit flip", Envelope{env.Ciphertext, env.Nonce, flip(env.Tag), env.KeyVersion}, "asset-7", "text/plain"},
		{"asset id swap", env, "asset-8", "text/plain"},
		{"mime type swap", env, "asset-7", "application/pdf"},
		{"key version swap", Envelope{env.Ciphertext, env.Nonce, env.Tag, "v2"}, "asset-7", "text/plain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Decrypt(tc.env, tc.assetID, tc.mimeType)
			if !errors.Is(err, ErrDecrypt) {
				t.Fatalf("expected ErrDecrypt, got err=%v", err)
			}
			if got != nil {
				t.Fatal("plaintext released on authentication failure")
			}
		})
	}
}

func TestDerivationDeterminism(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	e1, _ := New(key)
	e2, _ := New(key)

	a, err := e1.DeriveKey("asset-1", "v1")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	b, err := e2.DeriveKey("asset-1", "v1")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("identical inputs produced different keys")
	}

	otherAsset, _ := e1.DeriveKey("asset-2", "v1")
	if bytes.Equal(a, otherAsset) {
		t.Fatal("asset id did not influence derivation")
	}
	otherVersion, _ := e1.DeriveKey("asset-1", "v2")
	if bytes.Equal(a, otherVersion) {
		t.Fatal("key version did not influence derivation")
	}
	otherMaster, _ := New(bytes.Repeat([]byte{0x43}, 32))
	c, _ := otherMaster.DeriveKey("asset-1", "v1")
	if bytes.Equal(a, c) {
		t.Fatal("master key did not influence derivation")
	}
}

func TestNonceFreshness(t *testing.T) {
	e := testEngine(t)
	one, err := e.Encrypt([]byte("same plaintext"), "asset-1", "text/plain", "v1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	two, err := e.Encrypt([]byte("same plaintext"), "asset-1", "text/plain", "v1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(one.Nonce, two.Nonce) {
		t.Fatal("nonce reused across encryption calls")
	}
	if bytes.Equal(one.Ciphertext, two.Ciphertext) {
		t.Fatal("identical ciphertext for repeated plaintext under fresh nonces")
	}
}

func TestMasterKeyValidation(t *testing.T) {
	if _, err := New(make([]byte, 16)); !errors.Is(err, ErrBadMasterKey) {
		t.Fatalf("expected ErrBadMasterKey, got %v", err)
	}
	if _, err := NewFromHex("not-hex"); !errors.Is(err, ErrBadMasterKey) {
		t.Fatalf("expected ErrBadMasterKey, got %v", err)
	}
	if _, err := NewFromHex("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"); err != nil {
		t.Fatalf("NewFromHex: %v", err)
	}
}
