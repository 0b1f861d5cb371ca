package secure

import (
	"bytes"
	"testing"
)

func testVault(t *testing.T) *ChaChaVault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewVault(key)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := testVault(t)

	ct, err := v.Encrypt("david@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ct, []byte("david")) {
		t.Fatal("ciphertext leaks plaintext")
	}

	pt, err := v.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "david@example.com" {
		t.Fatalf("round trip mismatch: got %q", pt)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	v := testVault(t)

	a, _ := v.Encrypt("same value")
	b, _ := v.Encrypt("same value")
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext must not be byte-equal")
	}
}

func TestBlindIndexDeterministicPerContext(t *testing.T) {
	v := testVault(t)

	a := v.BlindIndex("david@example.com", "email")
	b := v.BlindIndex("david@example.com", "email")
	if a != b {
		t.Fatal("blind index must be deterministic for equal (plaintext, context)")
	}
	if a == "" {
		t.Fatal("blind index must not be empty")
	}
}

func TestBlindIndexContextScopesTokenSpace(t *testing.T) {
	v := testVault(t)

	email := v.BlindIndex("555-0100", "email")
	phone := v.BlindIndex("555-0100", "phone")
	if email == phone {
		t.Fatal("equal plaintexts of different identifier types must not share tokens")
	}
}

func TestNewVaultRejectsShortKey(t *testing.T) {
	if _, err := NewVault([]byte("short")); err == nil {
		t.Fatal("expected error for short master key")
	}
}
