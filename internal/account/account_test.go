package account

import (
	"crypto/sha256"
	"testing"

	"github.com/mr-tron/base58"
)

// testKey builds a deterministic valid account id from a label.
func testKey(label string) string {
	h := sha256.Sum256([]byte(label))
	return base58.Encode(h[:])
}

func TestDecode(t *testing.T) {
	id := testKey("position-1")

	raw, err := Decode(id)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", id, err)
	}
	if len(raw) != KeyLen {
		t.Errorf("Decode() len = %d, want %d", len(raw), KeyLen)
	}
	if base58.Encode(raw) != id {
		t.Errorf("Decode() does not round-trip")
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"bad alphabet", "0OIl+/=="},
		{"too short", "11111111"},
		{"too long", testKey("a") + testKey("b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.id); err == nil {
				t.Errorf("Decode(%q) expected error, got nil", tt.id)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if !Valid(testKey("owner")) {
		t.Errorf("Valid() = false for well-formed id")
	}
	if !Valid(NativeCurrency) {
		t.Errorf("Valid(NativeCurrency) = false")
	}
	if !Valid(Authority) {
		t.Errorf("Valid(Authority) = false")
	}
	if Valid("not-base58-0OIl") {
		t.Errorf("Valid() = true for malformed id")
	}
}

func TestDeriveVault(t *testing.T) {
	pos := testKey("position-vault")

	vault, err := DeriveVault(pos)
	if err != nil {
		t.Fatalf("DeriveVault() error = %v", err)
	}

	// Deterministic.
	again, err := DeriveVault(pos)
	if err != nil {
		t.Fatalf("DeriveVault() second call error = %v", err)
	}
	if vault != again {
		t.Errorf("DeriveVault() not deterministic: %q != %q", vault, again)
	}

	// Well-formed and distinct from the position id.
	if !Valid(vault) {
		t.Errorf("DeriveVault() = %q, not a valid account id", vault)
	}
	if vault == pos {
		t.Errorf("DeriveVault() returned the position id itself")
	}

	// Off the curve: no keypair can control the vault.
	raw, err := Decode(vault)
	if err != nil {
		t.Fatalf("Decode(vault) error = %v", err)
	}
	if isOnCurve(raw) {
		t.Errorf("DeriveVault() = %q is on the ed25519 curve", vault)
	}
}

func TestDeriveVault_DistinctPerPosition(t *testing.T) {
	a, err := DeriveVault(testKey("position-a"))
	if err != nil {
		t.Fatalf("DeriveVault(a) error = %v", err)
	}
	b, err := DeriveVault(testKey("position-b"))
	if err != nil {
		t.Fatalf("DeriveVault(b) error = %v", err)
	}
	if a == b {
		t.Errorf("vaults collide across positions: %q", a)
	}
}

func TestDeriveVault_InvalidPosition(t *testing.T) {
	if _, err := DeriveVault("tooshort"); err == nil {
		t.Errorf("DeriveVault() expected error for malformed position id")
	}
}
