package account

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// NativeCurrency is the currency id used for payouts denominated in the
// chain's native token (wrapped-native mint).
const NativeCurrency = "So11111111111111111111111111111111111111112"

// Authority is the ledger program key that scopes vault derivation. Vaults
// derived under it cannot collide with vaults of any other program.
const Authority = "2eXsVs63T31kJsQJ8GSBQC7BVXf7wSxdwFxwWdvdNZBk"

// KeyLen is the byte length of a decoded account key.
const KeyLen = 32

// Decode parses a base58 account id and validates its length.
func Decode(id string) ([]byte, error) {
	raw, err := base58.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("decode account id: %w", err)
	}
	if len(raw) != KeyLen {
		return nil, fmt.Errorf("account id must be %d bytes, got %d", KeyLen, len(raw))
	}
	return raw, nil
}

// Valid reports whether id is a well-formed base58 32-byte account id.
func Valid(id string) bool {
	_, err := Decode(id)
	return err == nil
}

// DeriveVault derives the deterministic vault id for a position.
// Seeds: ["vault", position_key]. The bump walk stops at the first SHA256
// digest that is off the ed25519 curve, so no keypair can ever control the
// vault account.
func DeriveVault(positionID string) (string, error) {
	posBytes, err := Decode(positionID)
	if err != nil {
		return "", fmt.Errorf("position id: %w", err)
	}
	authBytes, err := base58.Decode(Authority)
	if err != nil {
		return "", fmt.Errorf("decode authority: %w", err)
	}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, len(posBytes)+len(authBytes)+64)
		data = append(data, []byte("vault")...)
		data = append(data, posBytes...)
		data = append(data, bump)
		data = append(data, authBytes...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", fmt.Errorf("no off-curve vault for position %s", positionID)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
