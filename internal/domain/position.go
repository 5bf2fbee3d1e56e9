package domain

// Position represents a wrapped tokenized position tracked by the ledger.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	ID               string // base58 account id of the wrapped asset
	Owner            string // account entitled to unwrap
	Vault            string // derived off-curve escrow account
	DividendRatioBps uint32 // basis points of settlement proceeds diverted to payouts, 0..10000
	WrappedAt        int64  // Unix timestamp in seconds
	UnwrappedAt      int64  // 0 while wrapped; unwrap is terminal
	CreatedAt        int64  // record creation timestamp
}

// Active reports whether the position is currently wrapped.
func (p *Position) Active() bool {
	return p.UnwrappedAt == 0
}
