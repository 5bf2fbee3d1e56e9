package domain

import "math/big"

// MulDiv returns a*b/den with the product widened through big.Int, so the
// multiplication cannot overflow uint64. Division truncates toward zero.
// Callers keep results in uint64 range by dividing by a denominator at
// least as large as one factor. den must be nonzero.
func MulDiv(a, b, den uint64) uint64 {
	prod := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	prod.Quo(prod, new(big.Int).SetUint64(den))
	return prod.Uint64()
}

// ScaleAmount returns amount*1e18/den as a big integer. Used to fix a
// payout's amount-per-unit-weight. den must be nonzero.
func ScaleAmount(amount, den uint64) *big.Int {
	scaled := new(big.Int).Mul(new(big.Int).SetUint64(amount), WeightScale)
	return scaled.Quo(scaled, new(big.Int).SetUint64(den))
}

// ApplyPerUnit returns weight*perUnit/1e18: the claimable share of a
// payout for a historical weight.
func ApplyPerUnit(weight uint64, perUnit *big.Int) uint64 {
	share := new(big.Int).Mul(new(big.Int).SetUint64(weight), perUnit)
	return share.Quo(share, WeightScale).Uint64()
}

// NextBoundary returns the first interval boundary strictly after t, even
// when t already sits on a boundary. interval must be positive.
func NextBoundary(t, interval int64) int64 {
	return (t/interval + 1) * interval
}

// AlignBoundary returns t aligned down to its interval boundary.
func AlignBoundary(t, interval int64) int64 {
	return t / interval * interval
}
