package domain

import "math/big"

// Fixed-point scales used throughout payout math. Multiplication always
// precedes division so integer truncation happens exactly once.
const (
	// BpsDenominator is the basis-point denominator for ratio math.
	BpsDenominator = 10_000
	// MaxRatioBps is the largest accepted dividend ratio.
	MaxRatioBps = 10_000
)

// WeightScale is the 1e18 fixed-point denominator of AmountPerUnit.
var WeightScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PayoutSource distinguishes how a payout record was funded.
type PayoutSource string

const (
	// PayoutSourceSettlement is a slice of settlement proceeds.
	PayoutSourceSettlement PayoutSource = "settlement"
	// PayoutSourceEmission is a per-epoch emission reward.
	PayoutSourceEmission PayoutSource = "emission"
)

// IsValid checks if the payout source is a valid value.
func (s PayoutSource) IsValid() bool {
	return s == PayoutSourceSettlement || s == PayoutSourceEmission
}

// Payout is an immutable record of proceeds to be distributed pro-rata to
// weight holders as of IssuedAt. Identified by (Currency, Index); indices are
// dense per currency, starting at 0. Corresponds to payouts table.
type Payout struct {
	Currency      string       // base58 currency account id
	Index         uint64       // position in the per-currency append-only list
	Position      string       // position whose participant weights settle the claim
	IssuedAt      int64        // epoch boundary fixing the weight snapshot, Unix seconds
	AmountPerUnit *big.Int     // amount per unit weight, scaled by 1e18
	Amount        uint64       // total amount diverted into this payout
	Source        PayoutSource // settlement or emission
	CreatedAt     int64        // record creation timestamp
}

// Clone returns a deep copy. AmountPerUnit is copied so callers can keep the
// original immutable.
func (p *Payout) Clone() *Payout {
	cp := *p
	if p.AmountPerUnit != nil {
		cp.AmountPerUnit = new(big.Int).Set(p.AmountPerUnit)
	}
	return &cp
}

// Claim is a permanent record that a claimant collected one payout index.
// Corresponds to claims table; membership is never removed.
type Claim struct {
	Currency  string // payout currency
	Index     uint64 // payout index
	Claimant  string // claiming account
	Amount    uint64 // amount accrued for this index, after 1e18 descale
	ClaimedAt int64  // Unix timestamp in seconds
}
