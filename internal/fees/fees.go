// Package fees computes tiered taker fees, maker rebates, and the AMM's
// per-fill surplus.
//
// Fee accounting identity, enforced by construction and asserted in tests:
// total_fee == total_exchange_fee + total_mm_fee, where the exchange fee is
// taker fees minus maker rebates and the mm fee is accumulated AMM surplus.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// DefaultStructure is the standard fee schedule: 5 bps taker / 3 bps maker
// rebate at tier 0, stepping down with volume tiers.
func DefaultStructure() model.FeeStructure {
	return model.FeeStructure{Tiers: []model.FeeTier{
		{FeeNumerator: 5, FeeDenominator: 10000, RebateNumerator: 3, RebateDenominator: 10000},
		{FeeNumerator: 4, FeeDenominator: 10000, RebateNumerator: 3, RebateDenominator: 10000},
		{FeeNumerator: 35, FeeDenominator: 100000, RebateNumerator: 3, RebateDenominator: 10000},
		{FeeNumerator: 3, FeeDenominator: 10000, RebateNumerator: 3, RebateDenominator: 10000},
		{FeeNumerator: 25, FeeDenominator: 100000, RebateNumerator: 2, RebateDenominator: 10000},
	}}
}

// TakerFee returns the fee charged on the quote exchanged, floored to the
// quote scale.
func TakerFee(quote decimal.Decimal, tier model.FeeTier) decimal.Decimal {
	if tier.FeeDenominator == 0 {
		return decimal.Zero
	}
	return model.FloorQuote(quote.
		Mul(decimal.NewFromInt(tier.FeeNumerator)).
		Div(decimal.NewFromInt(tier.FeeDenominator)))
}

// MakerRebate returns the rebate credited on the quote exchanged, floored
// to the quote scale. Tier values guarantee rebate <= fee.
func MakerRebate(quote decimal.Decimal, tier model.FeeTier) decimal.Decimal {
	if tier.RebateDenominator == 0 {
		return decimal.Zero
	}
	return model.FloorQuote(quote.
		Mul(decimal.NewFromInt(tier.RebateNumerator)).
		Div(decimal.NewFromInt(tier.RebateDenominator)))
}

// Surplus returns the AMM's realized gain or loss on a curve fill: the
// executed quote flow minus the flow that the same base quantity would have
// produced at the reference (oracle) price. Positive when the AMM profits.
//
// ammSells is true when the taker bought base from the curve (the AMM
// received the executed quote); false when the taker sold to it.
func Surplus(executedQuote, base, referencePrice decimal.Decimal, ammSells bool) decimal.Decimal {
	reference := model.FloorQuote(base.Mul(referencePrice))
	if ammSells {
		return executedQuote.Sub(reference)
	}
	return reference.Sub(executedQuote)
}
