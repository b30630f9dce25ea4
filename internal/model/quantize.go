package model

import "github.com/shopspring/decimal"

// Fixed-point scales per quantity domain. All cross-domain arithmetic goes
// through these helpers; nothing rescales implicitly.
const (
	// QuoteScale is the number of decimal places for quote amounts and fees.
	QuoteScale int32 = 6

	// PriceScale is the number of decimal places for quoted prices.
	PriceScale int32 = 6

	// ReserveScale is the number of decimal places for AMM reserves.
	ReserveScale int32 = 9
)

// FloorQuote truncates a quote amount down to QuoteScale. Used when the
// amount is owed to a participant (never round in the payer's favor twice).
func FloorQuote(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(QuoteScale)
}

// CeilQuote rounds a quote amount up to QuoteScale. Used when the amount is
// owed by the taker to the AMM.
func CeilQuote(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(QuoteScale)
}

// FloorPrice truncates a price down to PriceScale.
func FloorPrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(PriceScale)
}

// FloorReserve truncates a reserve amount down to ReserveScale.
func FloorReserve(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(ReserveScale)
}

// CeilReserve rounds a reserve amount up to ReserveScale.
func CeilReserve(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(ReserveScale)
}

// QuantizeStep floors a base amount to a whole multiple of step.
// A non-positive step passes the amount through unchanged.
func QuantizeStep(amount, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return amount
	}
	return amount.Div(step).Floor().Mul(step)
}

// SubUnsigned subtracts b from a, failing with ErrArithmeticOverflow when
// the result would be negative. Every subtraction of unsigned quantities in
// the engine goes through here.
func SubUnsigned(a, b decimal.Decimal) (decimal.Decimal, error) {
	r := a.Sub(b)
	if r.IsNegative() {
		return decimal.Zero, ErrArithmeticOverflow
	}
	return r, nil
}
