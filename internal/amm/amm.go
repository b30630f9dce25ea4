// Package amm implements the constant-product reserve curve that backs
// every perp market as its backstop liquidity provider.
//
// The curve maintains base_reserve * quote_reserve = sqrt_k^2 and converts
// the raw reserve ratio into a quoted price through a peg multiplier, so
// reserves can be rebalanced independently of the nominal price. Two
// derived curves — bid reserves and ask reserves — carry a directional
// spread so the AMM quotes a two-sided market around its mark.
//
// All monetary values use shopspring/decimal — never float64 for money.
package amm

import (
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// spreadDenom is the scale of the spread parameters: a spread of 1000 is
// 1000/1e6 = 0.1% of the mark price.
var spreadDenom = decimal.NewFromInt(1_000_000)

var two = decimal.NewFromInt(2)

// AMM is the full curve state for one perp market.
//
// NetBaseAmount is the aggregate signed base position of all users
// (+net long / -net short); it is the AMM's own inventory risk and moves
// only when the curve itself is a counterparty, never on maker matches.
type AMM struct {
	BaseReserve   decimal.Decimal
	QuoteReserve  decimal.Decimal
	SqrtK         decimal.Decimal
	PegMultiplier decimal.Decimal

	// Spread-adjusted curves, recomputed after every reserve change.
	BidBaseReserve  decimal.Decimal
	BidQuoteReserve decimal.Decimal
	AskBaseReserve  decimal.Decimal
	AskQuoteReserve decimal.Decimal

	NetBaseAmount decimal.Decimal

	// Reserve bounds and single-fill caps.
	MinBaseReserve   decimal.Decimal
	MaxBaseReserve   decimal.Decimal
	MaxSlippageRatio int64 // fill <= base_reserve / ratio; 0 = uncapped
	MaxFillRatio     int64 // fill <= base_reserve / ratio; 0 = uncapped
	StepSize         decimal.Decimal

	// Spread parameters over spreadDenom.
	BaseSpread  int64
	LongSpread  int64
	ShortSpread int64
	MaxSpread   int64

	// JITIntensity scales opportunistic participation: 0 = never, 100 = max.
	JITIntensity int64

	// CurveUpdateIntensity > 0 requires the oracle slot to match the last
	// curve update before the AMM will fill.
	CurveUpdateIntensity int64
	LastUpdateSlot       uint64

	// Revenue aggregates. Invariant after every fulfillment call:
	// TotalFee == TotalExchangeFee + TotalMMFee.
	TotalFee                   decimal.Decimal
	TotalFeeMinusDistributions decimal.Decimal
	TotalExchangeFee           decimal.Decimal
	TotalMMFee                 decimal.Decimal
	TotalFeeWithdrawn          decimal.Decimal
	NetRevenueSinceLastFunding decimal.Decimal
}

// New creates a balanced curve with base = quote = sqrtK and the given peg.
// Spread reserves start equal to the mark reserves until spreads are set.
func New(sqrtK, pegMultiplier, stepSize decimal.Decimal) *AMM {
	a := &AMM{
		BaseReserve:   sqrtK,
		QuoteReserve:  sqrtK,
		SqrtK:         sqrtK,
		PegMultiplier: pegMultiplier,
		StepSize:      stepSize,
	}
	a.UpdateSpreadReserves()
	return a
}

// ReservePrice returns the current mark price: quote/base * peg.
func (a *AMM) ReservePrice() decimal.Decimal {
	return model.FloorPrice(a.QuoteReserve.Div(a.BaseReserve).Mul(a.PegMultiplier))
}

// BidPrice reads the price off the bid-adjusted reserves.
func (a *AMM) BidPrice() decimal.Decimal {
	return model.FloorPrice(a.BidQuoteReserve.Div(a.BidBaseReserve).Mul(a.PegMultiplier))
}

// AskPrice reads the price off the ask-adjusted reserves.
func (a *AMM) AskPrice() decimal.Decimal {
	return model.FloorPrice(a.AskQuoteReserve.Div(a.AskBaseReserve).Mul(a.PegMultiplier))
}

// UpdateSpreadReserves rederives the bid and ask curves from the mark
// reserves. The ask side widens by long_spread, the bid side by
// short_spread, each floored at base_spread and capped at max_spread.
func (a *AMM) UpdateSpreadReserves() {
	askSpread := clampSpread(a.LongSpread, a.BaseSpread, a.MaxSpread)
	bidSpread := clampSpread(a.ShortSpread, a.BaseSpread, a.MaxSpread)

	// Half the spread is applied to each reserve so the full spread shows
	// up in the price ratio.
	askHalf := decimal.NewFromInt(askSpread).Div(spreadDenom).Div(two)
	bidHalf := decimal.NewFromInt(bidSpread).Div(spreadDenom).Div(two)

	one := decimal.NewFromInt(1)
	a.AskBaseReserve = model.FloorReserve(a.BaseReserve.Mul(one.Sub(askHalf)))
	a.AskQuoteReserve = model.FloorReserve(a.QuoteReserve.Mul(one.Add(askHalf)))
	a.BidBaseReserve = model.FloorReserve(a.BaseReserve.Mul(one.Add(bidHalf)))
	a.BidQuoteReserve = model.FloorReserve(a.QuoteReserve.Mul(one.Sub(bidHalf)))
}

func clampSpread(directional, base, max int64) int64 {
	s := directional
	if base > s {
		s = base
	}
	if max > 0 && s > max {
		s = max
	}
	return s
}

// MaxFillBase returns the largest single-fill base quantity the configured
// slippage and amount-ratio caps allow, quantized down to the step size.
// Zero ratios leave the corresponding cap open.
func (a *AMM) MaxFillBase() decimal.Decimal {
	ratio := a.MaxSlippageRatio
	if a.MaxFillRatio > ratio {
		ratio = a.MaxFillRatio
	}
	if ratio <= 0 {
		return model.QuantizeStep(a.BaseReserve, a.StepSize)
	}
	maxFill := a.BaseReserve.Div(decimal.NewFromInt(ratio))
	return model.QuantizeStep(maxFill, a.StepSize)
}

// SwapBase executes a fill of base quantity against the curve: the taker
// buys base on SideLong (base reserve shrinks) and sells on SideShort.
// Returns the exact quote owed, rounded against the taker: ceiled when the
// taker pays, floored when the taker receives.
//
// SqrtK is the source of truth for the product invariant: the post-trade
// quote reserve is rederived from it, not from the live reserves. A curve
// state where the two disagree enough to produce a negative quote fails
// with ErrArithmeticOverflow instead of executing.
//
// Reserves are updated to preserve the product invariant at the post-trade
// peg, and NetBaseAmount moves by the signed base delta. Violating reserve
// bounds or the single-fill cap fails with ErrLiquidityExhausted before any
// state changes.
func (a *AMM) SwapBase(base decimal.Decimal, side model.Side) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, nil
	}
	if maxFill := a.MaxFillBase(); base.GreaterThan(maxFill) {
		return decimal.Zero, model.ErrLiquidityExhausted
	}

	k := a.SqrtK.Mul(a.SqrtK)
	var newBase, newQuote, quote decimal.Decimal

	switch side {
	case model.SideLong:
		newBase = a.BaseReserve.Sub(base)
		if !a.MinBaseReserve.IsZero() && newBase.LessThan(a.MinBaseReserve) {
			return decimal.Zero, model.ErrLiquidityExhausted
		}
		if !newBase.IsPositive() {
			return decimal.Zero, model.ErrLiquidityExhausted
		}
		newQuote = model.FloorReserve(k.Div(newBase))
		quote = model.CeilQuote(newQuote.Sub(a.QuoteReserve).Mul(a.PegMultiplier))
	case model.SideShort:
		newBase = a.BaseReserve.Add(base)
		if !a.MaxBaseReserve.IsZero() && newBase.GreaterThan(a.MaxBaseReserve) {
			return decimal.Zero, model.ErrLiquidityExhausted
		}
		newQuote = model.CeilReserve(k.Div(newBase))
		quote = model.FloorQuote(a.QuoteReserve.Sub(newQuote).Mul(a.PegMultiplier))
	}
	if quote.IsNegative() {
		return decimal.Zero, model.ErrArithmeticOverflow
	}

	a.BaseReserve = newBase
	a.QuoteReserve = newQuote
	if side == model.SideLong {
		a.NetBaseAmount = a.NetBaseAmount.Add(base)
	} else {
		a.NetBaseAmount = a.NetBaseAmount.Sub(base)
	}
	a.UpdateSpreadReserves()

	return quote, nil
}

// RecordRevenue accumulates one fulfillment call's exchange fee and AMM
// surplus into the running counters.
func (a *AMM) RecordRevenue(exchangeFee, mmFee decimal.Decimal) {
	total := exchangeFee.Add(mmFee)
	a.TotalFee = a.TotalFee.Add(total)
	a.TotalFeeMinusDistributions = a.TotalFeeMinusDistributions.Add(total)
	a.TotalExchangeFee = a.TotalExchangeFee.Add(exchangeFee)
	a.TotalMMFee = a.TotalMMFee.Add(mmFee)
	a.NetRevenueSinceLastFunding = a.NetRevenueSinceLastFunding.Add(total)
}

// Clone copies the full curve state so fulfillment can mutate freely and
// commit only on success.
func (a *AMM) Clone() *AMM {
	c := *a
	return &c
}

// Snapshot extracts the persisted view of the curve.
func (a *AMM) Snapshot(marketIndex uint16, symbol, status string) *model.MarketSnapshot {
	return &model.MarketSnapshot{
		MarketIndex:   marketIndex,
		Symbol:        symbol,
		Status:        status,
		SqrtK:         a.SqrtK,
		PegMultiplier: a.PegMultiplier,
		BaseReserve:   a.BaseReserve,
		QuoteReserve:  a.QuoteReserve,
		NetBaseAmount: a.NetBaseAmount,
		StepSize:      a.StepSize,
		JITIntensity:  a.JITIntensity,
		LastSlot:      a.LastUpdateSlot,
	}
}
