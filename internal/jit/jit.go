// Package jit decides whether, and by how much, the AMM opportunistically
// participates as a counterparty in a specific fill.
//
// JIT participation is strictly risk-reducing: the curve only steps in when
// the taker's direction shrinks the AMM's inventory imbalance, and never
// takes more than would flip that imbalance past its starting magnitude.
package jit

import (
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/amm"
	"github.com/butonium/protocol-v2/internal/model"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Eligible reports whether a fill in the taker's direction reduces the
// curve's inventory imbalance |net_base_asset_amount|. A long taker needs
// the community net short (net < 0), a short taker net long (net > 0).
func Eligible(a *amm.AMM, takerSide model.Side) bool {
	if a.JITIntensity <= 0 {
		return false
	}
	if takerSide == model.SideLong {
		return a.NetBaseAmount.IsNegative()
	}
	return a.NetBaseAmount.IsPositive()
}

// Size returns the base quantity the AMM absorbs for this fill, or zero.
//
// leftover is the taker quantity still unfilled after maker matching;
// matched is the maker-matched quantity (zero when no maker participated).
// When a maker is present the AMM dimensions itself against the smaller of
// the two, so it rides alongside the maker rather than displacing it
// outright; intensity then scales that anchor from 0 to 100%.
//
// The result is capped so participation never pushes |net_base_asset_amount|
// past its pre-fill magnitude (2x the current imbalance at most), capped by
// the curve's single-fill limit, and quantized down to the step size.
// Anything below one step floors to zero.
func Size(a *amm.AMM, takerSide model.Side, leftover, matched decimal.Decimal) decimal.Decimal {
	if !Eligible(a, takerSide) || !leftover.IsPositive() {
		return decimal.Zero
	}

	anchor := leftover
	if matched.IsPositive() && matched.LessThan(anchor) {
		anchor = matched
	}

	size := anchor.Mul(decimal.NewFromInt(a.JITIntensity)).Div(hundred)

	if imbalanceCap := a.NetBaseAmount.Abs().Mul(two); size.GreaterThan(imbalanceCap) {
		size = imbalanceCap
	}
	if fillCap := a.MaxFillBase(); size.GreaterThan(fillCap) {
		size = fillCap
	}
	if size.GreaterThan(leftover) {
		size = leftover
	}

	size = model.QuantizeStep(size, a.StepSize)
	if a.StepSize.IsPositive() && size.LessThan(a.StepSize) {
		return decimal.Zero
	}
	return size
}
