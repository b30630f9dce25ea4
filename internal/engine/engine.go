// Package engine orchestrates order fulfillment: it decides how much of a
// taker order fills against a pre-selected resting maker, how much the AMM
// absorbs just-in-time, and how much the curve backstops once the price
// auction has run its course — then applies fees, rebates, surplus, and all
// position deltas atomically.
//
// One call fully applies or fully fails. Every mutation happens on clones of
// the market and participant records; the live records are written only
// after the whole fill has succeeded, so an error at any step leaves no
// partial state behind.
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/amm"
	"github.com/butonium/protocol-v2/internal/auction"
	"github.com/butonium/protocol-v2/internal/fees"
	"github.com/butonium/protocol-v2/internal/jit"
	"github.com/butonium/protocol-v2/internal/model"
	"github.com/butonium/protocol-v2/internal/registry"
	"github.com/butonium/protocol-v2/internal/venue"
)

// Engine executes fulfillment calls against checked-out market records.
// It is stateless apart from the fee schedule; the caller serializes
// concurrent calls touching the same records.
type Engine struct {
	feeStructure model.FeeStructure
}

// New creates an engine with the given fee schedule.
func New(fs model.FeeStructure) *Engine {
	return &Engine{feeStructure: fs}
}

// FulfillParams carries everything one fulfillment call needs. Market is an
// exclusively checked-out record; Taker/Maker/Filler are by-reference user
// records. Maker and Filler are optional; the filler may be the same record
// as the taker or the maker, but the maker must never alias the taker.
type FulfillParams struct {
	Market      *registry.Market
	Taker       *model.User
	TakerOrder  *model.Order
	Maker       *model.User
	MakerOrder  *model.Order
	Filler      *model.User
	Route       venue.Route
	OraclePrice decimal.Decimal
	OracleSlot  uint64
	Slot        uint64
	TierIndex   int
}

// FulfillOrder runs the Start -> MakerMatch -> JitFill -> Backstop -> Settle
// state machine for one taker order. A zero-fill outcome (no maker, auction
// incomplete, JIT ineligible) is success, not an error; any constraint
// failure aborts with no state mutated.
func (e *Engine) FulfillOrder(ctx context.Context, p FulfillParams) (model.FillResult, error) {
	var result model.FillResult
	if err := ctx.Err(); err != nil {
		return model.FillResult{}, err
	}
	if err := e.validate(p); err != nil {
		return model.FillResult{}, err
	}

	route := p.Route
	if route == nil {
		route = venue.Internal{}
	}

	// Clone everything that a fill mutates. Commit happens once, at the end.
	a := p.Market.AMM.Clone()
	taker := p.Taker.Clone()
	takerOrder := *p.TakerOrder

	var maker *model.User
	var makerOrder model.Order
	if p.Maker != nil {
		maker = p.Maker.Clone()
		makerOrder = *p.MakerOrder
	}

	fillerStats := resolveFiller(p, taker, maker)

	tier := e.feeStructure.Tier(p.TierIndex)
	takerPrice := auction.Price(&takerOrder, p.Slot)
	auctionDone := auction.IsComplete(takerOrder.AuctionStartSlot, takerOrder.AuctionDuration, p.Slot)

	var exchangeFee, mmFee decimal.Decimal

	// --- MakerMatch ---
	var matched decimal.Decimal
	if maker != nil && crosses(takerOrder.Side, takerPrice, makerOrder.Price) {
		matched = takerOrder.Remaining
		if makerOrder.Remaining.LessThan(matched) {
			matched = makerOrder.Remaining
		}
		matched = model.QuantizeStep(matched, a.StepSize)

		if matched.IsPositive() {
			// Filled at the maker's posted price, never the AMM price.
			quote := model.FloorQuote(matched.Mul(makerOrder.Price))
			fee := fees.TakerFee(quote, tier)
			rebate := fees.MakerRebate(quote, tier)

			tp := taker.Position(takerOrder.MarketIndex)
			if err := tp.ApplyFill(takerOrder.Side, matched, quote, fee); err != nil {
				return model.FillResult{}, err
			}
			mp := maker.Position(makerOrder.MarketIndex)
			if err := mp.ApplyFill(makerOrder.Side, matched, quote, rebate.Neg()); err != nil {
				return model.FillResult{}, err
			}

			if err := consumeOrder(&takerOrder, tp, matched); err != nil {
				return model.FillResult{}, err
			}
			if err := consumeOrder(&makerOrder, mp, matched); err != nil {
				return model.FillResult{}, err
			}

			taker.Stats.TakerVolume30D = taker.Stats.TakerVolume30D.Add(quote)
			taker.Stats.FeesPaid = taker.Stats.FeesPaid.Add(fee)
			maker.Stats.MakerVolume30D = maker.Stats.MakerVolume30D.Add(quote)
			maker.Stats.FeesRebated = maker.Stats.FeesRebated.Add(rebate)

			exchangeFee = exchangeFee.Add(fee).Sub(rebate)
			result.Fills = append(result.Fills, model.SubFill{
				Route:       model.RouteMaker,
				BaseAmount:  matched,
				QuoteAmount: quote,
				Price:       makerOrder.Price,
				TakerFee:    fee,
				MakerRebate: rebate,
			})
			result.BaseFilled = result.BaseFilled.Add(matched)
			result.QuoteFilled = result.QuoteFilled.Add(quote)
			result.TakerFee = result.TakerFee.Add(fee)
			result.MakerRebate = result.MakerRebate.Add(rebate)
		}
	}

	// --- JitFill: the curve co-fills mid-auction when it reduces its own
	// imbalance; surplus is booked against the oracle reference. The taker's
	// current auction price bounds the execution. ---
	leftover := takerOrder.Remaining
	if jitSize := jit.Size(a, takerOrder.Side, leftover, matched); jitSize.IsPositive() {
		sub, fee, surplus, err := e.curveFill(a, taker, &takerOrder, jitSize, takerPrice, p.OraclePrice, tier, model.RouteJIT)
		if err != nil {
			return model.FillResult{}, err
		}
		if sub.BaseAmount.IsPositive() {
			exchangeFee = exchangeFee.Add(fee)
			mmFee = mmFee.Add(surplus)
			result.Fills = append(result.Fills, sub)
			result.BaseFilled = result.BaseFilled.Add(sub.BaseAmount)
			result.QuoteFilled = result.QuoteFilled.Add(sub.QuoteAmount)
			result.TakerFee = result.TakerFee.Add(fee)
			result.Surplus = result.Surplus.Add(surplus)
		}
	}

	// --- Backstop: once the auction is complete the curve absorbs the
	// remainder at its own mark, with no surplus reference. ---
	if auctionDone && takerOrder.Remaining.IsPositive() {
		remainder := model.QuantizeStep(takerOrder.Remaining, a.StepSize)
		if remainder.IsPositive() {
			switch route.Kind() {
			case venue.ExternalVenue:
				committed, err := route.Fulfill(takerOrder.Side, remainder, takerPrice)
				if err != nil {
					return model.FillResult{}, err
				}
				if committed.BaseFilled.IsPositive() {
					sub, err := applyExternalFill(taker, &takerOrder, committed)
					if err != nil {
						return model.FillResult{}, err
					}
					exchangeFee = exchangeFee.Add(committed.Fee)
					result.Fills = append(result.Fills, sub)
					result.BaseFilled = result.BaseFilled.Add(sub.BaseAmount)
					result.QuoteFilled = result.QuoteFilled.Add(sub.QuoteAmount)
					result.TakerFee = result.TakerFee.Add(committed.Fee)
				}
			default:
				sub, fee, _, err := e.curveFill(a, taker, &takerOrder, remainder, takerPrice, decimal.Zero, tier, model.RouteBackstop)
				if err != nil {
					return model.FillResult{}, err
				}
				if sub.BaseAmount.IsPositive() {
					exchangeFee = exchangeFee.Add(fee)
					result.Fills = append(result.Fills, sub)
					result.BaseFilled = result.BaseFilled.Add(sub.BaseAmount)
					result.QuoteFilled = result.QuoteFilled.Add(sub.QuoteAmount)
					result.TakerFee = result.TakerFee.Add(fee)
				}
			}
		}
	}

	// --- Settle ---
	if result.BaseFilled.IsPositive() {
		a.RecordRevenue(exchangeFee, mmFee)
		a.LastUpdateSlot = p.Slot
		if fillerStats != nil {
			fillerStats.FillerVolume30D = fillerStats.FillerVolume30D.Add(result.QuoteFilled)
		}
	}

	// Commit the clones back onto the live records.
	*p.Market.AMM = *a
	*p.Taker = *taker
	*p.TakerOrder = takerOrder
	if p.Maker != nil {
		*p.Maker = *maker
		*p.MakerOrder = makerOrder
	}
	if p.Filler != nil && p.Filler != p.Taker && p.Filler != p.Maker {
		p.Filler.Stats = *fillerStats
	}

	return result, nil
}

// validate enforces the call preconditions: open order on an active market,
// sane maker, and no aliasing between taker and maker records.
func (e *Engine) validate(p FulfillParams) error {
	if p.Market == nil || p.Taker == nil || p.TakerOrder == nil {
		return fmt.Errorf("%w: missing market or taker", model.ErrInvalidOrderState)
	}
	if p.Market.Status != registry.StatusActive {
		return fmt.Errorf("%w: market %s is %s", model.ErrInvalidOrderState, p.Market.Symbol, p.Market.Status)
	}
	if !p.TakerOrder.IsOpen() {
		return fmt.Errorf("%w: taker order not open", model.ErrInvalidOrderState)
	}
	if p.TakerOrder.MarketIndex != p.Market.Index {
		return fmt.Errorf("%w: order market mismatch", model.ErrInvalidOrderState)
	}
	if p.TakerOrder.PostOnly {
		return fmt.Errorf("%w: post-only order cannot take", model.ErrInvalidOrderState)
	}

	if p.Maker != nil {
		if p.MakerOrder == nil {
			return fmt.Errorf("%w: maker without order", model.ErrInvalidOrderState)
		}
		if p.Maker == p.Taker || p.Maker.ID == p.Taker.ID {
			return fmt.Errorf("%w: maker aliases taker", model.ErrInvalidOrderState)
		}
		if !p.MakerOrder.IsOpen() {
			return fmt.Errorf("%w: maker order not open", model.ErrInvalidOrderState)
		}
		if p.MakerOrder.MarketIndex != p.Market.Index {
			return fmt.Errorf("%w: maker order market mismatch", model.ErrInvalidOrderState)
		}
		if p.MakerOrder.Side == p.TakerOrder.Side {
			return fmt.Errorf("%w: maker on same side as taker", model.ErrInvalidOrderState)
		}
		if p.MakerOrder.Type != model.OrderTypeLimit || !p.MakerOrder.Price.IsPositive() {
			return fmt.Errorf("%w: maker order has no posted price", model.ErrInvalidOrderState)
		}
	}

	if p.Filler != nil && p.Filler != p.Taker && p.Filler != p.Maker {
		if p.Filler.ID == p.Taker.ID || (p.Maker != nil && p.Filler.ID == p.Maker.ID) {
			return fmt.Errorf("%w: distinct filler record with aliased identity", model.ErrInvalidOrderState)
		}
	}

	// The curve demands a fresh oracle unless its update intensity is zero
	// (pass-through policy).
	a := p.Market.AMM
	if a.CurveUpdateIntensity > 0 && p.OracleSlot != a.LastUpdateSlot {
		return fmt.Errorf("%w: oracle slot %d vs curve slot %d",
			model.ErrStaleOracleOrCurve, p.OracleSlot, a.LastUpdateSlot)
	}
	return nil
}

// resolveFiller maps the filler param onto the correct cloned stats so an
// aliased filler (same record as taker or maker) is credited exactly once.
func resolveFiller(p FulfillParams, taker, maker *model.User) *model.UserStats {
	switch {
	case p.Filler == nil:
		return nil
	case p.Filler == p.Taker:
		return &taker.Stats
	case p.Filler == p.Maker:
		return &maker.Stats
	default:
		stats := p.Filler.Stats
		return &stats
	}
}

// withinLimit reports whether a curve execution's per-unit price respects
// the taker's current acceptable price. The raw quotient is compared, not
// its quantized form, so rounding never masks a violation.
func withinLimit(takerSide model.Side, quote, base, limitPrice decimal.Decimal) bool {
	perUnit := quote.Div(base)
	if takerSide == model.SideLong {
		return perUnit.LessThanOrEqual(limitPrice)
	}
	return perUnit.GreaterThanOrEqual(limitPrice)
}

// crosses reports whether the maker's posted price is acceptable against
// the taker's current auction price.
func crosses(takerSide model.Side, takerPrice, makerPrice decimal.Decimal) bool {
	if takerSide == model.SideLong {
		return takerPrice.GreaterThanOrEqual(makerPrice)
	}
	return takerPrice.LessThanOrEqual(makerPrice)
}

// consumeOrder decrements an order's remaining quantity and resets the
// order slot once it is fully filled.
func consumeOrder(o *model.Order, pos *model.Position, base decimal.Decimal) error {
	remaining, err := model.SubUnsigned(o.Remaining, base)
	if err != nil {
		return err
	}
	o.Remaining = remaining
	if remaining.IsZero() {
		if pos.OpenOrders > 0 {
			pos.OpenOrders--
		}
		o.Reset()
	}
	return nil
}

// curveFill executes one sub-fill against the AMM clone and applies the
// taker-side ledger updates. The taker's current auction price bounds every
// curve execution: a leg whose per-unit price lands outside it is skipped
// (zero base returned, no state touched), never executed worse. For JIT
// fills the oracle price is the surplus reference; backstop fills pass a
// zero reference and book no surplus.
func (e *Engine) curveFill(
	a *amm.AMM,
	taker *model.User,
	takerOrder *model.Order,
	base decimal.Decimal,
	limitPrice decimal.Decimal,
	referencePrice decimal.Decimal,
	tier model.FeeTier,
	route model.FillRoute,
) (model.SubFill, decimal.Decimal, decimal.Decimal, error) {
	curve := a.Clone()
	quote, err := curve.SwapBase(base, takerOrder.Side)
	if err != nil {
		return model.SubFill{}, decimal.Zero, decimal.Zero, err
	}
	if limitPrice.IsPositive() && !withinLimit(takerOrder.Side, quote, base, limitPrice) {
		return model.SubFill{}, decimal.Zero, decimal.Zero, nil
	}
	*a = *curve

	fee := fees.TakerFee(quote, tier)
	surplus := decimal.Zero
	if route == model.RouteJIT {
		ammSells := takerOrder.Side == model.SideLong
		surplus = fees.Surplus(quote, base, referencePrice, ammSells)
	}

	tp := taker.Position(takerOrder.MarketIndex)
	if err := tp.ApplyFill(takerOrder.Side, base, quote, fee); err != nil {
		return model.SubFill{}, decimal.Zero, decimal.Zero, err
	}
	if err := consumeOrder(takerOrder, tp, base); err != nil {
		return model.SubFill{}, decimal.Zero, decimal.Zero, err
	}

	taker.Stats.TakerVolume30D = taker.Stats.TakerVolume30D.Add(quote)
	taker.Stats.FeesPaid = taker.Stats.FeesPaid.Add(fee)

	sub := model.SubFill{
		Route:       route,
		BaseAmount:  base,
		QuoteAmount: quote,
		Price:       model.FloorPrice(quote.Div(base)),
		TakerFee:    fee,
		Surplus:     surplus,
	}
	return sub, fee, surplus, nil
}

// applyExternalFill books a committed external-venue fill onto the taker.
func applyExternalFill(taker *model.User, takerOrder *model.Order, committed venue.CommittedFill) (model.SubFill, error) {
	tp := taker.Position(takerOrder.MarketIndex)
	if err := tp.ApplyFill(takerOrder.Side, committed.BaseFilled, committed.QuoteFilled, committed.Fee); err != nil {
		return model.SubFill{}, err
	}
	if err := consumeOrder(takerOrder, tp, committed.BaseFilled); err != nil {
		return model.SubFill{}, err
	}
	taker.Stats.TakerVolume30D = taker.Stats.TakerVolume30D.Add(committed.QuoteFilled)
	taker.Stats.FeesPaid = taker.Stats.FeesPaid.Add(committed.Fee)

	return model.SubFill{
		Route:       model.RouteExternal,
		BaseAmount:  committed.BaseFilled,
		QuoteAmount: committed.QuoteFilled,
		Price:       model.FloorPrice(committed.QuoteFilled.Div(committed.BaseFilled)),
		TakerFee:    committed.Fee,
	}, nil
}
