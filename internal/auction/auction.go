// Package auction computes the slot-based price auction for taker orders.
//
// A market order's acceptable price moves linearly from its auction start
// price to its end price over the auction duration. Long orders concede
// upward (start <= end), Short orders concede downward (start >= end).
package auction

import (
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// Price returns the order's current acceptable limit price at the given
// slot, interpolated over elapsed slots and clamped to [start, end]
// direction-aware. A zero-duration auction is priced at its end price.
// Limit orders without an auction use their posted price.
func Price(o *model.Order, slot uint64) decimal.Decimal {
	if o.AuctionDuration == 0 {
		if o.Type == model.OrderTypeLimit && !o.Price.IsZero() {
			return o.Price
		}
		return o.AuctionEndPrice
	}
	if slot <= o.AuctionStartSlot {
		return o.AuctionStartPrice
	}

	elapsed := slot - o.AuctionStartSlot
	if elapsed >= o.AuctionDuration {
		return o.AuctionEndPrice
	}

	delta := o.AuctionEndPrice.Sub(o.AuctionStartPrice)
	frac := decimal.NewFromUint64(elapsed).Div(decimal.NewFromUint64(o.AuctionDuration))
	price := o.AuctionStartPrice.Add(delta.Mul(frac))

	// Clamp: a Long's price never exceeds end, a Short's never drops below.
	if o.Side == model.SideLong {
		if price.GreaterThan(o.AuctionEndPrice) {
			price = o.AuctionEndPrice
		}
		if price.LessThan(o.AuctionStartPrice) {
			price = o.AuctionStartPrice
		}
	} else {
		if price.LessThan(o.AuctionEndPrice) {
			price = o.AuctionEndPrice
		}
		if price.GreaterThan(o.AuctionStartPrice) {
			price = o.AuctionStartPrice
		}
	}
	return model.FloorPrice(price)
}

// IsComplete reports whether the auction window has elapsed. A zero
// duration is immediately complete.
func IsComplete(startSlot, duration, slot uint64) bool {
	if duration == 0 {
		return true
	}
	return slot >= startSlot+duration
}
