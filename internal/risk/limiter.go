// Package risk enforces pre-trade exposure limits: a cap on the absolute
// net position in any single perp market and a cap on a user's aggregate
// absolute exposure across all markets.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerMarketLimitExceeded is returned when a fill would push a single
	// market's position beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("risk: per-market position limit exceeded")

	// ErrTotalLimitExceeded is returned when a fill would push the user's
	// aggregate absolute exposure beyond the account maximum.
	ErrTotalLimitExceeded = errors.New("risk: total exposure limit exceeded")
)

// ExposureLimiter enforces position limits. Zero limits disable the
// corresponding check.
type ExposureLimiter struct {
	// MaxPerMarket is the maximum absolute net base position in any single
	// market.
	MaxPerMarket decimal.Decimal

	// MaxTotal is the maximum sum of absolute base positions across all of
	// a user's markets.
	MaxTotal decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-market and
// aggregate caps.
func NewExposureLimiter(maxPerMarket, maxTotal decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{MaxPerMarket: maxPerMarket, MaxTotal: maxTotal}
}

// CheckLimit validates whether a fill respects position limits.
//
// baseDelta is the signed base change in the target market (positive long,
// negative short); exposures maps market index to the user's current net
// base position.
func (l *ExposureLimiter) CheckLimit(
	marketIndex uint16,
	baseDelta decimal.Decimal,
	exposures map[uint16]decimal.Decimal,
) error {
	newPosition := exposures[marketIndex].Add(baseDelta)

	if l.MaxPerMarket.IsPositive() && newPosition.Abs().GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}

	if l.MaxTotal.IsPositive() {
		total := newPosition.Abs()
		for idx, exposure := range exposures {
			if idx == marketIndex {
				continue // already counted via newPosition above
			}
			total = total.Add(exposure.Abs())
		}
		if total.GreaterThan(l.MaxTotal) {
			return ErrTotalLimitExceeded
		}
	}

	return nil
}
