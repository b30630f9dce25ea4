package model

import "errors"

var (
	// ErrInvalidOrderState is returned when an order cannot be filled:
	// not open, zero remaining, wrong market, post-only conflict, or
	// aliased taker/maker records.
	ErrInvalidOrderState = errors.New("model: invalid order state")

	// ErrStaleOracleOrCurve is returned when the oracle slot does not match
	// the market's last curve update and the market requires fresh data.
	ErrStaleOracleOrCurve = errors.New("model: stale oracle or curve")

	// ErrLiquidityExhausted is returned when a fill would breach reserve
	// bounds or the single-fill size caps.
	ErrLiquidityExhausted = errors.New("model: amm liquidity exhausted")

	// ErrArithmeticOverflow is returned when amount math would go negative
	// where an unsigned quantity is required.
	ErrArithmeticOverflow = errors.New("model: arithmetic overflow")

	// ErrUnsupportedFulfillmentRoute is returned when an operation is
	// invoked on a fulfillment route that does not support it.
	ErrUnsupportedFulfillmentRoute = errors.New("model: unsupported fulfillment route")

	// ErrMarketNotFound is returned by the registry for unknown market indices.
	ErrMarketNotFound = errors.New("model: market not found")
)
