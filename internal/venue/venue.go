// Package venue abstracts where the post-auction remainder of a taker order
// is filled: internally against the AMM curve, or routed to an external
// venue. The engine never knows which implementation is behind the
// interface, only the venue's committed fill result.
package venue

import (
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// Kind selects the fulfillment route.
type Kind int

const (
	// InternalMatch fills against the AMM curve inside this service.
	InternalMatch Kind = iota

	// ExternalVenue routes to an out-of-process venue implementation.
	ExternalVenue
)

func (k Kind) String() string {
	if k == ExternalVenue {
		return "external"
	}
	return "internal"
}

// CommittedFill is what an external venue reports back after executing.
// An empty fill (zero base) is a valid outcome.
type CommittedFill struct {
	BaseFilled  decimal.Decimal
	QuoteFilled decimal.Decimal
	Fee         decimal.Decimal
}

// Route is the capability interface the engine holds. External-only
// operations fail with ErrUnsupportedFulfillmentRoute on the internal
// variant.
type Route interface {
	Kind() Kind

	// BestBidAsk reports the external venue's top of book.
	BestBidAsk() (bid, ask decimal.Decimal, err error)

	// Fulfill executes up to base at the given limit price and reports the
	// committed result.
	Fulfill(side model.Side, base, limitPrice decimal.Decimal) (CommittedFill, error)
}

// Internal is the in-process route: fulfillment happens on the AMM curve,
// so the external operations are unsupported by definition.
type Internal struct{}

func (Internal) Kind() Kind { return InternalMatch }

func (Internal) BestBidAsk() (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, model.ErrUnsupportedFulfillmentRoute
}

func (Internal) Fulfill(model.Side, decimal.Decimal, decimal.Decimal) (CommittedFill, error) {
	return CommittedFill{}, model.ErrUnsupportedFulfillmentRoute
}

// NoopExternal is an external route that commits nothing. It stands in for
// a real venue adapter in tests and in deployments with routing disabled.
type NoopExternal struct{}

func (NoopExternal) Kind() Kind { return ExternalVenue }

func (NoopExternal) BestBidAsk() (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func (NoopExternal) Fulfill(model.Side, decimal.Decimal, decimal.Decimal) (CommittedFill, error) {
	return CommittedFill{}, nil
}
