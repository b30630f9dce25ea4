// Package model defines the core domain types shared across the fulfillment
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order: Long buys base, Short sells base.
type Side int

const (
	SideLong Side = iota
	SideShort
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

func (s Side) String() string {
	if s == SideLong {
		return "long"
	}
	return "short"
}

// OrderType distinguishes market orders (auction-priced) from limit orders.
type OrderType int

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

func (t OrderType) String() string {
	if t == OrderTypeLimit {
		return "limit"
	}
	return "market"
}

// OrderStatus tracks the order lifecycle. The zero value means the order
// slot is unused (a fully filled order is reset back to this state).
type OrderStatus int

const (
	OrderStatusNone OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Order is a taker or maker order against one perp market.
//
// Market orders carry a slot-based price auction: the acceptable price moves
// linearly from AuctionStartPrice to AuctionEndPrice over AuctionDuration
// slots. Limit orders carry a posted Price and may additionally be PostOnly,
// in which case the price is never adjusted during matching.
type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	MarketIndex       uint16          `json:"market_index"`
	Side              Side            `json:"side"`
	Type              OrderType       `json:"type"`
	BaseAmount        decimal.Decimal `json:"base_amount"`
	Remaining         decimal.Decimal `json:"remaining"`
	Price             decimal.Decimal `json:"price"` // limit orders only
	AuctionStartPrice decimal.Decimal `json:"auction_start_price"`
	AuctionEndPrice   decimal.Decimal `json:"auction_end_price"`
	AuctionStartSlot  uint64          `json:"auction_start_slot"`
	AuctionDuration   uint64          `json:"auction_duration"`
	PostOnly          bool            `json:"post_only"`
	Status            OrderStatus     `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsOpen reports whether the order can still be filled.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen && o.Remaining.IsPositive()
}

// Reset returns the order slot to its unused zero state. Called exactly once
// when remaining reaches zero.
func (o *Order) Reset() {
	*o = Order{}
}

// Position is a user's holdings in one perp market.
//
// BaseAmount is signed (+long / -short). QuoteAmount is the realized quote
// ledger including fees; QuoteEntryAmount excludes fees (cost basis at the
// executed prices). OpenBids/OpenAsks reserve base quantity for resting
// orders: OpenBids >= 0 and OpenAsks <= 0 always.
type Position struct {
	MarketIndex      uint16          `json:"market_index"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	QuoteAmount      decimal.Decimal `json:"quote_amount"`
	QuoteEntryAmount decimal.Decimal `json:"quote_entry_amount"`
	OpenOrders       int             `json:"open_orders"`
	OpenBids         decimal.Decimal `json:"open_bids"`
	OpenAsks         decimal.Decimal `json:"open_asks"`
}

// ApplyFill applies one sub-fill to the position: base quantity, the quote
// exchanged for it, and the fee delta (positive = fee paid, negative =
// rebate credited). The matching open-order reservation is released.
func (p *Position) ApplyFill(side Side, base, quote, feeDelta decimal.Decimal) error {
	switch side {
	case SideLong:
		newBids, err := SubUnsigned(p.OpenBids, base)
		if err != nil {
			return err
		}
		p.OpenBids = newBids
		p.BaseAmount = p.BaseAmount.Add(base)
		p.QuoteEntryAmount = p.QuoteEntryAmount.Sub(quote)
		p.QuoteAmount = p.QuoteAmount.Sub(quote).Sub(feeDelta)
	case SideShort:
		newAsks := p.OpenAsks.Add(base)
		if newAsks.IsPositive() {
			return ErrArithmeticOverflow
		}
		p.OpenAsks = newAsks
		p.BaseAmount = p.BaseAmount.Sub(base)
		p.QuoteEntryAmount = p.QuoteEntryAmount.Add(quote)
		p.QuoteAmount = p.QuoteAmount.Add(quote).Sub(feeDelta)
	}
	return nil
}

// ReserveOrder accounts a newly placed order's base quantity against the
// open bid/ask reservations.
func (p *Position) ReserveOrder(side Side, base decimal.Decimal) {
	p.OpenOrders++
	if side == SideLong {
		p.OpenBids = p.OpenBids.Add(base)
	} else {
		p.OpenAsks = p.OpenAsks.Sub(base)
	}
}

// ReleaseOrder undoes the reservation for an order's remaining quantity
// (cancel path).
func (p *Position) ReleaseOrder(side Side, remaining decimal.Decimal) {
	if p.OpenOrders > 0 {
		p.OpenOrders--
	}
	if side == SideLong {
		p.OpenBids = p.OpenBids.Sub(remaining)
	} else {
		p.OpenAsks = p.OpenAsks.Add(remaining)
	}
}

// UserStats holds 30-day rolling notional volume counters and fee totals.
// Counters only grow here; time decay is applied externally.
type UserStats struct {
	TakerVolume30D  decimal.Decimal `json:"taker_volume_30d"`
	MakerVolume30D  decimal.Decimal `json:"maker_volume_30d"`
	FillerVolume30D decimal.Decimal `json:"filler_volume_30d"`
	FeesPaid        decimal.Decimal `json:"fees_paid"`
	FeesRebated     decimal.Decimal `json:"fees_rebated"`
}

// User is an account with per-market positions and rolling stats.
type User struct {
	ID        string               `json:"id"`
	Positions map[uint16]*Position `json:"positions"`
	Stats     UserStats            `json:"stats"`
}

// NewUser creates an empty account.
func NewUser(id string) *User {
	return &User{
		ID:        id,
		Positions: make(map[uint16]*Position),
	}
}

// Position returns the position slot for a market, creating it on first use.
func (u *User) Position(marketIndex uint16) *Position {
	p, ok := u.Positions[marketIndex]
	if !ok {
		p = &Position{MarketIndex: marketIndex}
		u.Positions[marketIndex] = p
	}
	return p
}

// Clone deep-copies the user so fulfillment can mutate freely and commit
// only on success.
func (u *User) Clone() *User {
	c := &User{
		ID:        u.ID,
		Positions: make(map[uint16]*Position, len(u.Positions)),
		Stats:     u.Stats,
	}
	for idx, p := range u.Positions {
		cp := *p
		c.Positions[idx] = &cp
	}
	return c
}

// FeeTier is one row of the fee schedule: taker fee and maker rebate as
// exact rationals over the quote exchanged.
type FeeTier struct {
	FeeNumerator      int64 `json:"fee_numerator"`
	FeeDenominator    int64 `json:"fee_denominator"`
	RebateNumerator   int64 `json:"rebate_numerator"`
	RebateDenominator int64 `json:"rebate_denominator"`
}

// FeeStructure is an ordered tier table. Tier selection (volume lookup) is
// external; callers pass a tier index and out-of-range indices fall back to
// tier 0.
type FeeStructure struct {
	Tiers []FeeTier `json:"tiers"`
}

// Tier returns the tier at index i, clamped to tier 0 when out of range.
func (f FeeStructure) Tier(i int) FeeTier {
	if i < 0 || i >= len(f.Tiers) {
		i = 0
	}
	if len(f.Tiers) == 0 {
		return FeeTier{FeeNumerator: 0, FeeDenominator: 1, RebateNumerator: 0, RebateDenominator: 1}
	}
	return f.Tiers[i]
}

// FillRoute identifies which counterparty produced a sub-fill.
type FillRoute int

const (
	RouteMaker FillRoute = iota
	RouteJIT
	RouteBackstop
	RouteExternal
)

func (r FillRoute) String() string {
	switch r {
	case RouteMaker:
		return "maker"
	case RouteJIT:
		return "jit"
	case RouteBackstop:
		return "backstop"
	case RouteExternal:
		return "external"
	default:
		return "unknown"
	}
}

// SubFill is one executed leg of a fulfillment call.
type SubFill struct {
	Route       FillRoute       `json:"route"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	QuoteAmount decimal.Decimal `json:"quote_amount"`
	Price       decimal.Decimal `json:"price"`
	TakerFee    decimal.Decimal `json:"taker_fee"`
	MakerRebate decimal.Decimal `json:"maker_rebate"`
	Surplus     decimal.Decimal `json:"surplus"`
}

// FillResult is the outcome of one fulfillment call. Created fresh per call,
// never persisted as-is (immutable fill records are derived from it).
type FillResult struct {
	BaseFilled  decimal.Decimal `json:"base_filled"`
	QuoteFilled decimal.Decimal `json:"quote_filled"`
	TakerFee    decimal.Decimal `json:"taker_fee"`
	MakerRebate decimal.Decimal `json:"maker_rebate"`
	Surplus     decimal.Decimal `json:"surplus"`
	Fills       []SubFill       `json:"fills"`
}

// FillRecord is an immutable ledger row for one executed sub-fill.
// Once created, these are never modified or deleted.
type FillRecord struct {
	ID          string          `json:"id" db:"id"`
	MarketIndex uint16          `json:"market_index" db:"market_index"`
	TakerID     string          `json:"taker_id" db:"taker_id"`
	MakerID     string          `json:"maker_id,omitempty" db:"maker_id"`
	FillerID    string          `json:"filler_id,omitempty" db:"filler_id"`
	Route       string          `json:"route" db:"route"`
	Side        Side            `json:"side" db:"side"`
	BaseAmount  decimal.Decimal `json:"base_amount" db:"base_amount"`
	QuoteAmount decimal.Decimal `json:"quote_amount" db:"quote_amount"`
	Price       decimal.Decimal `json:"price" db:"price"`
	TakerFee    decimal.Decimal `json:"taker_fee" db:"taker_fee"`
	MakerRebate decimal.Decimal `json:"maker_rebate" db:"maker_rebate"`
	Surplus     decimal.Decimal `json:"surplus" db:"surplus"`
	Slot        uint64          `json:"slot" db:"slot"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// MarketSnapshot is the persisted view of one perp market's AMM state.
type MarketSnapshot struct {
	MarketIndex   uint16          `json:"market_index" db:"market_index"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Status        string          `json:"status" db:"status"`
	SqrtK         decimal.Decimal `json:"sqrt_k" db:"sqrt_k"`
	PegMultiplier decimal.Decimal `json:"peg_multiplier" db:"peg_multiplier"`
	BaseReserve   decimal.Decimal `json:"base_reserve" db:"base_reserve"`
	QuoteReserve  decimal.Decimal `json:"quote_reserve" db:"quote_reserve"`
	NetBaseAmount decimal.Decimal `json:"net_base_amount" db:"net_base_amount"`
	StepSize      decimal.Decimal `json:"step_size" db:"step_size"`
	JITIntensity  int64           `json:"jit_intensity" db:"jit_intensity"`
	LastSlot      uint64          `json:"last_slot" db:"last_slot"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
