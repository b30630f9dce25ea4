package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from strings.
func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestQuantizeStep(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		step   string
		want   string
	}{
		{"exact multiple", "0.004", "0.001", "0.004"},
		{"rounds down", "0.0049", "0.001", "0.004"},
		{"below one step", "0.0009", "0.001", "0"},
		{"zero amount", "0", "0.001", "0"},
		{"coarse step", "1.7", "0.5", "1.5"},
		{"zero step passes through", "1.234", "0", "1.234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantizeStep(d(tt.amount), d(tt.step))
			if !got.Equal(d(tt.want)) {
				t.Errorf("QuantizeStep(%s, %s) = %s, want %s", tt.amount, tt.step, got, tt.want)
			}
		})
	}
}

func TestSubUnsigned(t *testing.T) {
	got, err := SubUnsigned(d("1.5"), d("0.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d("1")) {
		t.Errorf("expected 1, got %s", got)
	}

	_, err = SubUnsigned(d("0.5"), d("0.500001"))
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestQuoteRounding(t *testing.T) {
	if got := FloorQuote(d("50.2512562")); !got.Equal(d("50.251256")) {
		t.Errorf("FloorQuote = %s", got)
	}
	if got := CeilQuote(d("50.2512562")); !got.Equal(d("50.251257")) {
		t.Errorf("CeilQuote = %s", got)
	}
	if got := FloorReserve(d("100.5025125628")); !got.Equal(d("100.502512562")) {
		t.Errorf("FloorReserve = %s", got)
	}
}

func TestPositionApplyFill_Long(t *testing.T) {
	p := &Position{MarketIndex: 0}
	p.ReserveOrder(SideLong, d("1"))

	if err := p.ApplyFill(SideLong, d("1"), d("100"), d("0.05")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.BaseAmount.Equal(d("1")) {
		t.Errorf("base = %s, want 1", p.BaseAmount)
	}
	if !p.QuoteEntryAmount.Equal(d("-100")) {
		t.Errorf("quote entry = %s, want -100", p.QuoteEntryAmount)
	}
	if !p.QuoteAmount.Equal(d("-100.05")) {
		t.Errorf("quote = %s, want -100.05", p.QuoteAmount)
	}
	if !p.OpenBids.IsZero() {
		t.Errorf("open bids = %s, want 0", p.OpenBids)
	}
}

func TestPositionApplyFill_ShortWithRebate(t *testing.T) {
	p := &Position{MarketIndex: 0}
	p.ReserveOrder(SideShort, d("0.5"))

	// Negative fee delta = rebate credited.
	if err := p.ApplyFill(SideShort, d("0.5"), d("50"), d("-0.015")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.BaseAmount.Equal(d("-0.5")) {
		t.Errorf("base = %s, want -0.5", p.BaseAmount)
	}
	if !p.QuoteEntryAmount.Equal(d("50")) {
		t.Errorf("quote entry = %s, want 50", p.QuoteEntryAmount)
	}
	if !p.QuoteAmount.Equal(d("50.015")) {
		t.Errorf("quote = %s, want 50.015", p.QuoteAmount)
	}
	if !p.OpenAsks.IsZero() {
		t.Errorf("open asks = %s, want 0", p.OpenAsks)
	}
}

func TestPositionApplyFill_OverfillRejected(t *testing.T) {
	p := &Position{MarketIndex: 0}
	p.ReserveOrder(SideLong, d("0.5"))

	err := p.ApplyFill(SideLong, d("0.6"), d("60"), decimal.Zero)
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("expected ErrArithmeticOverflow, got %v", err)
	}

	p2 := &Position{MarketIndex: 0}
	err = p2.ApplyFill(SideShort, d("0.1"), d("10"), decimal.Zero)
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("expected ErrArithmeticOverflow for unreserved short, got %v", err)
	}
}

func TestUserClone_Isolated(t *testing.T) {
	u := NewUser("alice")
	u.Position(3).BaseAmount = d("2")
	u.Stats.TakerVolume30D = d("100")

	c := u.Clone()
	c.Position(3).BaseAmount = d("9")
	c.Stats.TakerVolume30D = d("999")

	if !u.Position(3).BaseAmount.Equal(d("2")) {
		t.Errorf("clone mutated original position: %s", u.Position(3).BaseAmount)
	}
	if !u.Stats.TakerVolume30D.Equal(d("100")) {
		t.Errorf("clone mutated original stats: %s", u.Stats.TakerVolume30D)
	}
}

func TestOrderReset(t *testing.T) {
	o := &Order{ID: "x", Status: OrderStatusOpen, Remaining: d("1")}
	o.Reset()
	if o.Status != OrderStatusNone || !o.Remaining.IsZero() || o.ID != "" {
		t.Errorf("reset order not zeroed: %+v", o)
	}
}

func TestFeeStructureTierClamp(t *testing.T) {
	fs := FeeStructure{Tiers: []FeeTier{
		{FeeNumerator: 5, FeeDenominator: 10000, RebateNumerator: 3, RebateDenominator: 10000},
		{FeeNumerator: 4, FeeDenominator: 10000, RebateNumerator: 3, RebateDenominator: 10000},
	}}

	if got := fs.Tier(1); got.FeeNumerator != 4 {
		t.Errorf("tier 1 fee numerator = %d", got.FeeNumerator)
	}
	if got := fs.Tier(99); got.FeeNumerator != 5 {
		t.Errorf("out-of-range tier should clamp to 0, got numerator %d", got.FeeNumerator)
	}
	if got := fs.Tier(-1); got.FeeNumerator != 5 {
		t.Errorf("negative tier should clamp to 0, got numerator %d", got.FeeNumerator)
	}
}
