package auction

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// d is a test helper for creating decimals from strings.
func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func longOrder(start, end string, startSlot, duration uint64) *model.Order {
	return &model.Order{
		Side:              model.SideLong,
		Type:              model.OrderTypeMarket,
		AuctionStartPrice: d(start),
		AuctionEndPrice:   d(end),
		AuctionStartSlot:  startSlot,
		AuctionDuration:   duration,
	}
}

func TestPrice_LongInterpolation(t *testing.T) {
	o := longOrder("100", "110", 10, 10)

	tests := []struct {
		slot uint64
		want string
	}{
		{10, "100"},  // at start
		{15, "105"},  // halfway
		{17, "107"},  // 7/10 elapsed
		{20, "110"},  // complete
		{25, "110"},  // past end
		{5, "100"},   // before start
	}
	for _, tt := range tests {
		got := Price(o, tt.slot)
		if !got.Equal(d(tt.want)) {
			t.Errorf("slot %d: price = %s, want %s", tt.slot, got, tt.want)
		}
	}
}

func TestPrice_ShortInterpolation(t *testing.T) {
	o := &model.Order{
		Side:              model.SideShort,
		Type:              model.OrderTypeMarket,
		AuctionStartPrice: d("110"),
		AuctionEndPrice:   d("100"),
		AuctionStartSlot:  0,
		AuctionDuration:   10,
	}

	p0 := Price(o, 0)
	p5 := Price(o, 5)
	p10 := Price(o, 10)

	if !p0.Equal(d("110")) || !p5.Equal(d("105")) || !p10.Equal(d("100")) {
		t.Errorf("short auction prices = %s, %s, %s", p0, p5, p10)
	}
	// Short prices fall and never drop below end.
	if Price(o, 100).LessThan(d("100")) {
		t.Errorf("price dropped below auction end")
	}
}

func TestPrice_ZeroDuration(t *testing.T) {
	o := longOrder("99", "101", 0, 0)
	if got := Price(o, 0); !got.Equal(d("101")) {
		t.Errorf("zero-duration auction should price at end, got %s", got)
	}
}

func TestPrice_LimitOrderUsesPostedPrice(t *testing.T) {
	o := &model.Order{
		Side:  model.SideShort,
		Type:  model.OrderTypeLimit,
		Price: d("100.5"),
	}
	if got := Price(o, 42); !got.Equal(d("100.5")) {
		t.Errorf("limit order price = %s, want 100.5", got)
	}
}

func TestPrice_FractionalSlotRounding(t *testing.T) {
	o := longOrder("100", "101", 0, 3)
	// 1/3 elapsed: 100.333333... floors to price scale.
	if got := Price(o, 1); !got.Equal(d("100.333333")) {
		t.Errorf("price = %s, want 100.333333", got)
	}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name      string
		startSlot uint64
		duration  uint64
		slot      uint64
		want      bool
	}{
		{"zero duration", 10, 0, 10, true},
		{"mid auction", 10, 5, 12, false},
		{"exact boundary", 10, 5, 15, true},
		{"past end", 10, 5, 100, true},
		{"before start", 10, 5, 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComplete(tt.startSlot, tt.duration, tt.slot); got != tt.want {
				t.Errorf("IsComplete(%d, %d, %d) = %v, want %v",
					tt.startSlot, tt.duration, tt.slot, got, tt.want)
			}
		})
	}
}
