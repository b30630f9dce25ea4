package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/butonium/protocol-v2/internal/model"
)

// Randomized fulfillment calls against a fresh curve: the revenue identity
// must hold after every call, every sub-fill must be step-quantized, no
// curve leg may execute outside the taker's acceptable price, and a JIT
// leg may only appear when the fill direction shrank the imbalance.
func TestFulfillOrder_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		net := decimal.New(rapid.Int64Range(-2000, 2000).Draw(t, "net"), -3)
		intensity := rapid.Int64Range(0, 100).Draw(t, "intensity")
		size := decimal.New(rapid.Int64Range(1, 1000).Draw(t, "size"), -3)
		side := model.SideLong
		if rapid.Bool().Draw(t, "short") {
			side = model.SideShort
		}

		// Generous auction bounds: the price protection is asserted on every
		// leg but is not binding for these sizes.
		limit := d("110")
		if side == model.SideShort {
			limit = d("90")
		}

		m := testMarket(net.String(), intensity)
		taker := model.NewUser("alice")
		o := marketOrder(taker, side, size.String(), limit.String(), limit.String(), 0, 0)

		res, err := newEngine().FulfillOrder(context.Background(), FulfillParams{
			Market: m, Taker: taker, TakerOrder: o,
			OraclePrice: decimal.NewFromInt(100),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		a := m.AMM
		if !a.TotalFee.Equal(a.TotalExchangeFee.Add(a.TotalMMFee)) {
			t.Fatalf("revenue identity broken: total %s exchange %s mm %s",
				a.TotalFee, a.TotalExchangeFee, a.TotalMMFee)
		}

		var sum decimal.Decimal
		for _, f := range res.Fills {
			if !f.BaseAmount.Mod(a.StepSize).IsZero() {
				t.Fatalf("sub-fill base %s not a step multiple", f.BaseAmount)
			}
			perUnit := f.QuoteAmount.Div(f.BaseAmount)
			if side == model.SideLong && perUnit.GreaterThan(limit) {
				t.Fatalf("%s leg at %s, above the acceptable %s", f.Route, perUnit, limit)
			}
			if side == model.SideShort && perUnit.LessThan(limit) {
				t.Fatalf("%s leg at %s, below the acceptable %s", f.Route, perUnit, limit)
			}
			if f.Route == model.RouteJIT {
				if intensity == 0 {
					t.Fatal("jit leg with zero intensity")
				}
				reducing := (side == model.SideLong && net.IsNegative()) ||
					(side == model.SideShort && net.IsPositive())
				if !reducing {
					t.Fatalf("jit leg worsened imbalance: side %v net %s", side, net)
				}
			}
			sum = sum.Add(f.BaseAmount)
		}
		if !sum.Equal(res.BaseFilled) {
			t.Fatalf("sub-fills sum %s != base filled %s", sum, res.BaseFilled)
		}
		if res.BaseFilled.GreaterThan(size) {
			t.Fatalf("overfill: %s > %s", res.BaseFilled, size)
		}
	})
}
