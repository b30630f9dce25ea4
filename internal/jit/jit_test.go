package jit

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/butonium/protocol-v2/internal/amm"
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

func newTestAMM(net string, intensity int64) *amm.AMM {
	a := amm.New(d("100"), d("100"), d("0.001"))
	a.NetBaseAmount = d(net)
	a.JITIntensity = intensity
	return a
}

func TestEligible_DirectionGating(t *testing.T) {
	tests := []struct {
		name string
		net  string
		side model.Side
		want bool
	}{
		{"long reduces net short", "-0.5", model.SideLong, true},
		{"long worsens net long", "0.5", model.SideLong, false},
		{"short reduces net long", "0.5", model.SideShort, true},
		{"short worsens net short", "-0.5", model.SideShort, false},
		{"balanced book never participates long", "0", model.SideLong, false},
		{"balanced book never participates short", "0", model.SideShort, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAMM(tt.net, 100)
			if got := Eligible(a, tt.side); got != tt.want {
				t.Errorf("Eligible(net=%s, %s) = %v, want %v", tt.net, tt.side, got, tt.want)
			}
		})
	}
}

func TestSize_ZeroIntensity(t *testing.T) {
	a := newTestAMM("-0.5", 0)
	if got := Size(a, model.SideLong, d("1"), decimal.Zero); !got.IsZero() {
		t.Errorf("intensity 0 must never participate, got %s", got)
	}
}

func TestSize_IntensityScaling(t *testing.T) {
	tests := []struct {
		intensity int64
		leftover  string
		want      string
	}{
		{100, "0.5", "0.5"},
		{50, "0.5", "0.25"},
		{40, "0.01", "0.004"},
		{1, "0.1", "0.001"},
	}
	for _, tt := range tests {
		a := newTestAMM("-5", tt.intensity)
		got := Size(a, model.SideLong, d(tt.leftover), decimal.Zero)
		if !got.Equal(d(tt.want)) {
			t.Errorf("Size(intensity=%d, leftover=%s) = %s, want %s",
				tt.intensity, tt.leftover, got, tt.want)
		}
	}
}

func TestSize_AnchoredToMakerMatch(t *testing.T) {
	a := newTestAMM("-5", 100)
	// Maker matched less than the leftover: the AMM rides alongside at the
	// matched quantity, not the full remainder.
	got := Size(a, model.SideLong, d("2"), d("0.5"))
	if !got.Equal(d("0.5")) {
		t.Errorf("size = %s, want 0.5", got)
	}
}

func TestSize_ImbalanceCap(t *testing.T) {
	a := newTestAMM("-0.1", 100)
	// 2 * |net| caps the fill so the post-fill imbalance never exceeds the
	// pre-fill magnitude.
	got := Size(a, model.SideLong, d("1"), decimal.Zero)
	if !got.Equal(d("0.2")) {
		t.Errorf("size = %s, want 0.2", got)
	}
}

func TestSize_ReserveCap(t *testing.T) {
	a := newTestAMM("-50", 100)
	a.MaxFillRatio = 100 // cap at 1 base

	got := Size(a, model.SideLong, d("5"), decimal.Zero)
	if !got.Equal(d("1")) {
		t.Errorf("size = %s, want 1", got)
	}
}

func TestSize_SubStepFloorsToZero(t *testing.T) {
	a := newTestAMM("-5", 10)
	// 10% of 0.005 = 0.0005, below one 0.001 step.
	got := Size(a, model.SideLong, d("0.005"), decimal.Zero)
	if !got.IsZero() {
		t.Errorf("sub-step size should floor to zero, got %s", got)
	}
}

func TestSize_WorseningDirectionAlwaysZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		intensity := rapid.Int64Range(0, 100).Draw(t, "intensity")
		net := rapid.Int64Range(1, 1000).Draw(t, "net")
		leftover := rapid.Int64Range(1, 5000).Draw(t, "leftover")

		// Taker long with net already long: worsens imbalance.
		a := newTestAMM(decimal.New(net, -3).String(), intensity)
		got := Size(a, model.SideLong, decimal.New(leftover, -3), decimal.Zero)
		if !got.IsZero() {
			t.Fatalf("worsening fill got JIT size %s", got)
		}
	})
}

func TestSize_AlwaysStepQuantized(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		intensity := rapid.Int64Range(1, 100).Draw(t, "intensity")
		net := rapid.Int64Range(-1000, -1).Draw(t, "net")
		leftover := rapid.Int64Range(1, 5000).Draw(t, "leftover")
		matched := rapid.Int64Range(0, 5000).Draw(t, "matched")

		a := newTestAMM(decimal.New(net, -3).String(), intensity)
		got := Size(a, model.SideLong, decimal.New(leftover, -3), decimal.New(matched, -3))

		if got.IsNegative() {
			t.Fatalf("negative size %s", got)
		}
		if !got.Mod(a.StepSize).IsZero() {
			t.Fatalf("size %s is not a multiple of step %s", got, a.StepSize)
		}
		if got.GreaterThan(decimal.New(leftover, -3)) {
			t.Fatalf("size %s exceeds leftover", got)
		}
	})
}
