package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewExposureLimiter(d(10), d(50))

	if err := limiter.CheckLimit(0, d(1), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(10), d(50))

	// Existing position of 9.5 + new 1 = 10.5 > 10.
	existing := map[uint16]decimal.Decimal{
		0: d(9.5),
	}

	if err := limiter.CheckLimit(0, d(1), existing); err != ErrPerMarketLimitExceeded {
		t.Errorf("expected ErrPerMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ShortCountsByMagnitude(t *testing.T) {
	limiter := NewExposureLimiter(d(10), d(50))

	existing := map[uint16]decimal.Decimal{
		0: d(-9.5),
	}

	if err := limiter.CheckLimit(0, d(-1), existing); err != ErrPerMarketLimitExceeded {
		t.Errorf("expected ErrPerMarketLimitExceeded for short side, got %v", err)
	}
}

func TestCheckLimit_TotalExceeded(t *testing.T) {
	limiter := NewExposureLimiter(d(10), d(20))

	existing := map[uint16]decimal.Decimal{
		0: d(8),
		1: d(-8),
		2: d(3),
	}

	// New fill of 2 in market 3: total = 2 + 8 + 8 + 3 = 21 > 20.
	if err := limiter.CheckLimit(3, d(2), existing); err != ErrTotalLimitExceeded {
		t.Errorf("expected ErrTotalLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ReducingFillPasses(t *testing.T) {
	limiter := NewExposureLimiter(d(10), d(50))

	existing := map[uint16]decimal.Decimal{
		0: d(8),
	}

	// Selling against a long reduces exposure: 8 - 2 = 6 < 10.
	if err := limiter.CheckLimit(0, d(-2), existing); err != nil {
		t.Errorf("reducing fill should pass, got %v", err)
	}
}

func TestCheckLimit_ZeroLimitsDisabled(t *testing.T) {
	limiter := NewExposureLimiter(decimal.Zero, decimal.Zero)

	existing := map[uint16]decimal.Decimal{
		0: d(1e6),
	}

	if err := limiter.CheckLimit(0, d(1e6), existing); err != nil {
		t.Errorf("zero limits should disable checks, got %v", err)
	}
}

func TestCheckLimit_NilExposures(t *testing.T) {
	limiter := NewExposureLimiter(d(10), d(50))

	if err := limiter.CheckLimit(0, d(5), nil); err != nil {
		t.Errorf("nil exposures should be treated as empty, got %v", err)
	}
}
