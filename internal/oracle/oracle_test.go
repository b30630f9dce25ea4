package oracle

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFixed_SetAndGet(t *testing.T) {
	f := NewFixed()
	f.Set("SOL-PERP", Price{Price: decimal.NewFromInt(100), Slot: 7})

	p, err := f.PriceAt("SOL-PERP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Price.Equal(decimal.NewFromInt(100)) || p.Slot != 7 {
		t.Errorf("got %+v", p)
	}
}

func TestFixed_Unknown(t *testing.T) {
	f := NewFixed()
	_, err := f.PriceAt("BTC-PERP")
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}
