package registry

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/amm"
	"github.com/butonium/protocol-v2/internal/model"
)

func newTestMarket(index uint16, symbol string) *Market {
	return &Market{
		Index:  index,
		Symbol: symbol,
		Status: StatusActive,
		AMM:    amm.New(decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromFloat(0.001)),
	}
}

func TestCheckoutCheckin(t *testing.T) {
	r := New()
	if err := r.Add(newTestMarket(0, "SOL-PERP")); err != nil {
		t.Fatalf("add: %v", err)
	}

	m, err := r.Checkout(0)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if m.Symbol != "SOL-PERP" {
		t.Errorf("symbol = %s", m.Symbol)
	}

	// Double check-out fails, never aliases.
	if _, err := r.Checkout(0); !errors.Is(err, ErrMarketCheckedOut) {
		t.Errorf("expected ErrMarketCheckedOut, got %v", err)
	}

	r.Checkin(0)
	if _, err := r.Checkout(0); err != nil {
		t.Errorf("checkout after checkin: %v", err)
	}
}

func TestCheckout_UnknownIndex(t *testing.T) {
	r := New()
	_, err := r.Checkout(42)
	if !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestAdd_DuplicateIndex(t *testing.T) {
	r := New()
	if err := r.Add(newTestMarket(1, "SOL-PERP")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(newTestMarket(1, "BTC-PERP")); err == nil {
		t.Error("expected error on duplicate index")
	}
}

func TestBySymbol(t *testing.T) {
	r := New()
	r.Add(newTestMarket(3, "ETH-PERP"))

	idx, err := r.BySymbol("ETH-PERP")
	if err != nil || idx != 3 {
		t.Errorf("BySymbol = (%d, %v)", idx, err)
	}
	if _, err := r.BySymbol("DOGE-PERP"); !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}
