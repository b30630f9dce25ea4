// Package oracle defines the price source consumed by the fulfillment
// engine. Price ingestion itself happens outside this service; the engine
// only reads prices and judges freshness by slot.
package oracle

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when no price is known for a key.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Price is one oracle observation.
type Price struct {
	Price      decimal.Decimal `json:"price"`
	Confidence decimal.Decimal `json:"confidence"`
	Slot       uint64          `json:"slot"`
}

// Source provides prices keyed by market symbol.
type Source interface {
	PriceAt(key string) (Price, error)
}

// Fixed is an in-memory Source, set explicitly by the operator or by tests.
type Fixed struct {
	mu     sync.RWMutex
	prices map[string]Price
}

// NewFixed creates an empty fixed price source.
func NewFixed() *Fixed {
	return &Fixed{prices: make(map[string]Price)}
}

// Set records the latest observation for a key.
func (f *Fixed) Set(key string, p Price) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[key] = p
}

// Delete removes the observation for a key.
func (f *Fixed) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, key)
}

// PriceAt returns the latest observation for a key.
func (f *Fixed) PriceAt(key string) (Price, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.prices[key]
	if !ok {
		return Price{}, ErrPriceUnavailable
	}
	return p, nil
}
