// Package registry owns the live market records and hands out exclusive
// access to one record per index at a time. Fulfillment checks a market
// out, mutates it, and checks it back in; a second check-out of the same
// index fails instead of aliasing the record.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/butonium/protocol-v2/internal/amm"
	"github.com/butonium/protocol-v2/internal/model"
)

// ErrMarketCheckedOut is returned when a market record is already held by
// another caller.
var ErrMarketCheckedOut = errors.New("registry: market already checked out")

// Market statuses.
const (
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusDelisted = "delisted"
)

// Market is one perp market record: identity plus its AMM curve state.
type Market struct {
	Index  uint16
	Symbol string
	Status string
	AMM    *amm.AMM
}

// Registry maps market indices to records and enforces the check-out
// discipline.
type Registry struct {
	mu         sync.Mutex
	markets    map[uint16]*Market
	checkedOut map[uint16]bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		markets:    make(map[uint16]*Market),
		checkedOut: make(map[uint16]bool),
	}
}

// Add registers a market record. Re-using an index is an error.
func (r *Registry) Add(m *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.markets[m.Index]; ok {
		return fmt.Errorf("registry: market index %d already registered", m.Index)
	}
	r.markets[m.Index] = m
	return nil
}

// Checkout hands out the exclusive handle for a market index.
func (r *Registry) Checkout(index uint16) (*Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %d", model.ErrMarketNotFound, index)
	}
	if r.checkedOut[index] {
		return nil, fmt.Errorf("%w: index %d", ErrMarketCheckedOut, index)
	}
	r.checkedOut[index] = true
	return m, nil
}

// Checkin returns a previously checked-out handle.
func (r *Registry) Checkin(index uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkedOut, index)
}

// BySymbol finds a market index by its symbol, without checking it out.
func (r *Registry) BySymbol(symbol string) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for idx, m := range r.markets {
		if m.Symbol == symbol {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("%w: symbol %s", model.ErrMarketNotFound, symbol)
}

// List returns all registered markets. The records are live; callers must
// not mutate them without a check-out.
func (r *Registry) List() []*Market {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}
