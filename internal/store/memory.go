package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[uint16]*model.MarketSnapshot
	fills   []model.FillRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[uint16]*model.MarketSnapshot),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, snap *model.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[snap.MarketIndex]; ok {
		return fmt.Errorf("market index %d already exists", snap.MarketIndex)
	}
	for _, existing := range s.markets {
		if existing.Symbol == snap.Symbol {
			return fmt.Errorf("market for symbol %s already exists", snap.Symbol)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *snap
	s.markets[snap.MarketIndex] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, index uint16) (*model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.markets[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %d", model.ErrMarketNotFound, index)
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) GetMarketBySymbol(_ context.Context, sym string) (*model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.markets {
		if snap.Symbol == sym {
			cp := *snap
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: symbol %s", model.ErrMarketNotFound, sym)
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.MarketSnapshot, 0, len(s.markets))
	for _, snap := range s.markets {
		markets = append(markets, *snap)
	}
	return markets, nil
}

func (s *MemoryStore) UpdateMarketState(_ context.Context, snap *model.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[snap.MarketIndex]; !ok {
		return fmt.Errorf("%w: index %d", model.ErrMarketNotFound, snap.MarketIndex)
	}
	cp := *snap
	s.markets[snap.MarketIndex] = &cp
	return nil
}

func (s *MemoryStore) InsertFill(_ context.Context, rec *model.FillRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fills = append(s.fills, *rec)
	return nil
}

func (s *MemoryStore) GetFillsByMarket(_ context.Context, index uint16) ([]model.FillRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.FillRecord
	for _, f := range s.fills {
		if f.MarketIndex == index {
			result = append(result, f)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetFillsByUser(_ context.Context, userID string) ([]model.FillRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.FillRecord
	for _, f := range s.fills {
		if f.TakerID == userID || f.MakerID == userID {
			result = append(result, f)
		}
	}
	return result, nil
}

// GetUserExposures aggregates the fill ledger into a net base position per
// market. The taker moves in the record's side; the maker takes the other
// side of the same quantity.
func (s *MemoryStore) GetUserExposures(_ context.Context, userID string) (map[uint16]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exposures := make(map[uint16]decimal.Decimal)
	for _, f := range s.fills {
		signed := f.BaseAmount
		if f.Side == model.SideShort {
			signed = signed.Neg()
		}
		if f.TakerID == userID {
			exposures[f.MarketIndex] = exposures[f.MarketIndex].Add(signed)
		}
		if f.MakerID == userID {
			exposures[f.MarketIndex] = exposures[f.MarketIndex].Sub(signed)
		}
	}
	return exposures, nil
}
