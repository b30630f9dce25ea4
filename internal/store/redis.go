package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, snap *model.MarketSnapshot) error {
	if err := s.primary.CreateMarket(ctx, snap); err != nil {
		return err
	}
	s.cacheMarket(ctx, snap)
	return nil
}

func (s *CachedStore) UpdateMarketState(ctx context.Context, snap *model.MarketSnapshot) error {
	if err := s.primary.UpdateMarketState(ctx, snap); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(snap.MarketIndex))
	return nil
}

func (s *CachedStore) InsertFill(ctx context.Context, rec *model.FillRecord) error {
	if err := s.primary.InsertFill(ctx, rec); err != nil {
		return err
	}
	// Invalidate exposure caches for both sides of the fill.
	s.rdb.Del(ctx, exposuresKey(rec.TakerID))
	if rec.MakerID != "" {
		s.rdb.Del(ctx, exposuresKey(rec.MakerID))
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, index uint16) (*model.MarketSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(index)).Bytes()
	if err == nil {
		var snap model.MarketSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.GetMarket(ctx, index)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, snap)
	return snap, nil
}

func (s *CachedStore) GetMarketBySymbol(ctx context.Context, sym string) (*model.MarketSnapshot, error) {
	// Try cache via symbol->index mapping.
	indexStr, err := s.rdb.Get(ctx, symbolKey(sym)).Result()
	if err == nil {
		var index uint16
		if _, err := fmt.Sscanf(indexStr, "%d", &index); err == nil {
			return s.GetMarket(ctx, index)
		}
	}

	// Cache miss.
	snap, err := s.primary.GetMarketBySymbol(ctx, sym)
	if err != nil {
		return nil, err
	}

	// Cache both the market and the symbol->index mapping.
	s.cacheMarket(ctx, snap)
	s.rdb.Set(ctx, symbolKey(sym), fmt.Sprintf("%d", snap.MarketIndex), s.ttl)
	return snap, nil
}

func (s *CachedStore) GetUserExposures(ctx context.Context, userID string) (map[uint16]decimal.Decimal, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, exposuresKey(userID)).Bytes()
	if err == nil {
		var exposures map[uint16]decimal.Decimal
		if json.Unmarshal(data, &exposures) == nil {
			return exposures, nil
		}
	}

	// Cache miss.
	exposures, err := s.primary.GetUserExposures(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(exposures); err == nil {
		s.rdb.Set(ctx, exposuresKey(userID), data, s.ttl)
	}
	return exposures, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.MarketSnapshot, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetFillsByMarket(ctx context.Context, index uint16) ([]model.FillRecord, error) {
	return s.primary.GetFillsByMarket(ctx, index)
}

func (s *CachedStore) GetFillsByUser(ctx context.Context, userID string) ([]model.FillRecord, error) {
	return s.primary.GetFillsByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, snap *model.MarketSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, marketKey(snap.MarketIndex), data, s.ttl)
	}
}

func marketKey(index uint16) string  { return fmt.Sprintf("market:%d", index) }
func symbolKey(sym string) string    { return fmt.Sprintf("symbol:%s", sym) }
func exposuresKey(uid string) string { return fmt.Sprintf("exposures:%s", uid) }
