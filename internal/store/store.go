// Package store defines the persistence interface for the fulfillment
// service. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market snapshot.
	CreateMarket(ctx context.Context, snap *model.MarketSnapshot) error

	// GetMarket retrieves a market by its index.
	GetMarket(ctx context.Context, index uint16) (*model.MarketSnapshot, error)

	// GetMarketBySymbol retrieves a market by its symbol.
	GetMarketBySymbol(ctx context.Context, sym string) (*model.MarketSnapshot, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.MarketSnapshot, error)

	// UpdateMarketState replaces the stored curve state after a fill.
	UpdateMarketState(ctx context.Context, snap *model.MarketSnapshot) error

	// --- Immutable fill ledger ---

	// InsertFill appends an immutable fill record.
	InsertFill(ctx context.Context, rec *model.FillRecord) error

	// GetFillsByMarket returns all fills for a market.
	GetFillsByMarket(ctx context.Context, index uint16) ([]model.FillRecord, error)

	// GetFillsByUser returns all fills where the user took or made.
	GetFillsByUser(ctx context.Context, userID string) ([]model.FillRecord, error)

	// --- Exposure queries ---

	// GetUserExposures computes the user's net base position per market
	// from the fill ledger.
	GetUserExposures(ctx context.Context, userID string) (map[uint16]decimal.Decimal, error)
}
