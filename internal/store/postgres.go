package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `market_index, symbol, status,
	sqrt_k::TEXT, peg_multiplier::TEXT,
	base_reserve::TEXT, quote_reserve::TEXT, net_base_amount::TEXT,
	step_size::TEXT, jit_intensity, last_slot, created_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, snap *model.MarketSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (market_index, symbol, status, sqrt_k, peg_multiplier,
		                      base_reserve, quote_reserve, net_base_amount,
		                      step_size, jit_intensity, last_slot, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8::NUMERIC, $9::NUMERIC, $10, $11, $12)`,
		snap.MarketIndex, snap.Symbol, snap.Status,
		snap.SqrtK.String(), snap.PegMultiplier.String(),
		snap.BaseReserve.String(), snap.QuoteReserve.String(), snap.NetBaseAmount.String(),
		snap.StepSize.String(), snap.JITIntensity, snap.LastSlot, snap.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, index uint16) (*model.MarketSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE market_index = $1`, index)
	snap, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market %d: %w", index, err)
	}
	return snap, nil
}

func (s *PostgresStore) GetMarketBySymbol(ctx context.Context, sym string) (*model.MarketSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE symbol = $1`, sym)
	snap, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market by symbol %s: %w", sym, err)
	}
	return snap, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY market_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.MarketSnapshot
	for rows.Next() {
		snap, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *snap)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketState(ctx context.Context, snap *model.MarketSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET status = $2,
		     base_reserve = $3::NUMERIC, quote_reserve = $4::NUMERIC,
		     net_base_amount = $5::NUMERIC, jit_intensity = $6, last_slot = $7
		 WHERE market_index = $1`,
		snap.MarketIndex, snap.Status,
		snap.BaseReserve.String(), snap.QuoteReserve.String(),
		snap.NetBaseAmount.String(), snap.JITIntensity, snap.LastSlot,
	)
	return err
}

func (s *PostgresStore) InsertFill(ctx context.Context, rec *model.FillRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fills (id, market_index, taker_id, maker_id, filler_id, route, side,
		                    base_amount, quote_amount, price, taker_fee, maker_rebate,
		                    surplus, slot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		         $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14, $15)`,
		rec.ID, rec.MarketIndex, rec.TakerID, rec.MakerID, rec.FillerID,
		rec.Route, rec.Side.String(),
		rec.BaseAmount.String(), rec.QuoteAmount.String(), rec.Price.String(),
		rec.TakerFee.String(), rec.MakerRebate.String(), rec.Surplus.String(),
		rec.Slot, rec.CreatedAt,
	)
	return err
}

const fillColumns = `id, market_index, taker_id, maker_id, filler_id, route, side,
	base_amount::TEXT, quote_amount::TEXT, price::TEXT,
	taker_fee::TEXT, maker_rebate::TEXT, surplus::TEXT, slot, created_at`

func (s *PostgresStore) GetFillsByMarket(ctx context.Context, index uint16) ([]model.FillRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillColumns+` FROM fills WHERE market_index = $1 ORDER BY created_at`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFills(rows)
}

func (s *PostgresStore) GetFillsByUser(ctx context.Context, userID string) ([]model.FillRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillColumns+` FROM fills
		 WHERE taker_id = $1 OR maker_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFills(rows)
}

func (s *PostgresStore) GetUserExposures(ctx context.Context, userID string) (map[uint16]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_index,
		        COALESCE(SUM(
		            CASE WHEN side = 'long'  THEN base_amount ELSE -base_amount END
		          * CASE WHEN taker_id = $1 THEN 1 ELSE -1 END
		        ), 0)::TEXT AS net_exposure
		 FROM fills
		 WHERE taker_id = $1 OR maker_id = $1
		 GROUP BY market_index`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exposures := make(map[uint16]decimal.Decimal)
	for rows.Next() {
		var index uint16
		var expStr string
		if err := rows.Scan(&index, &expStr); err != nil {
			return nil, err
		}
		exp, _ := decimal.NewFromString(expStr)
		exposures[index] = exp
	}

	return exposures, rows.Err()
}

// pgxRow covers both QueryRow results and iterated Query rows.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row pgxRow) (*model.MarketSnapshot, error) {
	var snap model.MarketSnapshot
	var sqrtK, peg, baseRes, quoteRes, net, step string

	if err := row.Scan(&snap.MarketIndex, &snap.Symbol, &snap.Status,
		&sqrtK, &peg, &baseRes, &quoteRes, &net,
		&step, &snap.JITIntensity, &snap.LastSlot, &snap.CreatedAt); err != nil {
		return nil, err
	}

	snap.SqrtK, _ = decimal.NewFromString(sqrtK)
	snap.PegMultiplier, _ = decimal.NewFromString(peg)
	snap.BaseReserve, _ = decimal.NewFromString(baseRes)
	snap.QuoteReserve, _ = decimal.NewFromString(quoteRes)
	snap.NetBaseAmount, _ = decimal.NewFromString(net)
	snap.StepSize, _ = decimal.NewFromString(step)

	return &snap, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanFills(rows pgxRows) ([]model.FillRecord, error) {
	var fills []model.FillRecord
	for rows.Next() {
		var f model.FillRecord
		var side, baseS, quoteS, priceS, feeS, rebateS, surplusS string

		if err := rows.Scan(&f.ID, &f.MarketIndex, &f.TakerID, &f.MakerID, &f.FillerID,
			&f.Route, &side, &baseS, &quoteS, &priceS,
			&feeS, &rebateS, &surplusS, &f.Slot, &f.CreatedAt); err != nil {
			return nil, err
		}

		if side == "short" {
			f.Side = model.SideShort
		} else {
			f.Side = model.SideLong
		}
		f.BaseAmount, _ = decimal.NewFromString(baseS)
		f.QuoteAmount, _ = decimal.NewFromString(quoteS)
		f.Price, _ = decimal.NewFromString(priceS)
		f.TakerFee, _ = decimal.NewFromString(feeS)
		f.MakerRebate, _ = decimal.NewFromString(rebateS)
		f.Surplus, _ = decimal.NewFromString(surplusS)

		fills = append(fills, f)
	}
	return fills, rows.Err()
}
