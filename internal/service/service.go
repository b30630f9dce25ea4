// Package service provides the HTTP handlers and business logic for
// creating markets, placing and cancelling orders, running fulfillment,
// and querying positions.
//
// All monetary values use shopspring/decimal — never float64 for money.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/amm"
	"github.com/butonium/protocol-v2/internal/engine"
	"github.com/butonium/protocol-v2/internal/metrics"
	"github.com/butonium/protocol-v2/internal/model"
	"github.com/butonium/protocol-v2/internal/oracle"
	"github.com/butonium/protocol-v2/internal/registry"
	"github.com/butonium/protocol-v2/internal/risk"
	"github.com/butonium/protocol-v2/internal/store"
	"github.com/butonium/protocol-v2/internal/symbol"
	"github.com/butonium/protocol-v2/internal/venue"
)

// Service handles market and order operations. Uses a mutex for serialized
// fulfillment (single-instance). For horizontal scaling, replace with
// distributed locking or database-level optimistic concurrency.
type Service struct {
	store    store.Store
	registry *registry.Registry
	engine   *engine.Engine
	limiter  *risk.ExposureLimiter
	oracle   oracle.Source
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts
	slotFn   func() uint64

	mu     sync.Mutex
	users  map[string]*model.User
	orders map[string]*model.Order
}

// NewService creates a new fulfillment service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(
	st store.Store,
	reg *registry.Registry,
	eng *engine.Engine,
	limiter *risk.ExposureLimiter,
	src oracle.Source,
	hub *WSHub,
	slotFn func() uint64,
) *Service {
	if slotFn == nil {
		// Wall-clock slots: one slot per 400ms, anchored at the unix epoch.
		slotFn = func() uint64 { return uint64(time.Now().UnixMilli() / 400) }
	}
	return &Service{
		store:    st,
		registry: reg,
		engine:   eng,
		limiter:  limiter,
		oracle:   src,
		wsHub:    hub,
		slotFn:   slotFn,
		users:    make(map[string]*model.User),
		orders:   make(map[string]*model.Order),
	}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Symbol        string          `json:"symbol"`         // {BASE}-PERP
	SqrtK         decimal.Decimal `json:"sqrt_k"`         // curve depth; 0 -> default 1000
	PegMultiplier decimal.Decimal `json:"peg_multiplier"` // quote per base at balance
	StepSize      decimal.Decimal `json:"step_size"`      // order granularity; 0 -> default 0.001
	JITIntensity  int64           `json:"jit_intensity"`  // 0..100
}

// PlaceOrderRequest is the JSON body for POST /orders.
type PlaceOrderRequest struct {
	UserID            string          `json:"user_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"` // "long" or "short"
	Type              string          `json:"type"` // "market" or "limit"
	BaseAmount        decimal.Decimal `json:"base_amount"`
	Price             decimal.Decimal `json:"price,omitempty"`
	AuctionStartPrice decimal.Decimal `json:"auction_start_price,omitempty"`
	AuctionEndPrice   decimal.Decimal `json:"auction_end_price,omitempty"`
	AuctionDuration   uint64          `json:"auction_duration,omitempty"`
	PostOnly          bool            `json:"post_only,omitempty"`
}

// FillRequest is the JSON body for POST /fill: the filler names the taker
// order and, optionally, a resting maker order to match it against.
type FillRequest struct {
	TakerOrderID string `json:"taker_order_id"`
	MakerOrderID string `json:"maker_order_id,omitempty"`
	FillerID     string `json:"filler_id,omitempty"`
	Venue        string `json:"venue,omitempty"` // "internal" (default) or "external"
}

// FillResponse is the JSON body returned from POST /fill.
type FillResponse struct {
	TakerOrderID string          `json:"taker_order_id"`
	Symbol       string          `json:"symbol"`
	BaseFilled   decimal.Decimal `json:"base_filled"`
	QuoteFilled  decimal.Decimal `json:"quote_filled"`
	TakerFee     decimal.Decimal `json:"taker_fee"`
	MakerRebate  decimal.Decimal `json:"maker_rebate"`
	Surplus      decimal.Decimal `json:"surplus"`
	Fills        []model.SubFill `json:"fills"`
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sym, err := symbol.Parse(symbol.Normalize(req.Symbol))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.PegMultiplier.IsPositive() {
		writeError(w, "peg_multiplier must be positive", http.StatusBadRequest)
		return
	}
	if req.JITIntensity < 0 || req.JITIntensity > 100 {
		writeError(w, "jit_intensity must be in [0, 100]", http.StatusBadRequest)
		return
	}

	sqrtK := req.SqrtK
	if sqrtK.LessThanOrEqual(decimal.Zero) {
		sqrtK = decimal.NewFromInt(1000) // default depth
	}
	step := req.StepSize
	if step.LessThanOrEqual(decimal.Zero) {
		step = decimal.NewFromFloat(0.001)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.registry.BySymbol(sym.Full); err == nil {
		writeError(w, "market already exists for "+sym.Full, http.StatusConflict)
		return
	}

	a := amm.New(sqrtK, req.PegMultiplier, step)
	a.JITIntensity = req.JITIntensity

	index := uint16(len(s.registry.List()))
	m := &registry.Market{
		Index:  index,
		Symbol: sym.Full,
		Status: registry.StatusActive,
		AMM:    a,
	}
	if err := s.registry.Add(m); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	snap := a.Snapshot(index, sym.Full, m.Status)
	if err := s.store.CreateMarket(r.Context(), snap); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created",
		"index", index,
		"symbol", sym.Full,
		"sqrt_k", sqrtK.String(),
		"peg", req.PegMultiplier.String(),
		"jit_intensity", req.JITIntensity,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(snap)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.MarketSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// GetMarket handles GET /api/v1/markets/{symbol}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	sym := symbol.Normalize(chi.URLParam(r, "symbol"))

	snap, err := s.store.GetMarketBySymbol(r.Context(), sym)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// GetPrice handles GET /api/v1/markets/{symbol}/price
// Returns the curve's spread-adjusted bid/ask and the mark price.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	sym := symbol.Normalize(chi.URLParam(r, "symbol"))

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.registry.BySymbol(sym)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	m, err := s.registry.Checkout(index)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.registry.Checkin(index)

	resp := map[string]decimal.Decimal{
		"bid":  m.AMM.BidPrice(),
		"ask":  m.AMM.AskPrice(),
		"mark": m.AMM.ReservePrice(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetMarketFills handles GET /api/v1/markets/{symbol}/fills
// Returns the immutable fill ledger for one market.
func (s *Service) GetMarketFills(w http.ResponseWriter, r *http.Request) {
	sym := symbol.Normalize(chi.URLParam(r, "symbol"))

	snap, err := s.store.GetMarketBySymbol(r.Context(), sym)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	fills, err := s.store.GetFillsByMarket(r.Context(), snap.MarketIndex)
	if err != nil {
		writeError(w, "failed to get market fills", http.StatusInternalServerError)
		return
	}
	if fills == nil {
		fills = []model.FillRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fills)
}

// PlaceOrder handles POST /api/v1/orders
// Registers the order and reserves its quantity; matching happens in /fill.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.BaseAmount.IsPositive() {
		writeError(w, "base_amount must be positive", http.StatusBadRequest)
		return
	}

	var orderType model.OrderType
	switch req.Type {
	case "market":
		orderType = model.OrderTypeMarket
	case "limit":
		orderType = model.OrderTypeLimit
		if !req.Price.IsPositive() {
			writeError(w, "limit orders require a positive price", http.StatusBadRequest)
			return
		}
	default:
		writeError(w, "type must be market or limit", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.registry.BySymbol(symbol.Normalize(req.Symbol))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	m, err := s.registry.Checkout(index)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.registry.Checkin(index)

	base := model.QuantizeStep(req.BaseAmount, m.AMM.StepSize)
	if !base.IsPositive() {
		writeError(w, "base_amount below step size", http.StatusBadRequest)
		return
	}

	order := &model.Order{
		ID:                uuid.New().String(),
		UserID:            req.UserID,
		MarketIndex:       index,
		Side:              side,
		Type:              orderType,
		BaseAmount:        base,
		Remaining:         base,
		Price:             req.Price,
		AuctionStartPrice: req.AuctionStartPrice,
		AuctionEndPrice:   req.AuctionEndPrice,
		AuctionStartSlot:  s.slotFn(),
		AuctionDuration:   req.AuctionDuration,
		PostOnly:          req.PostOnly,
		Status:            model.OrderStatusOpen,
		CreatedAt:         time.Now().UTC(),
	}

	user := s.getUser(req.UserID)
	user.Position(index).ReserveOrder(side, base)
	s.orders[order.ID] = order

	slog.Info("order placed",
		"order_id", order.ID,
		"user", req.UserID,
		"symbol", m.Symbol,
		"side", side.String(),
		"base", base.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || !order.IsOpen() {
		writeError(w, "order not found or not open", http.StatusNotFound)
		return
	}

	user := s.getUser(order.UserID)
	user.Position(order.MarketIndex).ReleaseOrder(order.Side, order.Remaining)
	order.Status = model.OrderStatusCanceled
	delete(s.orders, orderID)

	slog.Info("order canceled", "order_id", orderID, "user", order.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "canceled"})
}

// Fill handles POST /api/v1/fill
// Runs the fulfillment state machine for one taker order.
func (s *Service) Fill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TakerOrderID == "" {
		writeError(w, "taker_order_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	start := time.Now()

	// Serialize fulfillment.
	s.mu.Lock()
	defer s.mu.Unlock()

	takerOrder, ok := s.orders[req.TakerOrderID]
	if !ok {
		writeError(w, "taker order not found", http.StatusNotFound)
		return
	}
	taker := s.getUser(takerOrder.UserID)

	var maker *model.User
	var makerOrder *model.Order
	if req.MakerOrderID != "" {
		makerOrder, ok = s.orders[req.MakerOrderID]
		if !ok {
			writeError(w, "maker order not found", http.StatusNotFound)
			return
		}
		maker = s.getUser(makerOrder.UserID)
	}

	var filler *model.User
	if req.FillerID != "" {
		filler = s.getUser(req.FillerID)
	}

	m, err := s.registry.Checkout(takerOrder.MarketIndex)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.registry.Checkin(takerOrder.MarketIndex)

	// Pre-trade exposure check on the order's full remaining size.
	if s.limiter != nil {
		delta := takerOrder.Remaining
		if takerOrder.Side == model.SideShort {
			delta = delta.Neg()
		}
		exposures, err := s.store.GetUserExposures(ctx, taker.ID)
		if err != nil {
			writeError(w, "failed to check exposure limits", http.StatusInternalServerError)
			return
		}
		if err := s.limiter.CheckLimit(takerOrder.MarketIndex, delta, exposures); err != nil {
			metrics.ExposureLimitRejections.Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	price, err := s.oracle.PriceAt(m.Symbol)
	if err != nil {
		writeError(w, "oracle price unavailable", http.StatusServiceUnavailable)
		return
	}

	var route venue.Route
	if req.Venue == "external" {
		route = venue.NoopExternal{}
	}

	// A fully filled order is reset to its zero value by the engine, so the
	// side must be captured now for the ledger and the broadcast.
	takerSide := takerOrder.Side

	slot := s.slotFn()
	res, err := s.engine.FulfillOrder(ctx, engine.FulfillParams{
		Market:      m,
		Taker:       taker,
		TakerOrder:  takerOrder,
		Maker:       maker,
		MakerOrder:  makerOrder,
		Filler:      filler,
		Route:       route,
		OraclePrice: price.Price,
		OracleSlot:  price.Slot,
		Slot:        slot,
	})
	if err != nil {
		writeError(w, err.Error(), statusForFillError(err))
		return
	}

	// Persist fill records and the updated curve state.
	for _, sub := range res.Fills {
		rec := fillRecord(m, takerSide, taker, maker, filler, sub, slot)
		if err := s.store.InsertFill(ctx, rec); err != nil {
			slog.Error("failed to record fill", "err", err, "fill_id", rec.ID)
		}
		metrics.FillsTotal.WithLabelValues(sub.Route.String()).Inc()
		metrics.FillLatency.WithLabelValues(sub.Route.String()).Observe(time.Since(start).Seconds())
		metrics.MarketVolume.WithLabelValues(m.Symbol, sub.Route.String()).Add(toFloat(sub.QuoteAmount))
	}
	if res.BaseFilled.IsPositive() {
		if err := s.store.UpdateMarketState(ctx, m.AMM.Snapshot(m.Index, m.Symbol, m.Status)); err != nil {
			slog.Error("failed to persist market state", "err", err, "symbol", m.Symbol)
		}
		if res.Surplus.IsPositive() {
			metrics.SurplusTotal.WithLabelValues(m.Symbol).Add(toFloat(res.Surplus))
		}
		metrics.NetBaseAmount.WithLabelValues(m.Symbol).Set(toFloat(m.AMM.NetBaseAmount))
	}
	if !takerOrder.IsOpen() {
		delete(s.orders, req.TakerOrderID)
	}
	if makerOrder != nil && !makerOrder.IsOpen() {
		delete(s.orders, req.MakerOrderID)
	}

	slog.Info("order fulfilled",
		"taker_order", req.TakerOrderID,
		"symbol", m.Symbol,
		"base_filled", res.BaseFilled.String(),
		"quote_filled", res.QuoteFilled.String(),
		"taker_fee", res.TakerFee.String(),
		"surplus", res.Surplus.String(),
		"legs", len(res.Fills),
	)

	// Broadcast updated prices via WebSocket.
	if s.wsHub != nil && res.BaseFilled.IsPositive() {
		s.wsHub.Broadcast(WSMessage{
			Type:       "fill",
			Symbol:     m.Symbol,
			Side:       takerSide.String(),
			BaseFilled: res.BaseFilled.String(),
			Bid:        m.AMM.BidPrice().String(),
			Ask:        m.AMM.AskPrice().String(),
			Mark:       m.AMM.ReservePrice().String(),
		})
	}

	resp := FillResponse{
		TakerOrderID: req.TakerOrderID,
		Symbol:       m.Symbol,
		BaseFilled:   res.BaseFilled,
		QuoteFilled:  res.QuoteFilled,
		TakerFee:     res.TakerFee,
		MakerRebate:  res.MakerRebate,
		Surplus:      res.Surplus,
		Fills:        res.Fills,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetPositions handles GET /api/v1/positions/{userID}
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	positions := make([]*model.Position, 0, len(user.Positions))
	for _, p := range user.Positions {
		positions = append(positions, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":   userID,
		"positions": positions,
		"stats":     user.Stats,
	})
}

// --- Helpers ---

// getUser returns the live user record, creating it on first use.
// Callers must hold s.mu.
func (s *Service) getUser(id string) *model.User {
	u, ok := s.users[id]
	if !ok {
		u = model.NewUser(id)
		s.users[id] = u
	}
	return u
}

func parseSide(s string) (model.Side, error) {
	switch s {
	case "long":
		return model.SideLong, nil
	case "short":
		return model.SideShort, nil
	default:
		return 0, errors.New("side must be long or short")
	}
}

// fillRecord derives an immutable ledger row from one executed sub-fill.
func fillRecord(
	m *registry.Market,
	takerSide model.Side,
	taker, maker, filler *model.User,
	sub model.SubFill,
	slot uint64,
) *model.FillRecord {
	rec := &model.FillRecord{
		ID:          uuid.New().String(),
		MarketIndex: m.Index,
		TakerID:     taker.ID,
		Route:       sub.Route.String(),
		Side:        takerSide,
		BaseAmount:  sub.BaseAmount,
		QuoteAmount: sub.QuoteAmount,
		Price:       sub.Price,
		TakerFee:    sub.TakerFee,
		MakerRebate: sub.MakerRebate,
		Surplus:     sub.Surplus,
		Slot:        slot,
		CreatedAt:   time.Now().UTC(),
	}
	if sub.Route == model.RouteMaker && maker != nil {
		rec.MakerID = maker.ID
	}
	if filler != nil {
		rec.FillerID = filler.ID
	}
	return rec
}

// statusForFillError maps engine sentinels onto HTTP statuses.
func statusForFillError(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidOrderState):
		return http.StatusConflict
	case errors.Is(err, model.ErrLiquidityExhausted):
		return http.StatusConflict
	case errors.Is(err, model.ErrStaleOracleOrCurve):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrMarketNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
