package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/butonium/protocol-v2/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testSnapshot(index uint16, sym string) *model.MarketSnapshot {
	return &model.MarketSnapshot{
		MarketIndex:   index,
		Symbol:        sym,
		Status:        "active",
		SqrtK:         d("100"),
		PegMultiplier: d("100"),
		BaseReserve:   d("100"),
		QuoteReserve:  d("100"),
		NetBaseAmount: decimal.Zero,
		StepSize:      d("0.001"),
		JITIntensity:  100,
		CreatedAt:     time.Now().UTC(),
	}
}

func testFill(id string, index uint16, taker, maker string, side model.Side, base string) *model.FillRecord {
	return &model.FillRecord{
		ID:          id,
		MarketIndex: index,
		TakerID:     taker,
		MakerID:     maker,
		Route:       "maker",
		Side:        side,
		BaseAmount:  d(base),
		QuoteAmount: d(base).Mul(d("100")),
		Price:       d("100"),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemoryStore_MarketLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateMarket(ctx, testSnapshot(0, "SOL-PERP")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateMarket(ctx, testSnapshot(0, "BTC-PERP")); err == nil {
		t.Error("expected error on duplicate index")
	}
	if err := s.CreateMarket(ctx, testSnapshot(1, "SOL-PERP")); err == nil {
		t.Error("expected error on duplicate symbol")
	}

	snap, err := s.GetMarket(ctx, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Symbol != "SOL-PERP" {
		t.Errorf("symbol = %s", snap.Symbol)
	}

	bySym, err := s.GetMarketBySymbol(ctx, "SOL-PERP")
	if err != nil || bySym.MarketIndex != 0 {
		t.Errorf("GetMarketBySymbol = (%+v, %v)", bySym, err)
	}

	if _, err := s.GetMarket(ctx, 9); !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateMarketState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap := testSnapshot(0, "SOL-PERP")
	if err := s.CreateMarket(ctx, snap); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap.BaseReserve = d("99.5")
	snap.NetBaseAmount = d("0.5")
	snap.LastSlot = 42
	if err := s.UpdateMarketState(ctx, snap); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetMarket(ctx, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.BaseReserve.Equal(d("99.5")) || got.LastSlot != 42 {
		t.Errorf("update not applied: %+v", got)
	}

	missing := testSnapshot(7, "ETH-PERP")
	if err := s.UpdateMarketState(ctx, missing); !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateMarket(ctx, testSnapshot(0, "SOL-PERP")); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, _ := s.GetMarket(ctx, 0)
	snap.BaseReserve = d("1")

	again, _ := s.GetMarket(ctx, 0)
	if !again.BaseReserve.Equal(d("100")) {
		t.Errorf("store leaked a mutable reference: base = %s", again.BaseReserve)
	}
}

func TestMemoryStore_FillQueries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	fills := []*model.FillRecord{
		testFill("f1", 0, "alice", "bob", model.SideLong, "0.5"),
		testFill("f2", 0, "alice", "", model.SideLong, "0.25"),
		testFill("f3", 1, "bob", "", model.SideShort, "1"),
	}
	for _, f := range fills {
		if err := s.InsertFill(ctx, f); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	byMarket, err := s.GetFillsByMarket(ctx, 0)
	if err != nil || len(byMarket) != 2 {
		t.Errorf("GetFillsByMarket = (%d fills, %v), want 2", len(byMarket), err)
	}

	// bob appears as maker on f1 and taker on f3.
	byUser, err := s.GetFillsByUser(ctx, "bob")
	if err != nil || len(byUser) != 2 {
		t.Errorf("GetFillsByUser = (%d fills, %v), want 2", len(byUser), err)
	}
}

func TestMemoryStore_UserExposures(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// alice takes long 0.5 (bob makes the short side), then takes another
	// long 0.25 against the curve; bob also takes short 1 on market 1.
	s.InsertFill(ctx, testFill("f1", 0, "alice", "bob", model.SideLong, "0.5"))
	s.InsertFill(ctx, testFill("f2", 0, "alice", "", model.SideLong, "0.25"))
	s.InsertFill(ctx, testFill("f3", 1, "bob", "", model.SideShort, "1"))

	alice, err := s.GetUserExposures(ctx, "alice")
	if err != nil {
		t.Fatalf("exposures: %v", err)
	}
	if !alice[0].Equal(d("0.75")) {
		t.Errorf("alice market 0 = %s, want 0.75", alice[0])
	}

	bob, err := s.GetUserExposures(ctx, "bob")
	if err != nil {
		t.Fatalf("exposures: %v", err)
	}
	if !bob[0].Equal(d("-0.5")) {
		t.Errorf("bob market 0 = %s, want -0.5 (maker side)", bob[0])
	}
	if !bob[1].Equal(d("-1")) {
		t.Errorf("bob market 1 = %s, want -1", bob[1])
	}
}
