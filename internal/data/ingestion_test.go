package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

type fakeFeed struct {
	bars     map[string][]types.Bar
	barsErr  error
	price    float64
	priceErr error
	news     []types.NewsItem
}

func (f *fakeFeed) GetBars(_ context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	if f.barsErr != nil {
		return nil, f.barsErr
	}
	return f.bars[symbol], nil
}

func (f *fakeFeed) GetLatestTrade(_ context.Context, symbol string) (float64, error) {
	return f.price, f.priceErr
}

func (f *fakeFeed) GetNews(_ context.Context, symbols []string, limit int) ([]types.NewsItem, error) {
	return f.news, nil
}

type fakeBarStore struct {
	upserted []types.Bar
	recent   []types.Bar
}

func (f *fakeBarStore) UpsertBars(_ context.Context, bars []types.Bar) (int, error) {
	f.upserted = append(f.upserted, bars...)
	return len(bars), nil
}

func (f *fakeBarStore) RecentBars(_ context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	return f.recent, nil
}

func goodBar(symbol string, close float64) types.Bar {
	return types.Bar{
		Symbol: symbol, Timeframe: "1Min", Timestamp: time.Now().UTC(),
		Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000,
	}
}

func TestIngestBarsWritesValidBars(t *testing.T) {
	feed := &fakeFeed{bars: map[string][]types.Bar{
		"AAPL": {goodBar("AAPL", 190)},
		"MSFT": {goodBar("MSFT", 410)},
	}}
	store := &fakeBarStore{}
	svc := NewService(feed, store, nil, zap.NewNop())

	n, err := svc.IngestBars(context.Background(), []string{"AAPL", "MSFT"}, "1Min", 1)
	if err != nil {
		t.Fatalf("IngestBars failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bars written, got %d", n)
	}
}

func TestIngestBarsRejectsMalformed(t *testing.T) {
	bad := goodBar("AAPL", 190)
	bad.High = bad.Low - 5
	zero := goodBar("AAPL", 0)

	feed := &fakeFeed{bars: map[string][]types.Bar{
		"AAPL": {goodBar("AAPL", 190), bad, zero},
	}}
	store := &fakeBarStore{}
	svc := NewService(feed, store, nil, zap.NewNop())

	n, err := svc.IngestBars(context.Background(), []string{"AAPL"}, "1Min", 3)
	if err != nil {
		t.Fatalf("IngestBars failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 valid bar written, got %d", n)
	}
}

func TestIngestBarsFallsBackForDaily(t *testing.T) {
	feed := &fakeFeed{barsErr: errors.New("feed down")}
	store := &fakeBarStore{}
	fallbackCalled := false
	fallback := func(_ context.Context, symbol string, limit int) ([]types.Bar, error) {
		fallbackCalled = true
		b := goodBar(symbol, 500)
		b.Timeframe = "1Day"
		return []types.Bar{b}, nil
	}
	svc := NewService(feed, store, fallback, zap.NewNop())

	n, err := svc.IngestBars(context.Background(), []string{"SPY"}, "1Day", 1)
	if err != nil {
		t.Fatalf("IngestBars failed: %v", err)
	}
	if !fallbackCalled {
		t.Error("expected fallback to be used")
	}
	if n != 1 {
		t.Errorf("expected 1 bar from fallback, got %d", n)
	}
}

func TestIngestBarsNoFallbackForMinute(t *testing.T) {
	feed := &fakeFeed{barsErr: errors.New("feed down")}
	store := &fakeBarStore{}
	fallback := func(_ context.Context, symbol string, limit int) ([]types.Bar, error) {
		t.Fatal("fallback must not be used for minute bars")
		return nil, nil
	}
	svc := NewService(feed, store, fallback, zap.NewNop())

	n, err := svc.IngestBars(context.Background(), []string{"AAPL"}, "1Min", 1)
	if err != nil {
		t.Fatalf("IngestBars failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 bars, got %d", n)
	}
}

func TestLatestPriceFallsBackToStoredBar(t *testing.T) {
	feed := &fakeFeed{priceErr: errors.New("feed down")}
	store := &fakeBarStore{recent: []types.Bar{goodBar("AAPL", 189.5)}}
	svc := NewService(feed, store, nil, zap.NewNop())

	price, err := svc.LatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("LatestPrice failed: %v", err)
	}
	if price != 189.5 {
		t.Errorf("expected 189.5, got %f", price)
	}
}
