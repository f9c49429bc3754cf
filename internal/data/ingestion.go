// Package data ingests market bars and news into the store.
package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// MarketFeed is the market-data surface of the broker client.
type MarketFeed interface {
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error)
	GetLatestTrade(ctx context.Context, symbol string) (float64, error)
	GetNews(ctx context.Context, symbols []string, limit int) ([]types.NewsItem, error)
}

// BarStore is the persistence surface ingestion writes through.
type BarStore interface {
	UpsertBars(ctx context.Context, bars []types.Bar) (int, error)
	RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error)
}

// FallbackFeed fetches daily bars from a secondary free source when the
// primary feed is down.
type FallbackFeed func(ctx context.Context, symbol string, limit int) ([]types.Bar, error)

// Service fetches bars from the primary feed, validates them, and upserts
// them into the store.
type Service struct {
	feed     MarketFeed
	store    BarStore
	fallback FallbackFeed
	logger   *zap.Logger
}

// NewService builds an ingestion service. fallback may be nil to disable the
// secondary daily-bar source.
func NewService(feed MarketFeed, store BarStore, fallback FallbackFeed, logger *zap.Logger) *Service {
	return &Service{feed: feed, store: store, fallback: fallback, logger: logger.Named("ingestion")}
}

// IngestBars fetches and upserts bars for every symbol. Per-symbol failures
// are logged and skipped; the returned count is bars actually written.
func (s *Service) IngestBars(ctx context.Context, symbols []string, timeframe string, limit int) (int, error) {
	total := 0
	for _, symbol := range symbols {
		bars, err := s.fetch(ctx, symbol, timeframe, limit)
		if err != nil {
			s.logger.Warn("bar fetch failed",
				zap.String("symbol", symbol),
				zap.String("timeframe", timeframe),
				zap.Error(err))
			continue
		}

		bars, rejected := FilterBars(bars)
		if rejected > 0 {
			s.logger.Warn("rejected malformed bars",
				zap.String("symbol", symbol),
				zap.Int("rejected", rejected))
		}
		if len(bars) == 0 {
			continue
		}

		n, err := s.store.UpsertBars(ctx, bars)
		total += n
		if err != nil {
			return total, fmt.Errorf("data: persist bars for %s: %w", symbol, err)
		}
	}
	return total, nil
}

func (s *Service) fetch(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	bars, err := s.feed.GetBars(ctx, symbol, timeframe, limit)
	if err == nil {
		return bars, nil
	}
	// Daily history is recoverable from the secondary source.
	if timeframe == "1Day" && s.fallback != nil {
		s.logger.Info("primary feed failed, trying fallback",
			zap.String("symbol", symbol), zap.Error(err))
		fbBars, fbErr := s.fallback(ctx, symbol, limit)
		if fbErr == nil {
			return fbBars, nil
		}
		return nil, fmt.Errorf("primary: %w (fallback: %v)", err, fbErr)
	}
	return nil, err
}

// LatestPrice returns the most recent trade price, falling back to the last
// stored minute-bar close when the feed is unavailable.
func (s *Service) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := s.feed.GetLatestTrade(ctx, symbol)
	if err == nil && price > 0 {
		return price, nil
	}

	bars, storeErr := s.store.RecentBars(ctx, symbol, "1Min", 1)
	if storeErr == nil && len(bars) > 0 {
		return bars[len(bars)-1].Close, nil
	}
	if err == nil {
		err = fmt.Errorf("data: no price available for %s", symbol)
	}
	return 0, err
}

// FetchNews returns recent news for the symbols. Failures degrade to an
// empty slice since news is advisory context.
func (s *Service) FetchNews(ctx context.Context, symbols []string, limit int) []types.NewsItem {
	news, err := s.feed.GetNews(ctx, symbols, limit)
	if err != nil {
		s.logger.Debug("news fetch failed", zap.Error(err))
		return nil
	}
	return news
}
