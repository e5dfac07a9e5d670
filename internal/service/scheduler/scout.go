// Package scheduler runs the recurring ingestion and sell-check loops.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
	"github.com/sungminna/upbit-spike-trader/internal/upbit/quotation"
)

// CandleSource provides market listing, incremental candle fetch, and
// historical backfill.
type CandleSource interface {
	GetMarkets(ctx context.Context) ([]quotation.Market, error)
	GetCandles(ctx context.Context, market string, count int, to time.Time) (model.TimeSeries, error)
	Backfill(ctx context.Context, market string, until time.Time, sink func(model.TimeSeries) error) error
}

// SeriesStore persists per-market candle series.
type SeriesStore interface {
	Exists(market string) bool
	Load(market string) (model.TimeSeries, error)
	Save(market string, series model.TimeSeries) error
	Append(market string, batch model.TimeSeries) error
}

// Trader runs the buy and sell decision paths.
type Trader interface {
	EvaluateBuy(ctx context.Context, market string, series model.TimeSeries) error
	EvaluateSells(ctx context.Context) error
}

// Merger combines an incoming candle batch into an existing series.
type Merger func(existing, incoming model.TimeSeries) model.TimeSeries

// Config holds the scheduling parameters of the scout.
type Config struct {
	QuoteCurrency  string
	CandleCount    int           // candles fetched per incremental update
	BackfillMonths int           // how far the initial backfill reaches
	CycleInterval  time.Duration // ingestion loop period
	SellInterval   time.Duration // holdings check period
}

// Scout owns the per-market ingestion pipeline: fetch, merge, persist,
// evaluate. One market is processed at a time and a cycle never aborts
// because one market failed.
type Scout struct {
	source  CandleSource
	store   SeriesStore
	trader  Trader
	merge   Merger
	cfg     Config
	markets []string

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      sync.WaitGroup
}

// NewScout creates a scout.
func NewScout(source CandleSource, store SeriesStore, trader Trader, merge Merger, cfg Config) *Scout {
	return &Scout{
		source:   source,
		store:    store,
		trader:   trader,
		merge:    merge,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Bootstrap loads the tradable market list and backfills history for any
// market without a stored series. A missing market list is the only
// fatal condition; a failed backfill keeps its partial pages and is
// retried implicitly by future incremental merges.
func (s *Scout) Bootstrap(ctx context.Context) error {
	markets, err := s.source.GetMarkets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load market list: %w", err)
	}

	prefix := s.cfg.QuoteCurrency + "-"
	for _, m := range markets {
		if strings.HasPrefix(m.Market, prefix) {
			s.markets = append(s.markets, m.Market)
		}
	}
	if len(s.markets) == 0 {
		return fmt.Errorf("no markets found for quote currency %s", s.cfg.QuoteCurrency)
	}
	log.Infof("tracking %d %s markets", len(s.markets), s.cfg.QuoteCurrency)

	until := time.Now().AddDate(0, -s.cfg.BackfillMonths, 0)
	for _, market := range s.markets {
		if s.store.Exists(market) {
			continue
		}
		log.WithField("market", market).Info("backfilling candle history")
		err := s.source.Backfill(ctx, market, until, func(page model.TimeSeries) error {
			return s.store.Append(market, page)
		})
		if err != nil {
			log.WithField("market", market).Errorf("backfill stopped early: %v", err)
		}
	}
	return nil
}

// Start launches the ingestion and sell loops. It is a no-op when the
// scout is already running.
func (s *Scout) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.done.Add(2)
	go s.runIngestion(ctx)
	go s.runSellChecks(ctx)
}

// Stop signals both loops to finish and waits for them.
func (s *Scout) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	s.mu.Unlock()

	s.done.Wait()
}

func (s *Scout) runIngestion(ctx context.Context) {
	defer s.done.Done()

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

func (s *Scout) runSellChecks(ctx context.Context) {
	defer s.done.Done()

	ticker := time.NewTicker(s.cfg.SellInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.trader.EvaluateSells(ctx); err != nil {
				log.Errorf("sell check failed: %v", err)
			}
		}
	}
}

// RunCycle performs one ingestion pass over all tracked markets.
func (s *Scout) RunCycle(ctx context.Context) {
	start := time.Now()
	log.Debug("starting ingestion cycle")

	for _, market := range s.markets {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		if err := s.updateMarket(ctx, market); err != nil {
			log.WithField("market", market).Errorf("skipping market this cycle: %v", err)
		}
	}

	log.Debugf("ingestion cycle finished in %s", time.Since(start))
}

// updateMarket fetches the newest candles for one market, merges them
// into the stored series, and runs the buy path on the result.
func (s *Scout) updateMarket(ctx context.Context, market string) error {
	incoming, err := s.source.GetCandles(ctx, market, s.cfg.CandleCount, time.Time{})
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(incoming) == 0 {
		log.WithField("market", market).Debug("no new candles")
		return nil
	}

	existing, err := s.store.Load(market)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	merged := s.merge(existing, incoming)
	if err := s.store.Save(market, merged); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if err := s.trader.EvaluateBuy(ctx, market, merged); err != nil {
		return fmt.Errorf("buy evaluation: %w", err)
	}
	return nil
}
