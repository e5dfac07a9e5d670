// Package trading decides and submits buy/sell orders from spike
// evaluations, account holdings, and the debounce ledger.
package trading

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sungminna/upbit-spike-trader/internal/domain/model"
	"github.com/sungminna/upbit-spike-trader/internal/service/analysis"
	"github.com/sungminna/upbit-spike-trader/internal/upbit/exchange"
)

// Gateway submits orders and reads holdings. Order submission is
// fire-and-forget: the confirmation is logged and fills are never
// tracked.
type Gateway interface {
	BuyMarket(ctx context.Context, market string, notional float64) (*exchange.OrderResponse, error)
	SellMarket(ctx context.Context, market string, volume float64) (*exchange.OrderResponse, error)
	GetHoldings(ctx context.Context, quoteCurrency string, excluded []string) ([]model.Holding, error)
}

// Ledger is the persistent debounce set of markets already bought.
type Ledger interface {
	IsIgnored(market string) (bool, error)
	MarkIgnored(market string) error
}

// SeriesReader reads the stored candle history of a market.
type SeriesReader interface {
	Load(market string) (model.TimeSeries, error)
}

// Config holds the trading parameters of the engine.
type Config struct {
	QuoteCurrency  string
	ExcludedAssets []string
	BuyNotional    float64 // fixed spend per buy, in the quote currency
	StopLoss       float64 // sell at or below avg buy price times this
	TakeProfit     float64 // sell at or above avg buy price times this
}

// Engine drives the buy and sell decision paths.
type Engine struct {
	detector *analysis.SpikeDetector
	gateway  Gateway
	ledger   Ledger
	store    SeriesReader
	cfg      Config
}

// NewEngine creates a trading engine.
func NewEngine(detector *analysis.SpikeDetector, gateway Gateway, ledger Ledger, store SeriesReader, cfg Config) *Engine {
	return &Engine{
		detector: detector,
		gateway:  gateway,
		ledger:   ledger,
		store:    store,
		cfg:      cfg,
	}
}

// EvaluateBuy runs the buy path once for a freshly merged series. A buy
// fires when the latest candle is a volume spike, closed above its open,
// and the market has not been bought before. The market is marked in the
// ledger before the order goes out, so a failed submission still counts
// as the one allowed attempt.
func (e *Engine) EvaluateBuy(ctx context.Context, market string, series model.TimeSeries) error {
	eval, ok := e.detector.Evaluate(market, series)
	if !ok {
		log.WithField("market", market).Debug("not enough data for spike evaluation")
		return nil
	}
	if !eval.IsSpike || !eval.Rising() {
		return nil
	}

	ignored, err := e.ledger.IsIgnored(market)
	if err != nil {
		return fmt.Errorf("ledger check for %s: %w", market, err)
	}
	if ignored {
		log.WithField("market", market).Debug("spike on already-bought market, skipping")
		return nil
	}

	log.WithFields(log.Fields{
		"market":       market,
		"latestVolume": eval.LatestVolume,
		"avgVolume":    eval.FilteredAvgVolume,
	}).Info("volume spike detected, placing buy order")

	// Mark before submitting: at most one buy attempt per market, ever.
	if err := e.ledger.MarkIgnored(market); err != nil {
		return fmt.Errorf("ledger mark for %s: %w", market, err)
	}

	resp, err := e.gateway.BuyMarket(ctx, market, e.cfg.BuyNotional)
	if err != nil {
		return fmt.Errorf("buy order for %s: %w", market, err)
	}

	log.WithFields(log.Fields{
		"market": market,
		"uuid":   resp.UUID,
		"state":  resp.State,
	}).Info("buy order submitted")
	return nil
}

// EvaluateSells runs the sell path over all current holdings. Each held
// asset is sold in full when its latest stored close crosses the
// stop-loss or take-profit bound relative to the average buy price.
// Sells are not debounced; a holding that keeps crossing the bound keeps
// being submitted until the exchange drains the balance.
func (e *Engine) EvaluateSells(ctx context.Context) error {
	holdings, err := e.gateway.GetHoldings(ctx, e.cfg.QuoteCurrency, e.cfg.ExcludedAssets)
	if err != nil {
		return fmt.Errorf("holdings: %w", err)
	}

	for _, h := range holdings {
		if h.Balance <= 0 {
			continue
		}
		if h.AvgBuyPrice <= 0 {
			// No cost basis (airdrop or transfer); the bounds are undefined.
			log.WithField("currency", h.Currency).Debug("holding without buy price, skipping")
			continue
		}

		market := h.Market(e.cfg.QuoteCurrency)
		series, err := e.store.Load(market)
		if err != nil {
			log.WithField("market", market).Errorf("failed to load series for sell check: %v", err)
			continue
		}
		latest, ok := series.Latest()
		if !ok {
			log.WithField("market", market).Debug("no stored candles for held market")
			continue
		}

		e.checkSell(ctx, market, h, latest.TradePrice)
	}
	return nil
}

func (e *Engine) checkSell(ctx context.Context, market string, h model.Holding, latestClose float64) {
	stop := h.AvgBuyPrice * e.cfg.StopLoss
	target := h.AvgBuyPrice * e.cfg.TakeProfit

	var reason string
	switch {
	case latestClose <= stop:
		reason = "stop-loss"
	case latestClose >= target:
		reason = "take-profit"
	default:
		return
	}

	log.WithFields(log.Fields{
		"market":      market,
		"reason":      reason,
		"latestClose": latestClose,
		"avgBuyPrice": h.AvgBuyPrice,
	}).Info("sell condition met, placing sell order")

	resp, err := e.gateway.SellMarket(ctx, market, h.Balance)
	if err != nil {
		log.WithField("market", market).Errorf("sell order failed: %v", err)
		return
	}

	log.WithFields(log.Fields{
		"market": market,
		"uuid":   resp.UUID,
		"state":  resp.State,
	}).Info("sell order submitted")
}
