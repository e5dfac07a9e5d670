package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/sungminna/upbit-spike-trader/internal/config"
	"github.com/sungminna/upbit-spike-trader/internal/service/analysis"
	"github.com/sungminna/upbit-spike-trader/internal/service/scheduler"
	"github.com/sungminna/upbit-spike-trader/internal/service/trading"
	"github.com/sungminna/upbit-spike-trader/internal/storage"
	"github.com/sungminna/upbit-spike-trader/internal/upbit/exchange"
	"github.com/sungminna/upbit-spike-trader/internal/upbit/quotation"
	"github.com/sungminna/upbit-spike-trader/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "optional config file path")
	flag.Parse()

	// Credentials live in .env during development; missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("could not load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.Upbit.AccessKey == "" || cfg.Upbit.SecretKey == "" {
		log.Fatal("UPBIT_OPEN_API_ACCESS_KEY and UPBIT_OPEN_API_SECRET_KEY must be set")
	}

	store, err := storage.NewTimeSeriesStore(cfg.Scout.DataDir)
	if err != nil {
		log.Fatalf("failed to open time series store: %v", err)
	}
	ledger := storage.NewLedger(filepath.Join(cfg.Scout.DataDir, "ignored_markets.txt"))

	quotationClient := quotation.NewClient(cfg.Upbit.BaseURL, ratelimit.New(cfg.Scout.RequestsPerSec))
	exchangeClient := exchange.NewClient(cfg.Upbit.BaseURL, cfg.Upbit.AccessKey, cfg.Upbit.SecretKey,
		ratelimit.New(8)) // Upbit allows 8 requests/sec on the exchange API

	detector := analysis.NewSpikeDetector(
		cfg.Scout.Window,
		cfg.Scout.SpikeThreshold,
		cfg.Scout.IQRLowerMult,
		cfg.Scout.IQRUpperMult,
	)

	engine := trading.NewEngine(detector, exchangeClient, ledger, store, trading.Config{
		QuoteCurrency:  cfg.Scout.QuoteCurrency,
		ExcludedAssets: cfg.Scout.ExcludedAssets,
		BuyNotional:    cfg.Scout.BuyNotional,
		StopLoss:       cfg.Scout.StopLoss,
		TakeProfit:     cfg.Scout.TakeProfit,
	})

	scout := scheduler.NewScout(quotationClient, store, engine, storage.Merge, scheduler.Config{
		QuoteCurrency:  cfg.Scout.QuoteCurrency,
		CandleCount:    cfg.Scout.CandleCount,
		BackfillMonths: cfg.Scout.BackfillMonths,
		CycleInterval:  cfg.Scout.CycleInterval,
		SellInterval:   cfg.Scout.SellInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scout.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	scout.Start(ctx)
	log.Info("scout started")

	<-ctx.Done()
	log.Info("shutting down...")
	scout.Stop()
	log.Info("scout stopped")
}
