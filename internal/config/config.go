package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete bot configuration.
type Config struct {
	Upbit   UpbitConfig   `mapstructure:"upbit"`
	Scout   ScoutConfig   `mapstructure:"scout"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// UpbitConfig holds API endpoint and credential configuration. The keys
// are read from the environment only and never from a config file.
type UpbitConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// ScoutConfig holds the ingestion and trading behavior configuration.
type ScoutConfig struct {
	QuoteCurrency  string        `mapstructure:"quote_currency"`
	ExcludedAssets []string      `mapstructure:"excluded_assets"`
	DataDir        string        `mapstructure:"data_dir"`
	Window         int           `mapstructure:"window"`
	SpikeThreshold float64       `mapstructure:"spike_threshold"`
	IQRLowerMult   float64       `mapstructure:"iqr_lower_mult"`
	IQRUpperMult   float64       `mapstructure:"iqr_upper_mult"`
	BuyNotional    float64       `mapstructure:"buy_notional"`
	StopLoss       float64       `mapstructure:"stop_loss"`
	TakeProfit     float64       `mapstructure:"take_profit"`
	CandleCount    int           `mapstructure:"candle_count"`
	BackfillMonths int           `mapstructure:"backfill_months"`
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	SellInterval   time.Duration `mapstructure:"sell_interval"`
	RequestsPerSec int           `mapstructure:"requests_per_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional config file and environment
// variables. API credentials use the same variable names as the Upbit
// open API examples (UPBIT_OPEN_API_ACCESS_KEY etc.).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("UPBIT_SCOUT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("upbit.access_key", "UPBIT_OPEN_API_ACCESS_KEY")
	v.BindEnv("upbit.secret_key", "UPBIT_OPEN_API_SECRET_KEY")
	v.BindEnv("upbit.base_url", "UPBIT_OPEN_API_SERVER_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upbit.base_url", "https://api.upbit.com")
	v.SetDefault("upbit.access_key", "")
	v.SetDefault("upbit.secret_key", "")

	v.SetDefault("scout.quote_currency", "KRW")
	v.SetDefault("scout.excluded_assets", []string{"APENFT"})
	v.SetDefault("scout.data_dir", "./responses")
	v.SetDefault("scout.window", 1000)
	v.SetDefault("scout.spike_threshold", 20.0)
	v.SetDefault("scout.iqr_lower_mult", 1.0)
	v.SetDefault("scout.iqr_upper_mult", 1.5)
	v.SetDefault("scout.buy_notional", 10000.0)
	v.SetDefault("scout.stop_loss", 0.95)
	v.SetDefault("scout.take_profit", 1.05)
	v.SetDefault("scout.candle_count", 2)
	v.SetDefault("scout.backfill_months", 3)
	v.SetDefault("scout.cycle_interval", "60s")
	v.SetDefault("scout.sell_interval", "5m")
	v.SetDefault("scout.requests_per_sec", 10) // one request per 100ms

	v.SetDefault("logging.level", "info")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Upbit.BaseURL == "" {
		return fmt.Errorf("upbit.base_url is required")
	}
	if c.Scout.QuoteCurrency == "" {
		return fmt.Errorf("scout.quote_currency is required")
	}
	if c.Scout.Window < 4 {
		return fmt.Errorf("scout.window must be at least 4")
	}
	if c.Scout.SpikeThreshold <= 1.0 {
		return fmt.Errorf("scout.spike_threshold must be greater than 1")
	}
	if c.Scout.IQRLowerMult < 0 || c.Scout.IQRUpperMult < 0 {
		return fmt.Errorf("scout.iqr multipliers must not be negative")
	}
	if c.Scout.BuyNotional <= 0 {
		return fmt.Errorf("scout.buy_notional must be positive")
	}
	if c.Scout.StopLoss <= 0 || c.Scout.StopLoss >= 1 {
		return fmt.Errorf("scout.stop_loss must be between 0 and 1")
	}
	if c.Scout.TakeProfit <= 1 {
		return fmt.Errorf("scout.take_profit must be greater than 1")
	}
	if c.Scout.CandleCount < 1 {
		return fmt.Errorf("scout.candle_count must be at least 1")
	}
	if c.Scout.CycleInterval < time.Second {
		return fmt.Errorf("scout.cycle_interval must be at least 1 second")
	}
	if c.Scout.SellInterval < time.Second {
		return fmt.Errorf("scout.sell_interval must be at least 1 second")
	}
	if c.Scout.RequestsPerSec < 1 {
		return fmt.Errorf("scout.requests_per_sec must be at least 1")
	}
	return nil
}
