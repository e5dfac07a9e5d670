package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.upbit.com", cfg.Upbit.BaseURL)
	assert.Equal(t, "KRW", cfg.Scout.QuoteCurrency)
	assert.Equal(t, 1000, cfg.Scout.Window)
	assert.Equal(t, 20.0, cfg.Scout.SpikeThreshold)
	assert.Equal(t, 1.0, cfg.Scout.IQRLowerMult)
	assert.Equal(t, 1.5, cfg.Scout.IQRUpperMult)
	assert.Equal(t, 0.95, cfg.Scout.StopLoss)
	assert.Equal(t, 1.05, cfg.Scout.TakeProfit)
	assert.Equal(t, 60*time.Second, cfg.Scout.CycleInterval)
	assert.Equal(t, []string{"APENFT"}, cfg.Scout.ExcludedAssets)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("UPBIT_OPEN_API_ACCESS_KEY", "ak")
	t.Setenv("UPBIT_OPEN_API_SECRET_KEY", "sk")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ak", cfg.Upbit.AccessKey)
	assert.Equal(t, "sk", cfg.Upbit.SecretKey)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"window too small", func(c *Config) { c.Scout.Window = 3 }, true},
		{"threshold too low", func(c *Config) { c.Scout.SpikeThreshold = 1.0 }, true},
		{"negative iqr multiplier", func(c *Config) { c.Scout.IQRLowerMult = -1 }, true},
		{"stop loss above one", func(c *Config) { c.Scout.StopLoss = 1.1 }, true},
		{"take profit below one", func(c *Config) { c.Scout.TakeProfit = 0.9 }, true},
		{"zero notional", func(c *Config) { c.Scout.BuyNotional = 0 }, true},
		{"missing quote currency", func(c *Config) { c.Scout.QuoteCurrency = "" }, true},
		{"sub-second cycle", func(c *Config) { c.Scout.CycleInterval = 100 * time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
