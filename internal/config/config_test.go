package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unsupported mode", func(c *Config) { c.Mode = "yolo" }},
		{"no instruments", func(c *Config) { c.Venues.Instruments = nil }},
		{"zero profit threshold", func(c *Config) { c.Detector.MinProfitFraction = 0 }},
		{"zero opportunity ttl", func(c *Config) { c.Detector.OpportunityTTLMs = 0 }},
		{"zero staleness window", func(c *Config) { c.Detector.StalenessWindowMs = 0 }},
		{"venue share above one", func(c *Config) { c.Router.MaxVenueShare = 1.5 }},
		{"depth share zero", func(c *Config) { c.Router.MaxDepthShare = 0 }},
		{"position fraction zero", func(c *Config) { c.Sizing.MaxPositionFraction = 0 }},
		{"hard cap above one", func(c *Config) { c.Sizing.HardCap = 2 }},
		{"no capital", func(c *Config) { c.Sizing.AvailableCapital = 0 }},
		{"zero annualization", func(c *Config) { c.Ledger.AnnualizationFactor = 0 }},
		{"zero daily retention", func(c *Config) { c.Ledger.DailyRetentionDays = 0 }},
		{"bad timezone", func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" }},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }},
		{"postgres without target", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.DSN = ""
			c.Postgres.Host = ""
		}},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestVenueTiers(t *testing.T) {
	v := VenuesConfig{
		Tier1: []string{"binance"},
		Tier2: []string{"gate", "mexc"},
		Tier3: []string{"lbank"},
	}
	tiers := v.Tiers()
	assert.Equal(t, domain.Tier1, tiers["binance"])
	assert.Equal(t, domain.Tier2, tiers["gate"])
	assert.Equal(t, domain.Tier2, tiers["mexc"])
	assert.Equal(t, domain.Tier3, tiers["lbank"])
	assert.Equal(t, domain.TierUnknown, tiers["unlisted"])
}

func TestDurationAccessors(t *testing.T) {
	d := DetectorConfig{OpportunityTTLMs: 1500, StalenessWindowMs: 4000, ScanIntervalMs: 250}
	assert.Equal(t, 1500*time.Millisecond, d.OpportunityTTL())
	assert.Equal(t, 4*time.Second, d.StalenessWindow())
	assert.Equal(t, 250*time.Millisecond, d.ScanInterval())

	s := SizingConfig{StatsTTLMinutes: 90}
	assert.Equal(t, 90*time.Minute, s.StatsTTL())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"
log_level = "debug"

[detector]
min_profit_fraction = 0.01

[server]
port = 9090
api_key = "sekret"
cors_origins = ["https://ui.example.com"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden by the file.
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.01, cfg.Detector.MinProfitFraction)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sekret", cfg.Server.APIKey)
	assert.Equal(t, []string{"https://ui.example.com"}, cfg.Server.CORSOrigins)

	// Untouched defaults survive the merge.
	assert.Equal(t, 3000, cfg.Detector.OpportunityTTLMs)
	assert.Equal(t, 0.25, cfg.Sizing.HardCap)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBOT_MODE", "serve")
	t.Setenv("ARBOT_DETECTOR_MIN_PROFIT_FRACTION", "0.02")
	t.Setenv("ARBOT_REDIS_ENABLED", "true")
	t.Setenv("ARBOT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ARBOT_VENUES_INSTRUMENTS", "BTC/USDT, SOL/USDT ,")
	t.Setenv("ARBOT_SERVER_PORT", "not-a-number") // ignored, keeps default

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, 0.02, cfg.Detector.MinProfitFraction)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"BTC/USDT", "SOL/USDT"}, cfg.Venues.Instruments)
	assert.Equal(t, 8080, cfg.Server.Port)
}
