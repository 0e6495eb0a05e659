// Package config defines the top-level configuration for the arbitrage core
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Venues   VenuesConfig   `toml:"venues"`
	Detector DetectorConfig `toml:"detector"`
	Router   RouterConfig   `toml:"router"`
	Sizing   SizingConfig   `toml:"sizing"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenuesConfig supplies the externally maintained venue classification and
// the instruments the pipeline scans.
type VenuesConfig struct {
	Tier1       []string `toml:"tier1"`
	Tier2       []string `toml:"tier2"`
	Tier3       []string `toml:"tier3"`
	Instruments []string `toml:"instruments"`
}

// Tiers flattens the tier lists into the venue -> tier classification the
// router consumes.
func (v VenuesConfig) Tiers() map[string]domain.VenueTier {
	tiers := make(map[string]domain.VenueTier, len(v.Tier1)+len(v.Tier2)+len(v.Tier3))
	for _, venue := range v.Tier1 {
		tiers[venue] = domain.Tier1
	}
	for _, venue := range v.Tier2 {
		tiers[venue] = domain.Tier2
	}
	for _, venue := range v.Tier3 {
		tiers[venue] = domain.Tier3
	}
	return tiers
}

// DetectorConfig holds opportunity detection parameters.
type DetectorConfig struct {
	MinProfitFraction float64 `toml:"min_profit_fraction"`
	OpportunityTTLMs  int     `toml:"opportunity_ttl_ms"`
	StalenessWindowMs int     `toml:"staleness_window_ms"`
	ScanIntervalMs    int     `toml:"scan_interval_ms"`
	LiquidityWeight   float64 `toml:"liquidity_weight"`
	ProfitWeight      float64 `toml:"profit_weight"`
	LatencyWeight     float64 `toml:"latency_weight"`
	LiquidityNorm     float64 `toml:"liquidity_norm"`
}

// OpportunityTTL returns the configured TTL as a duration.
func (d DetectorConfig) OpportunityTTL() time.Duration {
	return time.Duration(d.OpportunityTTLMs) * time.Millisecond
}

// StalenessWindow returns the configured snapshot staleness window.
func (d DetectorConfig) StalenessWindow() time.Duration {
	return time.Duration(d.StalenessWindowMs) * time.Millisecond
}

// ScanInterval returns the pipeline scan cadence.
func (d DetectorConfig) ScanInterval() time.Duration {
	return time.Duration(d.ScanIntervalMs) * time.Millisecond
}

// RouterConfig holds smart-order-router parameters.
type RouterConfig struct {
	DepthLevels         int     `toml:"depth_levels"`
	MaxVenueShare       float64 `toml:"max_venue_share"`
	MaxDepthShare       float64 `toml:"max_depth_share"`
	MinSliceAmount      float64 `toml:"min_slice_amount"`
	BaseScore           float64 `toml:"base_score"`
	Tier1Bonus          float64 `toml:"tier1_bonus"`
	Tier2Bonus          float64 `toml:"tier2_bonus"`
	Tier3Bonus          float64 `toml:"tier3_bonus"`
	VolumeBonusCap      float64 `toml:"volume_bonus_cap"`
	VolumeNorm          float64 `toml:"volume_norm"`
	LatencyPenaltyCap   float64 `toml:"latency_penalty_cap"`
	MaxSlippageFraction float64 `toml:"max_slippage_fraction"`
	MaxTotalAmount      float64 `toml:"max_total_amount"`
}

// SizingConfig holds Kelly position-sizing parameters.
type SizingConfig struct {
	MaxPositionFraction float64 `toml:"max_position_fraction"`
	HardCap             float64 `toml:"hard_cap"`
	MinSampleSize       int     `toml:"min_sample_size"`
	StatsTTLMinutes     int     `toml:"stats_ttl_minutes"`
	HistoryCap          int     `toml:"history_cap"`
	VolatilityFactor    float64 `toml:"volatility_factor"`
	AvailableCapital    float64 `toml:"available_capital"`
}

// StatsTTL returns the strategy statistics cache TTL.
func (s SizingConfig) StatsTTL() time.Duration {
	return time.Duration(s.StatsTTLMinutes) * time.Minute
}

// LedgerConfig holds performance-ledger parameters.
type LedgerConfig struct {
	RiskFreeRate        float64 `toml:"risk_free_rate"`
	AnnualizationFactor float64 `toml:"annualization_factor"`
	RetentionCount      int     `toml:"retention_count"`
	DailyRetentionDays  int     `toml:"daily_retention_days"`
	Timezone            string  `toml:"timezone"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the trade
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
	CORSOrigins []string `toml:"cors_origins"`
}

// Defaults returns the built-in configuration that a TOML file and
// environment overrides are merged on top of.
func Defaults() Config {
	return Config{
		Venues: VenuesConfig{
			Tier1:       []string{"binance", "coinbase", "kraken", "okx"},
			Tier2:       []string{"gate", "mexc", "bitget", "bitfinex"},
			Tier3:       []string{"bitmart", "whitebit", "lbank"},
			Instruments: []string{"BTC/USDT", "ETH/USDT"},
		},
		Detector: DetectorConfig{
			MinProfitFraction: 0.005,
			OpportunityTTLMs:  3000,
			StalenessWindowMs: 5000,
			ScanIntervalMs:    1000,
			LiquidityWeight:   0.4,
			ProfitWeight:      0.35,
			LatencyWeight:     0.25,
			LiquidityNorm:     10,
		},
		Router: RouterConfig{
			DepthLevels:         10,
			MaxVenueShare:       0.4,
			MaxDepthShare:       0.8,
			MinSliceAmount:      0.01,
			BaseScore:           0.5,
			Tier1Bonus:          0.3,
			Tier2Bonus:          0.2,
			Tier3Bonus:          0.1,
			VolumeBonusCap:      0.2,
			VolumeNorm:          100,
			LatencyPenaltyCap:   0.2,
			MaxSlippageFraction: 0.01,
			MaxTotalAmount:      10,
		},
		Sizing: SizingConfig{
			MaxPositionFraction: 0.02,
			HardCap:             0.25,
			MinSampleSize:       10,
			StatsTTLMinutes:     60,
			HistoryCap:          1000,
			VolatilityFactor:    0.9,
			AvailableCapital:    100000,
		},
		Ledger: LedgerConfig{
			RiskFreeRate:        0.02,
			AnnualizationFactor: 252,
			RetentionCount:      10000,
			DailyRetentionDays:  365,
			Timezone:            "UTC",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "arbot",
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 2,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// Validate checks that required fields are coherent. It is called once
// after Load; no later code re-validates.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "scan", "serve", "full":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if len(c.Venues.Instruments) == 0 {
		return fmt.Errorf("config: venues.instruments must not be empty")
	}
	if c.Detector.MinProfitFraction <= 0 {
		return fmt.Errorf("config: detector.min_profit_fraction must be positive")
	}
	if c.Detector.OpportunityTTLMs <= 0 {
		return fmt.Errorf("config: detector.opportunity_ttl_ms must be positive")
	}
	if c.Detector.StalenessWindowMs <= 0 {
		return fmt.Errorf("config: detector.staleness_window_ms must be positive")
	}
	if c.Router.MaxVenueShare <= 0 || c.Router.MaxVenueShare > 1 {
		return fmt.Errorf("config: router.max_venue_share must be in (0,1]")
	}
	if c.Router.MaxDepthShare <= 0 || c.Router.MaxDepthShare > 1 {
		return fmt.Errorf("config: router.max_depth_share must be in (0,1]")
	}
	if c.Sizing.MaxPositionFraction <= 0 || c.Sizing.MaxPositionFraction > 1 {
		return fmt.Errorf("config: sizing.max_position_fraction must be in (0,1]")
	}
	if c.Sizing.HardCap <= 0 || c.Sizing.HardCap > 1 {
		return fmt.Errorf("config: sizing.hard_cap must be in (0,1]")
	}
	if c.Sizing.AvailableCapital <= 0 {
		return fmt.Errorf("config: sizing.available_capital must be positive")
	}
	if c.Ledger.AnnualizationFactor <= 0 {
		return fmt.Errorf("config: ledger.annualization_factor must be positive")
	}
	if c.Ledger.DailyRetentionDays <= 0 {
		return fmt.Errorf("config: ledger.daily_retention_days must be positive")
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		return fmt.Errorf("config: ledger.timezone: %w", err)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port must be a valid TCP port")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		return fmt.Errorf("config: postgres enabled but neither dsn nor host set")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3 enabled but bucket not set")
	}
	return nil
}
