package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the effective configuration: defaults, then the TOML file at
// path (when given), then ARBOT_* environment overrides on top. Validation
// is left to the caller via Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A local .env is a convenience for development; missing is fine.
	_ = godotenv.Load()

	fromEnv(&cfg)
	return &cfg, nil
}

// fromEnv overwrites config fields from well-known ARBOT_* variables so
// operators can inject secrets at deploy time without editing the TOML file.
// Unparseable values are ignored, leaving the prior value in place.
func fromEnv(cfg *Config) {
	// Detector
	envTo(&cfg.Detector.MinProfitFraction, "ARBOT_DETECTOR_MIN_PROFIT_FRACTION", parseFloat)
	envTo(&cfg.Detector.OpportunityTTLMs, "ARBOT_DETECTOR_OPPORTUNITY_TTL_MS", strconv.Atoi)
	envTo(&cfg.Detector.StalenessWindowMs, "ARBOT_DETECTOR_STALENESS_WINDOW_MS", strconv.Atoi)
	envTo(&cfg.Detector.ScanIntervalMs, "ARBOT_DETECTOR_SCAN_INTERVAL_MS", strconv.Atoi)

	// Router
	envTo(&cfg.Router.DepthLevels, "ARBOT_ROUTER_DEPTH_LEVELS", strconv.Atoi)
	envTo(&cfg.Router.MaxVenueShare, "ARBOT_ROUTER_MAX_VENUE_SHARE", parseFloat)
	envTo(&cfg.Router.MaxDepthShare, "ARBOT_ROUTER_MAX_DEPTH_SHARE", parseFloat)
	envTo(&cfg.Router.MaxSlippageFraction, "ARBOT_ROUTER_MAX_SLIPPAGE_FRACTION", parseFloat)
	envTo(&cfg.Router.MaxTotalAmount, "ARBOT_ROUTER_MAX_TOTAL_AMOUNT", parseFloat)

	// Sizing
	envTo(&cfg.Sizing.MaxPositionFraction, "ARBOT_SIZING_MAX_POSITION_FRACTION", parseFloat)
	envTo(&cfg.Sizing.HardCap, "ARBOT_SIZING_HARD_CAP", parseFloat)
	envTo(&cfg.Sizing.MinSampleSize, "ARBOT_SIZING_MIN_SAMPLE_SIZE", strconv.Atoi)
	envTo(&cfg.Sizing.AvailableCapital, "ARBOT_SIZING_AVAILABLE_CAPITAL", parseFloat)

	// Ledger
	envTo(&cfg.Ledger.RiskFreeRate, "ARBOT_LEDGER_RISK_FREE_RATE", parseFloat)
	envTo(&cfg.Ledger.AnnualizationFactor, "ARBOT_LEDGER_ANNUALIZATION_FACTOR", parseFloat)
	envTo(&cfg.Ledger.RetentionCount, "ARBOT_LEDGER_RETENTION_COUNT", strconv.Atoi)
	envTo(&cfg.Ledger.DailyRetentionDays, "ARBOT_LEDGER_DAILY_RETENTION_DAYS", strconv.Atoi)
	envTo(&cfg.Ledger.Timezone, "ARBOT_LEDGER_TIMEZONE", parseString)

	// Postgres
	envTo(&cfg.Postgres.Enabled, "ARBOT_POSTGRES_ENABLED", strconv.ParseBool)
	envTo(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN", parseString)
	envTo(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST", parseString)
	envTo(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT", strconv.Atoi)
	envTo(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE", parseString)
	envTo(&cfg.Postgres.User, "ARBOT_POSTGRES_USER", parseString)
	envTo(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD", parseString)
	envTo(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSLMODE", parseString)
	envTo(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS", strconv.ParseBool)

	// Redis
	envTo(&cfg.Redis.Enabled, "ARBOT_REDIS_ENABLED", strconv.ParseBool)
	envTo(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR", parseString)
	envTo(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD", parseString)
	envTo(&cfg.Redis.DB, "ARBOT_REDIS_DB", strconv.Atoi)
	envTo(&cfg.Redis.PoolSize, "ARBOT_REDIS_POOL_SIZE", strconv.Atoi)
	envTo(&cfg.Redis.TLSEnabled, "ARBOT_REDIS_TLS_ENABLED", strconv.ParseBool)

	// S3
	envTo(&cfg.S3.Enabled, "ARBOT_S3_ENABLED", strconv.ParseBool)
	envTo(&cfg.S3.Endpoint, "ARBOT_S3_ENDPOINT", parseString)
	envTo(&cfg.S3.Region, "ARBOT_S3_REGION", parseString)
	envTo(&cfg.S3.Bucket, "ARBOT_S3_BUCKET", parseString)
	envTo(&cfg.S3.AccessKey, "ARBOT_S3_ACCESS_KEY", parseString)
	envTo(&cfg.S3.SecretKey, "ARBOT_S3_SECRET_KEY", parseString)
	envTo(&cfg.S3.UseSSL, "ARBOT_S3_USE_SSL", strconv.ParseBool)
	envTo(&cfg.S3.ForcePathStyle, "ARBOT_S3_FORCE_PATH_STYLE", strconv.ParseBool)

	// Server
	envTo(&cfg.Server.Enabled, "ARBOT_SERVER_ENABLED", strconv.ParseBool)
	envTo(&cfg.Server.Port, "ARBOT_SERVER_PORT", strconv.Atoi)
	envTo(&cfg.Server.APIKey, "ARBOT_SERVER_API_KEY", parseString)
	envTo(&cfg.Server.CORSOrigins, "ARBOT_SERVER_CORS_ORIGINS", parseList)

	// Venues
	envTo(&cfg.Venues.Instruments, "ARBOT_VENUES_INSTRUMENTS", parseList)
	envTo(&cfg.Venues.Tier1, "ARBOT_VENUES_TIER1", parseList)
	envTo(&cfg.Venues.Tier2, "ARBOT_VENUES_TIER2", parseList)
	envTo(&cfg.Venues.Tier3, "ARBOT_VENUES_TIER3", parseList)

	// Top-level
	envTo(&cfg.Mode, "ARBOT_MODE", parseString)
	envTo(&cfg.LogLevel, "ARBOT_LOG_LEVEL", parseString)
}

// envTo assigns the parsed value of the environment variable to dst. Empty
// or absent variables and parse failures leave dst untouched.
func envTo[T any](dst *T, key string, parse func(string) (T, error)) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parseList splits a comma-separated value, trimming whitespace and dropping
// empty entries. An all-empty result is an error so the prior list survives.
func parseList(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil, strconv.ErrSyntax
	}
	return out, nil
}
