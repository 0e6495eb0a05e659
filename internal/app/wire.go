package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/arbot/internal/blob/s3"
	"github.com/alanyoungcy/arbot/internal/book"
	"github.com/alanyoungcy/arbot/internal/cache/redis"
	"github.com/alanyoungcy/arbot/internal/config"
	"github.com/alanyoungcy/arbot/internal/detect"
	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/ledger"
	"github.com/alanyoungcy/arbot/internal/route"
	"github.com/alanyoungcy/arbot/internal/sizing"
	"github.com/alanyoungcy/arbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core components.
	Aggregator *book.Aggregator
	Detector   *detect.Detector
	Router     *route.Router
	Sizer      *sizing.Sizer
	Ledger     *ledger.Ledger

	// Optional infrastructure. Nil when the corresponding backend is
	// disabled in configuration.
	TradeStore       domain.TradeStore
	OpportunityStore domain.OpportunityStore
	StatsCache       domain.StatsCache
	OpportunityCache domain.OpportunityCache
	SignalBus        domain.SignalBus
	Archiver         domain.TradeArchiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.StatsCache = redis.NewStatsCache(redisClient)
		deps.OpportunityCache = redis.NewOpportunityCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
	}

	// --- S3 trade archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewTradeArchiver(s3Client)
	}

	// --- Core components ---
	deps.Aggregator = book.NewAggregator(book.Config{
		StalenessWindow: cfg.Detector.StalenessWindow(),
	}, logger)

	deps.Detector = detect.NewDetector(detect.Config{
		MinProfitFraction: cfg.Detector.MinProfitFraction,
		OpportunityTTL:    cfg.Detector.OpportunityTTL(),
		LiquidityWeight:   cfg.Detector.LiquidityWeight,
		ProfitWeight:      cfg.Detector.ProfitWeight,
		LatencyWeight:     cfg.Detector.LatencyWeight,
		LiquidityNorm:     cfg.Detector.LiquidityNorm,
	}, deps.Aggregator, logger)

	deps.Router = route.NewRouter(route.Config{
		DepthLevels:       cfg.Router.DepthLevels,
		MaxVenueShare:     cfg.Router.MaxVenueShare,
		MaxDepthShare:     cfg.Router.MaxDepthShare,
		MinSliceAmount:    cfg.Router.MinSliceAmount,
		BaseScore:         cfg.Router.BaseScore,
		Tier1Bonus:        cfg.Router.Tier1Bonus,
		Tier2Bonus:        cfg.Router.Tier2Bonus,
		Tier3Bonus:        cfg.Router.Tier3Bonus,
		VolumeBonusCap:    cfg.Router.VolumeBonusCap,
		VolumeNorm:        cfg.Router.VolumeNorm,
		LatencyPenaltyCap: cfg.Router.LatencyPenaltyCap,
	}, deps.Aggregator, cfg.Venues.Tiers(), logger)

	deps.Sizer = sizing.NewSizer(sizing.Config{
		MinSampleSize:    cfg.Sizing.MinSampleSize,
		HardCap:          cfg.Sizing.HardCap,
		StatsTTL:         cfg.Sizing.StatsTTL(),
		HistoryCap:       cfg.Sizing.HistoryCap,
		VolatilityFactor: cfg.Sizing.VolatilityFactor,
	}, deps.StatsCache, nil, logger)

	loc, err := time.LoadLocation(cfg.Ledger.Timezone)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger timezone: %w", err)
	}

	ledgerOpts := []ledger.Option{ledger.WithOutcomeSink(deps.Sizer)}
	if deps.TradeStore != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithStore(deps.TradeStore))
	}
	if deps.Archiver != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithArchiver(deps.Archiver))
	}
	if deps.SignalBus != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithBus(deps.SignalBus))
	}

	deps.Ledger = ledger.New(ledger.Config{
		Metrics: ledger.MetricsConfig{
			RiskFreeRate:        cfg.Ledger.RiskFreeRate,
			AnnualizationFactor: cfg.Ledger.AnnualizationFactor,
		},
		RetentionCount:     cfg.Ledger.RetentionCount,
		DailyRetentionDays: cfg.Ledger.DailyRetentionDays,
		Location:           loc,
	}, logger, ledgerOpts...)

	return deps, cleanup, nil
}
