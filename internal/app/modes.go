package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbot/internal/server"
	"github.com/alanyoungcy/arbot/internal/server/handler"
	"github.com/alanyoungcy/arbot/internal/server/ws"
	"github.com/alanyoungcy/arbot/internal/service"
)

// shutdownGrace is how long in-flight HTTP requests get to finish after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// ScanMode runs only the periodic scan pipeline: detect, route, size,
// publish. Book updates must arrive through the signal-bus collaborators or
// a separate serve-mode process sharing the same Redis.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.newPipeline(deps).Run(ctx)
	})

	return g.Wait()
}

// ServeMode runs only the HTTP + WebSocket API: book and trade ingest,
// snapshots, on-demand scans and performance queries.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the scan pipeline and the API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.newPipeline(deps).Run(ctx)
	})
	a.startServer(ctx, g, deps)

	return g.Wait()
}

// newPipeline builds the scan pipeline from the wired dependencies.
func (a *App) newPipeline(deps *Dependencies) *service.Pipeline {
	return service.NewPipeline(
		service.PipelineConfig{
			Instruments:         a.cfg.Venues.Instruments,
			ScanInterval:        a.cfg.Detector.ScanInterval(),
			MaxTotalAmount:      a.cfg.Router.MaxTotalAmount,
			MaxSlippageFraction: a.cfg.Router.MaxSlippageFraction,
			AvailableCapital:    a.cfg.Sizing.AvailableCapital,
			MaxPositionFraction: a.cfg.Sizing.MaxPositionFraction,
		},
		deps.Detector,
		deps.Router,
		deps.Sizer,
		deps.SignalBus,
		deps.OpportunityStore,
		deps.OpportunityCache,
		a.logger,
	)
}

// startServer registers the API server (and the WebSocket hub when a signal
// bus is wired) on the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:        handler.NewHealthHandler(a.logger),
			Books:         handler.NewBookHandler(deps.Aggregator, a.logger),
			Trades:        handler.NewTradeHandler(deps.Ledger, deps.TradeStore, a.logger),
			Opportunities: handler.NewOpportunityHandler(deps.Detector, deps.OpportunityStore, deps.OpportunityCache, a.logger),
			Performance:   handler.NewPerformanceHandler(deps.Ledger, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
