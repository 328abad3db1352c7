package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/calderhq/traderpulse/internal/blob/s3"
	"github.com/calderhq/traderpulse/internal/domain"
	"github.com/calderhq/traderpulse/internal/monitor"
	"github.com/calderhq/traderpulse/internal/server"
	"github.com/calderhq/traderpulse/internal/server/handler"
	"github.com/calderhq/traderpulse/internal/server/ws"
)

// shutdownGrace is how long the HTTP server gets to drain in-flight requests.
const shutdownGrace = 10 * time.Second

// MonitorMode runs the polling scheduler without an HTTP surface. Scores
// still reach the durable sink, the cache, and the signal bus, so a separate
// server process can serve them.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	sched, _ := a.buildScheduler(deps, nil)
	g.Go(func() error {
		return a.runScheduler(ctx, sched)
	})

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the HTTP and WebSocket surface without a local scheduler.
// Live events arrive over the signal bus from a monitor process; queries are
// answered from the cross-process cache and the durable sink.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		err := hub.RunRelay(ctx, deps.SignalBus, monitor.ChannelScores, monitor.ChannelHeatmaps)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	monitorHandler := handler.NewMonitorHandler(
		nil, nil, deps.Cache, deps.Sink, a.entityIDs(), a.logger,
	)
	a.startServer(ctx, g, hub, monitorHandler, deps.RateLimiter)

	return g.Wait()
}

// FullMode runs the scheduler and the HTTP/WebSocket surface in one process.
// The hub doubles as the scheduler's dispatcher, so scores reach local
// watchers without a round trip through the bus.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	sched, history := a.buildScheduler(deps, hub)

	if a.cfg.Monitor.Enabled {
		g.Go(func() error {
			return a.runScheduler(ctx, sched)
		})
	}

	monitorHandler := handler.NewMonitorHandler(
		sched, history, deps.Cache, deps.Sink, a.entityIDs(), a.logger,
	)
	a.startServer(ctx, g, hub, monitorHandler, deps.RateLimiter)

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// buildScheduler assembles the monitoring pipeline from config and wired
// dependencies. dispatcher may be nil for headless monitor processes.
func (a *App) buildScheduler(deps *Dependencies, dispatcher domain.ScoreDispatcher) (*monitor.Scheduler, *monitor.HistoryStore) {
	fetcher := monitor.NewFetcher(deps.Source, a.cfg.Monitor.FetchTimeout.Duration, a.logger)
	scorer := monitor.NewScorer(a.scoringParams())
	history := monitor.NewHistoryStore(monitor.HistoryConfig{
		MaxSamples: a.cfg.Monitor.MaxSamples,
		Retention:  a.cfg.Monitor.HistoryRetention.Duration,
		SlotWidth:  a.cfg.Monitor.HeatmapSlot.Duration,
	})

	sched := monitor.NewScheduler(
		monitor.SchedulerConfig{
			Entities: a.entityIDs(),
			Interval: a.cfg.Monitor.Interval.Duration,
		},
		fetcher, scorer, history, dispatcher,
		deps.Sink, deps.Cache, deps.SignalBus, deps.Notifier,
		a.logger,
	)
	return sched, history
}

// runScheduler starts the scheduler and blocks until ctx is cancelled, then
// stops it, letting any in-flight cycle finish.
func (a *App) runScheduler(ctx context.Context, sched *monitor.Scheduler) error {
	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	return ctx.Err()
}

// startServer registers the HTTP server on the errgroup together with its
// shutdown watcher.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, hub *ws.Hub, monitorHandler *handler.MonitorHandler, limiter domain.RateLimiter) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Monitor: monitorHandler,
		},
		hub,
		limiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		hub.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiver registers the score archiver loop when cold archiving is
// configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.BlobWriter == nil {
		return
	}

	archiver := s3blob.NewArchiver(
		deps.BlobWriter,
		deps.Sink,
		deps.Notifier,
		a.cfg.S3.ArchiveInterval.Duration,
		a.cfg.S3.ArchiveAfter.Duration,
		a.logger,
	)
	g.Go(func() error {
		err := archiver.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// entityIDs parses the configured entity list into domain IDs, deduplicated
// and order preserving.
func (a *App) entityIDs() []domain.EntityID {
	return domain.ParseEntityIDs(a.cfg.Monitor.Entities)
}

// scoringParams maps the optional scoring config onto the built-in defaults.
// Zero-valued fields keep their default.
func (a *App) scoringParams() monitor.ScoringParams {
	p := monitor.DefaultScoringParams()
	sc := a.cfg.Scoring

	if sc.ColdTradeWeight > 0 {
		p.ColdTradeWeight = sc.ColdTradeWeight
	}
	if sc.ColdPositionWeight > 0 {
		p.ColdPositionWeight = sc.ColdPositionWeight
	}
	if sc.ColdVolumeWeight > 0 {
		p.ColdVolumeWeight = sc.ColdVolumeWeight
	}
	if sc.ColdTradeCeiling > 0 {
		p.ColdTradeCeiling = sc.ColdTradeCeiling
	}
	if sc.ColdPositionCeiling > 0 {
		p.ColdPositionCeiling = sc.ColdPositionCeiling
	}
	if sc.ColdVolumeCeiling > 0 {
		p.ColdVolumeCeiling = sc.ColdVolumeCeiling
	}
	if sc.VolumeWeight > 0 {
		p.VolumeWeight = sc.VolumeWeight
	}
	if sc.FrequencyWeight > 0 {
		p.FrequencyWeight = sc.FrequencyWeight
	}
	if sc.PortfolioWeight > 0 {
		p.PortfolioWeight = sc.PortfolioWeight
	}
	if sc.PnLWeight > 0 {
		p.PnLWeight = sc.PnLWeight
	}
	if sc.VolumeCeiling > 0 {
		p.VolumeChangeCeiling = sc.VolumeCeiling
	}
	if sc.FrequencyCeiling > 0 {
		p.FrequencyChangeCeiling = sc.FrequencyCeiling
	}
	if sc.PositionCeiling > 0 {
		p.PositionChangeCeiling = sc.PositionCeiling
	}
	if sc.QuantityCeiling > 0 {
		p.QuantityDeltaCeiling = sc.QuantityCeiling
	}
	if sc.PnLDivisor > 0 {
		p.PnLChangeDivisor = sc.PnLDivisor
	}
	return p
}
