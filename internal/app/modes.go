package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalhub/internal/server"
	"github.com/alanyoungcy/signalhub/internal/server/handler"
	"github.com/alanyoungcy/signalhub/internal/server/ws"
	"github.com/alanyoungcy/signalhub/internal/service"
)

// FullMode runs the HTTP API together with every background loop: the
// threshold monitor, signal expiry, stale client sweeping, producers and the
// archive.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startMonitor(ctx, g, deps)
	a.startSweepers(ctx, g, deps)
	a.startProducers(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return a.wait(g, deps)
}

// ServerMode runs only the HTTP API and the housekeeping sweepers. Prices
// reach open positions through POST /api/prices.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startSweepers(ctx, g, deps)

	return a.wait(g, deps)
}

// MonitorMode runs the background loops without an HTTP listener. It is
// meant to sit next to one or more server-mode replicas sharing Postgres and
// Redis.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMonitor(ctx, g, deps)
	a.startSweepers(ctx, g, deps)
	a.startProducers(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return a.wait(g, deps)
}

// wait blocks on the group and then lets in-flight deliveries finish so
// their transmissions are logged.
func (a *App) wait(g *errgroup.Group, deps *Dependencies) error {
	err := g.Wait()
	deps.Dispatcher.Wait()
	return err
}

func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	p := deps.Monitor.Periodic(a.cfg.Monitor.Interval.Duration, deps.LockManager)
	g.Go(func() error { return p.Run(ctx) })
}

func (a *App) startSweepers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	expiry := deps.Signals.ExpirySweeper(a.cfg.Signals.SweepInterval.Duration, a.cfg.Signals.Expiry.Duration)
	g.Go(func() error { return expiry.Run(ctx) })

	clients := deps.Registry.Sweeper(a.cfg.Clients.SweepInterval.Duration)
	g.Go(func() error { return clients.Run(ctx) })
}

func (a *App) startProducers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Producers == nil {
		return
	}
	p := deps.Producers.Periodic(a.cfg.Producer.Interval.Duration)
	g.Go(func() error { return p.Run(ctx) })
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	run := service.Exclusive(deps.LockManager, "archive", interval, func(ctx context.Context) error {
		return deps.Archiver.Run(ctx, retention)
	})
	p := service.NewPeriodic("archive", interval, run, a.logger)
	g.Go(func() error { return p.Run(ctx) })
}

// startHTTPServer adds the API server and the websocket hub to the group. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, deps.Dispatcher, hub, time.Now().UTC()),
		Positions:     handler.NewPositionHandler(deps.Positions, deps.Monitor, a.logger),
		Prices:        handler.NewPriceHandler(deps.PriceCache, deps.Monitor, a.logger),
		Signals:       handler.NewSignalHandler(deps.Signals, a.logger),
		Transmissions: handler.NewTransmissionHandler(deps.TransmissionStore, a.logger),
		Clients:       handler.NewClientHandler(deps.Registry, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		PollRateLimit:  a.cfg.Server.PollRateLimit,
		PollRateWindow: a.cfg.Server.PollRateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
