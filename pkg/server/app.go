package server

import (
	"context"

	"FxSignal/internal/scheduler"
	"FxSignal/internal/usecase"
	"FxSignal/pkg/config"
	xhttp "FxSignal/pkg/http"
	pkgkafka "FxSignal/pkg/kafka"
	applogger "FxSignal/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	monitor    *usecase.TradeMonitor
	ledgerSync *usecase.LedgerSync
	consumer   *pkgkafka.Consumer
	sched      *scheduler.Scheduler
}

// New creates a new App. consumer is nil when no brokers are configured.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	monitor *usecase.TradeMonitor,
	ledgerSync *usecase.LedgerSync,
	consumer *pkgkafka.Consumer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log.With("app"),
		httpServer: httpServer,
		monitor:    monitor,
		ledgerSync: ledgerSync,
		consumer:   consumer,
		sched:      scheduler.New(log),
	}
}

// Run starts the application and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	// the first sync runs before the monitor so resolutions see the ledger state
	if _, err := a.ledgerSync.Sync(ctx); err != nil {
		a.log.Warn("initial ledger sync failed", applogger.Error(err))
	}

	a.sched.Every(ctx, "monitor", scheduler.NewTicker(a.cfg.Monitor.Interval), false, func(ctx context.Context) error {
		_, err := a.monitor.CheckActive(ctx)
		return err
	})
	a.sched.Every(ctx, "ledger-sync", scheduler.NewTicker(a.cfg.Monitor.SyncInterval), false, func(ctx context.Context) error {
		_, err := a.ledgerSync.Sync(ctx)
		return err
	})
	a.log.Info("scheduler started",
		applogger.Duration("monitor_interval_ms", a.cfg.Monitor.Interval),
		applogger.Duration("sync_interval_ms", a.cfg.Monitor.SyncInterval),
	)

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.Strings("brokers", a.cfg.Kafka.Brokers))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops the HTTP server first so no new work arrives, then waits for
// running jobs and drains the consumer.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	a.sched.Wait()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return nil
}
