package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/repository"
	"FxSignal/internal/service/lifecycle"
	"FxSignal/pkg/logger"
)

const monitorLockKey = "monitor:pass"

type MonitorConfig struct {
	MaxConcurrency int
	LockTTL        time.Duration
}

// PassReport summarises one monitor pass.
type PassReport struct {
	Checked  int  `json:"checked"`
	Resolved int  `json:"resolved"`
	Skipped  bool `json:"skipped"`
}

// TradeMonitor resolves open signals against the live price.
type TradeMonitor struct {
	market  domrepo.MarketDataSource
	ledger  domrepo.SignalLedger
	repo    *repository.SignalRepository
	events  domrepo.EventPublisher
	locker  domrepo.Locker
	metrics domrepo.Metrics
	log     *logger.Logger
	cfg     MonitorConfig
	now     func() time.Time
}

// NewTradeMonitor builds a monitor. locker may be nil for single-instance runs.
func NewTradeMonitor(
	market domrepo.MarketDataSource,
	ledger domrepo.SignalLedger,
	repo *repository.SignalRepository,
	events domrepo.EventPublisher,
	locker domrepo.Locker,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg MonitorConfig,
) *TradeMonitor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 25 * time.Second
	}
	return &TradeMonitor{
		market:  market,
		ledger:  ledger,
		repo:    repo,
		events:  events,
		locker:  locker,
		metrics: metrics,
		log:     log.With("monitor"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// CheckActive evaluates every ACTIVE signal once. Per-signal failures are joined
// into the returned error and never stop the other signals.
func (m *TradeMonitor) CheckActive(ctx context.Context) (PassReport, error) {
	if m.locker != nil {
		ok, err := m.locker.TryLock(ctx, monitorLockKey, m.cfg.LockTTL)
		if err != nil {
			return PassReport{}, fmt.Errorf("monitor lock: %w", err)
		}
		if !ok {
			m.log.Debug("monitor pass held by another instance")
			return PassReport{Skipped: true}, nil
		}
		defer func() {
			if err := m.locker.Unlock(context.WithoutCancel(ctx), monitorLockKey); err != nil {
				m.log.Warn("monitor unlock failed", logger.Error(err))
			}
		}()
	}

	start := m.now()
	active := m.repo.Active()

	var (
		mu       sync.Mutex
		errs     []error
		resolved int
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, m.cfg.MaxConcurrency)
	for _, s := range active {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, fmt.Errorf("signal %s: %w", id, ctx.Err()))
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			done, err := m.check(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("signal %s: %w", id, err))
			}
			if done {
				resolved++
			}
		}(s.ID)
	}
	wg.Wait()

	m.metrics.RecordMonitorPass(m.now().Sub(start).Seconds(), len(active))
	report := PassReport{Checked: len(active), Resolved: resolved}
	if len(errs) > 0 {
		m.log.Warn("monitor pass finished with errors",
			logger.Int("checked", report.Checked),
			logger.Int("failed", len(errs)),
		)
	}
	return report, errors.Join(errs...)
}

// check runs fetch, decide and resolve for one signal under its mutex.
func (m *TradeMonitor) check(ctx context.Context, id string) (bool, error) {
	unlock := m.repo.Lock(id)
	defer unlock()

	s, ok := m.repo.Get(id)
	if !ok || !s.IsActive() {
		return false, nil
	}
	price, err := m.market.Price(ctx, s.Pair)
	if err != nil {
		return false, &TransportError{Op: "price", Err: err}
	}

	now := m.now()
	d := lifecycle.Evaluate(s, price, now)
	if !d.Resolved {
		if models.IsFinite(price) {
			s.CurrentPrice = price
			m.repo.Replace(s)
		}
		return false, nil
	}
	if _, ok := m.repo.Get(id); !ok {
		// removed by a resync while the price was in flight
		return false, nil
	}
	if _, err := m.resolve(ctx, s, d, now); err != nil {
		return false, err
	}
	return true, nil
}

// Seal force-closes an open signal at the current price.
func (m *TradeMonitor) Seal(ctx context.Context, id string) (models.Signal, error) {
	unlock := m.repo.Lock(id)
	defer unlock()

	s, ok := m.repo.Get(id)
	if !ok {
		return models.Signal{}, domrepo.ErrSignalNotFound
	}
	if !s.IsActive() {
		return models.Signal{}, ErrSignalClosed
	}
	price, err := m.market.Price(ctx, s.Pair)
	if err != nil {
		return models.Signal{}, &TransportError{Op: "price", Err: err}
	}
	return m.resolve(ctx, s, lifecycle.Seal(s, price), m.now())
}

// resolve writes the ledger first; the in-memory view only changes once the
// write succeeded. The caller holds the signal's lock. A signal dropped from the
// repository while its price was fetched is not written back.
func (m *TradeMonitor) resolve(ctx context.Context, s models.Signal, d lifecycle.Decision, now time.Time) (models.Signal, error) {
	cur, ok := m.repo.Get(s.ID)
	switch {
	case !ok:
		return models.Signal{}, domrepo.ErrSignalNotFound
	case !cur.IsActive():
		return models.Signal{}, ErrSignalClosed
	}
	updated := lifecycle.Apply(s, d, now.UTC())
	if err := m.ledger.Update(ctx, updated); err != nil {
		return models.Signal{}, &TransportError{Op: "ledger_update", Err: err}
	}
	m.repo.Replace(updated)
	m.metrics.RecordResolution(updated.Status)
	publish(ctx, m.events, m.log, models.EventSignalResolved, updated, now)

	m.log.Info("signal resolved",
		logger.String("id", updated.ID),
		logger.String("pair", updated.Pair),
		logger.String("status", string(updated.Status)),
		logger.Float64("exit", d.ExitPrice),
		logger.Float64("pnl_pct", d.PnLPercent),
	)
	return updated, nil
}

