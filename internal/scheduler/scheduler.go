// Package scheduler runs periodic jobs on injectable tickers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"FxSignal/pkg/logger"
)

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ManualTicker fires only when Tick is called.
type ManualTicker struct {
	ch   chan time.Time
	once sync.Once
	done chan struct{}
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time), done: make(chan struct{})}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

func (m *ManualTicker) Stop() { m.once.Do(func() { close(m.done) }) }

// Tick blocks until the job loop receives the tick or the ticker is stopped.
func (m *ManualTicker) Tick(t time.Time) {
	select {
	case m.ch <- t:
	case <-m.done:
	}
}

// Job is one unit of periodic work. Errors are logged and do not stop the loop.
type Job func(ctx context.Context) error

// Scheduler owns the goroutines of its jobs.
type Scheduler struct {
	log *logger.Logger
	wg  sync.WaitGroup
}

func New(l *logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	return &Scheduler{log: l.With("scheduler")}
}

// Every runs job on each tick until ctx is cancelled. A tick that arrives while
// the job is still running is skipped. With runNow the job also runs once at start.
func (s *Scheduler) Every(ctx context.Context, name string, t Ticker, runNow bool, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.Stop()

		if runNow {
			s.run(ctx, name, job)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				s.run(ctx, name, job)
			}
		}
	}()
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logger.String("job", name), logger.Any("panic", r))
		}
	}()
	if err := job(ctx); err != nil {
		s.log.Warn("job failed",
			logger.String("job", name),
			logger.Duration("duration_ms", time.Since(start)),
			logger.Error(err),
		)
		return
	}
	s.log.Debug("job done", logger.String("job", name), logger.Duration("duration_ms", time.Since(start)))
}
