package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/repository"
	"FxSignal/internal/service/performance"
	"FxSignal/pkg/logger"
)

// SignalBook serves reads over the repository and deletes through the ledger.
type SignalBook struct {
	ledger domrepo.SignalLedger
	repo   *repository.SignalRepository
	events domrepo.EventPublisher
	log    *logger.Logger
	now    func() time.Time
}

func NewSignalBook(ledger domrepo.SignalLedger, repo *repository.SignalRepository, events domrepo.EventPublisher, log *logger.Logger) *SignalBook {
	return &SignalBook{ledger: ledger, repo: repo, events: events, log: log.With("signals"), now: time.Now}
}

// List returns signals newest first, optionally filtered by status and pair.
func (b *SignalBook) List(status models.Status, pair string) []models.Signal {
	all := b.repo.List()
	if status == "" && pair == "" {
		return all
	}
	out := make([]models.Signal, 0, len(all))
	for _, s := range all {
		if status != "" && s.Status != status {
			continue
		}
		if pair != "" && s.Pair != pair {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (b *SignalBook) Get(id string) (models.Signal, error) {
	s, ok := b.repo.Get(id)
	if !ok {
		return models.Signal{}, domrepo.ErrSignalNotFound
	}
	return s, nil
}

// Delete removes id from the ledger and the repository. A row missing from the
// ledger but present in memory is still removed locally. It waits for any
// in-flight resolution of the same signal so a tombstone is never followed by a
// resolution write.
func (b *SignalBook) Delete(ctx context.Context, id string) error {
	unlock := b.repo.Lock(id)
	defer unlock()

	s, ok := b.repo.Get(id)
	err := b.ledger.Delete(ctx, id)
	if err != nil && !(ok && errors.Is(err, domrepo.ErrSignalNotFound)) {
		return fmt.Errorf("delete signal: %w", err)
	}
	if !ok {
		return domrepo.ErrSignalNotFound
	}
	b.repo.Remove(id)
	publish(ctx, b.events, b.log, models.EventSignalDeleted, s, b.now())
	return nil
}

// Performance aggregates the current repository content.
func (b *SignalBook) Performance() models.PerformanceStats {
	return performance.Aggregate(b.repo.List())
}
