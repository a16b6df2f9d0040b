package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/pkg/logger"
)

// DefaultRecentLog is how many analytics rows the recent view returns by default.
const DefaultRecentLog = 20

// SignalLogService writes one analytics row per resolved signal. It consumes
// signal.resolved from Kafka or receives events directly via LocalPublisher.
type SignalLogService struct {
	store domrepo.SignalLogStore
	log   *logger.Logger
}

func NewSignalLogService(store domrepo.SignalLogStore, log *logger.Logger) *SignalLogService {
	return &SignalLogService{store: store, log: log.With("signal-log")}
}

// Topic implements kafka.MessageHandler.
func (s *SignalLogService) Topic() string { return models.EventSignalResolved }

// Handle implements kafka.MessageHandler.
func (s *SignalLogService) Handle(ctx context.Context, b []byte) error {
	var ev models.SignalEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		// malformed payloads are not retried
		s.log.Warn("dropping malformed signal event", logger.Error(err))
		return nil
	}
	return s.Record(ctx, ev)
}

// Record appends the event's signal when it is a resolution.
func (s *SignalLogService) Record(ctx context.Context, ev models.SignalEvent) error {
	if ev.Type != models.EventSignalResolved || !ev.Signal.Status.Terminal() {
		return nil
	}
	if err := s.store.Append(ctx, models.LogEntryFromSignal(ev.Signal)); err != nil {
		return fmt.Errorf("append signal log: %w", err)
	}
	return nil
}

// Recent returns the newest n entries; n <= 0 uses DefaultRecentLog.
func (s *SignalLogService) Recent(ctx context.Context, n int) ([]models.SignalLogEntry, error) {
	if n <= 0 {
		n = DefaultRecentLog
	}
	return s.store.Recent(ctx, n)
}

// LocalPublisher delivers events in-process when no broker is configured.
type LocalPublisher struct {
	sink *SignalLogService
}

func NewLocalPublisher(sink *SignalLogService) *LocalPublisher {
	return &LocalPublisher{sink: sink}
}

func (p *LocalPublisher) PublishSignalEvent(ctx context.Context, ev models.SignalEvent) error {
	return p.sink.Record(ctx, ev)
}

func (p *LocalPublisher) Close() error { return nil }
