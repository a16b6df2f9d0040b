package usecase

import (
	"context"
	"fmt"
	"sort"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/repository"
	"FxSignal/pkg/logger"
)

// SyncReport counts the rows seen by one resync.
type SyncReport struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// LedgerSync reloads the in-memory repository from the ledger.
type LedgerSync struct {
	ledger domrepo.SignalLedger
	repo   *repository.SignalRepository
	log    *logger.Logger
}

func NewLedgerSync(ledger domrepo.SignalLedger, repo *repository.SignalRepository, log *logger.Logger) *LedgerSync {
	return &LedgerSync{ledger: ledger, repo: repo, log: log.With("ledger-sync")}
}

// Sync replaces the repository with the ledger content. Rows that do not parse
// are skipped with a warning.
func (s *LedgerSync) Sync(ctx context.Context) (SyncReport, error) {
	rows, err := s.ledger.List(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("ledger list: %w", err)
	}
	signals := make([]models.Signal, 0, len(rows))
	var rep SyncReport
	for i, row := range rows {
		sig, err := models.ParseSignalRow(row)
		if err != nil {
			rep.Skipped++
			s.log.Warn("skipping ledger row", logger.Int("row", i), logger.Error(err))
			continue
		}
		signals = append(signals, sig)
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].CreatedAt.After(signals[j].CreatedAt)
	})
	s.repo.ReplaceAll(signals)
	rep.Loaded = len(signals)
	s.log.Info("ledger synced", logger.Int("loaded", rep.Loaded), logger.Int("skipped", rep.Skipped))
	return rep, nil
}
