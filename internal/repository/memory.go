package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
)

// MemoryLedger is a SignalLedger kept in process memory. Rows round-trip through
// JSON so List returns the same shape as the persistent ledger.
type MemoryLedger struct {
	mu    sync.Mutex
	order []string
	rows  map[string][]byte
}

var _ domrepo.SignalLedger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rows: make(map[string][]byte)}
}

func (m *MemoryLedger) Create(_ context.Context, s models.Signal) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ledger create: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; ok {
		return fmt.Errorf("ledger create: duplicate id %s", s.ID)
	}
	m.order = append(m.order, s.ID)
	m.rows[s.ID] = b
	return nil
}

func (m *MemoryLedger) Update(_ context.Context, s models.Signal) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ledger update: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; !ok {
		return fmt.Errorf("ledger update %s: %w", s.ID, domrepo.ErrSignalNotFound)
	}
	m.rows[s.ID] = b
	return nil
}

func (m *MemoryLedger) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("ledger delete %s: %w", id, domrepo.ErrSignalNotFound)
	}
	delete(m.rows, id)
	for i, cur := range m.order {
		if cur == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryLedger) List(_ context.Context) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.order))
	for _, id := range m.order {
		row, err := decodeRow(m.rows[id])
		if err != nil {
			return nil, fmt.Errorf("ledger list %s: %w", id, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// MemorySignalLog keeps the most recent entries up to a fixed capacity.
type MemorySignalLog struct {
	mu      sync.Mutex
	cap     int
	entries []models.SignalLogEntry
}

var _ domrepo.SignalLogStore = (*MemorySignalLog)(nil)

func NewMemorySignalLog(capacity int) *MemorySignalLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemorySignalLog{cap: capacity}
}

func (m *MemorySignalLog) Append(_ context.Context, e models.SignalLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.cap; over > 0 {
		m.entries = append([]models.SignalLogEntry(nil), m.entries[over:]...)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (m *MemorySignalLog) Recent(_ context.Context, n int) ([]models.SignalLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]models.SignalLogEntry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
