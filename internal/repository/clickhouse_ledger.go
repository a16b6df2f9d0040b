package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	pkgch "FxSignal/pkg/clickhouse"
	applogger "FxSignal/pkg/logger"
)

// ClickHouseLedger stores each signal as a JSON payload in a ReplacingMergeTree.
// Every write inserts a new version; reads use FINAL so only the latest survives.
type ClickHouseLedger struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time

	verMu   sync.Mutex
	lastVer uint64
}

var _ domrepo.SignalLedger = (*ClickHouseLedger)(nil)

func NewClickHouseLedger(ch *pkgch.Client, l *applogger.Logger) *ClickHouseLedger {
	return newClickHouseLedger(ch.DB(), ch.Database()+".signals", l)
}

func newClickHouseLedger(db *sql.DB, table string, l *applogger.Logger) *ClickHouseLedger {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseLedger{db: db, table: table, l: l.With("clickhouse-ledger"), now: time.Now}
}

func (s *ClickHouseLedger) Create(ctx context.Context, sig models.Signal) error {
	return s.write(ctx, "create", sig, false)
}

func (s *ClickHouseLedger) Update(ctx context.Context, sig models.Signal) error {
	return s.write(ctx, "update", sig, false)
}

func (s *ClickHouseLedger) Delete(ctx context.Context, id string) error {
	return s.write(ctx, "delete", models.Signal{ID: id}, true)
}

func (s *ClickHouseLedger) write(ctx context.Context, op string, sig models.Signal, deleted bool) error {
	payload := []byte("{}")
	if !deleted {
		b, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("ledger %s: encode: %w", op, err)
		}
		payload = b
	}
	var del uint8
	if deleted {
		del = 1
	}
	q := fmt.Sprintf("INSERT INTO %s (id, payload, status, pair, created_at, version, is_deleted) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		sig.ID,
		string(payload),
		string(sig.Status),
		sig.Pair,
		sig.CreatedAt.UTC(),
		s.nextVersion(),
		del,
	)
	if err != nil {
		s.l.Error("clickhouse ledger write error",
			applogger.String("op", op),
			applogger.String("id", sig.ID),
			applogger.Error(err),
		)
		return fmt.Errorf("ledger %s: %w", op, err)
	}
	return nil
}

// List returns every live row as a loosely typed map, oldest first.
func (s *ClickHouseLedger) List(ctx context.Context) ([]map[string]any, error) {
	start := s.now()
	q := fmt.Sprintf("SELECT payload FROM %s FINAL WHERE is_deleted = 0 ORDER BY created_at ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse ledger list error", applogger.Error(err))
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0, 64)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		row, err := decodeRow([]byte(payload))
		if err != nil {
			// kept so the caller can report it as an invalid row
			row = map[string]any{"_raw": payload}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger rows: %w", err)
	}
	s.l.Debug("clickhouse ledger list ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", s.now().Sub(start)),
	)
	return out, nil
}

// nextVersion is strictly increasing within the process even if the clock stalls.
func (s *ClickHouseLedger) nextVersion() uint64 {
	s.verMu.Lock()
	defer s.verMu.Unlock()
	v := uint64(s.now().UnixNano())
	if v <= s.lastVer {
		v = s.lastVer + 1
	}
	s.lastVer = v
	return v
}

func decodeRow(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// ClickHouseSignalLog is the analytics table of resolved signals.
type ClickHouseSignalLog struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

var _ domrepo.SignalLogStore = (*ClickHouseSignalLog)(nil)

func NewClickHouseSignalLog(ch *pkgch.Client, l *applogger.Logger) *ClickHouseSignalLog {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseSignalLog{ch: ch, table: ch.Database() + ".signal_log", l: l.With("clickhouse-signal-log")}
}

func (s *ClickHouseSignalLog) Append(ctx context.Context, e models.SignalLogEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (signal_id, ts, pair, direction, entry, exit, profit_pct, confidence, result) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	err := s.ch.InsertRows(ctx, q, [][]any{{
		e.SignalID,
		e.Timestamp.UTC(),
		e.Pair,
		string(e.Direction),
		e.Entry,
		e.Exit,
		e.ProfitPct,
		uint8(e.Confidence),
		string(e.Result),
	}})
	if err != nil {
		s.l.Error("clickhouse signal_log insert error", applogger.String("id", e.SignalID), applogger.Error(err))
		return fmt.Errorf("signal log append: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, newest first.
func (s *ClickHouseSignalLog) Recent(ctx context.Context, n int) ([]models.SignalLogEntry, error) {
	q := fmt.Sprintf(`
        SELECT signal_id, ts, pair, direction, entry, exit, profit_pct, confidence, result
        FROM %s FINAL
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.ch.DB().QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("signal log recent: %w", err)
	}
	defer rows.Close()

	out := make([]models.SignalLogEntry, 0, n)
	for rows.Next() {
		var (
			e          models.SignalLogEntry
			dir, res   string
			confidence uint8
		)
		if err := rows.Scan(&e.SignalID, &e.Timestamp, &e.Pair, &dir, &e.Entry, &e.Exit, &e.ProfitPct, &confidence, &res); err != nil {
			return nil, fmt.Errorf("signal log scan: %w", err)
		}
		e.Direction = models.Direction(dir)
		e.Result = models.Status(res)
		e.Confidence = int(confidence)
		out = append(out, e)
	}
	return out, rows.Err()
}
