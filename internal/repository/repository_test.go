package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
)

func sig(id string, status models.Status) models.Signal {
	return models.Signal{
		ID:         id,
		Pair:       "EUR/USD",
		Direction:  models.Buy,
		EntryPrice: 1.1,
		StopLoss:   1.09,
		TakeProfit: 1.12,
		Timeframe:  models.TF1H,
		Confidence: 60,
		CreatedAt:  time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Indicators: models.DefaultIndicators(),
		Status:     status,
	}
}

func TestSignalRepositoryCopyOnWrite(t *testing.T) {
	r := NewSignalRepository()
	r.Add(sig("a", models.StatusActive))
	r.Add(sig("b", models.StatusWin))

	snapshot := r.List()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "b", snapshot[0].ID, "newest first")

	updated := sig("a", models.StatusLoss)
	require.True(t, r.Replace(updated))
	assert.Equal(t, models.StatusActive, snapshot[1].Status, "earlier reads are unaffected")

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, models.StatusLoss, got.Status)
	assert.Empty(t, r.Active())

	assert.False(t, r.Replace(sig("zzz", models.StatusActive)))
	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"))
	assert.Len(t, r.List(), 1)
}

func TestSignalRepositoryAddReplacesSameID(t *testing.T) {
	r := NewSignalRepository()
	r.Add(sig("a", models.StatusActive))
	r.Add(sig("a", models.StatusWin))
	require.Len(t, r.List(), 1)
	assert.Equal(t, models.StatusWin, r.List()[0].Status)
}

func TestSignalRepositorySubscribe(t *testing.T) {
	r := NewSignalRepository()
	ch, cancel := r.Subscribe(1)

	r.Add(sig("a", models.StatusActive))
	r.Add(sig("b", models.StatusActive)) // dropped, buffer full

	c := <-ch
	assert.Equal(t, ChangeAdded, c.Kind)
	assert.Equal(t, "a", c.Signal.ID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected change %v", extra)
	default:
	}

	r.ReplaceAll(nil)
	assert.Equal(t, ChangeReset, (<-ch).Kind)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	r.Add(sig("c", models.StatusActive))
}

func TestSignalRepositoryReplaceAllKeepsResolved(t *testing.T) {
	r := NewSignalRepository()
	r.Add(sig("a", models.StatusWin))
	r.Add(sig("b", models.StatusActive))

	r.ReplaceAll([]models.Signal{sig("a", models.StatusActive), sig("b", models.StatusLoss), sig("c", models.StatusActive)})

	a, _ := r.Get("a")
	assert.Equal(t, models.StatusWin, a.Status, "stale ACTIVE row must not reopen a resolved signal")
	b, _ := r.Get("b")
	assert.Equal(t, models.StatusLoss, b.Status)
	assert.Len(t, r.List(), 3)

	r.ReplaceAll([]models.Signal{sig("c", models.StatusActive)})
	_, ok := r.Get("a")
	assert.False(t, ok, "rows missing from the ledger are dropped")
}

func TestSignalRepositoryLockSerialisesSameID(t *testing.T) {
	r := NewSignalRepository()
	unlock := r.Lock("a")

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		r.Lock("a")()
	}()
	select {
	case <-acquired:
		t.Fatal("second lock on the same id acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	r.Lock("b")() // other ids are independent
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released")
	}
}

func TestMemoryLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	s := sig("a", models.StatusActive)
	require.NoError(t, l.Create(ctx, s))
	assert.Error(t, l.Create(ctx, s))

	exit, pnl := 1.12, 0.02
	s.Status, s.ExitPrice, s.PnL = models.StatusWin, &exit, &pnl
	require.NoError(t, l.Update(ctx, s))
	assert.ErrorIs(t, l.Update(ctx, sig("missing", models.StatusActive)), domrepo.ErrSignalNotFound)

	rows, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	parsed, err := models.ParseSignalRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusWin, parsed.Status)
	require.NotNil(t, parsed.ExitPrice)
	assert.Equal(t, 1.12, *parsed.ExitPrice)
	assert.True(t, s.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, s.Indicators, parsed.Indicators)

	require.NoError(t, l.Delete(ctx, "a"))
	assert.ErrorIs(t, l.Delete(ctx, "a"), domrepo.ErrSignalNotFound)
	rows, err = l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemorySignalLogRecent(t *testing.T) {
	ctx := context.Background()
	l := NewMemorySignalLog(3)
	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, l.Append(ctx, models.SignalLogEntry{SignalID: id}))
	}
	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.SignalID)
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids)

	got, err = l.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "4", got[0].SignalID)
}

type fakeProducer struct {
	topic string
	key   []byte
	value interface{}
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.topic, f.key, f.value = topic, key, value
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaEventPublisherUsesEventTopic(t *testing.T) {
	p := &fakeProducer{}
	pub := NewKafkaEventPublisher(p)
	ev := models.SignalEvent{Type: models.EventSignalResolved, Signal: sig("a", models.StatusWin)}
	require.NoError(t, pub.PublishSignalEvent(context.Background(), ev))
	assert.Equal(t, models.EventSignalResolved, p.topic)
	assert.Equal(t, []byte("a"), p.key)
	assert.Equal(t, ev, p.value)
}

func TestClickHouseLedgerVersionMonotonic(t *testing.T) {
	l := newClickHouseLedger(nil, "fx.signals", nil)
	fixed := time.Unix(100, 0)
	l.now = func() time.Time { return fixed }
	a, b := l.nextVersion(), l.nextVersion()
	assert.Greater(t, b, a)
}
