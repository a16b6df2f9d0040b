package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/repository"
	"FxSignal/internal/service/scoring"
	"FxSignal/pkg/cache"
	"FxSignal/pkg/logger"
	"FxSignal/pkg/metrics"
)

type fakeMarket struct {
	mu        sync.Mutex
	prices    map[string]float64
	priceErr  error
	quote     models.MarketQuote
	ind       models.IndicatorSnapshot
	indErr    error
	candles   []models.Candle
	series    models.IndicatorSeries
	seriesErr error
}

func (f *fakeMarket) Price(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	p, ok := f.prices[symbol]
	if !ok {
		return math.NaN(), nil
	}
	return p, nil
}

func (f *fakeMarket) Quote(context.Context, string) (models.MarketQuote, error) {
	return f.quote, nil
}

func (f *fakeMarket) Indicators(context.Context, string, models.Timeframe) (models.IndicatorSnapshot, error) {
	return f.ind, f.indErr
}

func (f *fakeMarket) TimeSeries(context.Context, string, models.Timeframe, int) ([]models.Candle, error) {
	return f.candles, nil
}

func (f *fakeMarket) IndicatorSeries(context.Context, string, models.Timeframe, []models.Candle) (models.IndicatorSeries, error) {
	return f.series, f.seriesErr
}

type failingLedger struct {
	*repository.MemoryLedger
	createErr error
	updateErr error
}

func (l *failingLedger) Create(ctx context.Context, s models.Signal) error {
	if l.createErr != nil {
		return l.createErr
	}
	return l.MemoryLedger.Create(ctx, s)
}

func (l *failingLedger) Update(ctx context.Context, s models.Signal) error {
	if l.updateErr != nil {
		return l.updateErr
	}
	return l.MemoryLedger.Update(ctx, s)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
}

func (p *recordingPublisher) PublishSignalEvent(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func bullishMarket() *fakeMarket {
	ind := models.DefaultIndicators()
	ind.RSI = 25
	ind.Stoch = 10
	ind.EMA = 1.1
	ind.SMA = 1.0
	return &fakeMarket{prices: map[string]float64{"EUR/USD": 1.2}, ind: ind}
}

type env struct {
	market *fakeMarket
	ledger *failingLedger
	repo   *repository.SignalRepository
	pub    *recordingPublisher
	gen    *SignalGenerator
	mon    *TradeMonitor
}

func newEnv(market *fakeMarket) *env {
	e := &env{
		market: market,
		ledger: &failingLedger{MemoryLedger: repository.NewMemoryLedger()},
		repo:   repository.NewSignalRepository(),
		pub:    &recordingPublisher{},
	}
	log := logger.Nop()
	e.gen = NewSignalGenerator(market, e.ledger, e.repo, e.pub, scoring.New(), metrics.Nop{}, log,
		GeneratorConfig{MinConfidence: scoring.DefaultMinConfidence})
	e.mon = NewTradeMonitor(market, e.ledger, e.repo, e.pub, nil, metrics.Nop{}, log, MonitorConfig{MaxConcurrency: 2})
	return e
}

func TestGenerateAcceptedSignal(t *testing.T) {
	e := newEnv(bullishMarket())
	s, err := e.gen.Generate(context.Background(), "EUR/USD", models.TF1H)
	require.NoError(t, err)

	assert.Equal(t, models.Buy, s.Direction)
	assert.Equal(t, models.StatusActive, s.Status)
	assert.Equal(t, 60, s.Confidence)
	assert.Equal(t, 1.2, s.EntryPrice)
	assert.InDelta(t, 1.1985, s.StopLoss, 1e-9)
	assert.InDelta(t, 1.2025, s.TakeProfit, 1e-9)
	assert.NotEmpty(t, s.ID)

	got, ok := e.repo.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
	rows, err := e.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, []string{models.EventSignalCreated}, e.pub.types())
}

func TestGenerateUsesAskForBuy(t *testing.T) {
	m := bullishMarket()
	ask := 1.2002
	m.quote.Ask = &ask
	e := newEnv(m)
	s, err := e.gen.Generate(context.Background(), "EUR/USD", models.TF1H)
	require.NoError(t, err)
	assert.Equal(t, ask, s.EntryPrice)
	assert.Equal(t, 1.2, s.CurrentPrice)
}

func TestGenerateRejectsWeakSignal(t *testing.T) {
	m := &fakeMarket{prices: map[string]float64{"EUR/USD": 1.1}, ind: models.DefaultIndicators()}
	e := newEnv(m)
	_, err := e.gen.Generate(context.Background(), "EUR/USD", models.TF1H)

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.ErrorIs(t, err, scoring.ErrWeakSignal)
	assert.Empty(t, e.repo.List())
	assert.Empty(t, e.pub.types())
}

func TestGenerateTransportErrors(t *testing.T) {
	m := bullishMarket()
	m.indErr = errors.New("upstream down")
	e := newEnv(m)
	_, err := e.gen.Generate(context.Background(), "EUR/USD", models.TF1H)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "indicators", te.Op)

	m2 := bullishMarket()
	m2.prices = nil
	_, err = newEnv(m2).gen.Generate(context.Background(), "EUR/USD", models.TF1H)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestGenerateLedgerFailureIsTransportError(t *testing.T) {
	e := newEnv(bullishMarket())
	e.ledger.createErr = errors.New("clickhouse unavailable")

	_, err := e.gen.Generate(context.Background(), "EUR/USD", models.TF1H)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ledger_create", te.Op)
	assert.Empty(t, e.repo.List())
	assert.Empty(t, e.pub.types())
}

func seed(t *testing.T, e *env, s models.Signal) {
	t.Helper()
	require.NoError(t, e.ledger.Create(context.Background(), s))
	e.repo.Add(s)
}

func openSignal(id, pair string, created time.Time) models.Signal {
	return models.Signal{
		ID:         id,
		Pair:       pair,
		Direction:  models.Buy,
		EntryPrice: 1.0,
		StopLoss:   0.99,
		TakeProfit: 1.02,
		Timeframe:  models.TF1H,
		Confidence: 60,
		CreatedAt:  created,
		Indicators: models.DefaultIndicators(),
		Status:     models.StatusActive,
	}
}

func TestCheckActiveResolvesAndCollectsErrors(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &fakeMarket{prices: map[string]float64{"WIN/USD": 1.05, "OPEN/USD": 1.01}}
	e := newEnv(m)
	e.mon.now = func() time.Time { return now }

	seed(t, e, openSignal("win", "WIN/USD", now.Add(-10*time.Minute)))
	seed(t, e, openSignal("open", "OPEN/USD", now.Add(-10*time.Minute)))
	seed(t, e, openSignal("expired", "GONE/USD", now.Add(-2*time.Hour)))

	rep, err := e.mon.CheckActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 2, rep.Resolved)

	win, _ := e.repo.Get("win")
	assert.Equal(t, models.StatusWin, win.Status)
	require.NotNil(t, win.ExitPrice)
	assert.Equal(t, 1.02, *win.ExitPrice)

	open, _ := e.repo.Get("open")
	assert.Equal(t, models.StatusActive, open.Status)
	assert.Equal(t, 1.01, open.CurrentPrice)

	gone, _ := e.repo.Get("expired")
	assert.Equal(t, models.StatusExpired, gone.Status)
	assert.ElementsMatch(t, []string{models.EventSignalResolved, models.EventSignalResolved}, e.pub.types())
}

func TestCheckActiveLedgerFailureLeavesRepo(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &fakeMarket{prices: map[string]float64{"EUR/USD": 0.5}}
	e := newEnv(m)
	e.mon.now = func() time.Time { return now }
	seed(t, e, openSignal("a", "EUR/USD", now.Add(-time.Minute)))
	e.ledger.updateErr = errors.New("ledger down")

	_, err := e.mon.CheckActive(context.Background())
	assert.ErrorContains(t, err, "ledger down")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ledger_update", te.Op)
	a, _ := e.repo.Get("a")
	assert.Equal(t, models.StatusActive, a.Status)
	assert.Empty(t, e.pub.types())
}

func TestCheckActiveSkipsWhenLocked(t *testing.T) {
	e := newEnv(&fakeMarket{})
	locker := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	e.mon.locker = locker
	ok, err := locker.TryLock(context.Background(), monitorLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rep, err := e.mon.CheckActive(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
}

// gatedMarket blocks Price until release is closed.
type gatedMarket struct {
	*fakeMarket
	entered chan struct{}
	release chan struct{}
}

func newGatedMarket(m *fakeMarket) *gatedMarket {
	return &gatedMarket{fakeMarket: m, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedMarket) Price(ctx context.Context, symbol string) (float64, error) {
	close(g.entered)
	<-g.release
	return g.fakeMarket.Price(ctx, symbol)
}

// gatedLedger reads its rows, then blocks until release is closed.
type gatedLedger struct {
	*repository.MemoryLedger
	listed  chan struct{}
	release chan struct{}
}

func (l *gatedLedger) List(ctx context.Context) ([]map[string]any, error) {
	rows, err := l.MemoryLedger.List(ctx)
	close(l.listed)
	<-l.release
	return rows, err
}

func TestSyncDoesNotReopenResolvedSignal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newEnv(&fakeMarket{prices: map[string]float64{"EUR/USD": 1.03}})
	e.mon.now = func() time.Time { return now }
	seed(t, e, openSignal("a", "EUR/USD", now.Add(-10*time.Minute)))

	ledger := &gatedLedger{MemoryLedger: e.ledger.MemoryLedger, listed: make(chan struct{}), release: make(chan struct{})}
	synced := make(chan error, 1)
	go func() {
		_, err := NewLedgerSync(ledger, e.repo, logger.Nop()).Sync(ctx)
		synced <- err
	}()
	<-ledger.listed

	rep, err := e.mon.CheckActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Resolved)

	close(ledger.release)
	require.NoError(t, <-synced)

	a, _ := e.repo.Get("a")
	assert.Equal(t, models.StatusWin, a.Status)

	rep, err = e.mon.CheckActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Checked)
	assert.Equal(t, []string{models.EventSignalResolved}, e.pub.types())
}

func TestDeleteWaitsForInFlightResolution(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newEnv(&fakeMarket{})
	seed(t, e, openSignal("a", "EUR/USD", now.Add(-10*time.Minute)))

	market := newGatedMarket(&fakeMarket{prices: map[string]float64{"EUR/USD": 1.03}})
	mon := NewTradeMonitor(market, e.ledger, e.repo, e.pub, nil, metrics.Nop{}, logger.Nop(), MonitorConfig{})
	mon.now = func() time.Time { return now }

	checked := make(chan error, 1)
	go func() {
		_, err := mon.CheckActive(ctx)
		checked <- err
	}()
	<-market.entered

	deleted := make(chan error, 1)
	go func() { deleted <- NewSignalBook(e.ledger, e.repo, e.pub, logger.Nop()).Delete(ctx, "a") }()
	select {
	case err := <-deleted:
		t.Fatalf("delete finished during resolution: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(market.release)
	require.NoError(t, <-checked)
	require.NoError(t, <-deleted)

	assert.Equal(t, []string{models.EventSignalResolved, models.EventSignalDeleted}, e.pub.types())
	rows, err := e.ledger.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	_, ok := e.repo.Get("a")
	assert.False(t, ok)
}

func TestCheckSkipsSignalRemovedDuringFetch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newEnv(&fakeMarket{})
	seed(t, e, openSignal("a", "EUR/USD", now.Add(-10*time.Minute)))

	market := newGatedMarket(&fakeMarket{prices: map[string]float64{"EUR/USD": 1.03}})
	mon := NewTradeMonitor(market, e.ledger, e.repo, e.pub, nil, metrics.Nop{}, logger.Nop(), MonitorConfig{})
	mon.now = func() time.Time { return now }

	checked := make(chan error, 1)
	go func() {
		_, err := mon.CheckActive(ctx)
		checked <- err
	}()
	<-market.entered
	e.repo.ReplaceAll(nil)
	close(market.release)

	require.NoError(t, <-checked)
	assert.Empty(t, e.pub.types())
	rows, err := e.ledger.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ACTIVE", rows[0]["status"])
}

func TestSeal(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &fakeMarket{prices: map[string]float64{"EUR/USD": 0.995}}
	e := newEnv(m)
	e.mon.now = func() time.Time { return now }
	seed(t, e, openSignal("a", "EUR/USD", now.Add(-time.Minute)))

	s, err := e.mon.Seal(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLoss, s.Status)
	require.NotNil(t, s.ExitPrice)
	assert.Equal(t, 0.995, *s.ExitPrice)

	_, err = e.mon.Seal(context.Background(), "a")
	assert.ErrorIs(t, err, ErrSignalClosed)
	_, err = e.mon.Seal(context.Background(), "missing")
	assert.ErrorIs(t, err, domrepo.ErrSignalNotFound)
}

func TestLedgerSyncSkipsInvalidRows(t *testing.T) {
	ctx := context.Background()
	ledger := &rowsLedger{rows: []map[string]any{
		{"id": "a", "pair": "EUR/USD", "direction": "BUY", "entryPrice": "1.1", "timestamp": "2024-01-01T10:00:00Z", "status": "ACTIVE"},
		{"id": "b", "pair": "EUR/USD", "direction": "SIDEWAYS", "entryPrice": 1.1, "timestamp": "2024-01-01T11:00:00Z"},
		{"id": "c", "pair": "GBP/USD", "direction": "SELL", "entryPrice": 1.3, "timestamp": "2024-01-02T10:00:00Z", "status": "WIN"},
	}}
	repo := repository.NewSignalRepository()
	repo.Add(openSignal("stale", "X", time.Now()))

	rep, err := NewLedgerSync(ledger, repo, logger.Nop()).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Loaded: 2, Skipped: 1}, rep)
	list := repo.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	_, ok := repo.Get("stale")
	assert.False(t, ok)
}

type rowsLedger struct {
	repository.MemoryLedger
	rows []map[string]any
}

func (l *rowsLedger) List(context.Context) ([]map[string]any, error) { return l.rows, nil }

func TestBacktestRunner(t *testing.T) {
	buy := models.DefaultIndicators()
	buy.RSI, buy.Stoch, buy.EMA, buy.SMA = 25, 10, 1.1, 1.0
	candles := []models.Candle{{Open: 100, Close: 100}, {Open: 100, Close: 110}, {Open: 110, Close: 120}}
	m := &fakeMarket{candles: candles, series: models.IndicatorSeries{buy, buy, buy}}

	r := NewBacktestRunner(m, scoring.New(), logger.Nop(), time.Second)
	sum, err := r.Run(context.Background(), BacktestParams{Pair: "EUR/USD", Timeframe: models.TF1H, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalTrades)
	assert.InDelta(t, 10.0, sum.AvgProfitPct, 1e-9)

	m.seriesErr = errors.New("boom")
	_, err = r.Run(context.Background(), BacktestParams{Pair: "EUR/USD", Timeframe: models.TF1H, Size: 3})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "indicator_series", te.Op)

	_, err = r.Run(context.Background(), BacktestParams{Size: 2})
	assert.Error(t, err)
}

func TestSignalBookDeleteAndFilter(t *testing.T) {
	e := newEnv(&fakeMarket{})
	now := time.Now()
	seed(t, e, openSignal("a", "EUR/USD", now))
	won := openSignal("b", "GBP/USD", now)
	won.Status = models.StatusWin
	seed(t, e, won)

	book := NewSignalBook(e.ledger, e.repo, e.pub, logger.Nop())
	assert.Len(t, book.List("", ""), 2)
	assert.Len(t, book.List(models.StatusWin, ""), 1)
	assert.Len(t, book.List("", "EUR/USD"), 1)
	assert.Equal(t, 1, book.Performance().CompletedSignals)

	require.NoError(t, book.Delete(context.Background(), "a"))
	_, err := book.Get("a")
	assert.ErrorIs(t, err, domrepo.ErrSignalNotFound)
	assert.ErrorIs(t, book.Delete(context.Background(), "a"), domrepo.ErrSignalNotFound)
	assert.Equal(t, []string{models.EventSignalDeleted}, e.pub.types())
}

func TestSignalLogService(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemorySignalLog(10)
	svc := NewSignalLogService(store, logger.Nop())

	s := openSignal("a", "EUR/USD", time.Now())
	exit, pct := 1.02, 2.0
	s.Status, s.ExitPrice, s.PnLPercent = models.StatusWin, &exit, &pct
	b, err := json.Marshal(models.SignalEvent{Type: models.EventSignalResolved, Signal: s})
	require.NoError(t, err)

	require.NoError(t, svc.Handle(ctx, b))
	require.NoError(t, svc.Handle(ctx, []byte("not json")))
	require.NoError(t, NewLocalPublisher(svc).PublishSignalEvent(ctx, models.SignalEvent{Type: models.EventSignalCreated, Signal: s}))

	got, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].SignalID)
	assert.Equal(t, 2.0, got[0].ProfitPct)
	assert.Equal(t, models.StatusWin, got[0].Result)
	assert.Equal(t, models.EventSignalResolved, svc.Topic())
}
