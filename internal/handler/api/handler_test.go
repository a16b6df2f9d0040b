package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FxSignal/internal/domain/models"
	"FxSignal/internal/repository"
	"FxSignal/internal/service/ratelimit"
	"FxSignal/internal/service/scoring"
	"FxSignal/internal/usecase"
	"FxSignal/pkg/logger"
	"FxSignal/pkg/metrics"
)

type stubMarket struct {
	price    float64
	priceErr error
	ind      models.IndicatorSnapshot
}

func (m *stubMarket) Price(context.Context, string) (float64, error) { return m.price, m.priceErr }

func (m *stubMarket) Quote(context.Context, string) (models.MarketQuote, error) {
	return models.MarketQuote{}, nil
}

func (m *stubMarket) Indicators(context.Context, string, models.Timeframe) (models.IndicatorSnapshot, error) {
	return m.ind, nil
}

func (m *stubMarket) TimeSeries(context.Context, string, models.Timeframe, int) ([]models.Candle, error) {
	return nil, errors.New("no history")
}

func (m *stubMarket) IndicatorSeries(context.Context, string, models.Timeframe, []models.Candle) (models.IndicatorSeries, error) {
	return nil, nil
}

type flakyLedger struct {
	*repository.MemoryLedger
	createErr error
}

func (l *flakyLedger) Create(ctx context.Context, s models.Signal) error {
	if l.createErr != nil {
		return l.createErr
	}
	return l.MemoryLedger.Create(ctx, s)
}

type fixture struct {
	e      *echo.Echo
	market *stubMarket
	repo   *repository.SignalRepository
	ledger *flakyLedger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ind := models.DefaultIndicators()
	ind.RSI, ind.Stoch, ind.EMA, ind.SMA = 25, 10, 1.1, 1.0
	f := &fixture{
		market: &stubMarket{price: 1.2, ind: ind},
		repo:   repository.NewSignalRepository(),
		ledger: &flakyLedger{MemoryLedger: repository.NewMemoryLedger()},
	}
	log := logger.Nop()
	engine := scoring.New()
	events := repository.NoopPublisher{}
	svc := Services{
		Generator: usecase.NewSignalGenerator(f.market, f.ledger, f.repo, events, engine, metrics.Nop{}, log,
			usecase.GeneratorConfig{MinConfidence: scoring.DefaultMinConfidence}),
		Monitor:   usecase.NewTradeMonitor(f.market, f.ledger, f.repo, events, nil, metrics.Nop{}, log, usecase.MonitorConfig{}),
		Sync:      usecase.NewLedgerSync(f.ledger, f.repo, log),
		Book:      usecase.NewSignalBook(f.ledger, f.repo, events, log),
		Backtest:  usecase.NewBacktestRunner(f.market, engine, log, time.Second),
		SignalLog: usecase.NewSignalLogService(repository.NewMemorySignalLog(10), log),
	}
	f.e = echo.New()
	NewSignalsHandler(log, svc, opts...).RegisterRoutes(f.e)
	NewStreamHandler(log, f.repo, 20*time.Millisecond).RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func (f *fixture) generate(t *testing.T) signalView {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/signals", `{"pair":"EUR/USD"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v signalView
	decode(t, rec, &v)
	return v
}

func TestGenerateCreatesSignal(t *testing.T) {
	f := newFixture(t)
	v := f.generate(t)
	assert.Equal(t, models.Buy, v.Direction)
	assert.Equal(t, models.TF1H, v.Timeframe)
	assert.InDelta(t, 59, v.RemainingMinutes, 1)

	rec := f.do(http.MethodGet, "/api/signals/"+v.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/signals?status=ACTIVE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []signalView `json:"rows"`
		Total int          `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)
}

func TestGenerateErrorMapping(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/signals", `{"timeframe":"2h"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.market.ind = models.DefaultIndicators()
	f.market.price = 1.1
	rec = f.do(http.MethodPost, "/api/signals", `{"pair":"EUR/USD"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_WEAK_SIGNAL")

	f.market.priceErr = ratelimit.ErrKeysExhausted
	rec = f.do(http.MethodPost, "/api/signals", `{"pair":"EUR/USD"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	f.market.priceErr = errors.New("connection reset")
	rec = f.do(http.MethodPost, "/api/signals", `{"pair":"EUR/USD"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_TRANSPORT")
}

func TestGenerateLedgerFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.ledger.createErr = errors.New("clickhouse unavailable")

	rec := f.do(http.MethodPost, "/api/signals", `{"pair":"EUR/USD"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_TRANSPORT")
	assert.Contains(t, rec.Body.String(), "ledger_create")
	assert.Empty(t, f.repo.List())
}

func TestSealAndDelete(t *testing.T) {
	f := newFixture(t)
	v := f.generate(t)

	rec := f.do(http.MethodPost, "/api/signals/"+v.ID+"/seal", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sealed signalView
	decode(t, rec, &sealed)
	assert.True(t, sealed.Status.Terminal())

	rec = f.do(http.MethodPost, "/api/signals/"+v.ID+"/seal", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodDelete, "/api/signals/"+v.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/api/signals/"+v.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckSyncPerformance(t *testing.T) {
	f := newFixture(t)
	f.generate(t)

	rec := f.do(http.MethodPost, "/api/signals/check", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"checked":1`)

	rec = f.do(http.MethodPost, "/api/signals/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep usecase.SyncReport
	decode(t, rec, &rep)
	assert.Equal(t, 1, rep.Loaded)

	rec = f.do(http.MethodGet, "/api/performance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.PerformanceStats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.ActiveSignals)

	rec = f.do(http.MethodGet, "/api/analytics/recent", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBacktestValidationAndTransport(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/backtest", `{"pair":"EUR/USD","size":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/backtest", `{"pair":"EUR/USD"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestThrottle(t *testing.T) {
	f := newFixture(t, WithThrottle(ratelimit.New(), 0.001, 1))
	f.generate(t)
	rec := f.do(http.MethodPost, "/api/signals", `{"pair":"EUR/USD"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	// reads are never throttled
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/signals", "").Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, WithHealthCheck("ledger", func(context.Context) error { return nil }))
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)

	f = newFixture(t, WithHealthCheck("clickhouse", func(context.Context) error { return errors.New("down") }))
	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}

func TestStreamSendsActivePnL(t *testing.T) {
	f := newFixture(t)
	v := f.generate(t)

	srv := httptest.NewServer(f.e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/trades/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame []PnLUpdate
	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame, 1)
	assert.Equal(t, v.ID, frame[0].SignalID)
	assert.Equal(t, 1.2, frame[0].CurrentPrice)
	assert.InDelta(t, 1.2-v.EntryPrice, frame[0].CurrentPnL, 1e-9)
}
