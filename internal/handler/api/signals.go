package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FxSignal/internal/domain/models"
	"FxSignal/internal/service/lifecycle"
	"FxSignal/internal/service/ratelimit"
	"FxSignal/internal/usecase"
	xhttp "FxSignal/pkg/http"
	"FxSignal/pkg/http/middleware"
	xlogger "FxSignal/pkg/logger"
)

// Services groups the usecases served over HTTP.
type Services struct {
	Generator *usecase.SignalGenerator
	Monitor   *usecase.TradeMonitor
	Sync      *usecase.LedgerSync
	Book      *usecase.SignalBook
	Backtest  *usecase.BacktestRunner
	SignalLog *usecase.SignalLogService
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type Option func(*SignalsHandler)

// WithThrottle limits generate and backtest calls per client IP.
func WithThrottle(l *ratelimit.Limiter, perSecond, burst float64) Option {
	return func(h *SignalsHandler) {
		h.limiter, h.rate, h.burst = l, perSecond, burst
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *SignalsHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

func WithBacktestSize(n int) Option {
	return func(h *SignalsHandler) {
		if n >= 3 {
			h.backtestSize = n
		}
	}
}

// SignalsHandler implements the REST surface on Echo.
type SignalsHandler struct {
	svc    Services
	logger *xlogger.Logger
	now    func() time.Time

	limiter      *ratelimit.Limiter
	rate, burst  float64
	checks       map[string]HealthCheck
	backtestSize int
}

func NewSignalsHandler(logger *xlogger.Logger, svc Services, opts ...Option) *SignalsHandler {
	h := &SignalsHandler{
		svc:          svc,
		logger:       logger.With("api"),
		now:          time.Now,
		checks:       make(map[string]HealthCheck),
		backtestSize: 50,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	throttled := h.throttle()
	g.POST("/signals", h.Generate, throttled...)
	g.GET("/signals", h.List)
	g.POST("/signals/check", h.Check)
	g.POST("/signals/sync", h.Sync)
	g.GET("/signals/:id", h.Get)
	g.DELETE("/signals/:id", h.Delete)
	g.POST("/signals/:id/seal", h.Seal)
	g.GET("/performance", h.Performance)
	g.POST("/backtest", h.Backtest, throttled...)
	g.GET("/analytics/recent", h.RecentLog)
}

func (h *SignalsHandler) throttle() []echo.MiddlewareFunc {
	if h.limiter == nil || h.rate <= 0 {
		return nil
	}
	return []echo.MiddlewareFunc{middleware.Throttle(func(key string) bool {
		return h.limiter.Allow(key, h.burst, h.rate)
	})}
}

// signalView adds the minutes left in the holding window.
type signalView struct {
	models.Signal
	RemainingMinutes int `json:"remainingMinutes"`
}

func (h *SignalsHandler) view(s models.Signal) signalView {
	v := signalView{Signal: s}
	if s.IsActive() {
		v.RemainingMinutes = lifecycle.Remaining(s, h.now())
	}
	return v
}

func (h *SignalsHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" refused", xlogger.Error(err), xlogger.Int("status", appErr.Status))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *SignalsHandler) Generate(c echo.Context) error {
	req := &models.GenerateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.svc.Generator.Generate(c.Request().Context(), req.Pair, models.Timeframe(req.Timeframe))
	if err != nil {
		return h.fail(c, "generate", err)
	}
	return xhttp.CreatedResponse(c, h.view(s))
}

func (h *SignalsHandler) List(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	signals := h.svc.Book.List(models.Status(req.Status), req.Pair)
	rows := make([]signalView, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, h.view(s))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) Get(c echo.Context) error {
	req := &models.SignalIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.svc.Book.Get(req.ID)
	if err != nil {
		return h.fail(c, "get", err)
	}
	return xhttp.SuccessResponse(c, h.view(s))
}

func (h *SignalsHandler) Delete(c echo.Context) error {
	req := &models.SignalIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.svc.Book.Delete(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "delete", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *SignalsHandler) Seal(c echo.Context) error {
	req := &models.SignalIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := h.svc.Monitor.Seal(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "seal", err)
	}
	return xhttp.SuccessResponse(c, h.view(s))
}

// Check runs a monitor pass now. Per-signal failures are reported alongside the
// counts rather than failing the request.
func (h *SignalsHandler) Check(c echo.Context) error {
	rep, err := h.svc.Monitor.CheckActive(c.Request().Context())
	body := map[string]interface{}{"report": rep}
	if err != nil {
		h.logger.Warn("manual monitor pass had errors", xlogger.Error(err))
		body["errors"] = err.Error()
	}
	return xhttp.SuccessResponse(c, body)
}

func (h *SignalsHandler) Sync(c echo.Context) error {
	rep, err := h.svc.Sync.Sync(c.Request().Context())
	if err != nil {
		return h.fail(c, "sync", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *SignalsHandler) Performance(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, h.svc.Book.Performance())
}

func (h *SignalsHandler) Backtest(c echo.Context) error {
	req := &models.BacktestRequest{Size: h.backtestSize}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sum, err := h.svc.Backtest.Run(c.Request().Context(), usecase.BacktestParams{
		Pair:          req.Pair,
		Timeframe:     models.Timeframe(req.Timeframe),
		Size:          req.Size,
		MinConfidence: req.MinConfidence,
	})
	if err != nil {
		return h.fail(c, "backtest", err)
	}
	return xhttp.SuccessResponse(c, sum)
}

func (h *SignalsHandler) RecentLog(c echo.Context) error {
	req := &models.RecentLogRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.svc.SignalLog.Recent(c.Request().Context(), req.N)
	if err != nil {
		return h.fail(c, "recent log", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Health reports 503 when any registered dependency check fails.
func (h *SignalsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	return xhttp.DataResponse(c, code, status)
}
