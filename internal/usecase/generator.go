package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FxSignal/internal/domain/models"
	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/repository"
	"FxSignal/internal/service/scoring"
	"FxSignal/pkg/logger"
)

// GeneratorConfig holds acceptance and risk settings.
type GeneratorConfig struct {
	MinConfidence int
	SLMultiplier  float64
	TPMultiplier  float64
}

// SignalGenerator fetches market state, scores it and records accepted signals.
type SignalGenerator struct {
	market  domrepo.MarketDataSource
	ledger  domrepo.SignalLedger
	repo    *repository.SignalRepository
	events  domrepo.EventPublisher
	engine  *scoring.Engine
	metrics domrepo.Metrics
	log     *logger.Logger
	cfg     GeneratorConfig
	now     func() time.Time
}

func NewSignalGenerator(
	market domrepo.MarketDataSource,
	ledger domrepo.SignalLedger,
	repo *repository.SignalRepository,
	events domrepo.EventPublisher,
	engine *scoring.Engine,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg GeneratorConfig,
) *SignalGenerator {
	if cfg.SLMultiplier <= 0 {
		cfg.SLMultiplier = scoring.DefaultSLMultiplier
	}
	if cfg.TPMultiplier <= 0 {
		cfg.TPMultiplier = scoring.DefaultTPMultiplier
	}
	return &SignalGenerator{
		market:  market,
		ledger:  ledger,
		repo:    repo,
		events:  events,
		engine:  engine,
		metrics: metrics,
		log:     log.With("generator"),
		cfg:     cfg,
		now:     time.Now,
	}
}

type marketState struct {
	price float64
	quote models.MarketQuote
	ind   models.IndicatorSnapshot
}

// fetch loads price, quote and indicators concurrently. The first failure in
// that order is returned as a TransportError.
func (g *SignalGenerator) fetch(ctx context.Context, pair string, tf models.Timeframe) (marketState, error) {
	var (
		st                       marketState
		priceErr, quoteErr, iErr error
		wg                       sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		st.price, priceErr = g.market.Price(ctx, pair)
	}()
	go func() {
		defer wg.Done()
		st.quote, quoteErr = g.market.Quote(ctx, pair)
	}()
	go func() {
		defer wg.Done()
		st.ind, iErr = g.market.Indicators(ctx, pair, tf)
	}()
	wg.Wait()

	switch {
	case priceErr != nil:
		return st, &TransportError{Op: "price", Err: priceErr}
	case quoteErr != nil:
		return st, &TransportError{Op: "quote", Err: quoteErr}
	case iErr != nil:
		return st, &TransportError{Op: "indicators", Err: iErr}
	case !models.IsFinite(st.price):
		return st, &TransportError{Op: "price", Err: ErrInvalidPrice}
	}
	return st, nil
}

// Generate scores pair on tf and, when accepted, persists and publishes a new
// ACTIVE signal. Rejections return a *RejectionError.
func (g *SignalGenerator) Generate(ctx context.Context, pair string, tf models.Timeframe) (models.Signal, error) {
	st, err := g.fetch(ctx, pair, tf)
	if err != nil {
		return models.Signal{}, err
	}
	q := st.quote
	q.Price = st.price
	ind := st.ind.Normalize()

	r := g.engine.Score(q, ind, pair, tf, g.repo.List())
	if err := scoring.Accept(r, g.cfg.MinConfidence); err != nil {
		g.metrics.RecordSignalRejected(rejectReason(err))
		g.log.Info("signal rejected",
			logger.String("pair", pair),
			logger.String("timeframe", string(tf)),
			logger.Int("confidence", r.Confidence),
			logger.Float64("strength", r.SignalStrength),
			logger.Error(err),
		)
		return models.Signal{}, &RejectionError{
			Reason:     err,
			Confidence: r.Confidence,
			Strength:   r.SignalStrength,
			Rationale:  r.Rationale,
		}
	}

	entry := entryPrice(r.Direction, st.price, q)
	sl, tp := scoring.Levels(r.Direction, entry, ind.ATR, g.cfg.SLMultiplier, g.cfg.TPMultiplier)
	id, err := uuid.NewV7()
	if err != nil {
		return models.Signal{}, fmt.Errorf("signal id: %w", err)
	}

	s := models.Signal{
		ID:           id.String(),
		Pair:         pair,
		Direction:    r.Direction,
		EntryPrice:   entry,
		StopLoss:     sl,
		TakeProfit:   tp,
		Timeframe:    tf,
		Confidence:   r.Confidence,
		CreatedAt:    g.now().UTC(),
		CurrentPrice: st.price,
		Indicators:   ind,
		Rationale:    r.Rationale,
		Status:       models.StatusActive,
	}
	if err := g.ledger.Create(ctx, s); err != nil {
		return models.Signal{}, &TransportError{Op: "ledger_create", Err: err}
	}
	g.repo.Add(s)
	g.metrics.RecordSignalGenerated(pair, s.Direction)
	publish(ctx, g.events, g.log, models.EventSignalCreated, s, g.now())

	g.log.Info("signal generated",
		logger.String("id", s.ID),
		logger.String("pair", pair),
		logger.String("direction", string(s.Direction)),
		logger.Int("confidence", s.Confidence),
		logger.Float64("entry", s.EntryPrice),
	)
	return s, nil
}

// entryPrice fills BUY at the ask and SELL at the bid when the quote carries them.
func entryPrice(dir models.Direction, price float64, q models.MarketQuote) float64 {
	switch {
	case dir == models.Buy && q.Ask != nil && *q.Ask > 0:
		return *q.Ask
	case dir == models.Sell && q.Bid != nil && *q.Bid > 0:
		return *q.Bid
	}
	return price
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, scoring.ErrWeakSignal):
		return "weak_signal"
	case errors.Is(err, scoring.ErrLowConfidence):
		return "low_confidence"
	default:
		return "other"
	}
}

// publish sends a lifecycle event. Failures are logged; the ledger stays the
// source of truth.
func publish(ctx context.Context, events domrepo.EventPublisher, log *logger.Logger, typ string, s models.Signal, at time.Time) {
	if events == nil {
		return
	}
	ev := models.SignalEvent{Type: typ, Signal: s, Timestamp: at.UTC()}
	if err := events.PublishSignalEvent(ctx, ev); err != nil {
		log.Warn("publish event failed",
			logger.String("type", typ),
			logger.String("id", s.ID),
			logger.Error(err),
		)
	}
}
