package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FxSignal/internal/domain/models"
	"FxSignal/internal/repository"
	"FxSignal/internal/service/lifecycle"
	xlogger "FxSignal/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// PnLUpdate is one frame entry of the live stream.
type PnLUpdate struct {
	SignalID     string  `json:"signalId"`
	Pair         string  `json:"pair"`
	CurrentPrice float64 `json:"currentPrice"`
	CurrentPnL   float64 `json:"currentPnL"`
}

// StreamHandler pushes unrealised pnl of active signals over a websocket. Frames
// go out on every repository change and on each refresh tick.
type StreamHandler struct {
	repo     *repository.SignalRepository
	logger   *xlogger.Logger
	refresh  time.Duration
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *xlogger.Logger, repo *repository.SignalRepository, refresh time.Duration) *StreamHandler {
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	return &StreamHandler{
		repo:    repo,
		logger:  logger.With("stream"),
		refresh: refresh,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/trades/stream", h.Stream)
}

// Snapshot computes the current frame from the repository.
func (h *StreamHandler) Snapshot() []PnLUpdate {
	active := h.repo.Active()
	out := make([]PnLUpdate, 0, len(active))
	for _, s := range active {
		out = append(out, pnlUpdate(s))
	}
	return out
}

func pnlUpdate(s models.Signal) PnLUpdate {
	price := s.CurrentPrice
	if !models.IsFinite(price) || price == 0 {
		price = s.EntryPrice
	}
	return PnLUpdate{
		SignalID:     s.ID,
		Pair:         s.Pair,
		CurrentPrice: price,
		CurrentPnL:   lifecycle.LivePnL(s, price),
	}
}

func (h *StreamHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	changes, cancel := h.repo.Subscribe(16)
	defer cancel()

	// read loop only services control frames and notices the close
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	refresh := time.NewTicker(h.refresh)
	defer refresh.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	h.logger.Debug("stream client connected", xlogger.String("remote", c.RealIP()))
	if err := h.send(conn); err != nil {
		return nil
	}
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			h.logger.Debug("stream client disconnected", xlogger.String("remote", c.RealIP()))
			return nil
		case <-changes:
			if err := h.send(conn); err != nil {
				return nil
			}
		case <-refresh.C:
			if err := h.send(conn); err != nil {
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func (h *StreamHandler) send(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(h.Snapshot()); err != nil {
		h.logger.Debug("stream write failed", xlogger.Error(err))
		return err
	}
	return nil
}
