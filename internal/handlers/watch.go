package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mealvault/mealvault/internal/repository"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/logger"
	"github.com/mealvault/mealvault/pkg/response"
)

const watchWriteTimeout = 10 * time.Second

// WatchHandler upgrades HTTP connections into WebSocket streams of per-meal
// change events.
type WatchHandler struct {
	repo     *repository.MealRepository
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWatchHandler(repo *repository.MealRepository) *WatchHandler {
	return &WatchHandler{
		repo: repo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin app embedding only; no cross-site watchers.
				return true
			},
		},
		log: logger.WithModule("watch"),
	}
}

// Stream handles GET /api/meals/:id/watch. Each successful update or delete
// of the watched meal is forwarded as one JSON message; the stream ends when
// the client disconnects or the meal subscription is cancelled.
func (h *WatchHandler) Stream(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("meal id is required"))
		return
	}

	ctx := requestContext(c)
	events, cancel, err := h.repo.Watch(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader goroutine notices client disconnects; inbound payloads are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(watchWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if writeErr := conn.WriteJSON(event); writeErr != nil {
				h.log.Debug("watch write failed",
					zap.String("meal_id", id), zap.Error(writeErr))
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
