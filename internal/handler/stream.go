package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/yourorg/bookingsystem/internal/events"
)

// StreamHandler pushes reservation change events for one item over a
// websocket, so calendar views can update without polling.
type StreamHandler struct {
	broker   *events.Broker
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a stream handler restricted to the allowed origins
func NewStreamHandler(broker *events.Broker, logger *slog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		broker: broker,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeHTTP handles GET /ws/items/{id}/events
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "item id must be an integer"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch, cancel := h.broker.Subscribe(itemID)
	defer cancel()

	h.logger.Info("event stream opened", slog.Int64("item_id", itemID))

	// Reader goroutine: its only job is to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
