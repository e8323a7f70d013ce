package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voice-scribe/backend/internal/auth"
	"github.com/voice-scribe/backend/internal/job"
)

const wsWriteTimeout = 5 * time.Second

// ProgressHandler streams job progress events over a WebSocket so the
// GUI shell can render live progress bars without polling.
type ProgressHandler struct {
	broker   *job.Broker
	jwt      *auth.JWTService
	upgrader websocket.Upgrader
}

func NewProgressHandler(broker *job.Broker, jwt *auth.JWTService) *ProgressHandler {
	return &ProgressHandler{
		broker: broker,
		jwt:    jwt,
		upgrader: websocket.Upgrader{
			// Same-origin is not meaningful for a localhost desktop
			// backend; the token query parameter gates access instead.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the connection and relays broker events until the
// client disconnects. Browsers cannot set headers on WebSocket
// requests, so the JWT arrives as a query parameter.
func (h *ProgressHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := h.jwt.ValidateToken(token); err != nil {
		jsonError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[progress] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events := h.broker.Subscribe()
	defer h.broker.Unsubscribe(events)

	// Reader goroutine detects client disconnect.
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
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
