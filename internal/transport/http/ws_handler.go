package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizforge/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// handleStatsWS streams live QuizStats snapshots to the quiz's creator: one
// snapshot on connect, then a fresh one after every accepted submission.
func (h *Handler) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	user, err := h.auth.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if _, err := h.quizzes.GetForOwner(r.Context(), user.ID, quizID); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, domain.ErrNotOwner) {
			status = http.StatusForbidden
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.quizzes.Feed().Subscribe(quizID)
	defer cancel()

	stats, err := h.quizzes.GetStats(r.Context(), user.ID, quizID)
	switch {
	case errors.Is(err, domain.ErrNoSubmissions):
		_ = conn.WriteJSON(wsMessage{Type: "noData"})
	case err != nil:
		_ = conn.WriteJSON(wsMessage{Type: "error", Payload: map[string]string{"message": "storage unavailable, please retry"}})
		return
	default:
		_ = conn.WriteJSON(wsMessage{Type: "stats", Payload: stats})
	}

	// Reader exists only to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsMessage{Type: "stats", Payload: update}); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// handleAuthStateWS streams auth-state transitions. The first event is always
// the resolved marker so clients know the state is settled.
func (h *Handler) handleAuthStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.auth.Feed().Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
