package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"nudge/internal/auth"
	"nudge/internal/outbox"
)

type outboxLister interface {
	ListForUser(ctx context.Context, userID uint64, limit int) ([]outbox.Message, error)
}

type outboxView struct {
	ID           uint64        `json:"id"`
	Channel      string        `json:"channel"`
	Destination  string        `json:"destination"`
	Body         string        `json:"body"`
	Status       outbox.Status `json:"status"`
	AttemptCount int           `json:"attempt_count"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	LastError    *string       `json:"last_error,omitempty"`
}

type OutboxHandler struct {
	Outbox outboxLister
	Log    *zap.Logger
}

// List shows the caller's most recent outbound messages and their delivery
// state.
func (h *OutboxHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := h.Outbox.ListForUser(r.Context(), uid, limit)
	if err != nil {
		h.Log.Error("list outbox", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	items := make([]outboxView, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, outboxView{
			ID:           m.ID,
			Channel:      string(m.Channel),
			Destination:  m.Destination,
			Body:         m.Body,
			Status:       m.Status,
			AttemptCount: m.AttemptCount,
			ScheduledAt:  m.ScheduledAt,
			SentAt:       m.SentAt,
			LastError:    m.LastError,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
