package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"nudge/internal/auth"
	"nudge/internal/contact"
)

type bindingLister interface {
	ListForUser(ctx context.Context, userID uint64) ([]contact.Binding, error)
}

type MeHandler struct {
	Bindings bindingLister
	Log      *zap.Logger
}

// Me returns the caller's id and which channels can reach them.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	bindings, err := h.Bindings.ListForUser(r.Context(), uid)
	if err != nil {
		h.Log.Error("me: list bindings", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	verified := []string{}
	for _, b := range bindings {
		if b.Verified() {
			verified = append(verified, string(b.Channel))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  uid,
		"channels": verified,
	})
}
