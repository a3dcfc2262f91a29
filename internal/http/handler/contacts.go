package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"nudge/internal/auth"
	"nudge/internal/channel"
	"nudge/internal/contact"
)

type contactService interface {
	Bind(ctx context.Context, userID uint64, ch channel.Name, address string) (*contact.Binding, error)
	Verify(ctx context.Context, userID, id uint64, code string) error
}

type ContactHandler struct {
	Svc      contactService
	Bindings bindingLister
	Log      *zap.Logger
}

type bindingView struct {
	ID       uint64       `json:"id"`
	Channel  channel.Name `json:"channel"`
	Address  string       `json:"address"`
	Verified bool         `json:"verified"`
}

func viewOf(b contact.Binding) bindingView {
	return bindingView{ID: b.ID, Channel: b.Channel, Address: b.Address, Verified: b.Verified()}
}

type createContactReq struct {
	Channel string `json:"channel"`
	Address string `json:"address"`
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createContactReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	ch, err := channel.Parse(req.Channel)
	if err != nil {
		http.Error(w, "unsupported channel", http.StatusBadRequest)
		return
	}

	b, err := h.Svc.Bind(r.Context(), uid, ch, req.Address)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*b))
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	bindings, err := h.Bindings.ListForUser(r.Context(), uid)
	if err != nil {
		h.fail(w, err)
		return
	}
	items := make([]bindingView, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, viewOf(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type verifyReq struct {
	Code string `json:"code"`
}

func (h *ContactHandler) Verify(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := h.Svc.Verify(r.Context(), uid, id, req.Code); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (h *ContactHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contact.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, contact.ErrBadCode):
		http.Error(w, "invalid or expired code", http.StatusUnprocessableEntity)
	case errors.Is(err, contact.ErrAlreadyBound):
		http.Error(w, "address already bound", http.StatusConflict)
	case errors.Is(err, contact.ErrBadAddress), errors.Is(err, channel.ErrUnsupported):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.Log.Error("contact request", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
