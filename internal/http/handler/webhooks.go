package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"nudge/internal/channel"
	"nudge/internal/inbound"
)

const (
	whatsappPrefix = "whatsapp:"
	emptyTwiML     = `<?xml version="1.0" encoding="UTF-8"?><Response/>`
)

type interpreter interface {
	Handle(ctx context.Context, in inbound.Inbound) (inbound.Result, error)
}

// WebhookHandler receives replies from the channel gateways. Logical problems
// are answered on the channel itself, so the gateway always sees success
// unless the store is down.
type WebhookHandler struct {
	Interp interpreter
	Log    *zap.Logger
}

// SMS accepts a Twilio-style form post. WhatsApp messages arrive on the same
// endpoint with a "whatsapp:" sender.
func (h *WebhookHandler) SMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	ch := channel.SMS
	if strings.HasPrefix(strings.ToLower(from), whatsappPrefix) {
		ch = channel.WhatsApp
		from = strings.TrimSpace(from[len(whatsappPrefix):])
	}

	if _, ok := h.handle(w, r, inbound.Inbound{Channel: ch, Sender: from, Body: r.PostForm.Get("Body")}); !ok {
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

type chatReq struct {
	From string `json:"from"`
	Body string `json:"body"`
}

func (h *WebhookHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.From = strings.TrimSpace(req.From)
	if req.From == "" {
		http.Error(w, "missing from", http.StatusBadRequest)
		return
	}

	res, ok := h.handle(w, r, inbound.Inbound{Channel: channel.Chat, Sender: req.From, Body: req.Body})
	if !ok {
		return
	}
	// an unlinked chat sender has no inbox to deliver to
	if !res.Resolved {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reply": res.Reply})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, in inbound.Inbound) (inbound.Result, bool) {
	res, err := h.Interp.Handle(r.Context(), in)
	if err != nil {
		h.Log.Error("inbound webhook",
			zap.String("channel", string(in.Channel)),
			zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return inbound.Result{}, false
	}
	if !res.Resolved {
		h.Log.Info("inbound from unlinked sender", zap.String("channel", string(in.Channel)))
	}
	return res, true
}
