package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"nudge/internal/auth"
	"nudge/internal/config"
	"nudge/internal/contact"
	"nudge/internal/http/handler"
	mw "nudge/internal/http/middleware"
	"nudge/internal/inbound"
	"nudge/internal/outbox"
	"nudge/internal/task"
)

// Deps are the services the router exposes.
type Deps struct {
	DB          *gorm.DB
	JWT         *auth.JWT
	Tasks       *task.Service
	Contacts    *contact.Service
	ContactRepo *contact.Repo
	Outbox      *outbox.Repo
	Interpreter *inbound.Interpreter
	Log         *zap.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	wh := &handler.WebhookHandler{Interp: d.Interpreter, Log: d.Log}
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(mw.WebhookToken(cfg.WebhookToken))

		r.Post("/sms", wh.SMS)
		r.Post("/chat", wh.Chat)
	})

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT, Log: d.Log}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{Bindings: d.ContactRepo, Log: d.Log}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	th := &handler.TaskHandler{Svc: d.Tasks, Log: d.Log}
	r.Route("/tasks", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", th.Create)
		r.Get("/", th.List)
		r.Post("/{id}/approval", th.RequestApproval)
	})

	ch := &handler.ContactHandler{Svc: d.Contacts, Bindings: d.ContactRepo, Log: d.Log}
	r.Route("/contacts", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", ch.Create)
		r.Get("/", ch.List)
		r.Post("/{id}/verify", ch.Verify)
	})

	oh := &handler.OutboxHandler{Outbox: d.Outbox, Log: d.Log}
	r.With(auth.RequireAuth(d.JWT)).Get("/outbox", oh.List)

	return r
}
