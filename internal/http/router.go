package http

import (
	"net/http"

	"murmur/internal/config"
	"murmur/internal/entry"
	"murmur/internal/http/handler"
	mw "murmur/internal/http/middleware"
	"murmur/internal/jobs"
	"murmur/internal/workspace"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	JWT       *workspace.JWT
	Queue     *jobs.Queue
	Worker    *jobs.Worker
	AI        handler.AIHealth
	DefaultWS uint64
}

func NewRouter(cfg config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	hh := &handler.HealthHandler{AI: deps.AI}
	r.Get("/health", hh.Health)

	wsSvc := &workspace.Service{DB: deps.DB}
	wsH := &handler.WorkspaceHandler{Svc: wsSvc, JWT: deps.JWT}
	r.Post("/workspaces/register", wsH.Register)
	r.Post("/workspaces/login", wsH.Login)

	store := &entry.Store{DB: deps.DB}
	eh := &handler.EntryHandler{Store: store, Queue: deps.Queue, Worker: deps.Worker}

	r.Route("/entries", func(r chi.Router) {
		r.Use(workspace.Resolve(deps.JWT, deps.DefaultWS))

		r.Post("/", eh.Create)
		r.Get("/", eh.List)

		r.Get("/{id}", eh.Get)
		r.Delete("/{id}", eh.Delete)
		r.Post("/{id}/retry", eh.Retry)
	})

	r.With(workspace.Resolve(deps.JWT, deps.DefaultWS)).Get("/tags", eh.Tags)

	return r
}
