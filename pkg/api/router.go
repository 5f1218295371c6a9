// Package api exposes the document lifecycle over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/docflow/edms/pkg/audit"
	"github.com/docflow/edms/pkg/authn"
	"github.com/docflow/edms/pkg/documents"
	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/docflow/edms/pkg/store"
)

// Documents is the service surface the handlers call.
type Documents interface {
	Create(ctx context.Context, actor lifecycle.Actor, draft lifecycle.DocumentDraft, client lifecycle.ClientInfo) (lifecycle.Creation, error)
	Get(ctx context.Context, actor lifecycle.Actor, id string) (lifecycle.Document, error)
	List(ctx context.Context, actor lifecycle.Actor, filter store.ListFilter, pageSize int, pageToken string) ([]lifecycle.Document, string, error)
	ChangeStatus(ctx context.Context, actor lifecycle.Actor, id string, to lifecycle.Status, comment string, client lifecycle.ClientInfo) (lifecycle.StatusChange, error)
	NewVersion(ctx context.Context, actor lifecycle.Actor, id string, req lifecycle.NewVersionRequest) (lifecycle.NewVersion, error)
	Versions(ctx context.Context, actor lifecycle.Actor, id string) ([]lifecycle.VersionRecord, error)
	Transitions(ctx context.Context, actor lifecycle.Actor, id string) ([]lifecycle.TransitionRecord, error)
	Compare(ctx context.Context, actor lifecycle.Actor, id, leftID, rightID string) (lifecycle.Comparison, error)
	Permissions(ctx context.Context, actor lifecycle.Actor, id string) (lifecycle.ActionSet, error)
	History(ctx context.Context, actor lifecycle.Actor, id string, pageSize int, pageToken string) ([]audit.Event, string, int, error)
	Verify(ctx context.Context, actor lifecycle.Actor, id string) error
}

var _ Documents = (*documents.Service)(nil)

// Config wires the router's collaborators. Documents and Resolver are
// required; everything else is optional.
type Config struct {
	Documents      Documents
	Resolver       authn.Resolver
	AuditRecorder  audit.Recorder
	AuditLister    audit.Lister
	Audit          audit.Config
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ping backs /readyz.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	startedAt := time.Now()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			authn.HeaderUser, authn.HeaderRole, authn.HeaderDepartment, authn.HeaderPermissions,
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(startedAt).Round(time.Second).String(),
		})
	})
	r.Get("/readyz", readyHandler(cfg.Ping))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware(cfg.Resolver, logger))
		if cfg.AuditRecorder != nil && cfg.Audit.Enabled {
			r.Use(audit.Middleware(cfg.AuditRecorder, cfg.Audit, logger))
		}

		h := &handlers{docs: cfg.Documents, logger: logger}
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.get)
				r.Put("/status", h.changeStatus)
				r.Post("/versions", h.newVersion)
				r.Get("/versions", h.versions)
				r.Get("/versions/compare", h.compare)
				r.Get("/transitions", h.transitions)
				r.Get("/permissions", h.permissions)
				r.Get("/history", h.history)
				r.Get("/integrity", h.integrity)
			})
		})

		if cfg.AuditLister != nil {
			r.Mount("/audit", audit.Router(cfg.AuditLister, authn.RequireRole(lifecycle.RoleAdmin)))
		}
	})

	return r
}

func readyHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "database": "not_configured"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "database": "down", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "database": "up"})
	}
}
