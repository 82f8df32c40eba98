package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/authz"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/tenancy"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	TenancyHandler *tenancy.Handler
	Authz          *authz.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Guardpost defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.With(params.Authz.Require(
			authz.Requirement{Scope: authz.ScopePlatform, MinRole: authz.RolePlatformAdmin},
		)).Get("/platform/overview", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		r.With(params.Authz.Require(
			authz.Requirement{Scope: authz.ScopeWorkspace, MinRole: authz.RoleViewer},
		)).Get("/workspaces/{workspaceID}", params.TenancyHandler.ShowWorkspace)

		r.Route("/clients/{clientID}", func(r chi.Router) {
			r.With(params.Authz.Require(
				authz.Requirement{Scope: authz.ScopeWorkspace, MinRole: authz.RoleViewer},
				authz.Requirement{Scope: authz.ScopeClient, MinRole: authz.RoleViewer},
			)).Get("/", params.TenancyHandler.ShowClient)

			// Roster management needs client admin on top of workspace
			// membership: explicit dual grants, no implication between
			// scopes.
			r.With(params.Authz.Require(
				authz.Requirement{Scope: authz.ScopeWorkspace, MinRole: authz.RoleViewer},
				authz.Requirement{Scope: authz.ScopeClient, MinRole: authz.RoleAdmin},
			)).Get("/roster", params.TenancyHandler.ClientRoster)
		})

		r.With(params.Authz.Require(
			authz.Requirement{Scope: authz.ScopeClient, MinRole: authz.RoleViewer},
			authz.Requirement{Scope: authz.ScopeLocation, MinRole: authz.RoleViewer},
		)).Get("/locations/{locationID}", params.TenancyHandler.ShowLocation)
	})

	return r
}
