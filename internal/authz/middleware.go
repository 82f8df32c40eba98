package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/shared"
)

// Requirement names a scope that must independently satisfy a minimum role.
// A route guarded with several requirements denies unless every one of them
// passes: nested checks are a conjunction of explicit grants, with the
// platform-admin override applied inside the evaluator only.
type Requirement struct {
	Scope   ScopeType
	MinRole Role
	// Param overrides the chi URL parameter carrying the resource id.
	// Empty means the conventional parameter for the scope
	// (workspaceID, clientID, locationID).
	Param string
}

// HierarchyResolver resolves containment so a requirement at an outer scope
// can be evaluated on a route addressed only by an inner resource id.
type HierarchyResolver interface {
	WorkspaceForClient(ctx context.Context, clientID int64) (int64, error)
	ClientForLocation(ctx context.Context, locationID int64) (int64, error)
}

// Access carries resolved authorization metadata into the wrapped handler.
type Access struct {
	SubjectID int64
	// Roles holds the highest role per evaluated scope.
	Roles map[ScopeType]Role
	// FullVisibility is set when the caller is admin at the innermost
	// evaluated scope; handlers use it to decide how much of the related
	// entity graph to expose.
	FullVisibility bool
}

type accessContextKey struct{}

// ContextWithAccess stores resolved access metadata in context.
func ContextWithAccess(ctx context.Context, access *Access) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext extracts access metadata placed by the middleware.
func AccessFromContext(ctx context.Context) *Access {
	access, _ := ctx.Value(accessContextKey{}).(*Access)
	return access
}

// Middleware enforces grant requirements on HTTP routes.
type Middleware struct {
	Source    GrantSource
	Hierarchy HierarchyResolver
	Logger    *slog.Logger
	Audit     *shared.AuditLogger
	Metrics   *observability.Metrics

	group *singleflight.Group
}

// NewMiddleware constructs a Middleware.
func NewMiddleware(source GrantSource, hierarchy HierarchyResolver, logger *slog.Logger, audit *shared.AuditLogger) *Middleware {
	return &Middleware{
		Source:    source,
		Hierarchy: hierarchy,
		Logger:    logger,
		Audit:     audit,
		group:     &singleflight.Group{},
	}
}

// Require wraps a handler with the given requirements. The request only
// reaches the handler after every requirement passed; the handler then finds
// the resolved Access in the request context.
func (m *Middleware) Require(reqs ...Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(reqs) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			subjectID, ok := m.currentSubjectID(r)
			if !ok {
				httpx.RespondError(w, shared.ErrSessionRequired)
				return
			}

			access := &Access{SubjectID: subjectID, Roles: make(map[ScopeType]Role, len(reqs))}
			innermost := ScopePlatform
			for _, req := range reqs {
				scopeID, err := m.resolveScopeID(r, req)
				if err != nil {
					m.respondResolveError(w, r, subjectID, err)
					return
				}
				grants, err := m.loadGrants(r.Context(), subjectID, req.Scope, scopeID)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz load grants", slog.Any("error", err))
					}
					httpx.RespondError(w, err)
					return
				}
				if !HasCapability(grants, req.MinRole, req.Scope) {
					m.recordDenial(r, subjectID, req.Scope, scopeID)
					httpx.RespondError(w, denialFor(req.Scope))
					return
				}
				if role, held := HighestRole(req.Scope, grants); held {
					access.Roles[req.Scope] = role
				}
				if scopeDepth(req.Scope) >= scopeDepth(innermost) {
					innermost = req.Scope
				}
			}
			if role, held := access.Roles[innermost]; held {
				access.FullVisibility = role == RoleAdmin || role == RolePlatformAdmin
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAccess(r.Context(), access)))
		})
	}
}

func (m *Middleware) currentSubjectID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse subject id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

// resolveScopeID determines the resource id a requirement applies to. When
// the route does not carry the scope's own parameter the id is derived by
// walking the hierarchy upwards from the innermost addressed resource.
func (m *Middleware) resolveScopeID(r *http.Request, req Requirement) (int64, error) {
	if req.Scope == ScopePlatform {
		return 0, nil
	}
	if req.Param != "" {
		return urlID(r, req.Param)
	}
	ctx := r.Context()
	switch req.Scope {
	case ScopeWorkspace:
		if id, err := urlID(r, "workspaceID"); err == nil {
			return id, nil
		}
		if clientID, err := urlID(r, "clientID"); err == nil {
			return m.Hierarchy.WorkspaceForClient(ctx, clientID)
		}
		if locationID, err := urlID(r, "locationID"); err == nil {
			clientID, err := m.Hierarchy.ClientForLocation(ctx, locationID)
			if err != nil {
				return 0, err
			}
			return m.Hierarchy.WorkspaceForClient(ctx, clientID)
		}
	case ScopeClient:
		if id, err := urlID(r, "clientID"); err == nil {
			return id, nil
		}
		if locationID, err := urlID(r, "locationID"); err == nil {
			return m.Hierarchy.ClientForLocation(ctx, locationID)
		}
	case ScopeLocation:
		return urlID(r, "locationID")
	}
	return 0, fmt.Errorf("authz: route carries no id for scope %s", req.Scope)
}

// loadGrants collapses concurrent lookups for the same subject and scope
// instance into a single repository call. The lookup runs on a detached
// context: collapsed callers share one execution, so the first caller's
// cancellation must not fail the others.
func (m *Middleware) loadGrants(ctx context.Context, subjectID int64, scope ScopeType, scopeID int64) ([]Grant, error) {
	key := fmt.Sprintf("%d|%s|%d", subjectID, scope, scopeID)
	result, err, _ := m.group.Do(key, func() (any, error) {
		return m.Source.GrantsFor(context.WithoutCancel(ctx), subjectID, scope, scopeID)
	})
	if err != nil {
		return nil, err
	}
	grants, _ := result.([]Grant)
	return grants, nil
}

func (m *Middleware) respondResolveError(w http.ResponseWriter, r *http.Request, subjectID int64, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.RespondError(w, shared.ErrResourceNotFound)
		return
	}
	if m.Logger != nil {
		m.Logger.Error("authz resolve scope", slog.Any("error", err), slog.Int64("subject", subjectID))
	}
	httpx.RespondError(w, err)
}

func (m *Middleware) recordDenial(r *http.Request, subjectID int64, scope ScopeType, scopeID int64) {
	m.Metrics.RecordAuthzDenial(string(scope))
	if m.Logger != nil {
		m.Logger.Warn("authz denied",
			slog.Int64("subject", subjectID),
			slog.String("scope", string(scope)),
			slog.Int64("scope_id", scopeID),
			slog.String("path", r.URL.Path))
	}
	if m.Audit != nil {
		_ = m.Audit.Record(r.Context(), shared.AuditLog{
			ActorID:  subjectID,
			Action:   shared.AuditAccessDenied,
			Entity:   string(scope),
			EntityID: strconv.FormatInt(scopeID, 10),
			Meta:     map[string]any{"path": r.URL.Path},
		})
	}
}

func denialFor(scope ScopeType) *shared.AuthError {
	switch scope {
	case ScopeWorkspace:
		return shared.ErrWorkspaceAccessDenied
	case ScopeClient:
		return shared.ErrClientAccessDenied
	case ScopeLocation:
		return shared.ErrLocationAccessDenied
	default:
		return shared.ErrPlatformAccessDenied
	}
}

func scopeDepth(scope ScopeType) int {
	switch scope {
	case ScopeWorkspace:
		return 1
	case ScopeClient:
		return 2
	case ScopeLocation:
		return 3
	default:
		return 0
	}
}

func urlID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		return 0, fmt.Errorf("authz: missing %s", param)
	}
	return strconv.ParseInt(raw, 10, 64)
}
