package tenancy

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/authz"
	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/shared"
)

// Handler serves the guarded resource endpoints. Full CRUD lives in the
// admin surface; these endpoints demonstrate the resolved access metadata
// handlers receive after the authorization middleware.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

type workspaceResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type clientResponse struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Locations   []Location `json:"locations,omitempty"`
}

type locationResponse struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Role     string `json:"role"`
}

// ShowWorkspace returns workspace details with the caller's resolved role.
func (h *Handler) ShowWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "workspaceID")
	if err != nil {
		httpx.RespondError(w, shared.ErrResourceNotFound)
		return
	}
	ws, err := h.repo.GetWorkspace(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	access := authz.AccessFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, workspaceResponse{
		ID:   ws.ID,
		Name: ws.Name,
		Role: string(access.Roles[authz.ScopeWorkspace]),
	})
}

// ShowClient returns client details. Admin-visibility callers additionally
// get the location graph inline.
func (h *Handler) ShowClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "clientID")
	if err != nil {
		httpx.RespondError(w, shared.ErrResourceNotFound)
		return
	}
	client, err := h.repo.GetClient(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	access := authz.AccessFromContext(r.Context())
	resp := clientResponse{
		ID:          client.ID,
		WorkspaceID: client.WorkspaceID,
		Name:        client.Name,
		Role:        string(access.Roles[authz.ScopeClient]),
	}
	if access.FullVisibility {
		locations, err := h.repo.ListLocations(r.Context(), client.ID)
		if err != nil {
			h.logger.Warn("list locations", slog.Any("error", err))
		} else {
			resp.Locations = locations
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// ClientRoster lists a client's locations. Reaching it requires client
// admin, enforced by the route's middleware.
func (h *Handler) ClientRoster(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "clientID")
	if err != nil {
		httpx.RespondError(w, shared.ErrResourceNotFound)
		return
	}
	locations, err := h.repo.ListLocations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locations": locations})
}

// ShowLocation returns location details with the caller's resolved role.
func (h *Handler) ShowLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "locationID")
	if err != nil {
		httpx.RespondError(w, shared.ErrResourceNotFound)
		return
	}
	loc, err := h.repo.GetLocation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	access := authz.AccessFromContext(r.Context())
	resp := locationResponse{
		ID:       loc.ID,
		ClientID: loc.ClientID,
		Name:     loc.Name,
		Role:     string(access.Roles[authz.ScopeLocation]),
	}
	if access.FullVisibility {
		resp.Address = loc.Address
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func pathID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}
