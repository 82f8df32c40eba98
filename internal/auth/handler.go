package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/verification"
)

// Handler wires HTTP endpoints for authentication and verification flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	metrics        *observability.Metrics
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// WithMetrics attaches the metrics collector. A nil collector is valid and
// records nothing.
func (h *Handler) WithMetrics(m *observability.Metrics) *Handler {
	h.metrics = m
	return h
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Route("/verification", func(r chi.Router) {
		r.Post("/issue", h.handleIssue)
		r.Post("/confirm", h.handleConfirm)
		r.Post("/resend", h.handleResend)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Code     string `json:"code" validate:"omitempty,len=6,numeric"`
}

type verificationRequest struct {
	Channel     string `json:"channel" validate:"required,oneof=email sms"`
	Destination string `json:"destination" validate:"required"`
	Code        string `json:"code" validate:"omitempty,len=6,numeric"`
}

type attemptResponse struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Warning   string    `json:"warning,omitempty"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, shared.ErrSessionRequired)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	var (
		user   *SessionUser
		err    error
		method string
	)
	switch {
	case req.Email != "" && req.Password != "":
		method = "password"
		user, err = h.service.Authenticate(r.Context(), req.Email, req.Password)
	case req.Phone != "" && req.Code != "":
		method = "phone"
		user, err = h.service.AuthenticateByPhone(r.Context(), req.Phone, req.Code)
	default:
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "provide email+password or phone+code")
		return
	}
	if err != nil {
		h.metrics.RecordAuthAttempt(method, "failure")
		if errors.Is(err, shared.ErrRateLimitExceeded) {
			h.metrics.RecordRateLimited("login")
		}
		httpx.RespondError(w, err)
		return
	}
	h.metrics.RecordAuthAttempt(method, "success")

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Error(w, http.StatusInternalServerError, "INTERNAL", "")
		return
	}
	// Rotate the session ID across the authentication boundary.
	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		h.logger.Warn("renew session", slog.Any("error", err))
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerification(w, r)
	if !ok {
		return
	}
	attempt, err := h.service.RequestCode(r.Context(), verification.Channel(req.Channel), req.Destination)
	if err != nil {
		if errors.Is(err, shared.ErrRateLimitExceeded) {
			h.metrics.RecordRateLimited("verification")
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, toAttemptResponse(attempt))
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerification(w, r)
	if !ok {
		return
	}
	attempt, err := h.service.ResendCode(r.Context(), verification.Channel(req.Channel), req.Destination)
	if err != nil {
		if errors.Is(err, shared.ErrRateLimitExceeded) {
			h.metrics.RecordRateLimited("verification")
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, toAttemptResponse(attempt))
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeVerification(w, r)
	if !ok {
		return
	}
	if req.Code == "" {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "code is required")
		return
	}
	attempt, err := h.service.ConfirmCode(r.Context(), verification.Channel(req.Channel), req.Destination, req.Code)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (h *Handler) decodeVerification(w http.ResponseWriter, r *http.Request) (verificationRequest, bool) {
	var req verificationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be JSON")
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return req, false
	}
	return req, true
}

func toAttemptResponse(attempt *verification.Attempt) attemptResponse {
	resp := attemptResponse{
		ID:        attempt.ID,
		Channel:   string(attempt.Channel),
		Status:    string(attempt.Status),
		ExpiresAt: attempt.ExpiresAt,
	}
	if !attempt.Delivered {
		resp.Warning = "code could not be dispatched, retry with resend"
	}
	return resp
}
