package httpx

import (
	"errors"
	"net/http"

	"github.com/guardpost/guardpost/internal/shared"
)

// Sentinel errors for non-auth domain failures.
var (
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate entry")
)

// RespondError maps domain errors to HTTP responses. Typed auth errors carry
// their own status and code; everything else falls through to the sentinel
// table or a generic 500 with no detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	if authErr, ok := shared.AsAuthError(err); ok {
		Error(w, authErr.Status, authErr.Code, authErr.Message)
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, "DUPLICATE", "duplicate entry")
	default:
		Error(w, http.StatusInternalServerError, "INTERNAL", "")
	}
}
