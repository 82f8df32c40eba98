package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/shared"
	_ "github.com/guardpost/guardpost/testing"
)

type handlerFixture struct {
	*serviceFixture
	handler  *Handler
	sessions *shared.SessionManager
	router   chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{serviceFixture: newServiceFixture(t, DefaultServiceConfig())}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f.sessions = shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")

	f.handler = NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, f.sessions, csrf)
	f.router = chi.NewRouter()
	f.router.Route("/auth", func(r chi.Router) {
		f.handler.MountRoutes(r)
	})
	return f
}

func (f *handlerFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	sess, err := f.sessions.Load(req.Context(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleLogin(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"email":"guard@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user SessionUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "guard@example.com", user.Email)
	assert.Len(t, f.repo.sessions, 1, "session metadata is registered")
}

func TestHandleLoginRotatesSessionID(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"guard@example.com","password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, err := f.sessions.Load(req.Context(), req)
	require.NoError(t, err)
	preLoginID := sess.ID
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.NotEqual(t, preLoginID, sess.ID, "authenticating issues a fresh session ID")
	assert.Contains(t, f.repo.sessions, sess.ID)
	assert.NotContains(t, f.repo.sessions, preLoginID)
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"email":"guard@example.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
}

func TestHandleLoginMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLoginMissingCredentialPair(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"guard@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
}

func TestHandleLoginByPhone(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	attempt, err := f.svc.RequestCode(ctx, "sms", "+15550100")
	require.NoError(t, err)
	_, err = f.svc.ConfirmCode(ctx, "sms", "+15550100", attempt.Code)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/auth/login",
		`{"phone":"+15550100","code":"`+attempt.Code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user SessionUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "+15550100", user.Phone)
}

func TestHandleVerificationFlow(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/verification/issue",
		`{"channel":"email","destination":"guard@example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var issued struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, "pending", issued.Status)
	assert.NotEmpty(t, issued.ID)

	rec = f.do(t, http.MethodPost, "/auth/verification/confirm",
		`{"channel":"email","destination":"guard@example.com","code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CODE")
}

func TestHandleConfirmRequiresCode(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/verification/confirm",
		`{"channel":"email","destination":"guard@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogout(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleCSRF(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/auth/csrf", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["csrf_token"])
}
