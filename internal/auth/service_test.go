package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/guardpost/guardpost/internal/ratelimit"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/verification"
)

type mockRepository struct {
	mu       sync.Mutex
	users    map[int64]*User
	sessions map[string]int64

	findError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:    make(map[int64]*User),
		sessions: make(map[string]int64),
	}
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findError != nil {
		return nil, m.findError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) FindByPhone(ctx context.Context, phone string) (*User, error) {
	if m.findError != nil {
		return nil, m.findError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) IncrementFailedAttempts(ctx context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}

func (m *mockRepository) SetLockout(ctx context.Context, userID int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].LockoutUntil = &until
	return nil
}

func (m *mockRepository) ResetFailedAttempts(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	return nil
}

func (m *mockRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = userID
	return nil
}

func (m *mockRepository) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockRepository) failedAttempts(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].FailedLoginAttempts
}

type serviceFixture struct {
	svc      *Service
	repo     *mockRepository
	verifier *verification.Service
	now      time.Time
}

const testPassword = "correct horse battery"

func newServiceFixture(t *testing.T, cfg ServiceConfig) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo: newMockRepository(),
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore()).WithClock(clock)
	verifierLimiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore()).WithClock(clock)
	f.verifier = verification.NewService(
		verification.NewMemoryStore(), verifierLimiter, nopNotifier{}, logger, verification.DefaultConfig(),
	).WithClock(clock)
	f.svc = NewService(f.repo, limiter, f.verifier, nil, logger, cfg).WithClock(clock)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	f.repo.users[1] = &User{
		ID:           1,
		Email:        "guard@example.com",
		Phone:        "+15550100",
		Name:         "Guard One",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	return f
}

type nopNotifier struct{}

func (nopNotifier) SendEmail(ctx context.Context, to, template string, data map[string]string) error {
	return nil
}

func (nopNotifier) SendSMS(ctx context.Context, to, template string, data map[string]string) error {
	return nil
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	user, err := f.svc.Authenticate(ctx, "Guard@Example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "guard@example.com", user.Email)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	_, err := f.svc.Authenticate(ctx, "guard@example.com", "wrong password")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, 1, f.repo.users[1].FailedLoginAttempts)
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	// Unknown account and wrong password produce the same error.
	_, err := f.svc.Authenticate(ctx, "nobody@example.com", testPassword)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())
	f.repo.users[1].IsActive = false

	_, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateLockout(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultServiceConfig()
	cfg.LockoutThreshold = 3
	f := newServiceFixture(t, cfg)

	_, err := f.svc.Authenticate(ctx, "guard@example.com", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "guard@example.com", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// The failure that reaches the threshold reports the lockout.
	_, err = f.svc.Authenticate(ctx, "guard@example.com", "wrong")
	assert.ErrorIs(t, err, shared.ErrAccountLocked)

	// The correct password is rejected while the lockout holds.
	_, err = f.svc.Authenticate(ctx, "guard@example.com", testPassword)
	assert.ErrorIs(t, err, shared.ErrAccountLocked)
}

func TestAuthenticateConcurrentFailuresAllCount(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultServiceConfig()
	cfg.LockoutThreshold = 4
	f := newServiceFixture(t, cfg)

	// Parallel wrong-password attempts must each count toward the
	// threshold; the counter increments in the repository, not from the
	// per-request snapshot.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Authenticate(ctx, "guard@example.com", "wrong")
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, f.repo.failedAttempts(1))
	_, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
	assert.ErrorIs(t, err, shared.ErrAccountLocked)
}

func TestAuthenticateLockoutExpires(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultServiceConfig()
	cfg.LockoutThreshold = 2
	cfg.LockoutDuration = 15 * time.Minute
	f := newServiceFixture(t, cfg)

	for i := 0; i < 2; i++ {
		_, _ = f.svc.Authenticate(ctx, "guard@example.com", "wrong")
	}
	_, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
	assert.ErrorIs(t, err, shared.ErrAccountLocked)

	f.now = f.now.Add(16 * time.Minute)
	user, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, 0, f.repo.users[1].FailedLoginAttempts)
	assert.Nil(t, f.repo.users[1].LockoutUntil)
}

func TestAuthenticateRateLimited(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultServiceConfig()
	cfg.LoginLimit = 3
	f := newServiceFixture(t, cfg)

	for i := 0; i < 3; i++ {
		_, _ = f.svc.Authenticate(ctx, "guard@example.com", "wrong")
	}
	_, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
	assert.ErrorIs(t, err, shared.ErrRateLimitExceeded)
}

func TestAuthenticateSuccessResetsThrottle(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultServiceConfig()
	cfg.LoginLimit = 3
	f := newServiceFixture(t, cfg)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
		require.NoError(t, err)
	}

	// A successful login clears the window so the budget is not carried.
	for i := 0; i < 3; i++ {
		_, err := f.svc.Authenticate(ctx, "guard@example.com", testPassword)
		require.NoError(t, err)
	}
}

func TestAuthenticateByPhone(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	attempt, err := f.svc.RequestCode(ctx, verification.ChannelSMS, "+15550100")
	require.NoError(t, err)
	_, err = f.svc.ConfirmCode(ctx, verification.ChannelSMS, "+15550100", attempt.Code)
	require.NoError(t, err)

	user, err := f.svc.AuthenticateByPhone(ctx, "+15550100", attempt.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)

	// The confirmation authenticates exactly one login.
	_, err = f.svc.AuthenticateByPhone(ctx, "+15550100", attempt.Code)
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestAuthenticateByPhoneUnconfirmedCode(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	attempt, err := f.svc.RequestCode(ctx, verification.ChannelSMS, "+15550100")
	require.NoError(t, err)

	// Issued but never confirmed.
	_, err = f.svc.AuthenticateByPhone(ctx, "+15550100", attempt.Code)
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestAuthenticateByPhoneUnknownNumber(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	_, err := f.svc.AuthenticateByPhone(ctx, "+15559999", "123456")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRequestCodeUnknownDestination(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	// Whether the destination maps to an account is not disclosed.
	_, err := f.svc.RequestCode(ctx, verification.ChannelEmail, "nobody@example.com")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestResendCodeCooldown(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	_, err := f.svc.RequestCode(ctx, verification.ChannelEmail, "guard@example.com")
	require.NoError(t, err)

	_, err = f.svc.ResendCode(ctx, verification.ChannelEmail, "guard@example.com")
	assert.ErrorIs(t, err, shared.ErrRateLimitExceeded)

	f.now = f.now.Add(2 * time.Minute)
	attempt, err := f.svc.ResendCode(ctx, verification.ChannelEmail, "guard@example.com")
	require.NoError(t, err)
	assert.Equal(t, verification.StatusPending, attempt.Status)
}

func TestSessionRegistry(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, DefaultServiceConfig())

	require.NoError(t, f.svc.RegisterSession(ctx, "sess-1", 1, f.now.Add(time.Hour), "127.0.0.1", "test"))
	assert.Equal(t, int64(1), f.repo.sessions["sess-1"])

	require.NoError(t, f.svc.RemoveSession(ctx, "sess-1"))
	assert.NotContains(t, f.repo.sessions, "sess-1")
}
