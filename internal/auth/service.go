package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/guardpost/guardpost/internal/ratelimit"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/verification"
)

// Verifier is the slice of the verification service the auth flows need.
type Verifier interface {
	Issue(ctx context.Context, subjectID int64, channel verification.Channel, destination string) (*verification.Attempt, error)
	Resend(ctx context.Context, subjectID int64, channel verification.Channel, destination string) (*verification.Attempt, error)
	Confirm(ctx context.Context, subjectID int64, channel verification.Channel, code string) (*verification.Attempt, error)
	ConsumeConfirmed(ctx context.Context, subjectID int64, channel verification.Channel, code string) error
}

// ServiceConfig tunes lockout and per-identifier throttling. Lockout is
// per-account state in the database; the rate limit is per identifier per
// window, independent of it.
type ServiceConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	LoginLimit       int
	LoginWindow      time.Duration
}

// DefaultServiceConfig mirrors the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		LoginLimit:       10,
		LoginWindow:      15 * time.Minute,
	}
}

// dummyHash is a bcrypt digest of a random value. Comparing against it when
// the account does not exist keeps response timing uniform with the
// wrong-password path.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	limiter  *ratelimit.Limiter
	verifier Verifier
	audit    *shared.AuditLogger
	logger   *slog.Logger
	cfg      ServiceConfig
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, limiter *ratelimit.Limiter, verifier Verifier, audit *shared.AuditLogger, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.LockoutThreshold <= 0 {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		repo:     repo,
		limiter:  limiter,
		verifier: verifier,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authenticate validates email/password credentials. Failures are generic on
// purpose: a missing account and a wrong password are indistinguishable to
// the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*SessionUser, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := s.throttle(ctx, "login:email:"+email); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}

	now := s.now()
	if user.LockoutUntil != nil && user.LockoutUntil.After(now) {
		return nil, shared.ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.recordFailure(ctx, user, now)
	}

	if err := s.repo.ResetFailedAttempts(ctx, user.ID); err != nil {
		return nil, err
	}
	_ = s.limiter.Reset(ctx, "login:email:"+email)
	s.recordAudit(ctx, user.ID, shared.AuditLoginSuccess, map[string]any{"method": "password"})
	return user.sessionUser(), nil
}

// AuthenticateByPhone validates a phone plus previously confirmed
// verification code, consuming the confirmation.
func (s *Service) AuthenticateByPhone(ctx context.Context, phone, code string) (*SessionUser, error) {
	phone = strings.TrimSpace(phone)
	if err := s.throttle(ctx, "login:phone:"+phone); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if user.LockoutUntil != nil && user.LockoutUntil.After(s.now()) {
		return nil, shared.ErrAccountLocked
	}

	if err := s.verifier.ConsumeConfirmed(ctx, user.ID, verification.ChannelSMS, code); err != nil {
		s.recordAudit(ctx, user.ID, shared.AuditLoginFailure, map[string]any{"method": "phone"})
		return nil, err
	}

	_ = s.limiter.Reset(ctx, "login:phone:"+phone)
	s.recordAudit(ctx, user.ID, shared.AuditLoginSuccess, map[string]any{"method": "phone"})
	return user.sessionUser(), nil
}

// RequestCode starts a verification flow for the identity behind the given
// destination on the given channel.
func (s *Service) RequestCode(ctx context.Context, channel verification.Channel, destination string) (*verification.Attempt, error) {
	user, err := s.lookupByDestination(ctx, channel, destination)
	if err != nil {
		return nil, err
	}
	return s.verifier.Issue(ctx, user.ID, channel, destination)
}

// ResendCode reissues a code for the identity behind the destination,
// honoring the resend cooldown.
func (s *Service) ResendCode(ctx context.Context, channel verification.Channel, destination string) (*verification.Attempt, error) {
	user, err := s.lookupByDestination(ctx, channel, destination)
	if err != nil {
		return nil, err
	}
	return s.verifier.Resend(ctx, user.ID, channel, destination)
}

// ConfirmCode confirms the pending code for the identity behind the
// destination.
func (s *Service) ConfirmCode(ctx context.Context, channel verification.Channel, destination, code string) (*verification.Attempt, error) {
	user, err := s.lookupByDestination(ctx, channel, destination)
	if err != nil {
		return nil, err
	}
	attempt, err := s.verifier.Confirm(ctx, user.ID, channel, code)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, user.ID, shared.AuditVerificationOK, map[string]any{"channel": string(channel)})
	return attempt, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) throttle(ctx context.Context, key string) error {
	decision, err := s.limiter.Attempt(ctx, key, s.cfg.LoginLimit, s.cfg.LoginWindow)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		if s.logger != nil {
			s.logger.Warn("login rate limited", slog.String("key", key))
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Action:   shared.AuditRateLimitTripped,
				Entity:   "identifier",
				EntityID: key,
			})
		}
		return shared.ErrRateLimitExceeded
	}
	return nil
}

// recordFailure counts the failed attempt and applies the lockout once the
// threshold is reached. The counter increments atomically in the repository;
// the decision uses the returned value, never the snapshot loaded before the
// password check. The failure that trips the threshold already reports
// ACCOUNT_LOCKED.
func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) error {
	attempts, err := s.repo.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return err
	}
	if attempts >= s.cfg.LockoutThreshold {
		until := now.Add(s.cfg.LockoutDuration)
		if err := s.repo.SetLockout(ctx, user.ID, until); err != nil {
			return err
		}
		s.recordAudit(ctx, user.ID, shared.AuditAccountLocked, map[string]any{"attempts": attempts})
		return shared.ErrAccountLocked
	}
	s.recordAudit(ctx, user.ID, shared.AuditLoginFailure, map[string]any{"attempts": attempts})
	return shared.ErrInvalidCredentials
}

func (s *Service) lookupByDestination(ctx context.Context, channel verification.Channel, destination string) (*User, error) {
	var (
		user *User
		err  error
	)
	if channel == verification.ChannelSMS {
		user, err = s.repo.FindByPhone(ctx, strings.TrimSpace(destination))
	} else {
		user, err = s.repo.FindByEmail(ctx, strings.TrimSpace(strings.ToLower(destination)))
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) recordAudit(ctx context.Context, userID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
