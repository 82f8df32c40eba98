package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guardpost/guardpost/internal/ratelimit"
	"github.com/guardpost/guardpost/internal/shared"
)

// Config tunes the state machine.
type Config struct {
	CodeTTL           time.Duration
	MaxCodeAttempts   int
	MaxIssuePerWindow int
	IssueWindow       time.Duration
	ResendCooldown    time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		CodeTTL:           10 * time.Minute,
		MaxCodeAttempts:   5,
		MaxIssuePerWindow: 5,
		IssueWindow:       time.Hour,
		ResendCooldown:    time.Minute,
	}
}

// retention keeps terminal attempts readable past expiry so a late confirm
// gets TOKEN_EXPIRED or TOKEN_ALREADY_USED instead of TOKEN_NOT_FOUND.
const retention = time.Hour

// Service owns verification attempts exclusively; nothing else mutates the
// store. Every transition is a get-update-set cycle over the store, so the
// cycles run under a single mutex and concurrent calls for the same subject
// and channel observe each other's writes.
type Service struct {
	store    Store
	limiter  *ratelimit.Limiter
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu sync.Mutex
}

// NewService constructs a Service.
func NewService(store Store, limiter *ratelimit.Limiter, notifier Notifier, logger *slog.Logger, cfg Config) *Service {
	if cfg.MaxCodeAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		store:    store,
		limiter:  limiter,
		notifier: notifier,
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

// Issue generates and dispatches a fresh code for the subject on the given
// channel, superseding any pending attempt. Rate limited per subject+channel.
func (s *Service) Issue(ctx context.Context, subjectID int64, channel Channel, destination string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLimited(ctx, subjectID, channel, destination)
}

// Resend issues a fresh code like Issue but additionally enforces a minimum
// cooldown since the last issued attempt.
func (s *Service) Resend(ctx context.Context, subjectID int64, channel Channel, destination string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior, err := s.store.Get(ctx, subjectID, channel)
	if err != nil {
		return nil, err
	}
	if prior != nil && s.now().Sub(prior.IssuedAt) < s.cfg.ResendCooldown {
		return nil, shared.ErrRateLimitExceeded
	}
	return s.issueLimited(ctx, subjectID, channel, destination)
}

// issueLimited applies the issue ceiling and creates the attempt. Callers
// hold s.mu.
func (s *Service) issueLimited(ctx context.Context, subjectID int64, channel Channel, destination string) (*Attempt, error) {
	decision, err := s.limiter.Attempt(ctx, issueKey(subjectID, channel), s.cfg.MaxIssuePerWindow, s.cfg.IssueWindow)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, shared.ErrRateLimitExceeded
	}
	return s.issue(ctx, subjectID, channel, destination)
}

// Confirm matches code against the subject's current attempt. On success the
// attempt transitions to confirmed, exactly once; confirming again yields
// TOKEN_ALREADY_USED. Mismatches count toward the failure ceiling.
func (s *Service) Confirm(ctx context.Context, subjectID int64, channel Channel, code string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, err := s.store.Get(ctx, subjectID, channel)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, shared.ErrTokenNotFound
	}

	switch attempt.Status {
	case StatusConfirmed:
		return nil, shared.ErrTokenAlreadyUsed
	case StatusFailed:
		return nil, shared.ErrTooManyAttempts
	case StatusExpired:
		return nil, shared.ErrTokenExpired
	}

	now := s.now()
	if now.After(attempt.ExpiresAt) {
		attempt.Status = StatusExpired
		if err := s.store.Set(ctx, attempt, retention); err != nil {
			return nil, err
		}
		return nil, shared.ErrTokenExpired
	}

	if subtle.ConstantTimeCompare([]byte(attempt.Code), []byte(code)) != 1 {
		attempt.Mismatches++
		if attempt.Mismatches >= s.cfg.MaxCodeAttempts {
			attempt.Status = StatusFailed
		}
		if err := s.store.Set(ctx, attempt, retention); err != nil {
			return nil, err
		}
		return nil, shared.ErrInvalidCode
	}

	attempt.Status = StatusConfirmed
	if err := s.store.Set(ctx, attempt, retention); err != nil {
		return nil, err
	}
	return attempt, nil
}

// ConsumeConfirmed checks that the subject holds a confirmed, unexpired
// attempt matching code and removes it. The phone login path uses this so a
// confirmed code authenticates exactly one login.
func (s *Service) ConsumeConfirmed(ctx context.Context, subjectID int64, channel Channel, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, err := s.store.Get(ctx, subjectID, channel)
	if err != nil {
		return err
	}
	if attempt == nil || attempt.Status != StatusConfirmed {
		return shared.ErrTokenNotFound
	}
	if s.now().After(attempt.ExpiresAt) {
		return shared.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare([]byte(attempt.Code), []byte(code)) != 1 {
		return shared.ErrInvalidCode
	}
	return s.store.Delete(ctx, subjectID, channel)
}

func (s *Service) issue(ctx context.Context, subjectID int64, channel Channel, destination string) (*Attempt, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	attempt := &Attempt{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Channel:     channel,
		Destination: destination,
		Code:        code,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
		Status:      StatusPending,
		Delivered:   true,
	}

	if err := s.dispatch(ctx, attempt); err != nil {
		// Dispatch failure does not roll back the attempt.
		attempt.Delivered = false
		if s.logger != nil {
			s.logger.Warn("verification dispatch failed",
				slog.Int64("subject", subjectID),
				slog.String("channel", string(channel)),
				slog.Any("error", err))
		}
	}

	if err := s.store.Set(ctx, attempt, s.cfg.CodeTTL+retention); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *Service) dispatch(ctx context.Context, attempt *Attempt) error {
	data := map[string]string{"code": attempt.Code}
	switch attempt.Channel {
	case ChannelSMS:
		return s.notifier.SendSMS(ctx, attempt.Destination, TemplateCode, data)
	default:
		return s.notifier.SendEmail(ctx, attempt.Destination, TemplateCode, data)
	}
}

func issueKey(subjectID int64, channel Channel) string {
	return fmt.Sprintf("verification:issue:%d:%s", subjectID, channel)
}

// generateCode returns a fixed-length numeric code from crypto/rand.
func generateCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
