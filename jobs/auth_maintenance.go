package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthMaintenanceJob clears expired lockouts and purges stale session
// records. Verification attempts need no sweep: their store entries expire
// by TTL.
type AuthMaintenanceJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuthMaintenanceJob constructs the job.
func NewAuthMaintenanceJob(pool *pgxpool.Pool, logger *slog.Logger) *AuthMaintenanceJob {
	return &AuthMaintenanceJob{pool: pool, logger: logger}
}

// HandleClearLockouts resets accounts whose lockout window has elapsed.
func (j *AuthMaintenanceJob) HandleClearLockouts(ctx context.Context, t *asynq.Task) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, lockout_until = NULL, updated_at = NOW()
		 WHERE lockout_until IS NOT NULL AND lockout_until < NOW()`)
	if err != nil {
		return err
	}
	if j.logger != nil && tag.RowsAffected() > 0 {
		j.logger.Info("cleared expired lockouts", slog.Int64("accounts", tag.RowsAffected()))
	}
	return nil
}

// HandlePurgeSessions removes session audit records past their expiry.
func (j *AuthMaintenanceJob) HandlePurgeSessions(ctx context.Context, t *asynq.Task) error {
	tag, err := j.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if j.logger != nil && tag.RowsAffected() > 0 {
		j.logger.Info("purged expired sessions", slog.Int64("sessions", tag.RowsAffected()))
	}
	return nil
}
