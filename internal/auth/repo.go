package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	IncrementFailedAttempts(ctx context.Context, userID int64) (int, error)
	SetLockout(ctx context.Context, userID int64, until time.Time) error
	ResetFailedAttempts(ctx context.Context, userID int64) error
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, COALESCE(phone, ''), name, password_hash, is_active, failed_login_attempts, lockout_until, created_at, updated_at`

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findBy(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// FindByPhone fetches a user by phone number.
func (r *PGRepository) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return r.findBy(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

func (r *PGRepository) findBy(ctx context.Context, query, arg string) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Phone, &user.Name, &user.PasswordHash,
		&user.IsActive, &user.FailedLoginAttempts, &user.LockoutUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// IncrementFailedAttempts bumps the failed-attempt counter in the database
// and returns the new value. The increment happens in SQL so concurrent
// failures each observe a distinct count; computing the value from a
// previously loaded row would drop increments under parallel attempts.
func (r *PGRepository) IncrementFailedAttempts(ctx context.Context, userID int64) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET failed_login_attempts = failed_login_attempts + 1, updated_at = NOW() WHERE id = $1 RETURNING failed_login_attempts`,
		userID).Scan(&attempts)
	return attempts, err
}

// SetLockout stamps the lockout expiry once the threshold is crossed.
func (r *PGRepository) SetLockout(ctx context.Context, userID int64, until time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET lockout_until = $2, updated_at = NOW() WHERE id = $1`,
		userID, until)
	return err
}

// ResetFailedAttempts clears the counter and lockout after a successful login.
func (r *PGRepository) ResetFailedAttempts(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, lockout_until = NULL, updated_at = NOW() WHERE id = $1`,
		userID)
	return err
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))`,
		id, userID, expiresAt.UTC(), ip, ua)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Session id collision: the record already exists, nothing to do.
			return nil
		}
		return err
	}
	return nil
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
