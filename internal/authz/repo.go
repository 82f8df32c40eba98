package authz

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GrantSource resolves the grants a subject holds at a scope instance. The
// returned set must include the subject's platform grants so the evaluator
// can apply the platform-admin override.
type GrantSource interface {
	GrantsFor(ctx context.Context, subjectID int64, scope ScopeType, scopeID int64) ([]Grant, error)
}

// Repository provides PostgreSQL backed grant lookup.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GrantsFor returns the subject's grants at the addressed scope instance
// together with any platform grants held by the same subject.
func (r *Repository) GrantsFor(ctx context.Context, subjectID int64, scope ScopeType, scopeID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject_id, scope_type, scope_id, role
		FROM grants
		WHERE subject_id = $1
		  AND ((scope_type = $2 AND scope_id = $3) OR scope_type = 'platform')`,
		subjectID, string(scope), scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		var scopeType, role string
		if err := rows.Scan(&g.SubjectID, &scopeType, &g.ScopeID, &role); err != nil {
			return nil, err
		}
		g.Scope = ScopeType(scopeType)
		g.Role = Role(role)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

var _ GrantSource = (*Repository)(nil)
