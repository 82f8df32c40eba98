package tenancy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/shared"
)

// Repository provides PostgreSQL backed hierarchy lookup.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WorkspaceForClient returns the owning workspace id for a client.
func (r *Repository) WorkspaceForClient(ctx context.Context, clientID int64) (int64, error) {
	var workspaceID int64
	err := r.pool.QueryRow(ctx, `SELECT workspace_id FROM clients WHERE id = $1`, clientID).Scan(&workspaceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return workspaceID, nil
}

// ClientForLocation returns the owning client id for a location.
func (r *Repository) ClientForLocation(ctx context.Context, locationID int64) (int64, error) {
	var clientID int64
	err := r.pool.QueryRow(ctx, `SELECT client_id FROM locations WHERE id = $1`, locationID).Scan(&clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return clientID, nil
}

// GetWorkspace fetches a workspace by id.
func (r *Repository) GetWorkspace(ctx context.Context, id int64) (*Workspace, error) {
	var ws Workspace
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM workspaces WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

// GetClient fetches a client by id.
func (r *Repository) GetClient(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, workspace_id, name, created_at, updated_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListLocations returns the locations owned by a client.
func (r *Repository) ListLocations(ctx context.Context, clientID int64) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, client_id, name, address, created_at, updated_at FROM locations WHERE client_id = $1 ORDER BY id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locations []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.ID, &loc.ClientID, &loc.Name, &loc.Address, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

// GetLocation fetches a location by id.
func (r *Repository) GetLocation(ctx context.Context, id int64) (*Location, error) {
	var loc Location
	err := r.pool.QueryRow(ctx, `SELECT id, client_id, name, address, created_at, updated_at FROM locations WHERE id = $1`, id).
		Scan(&loc.ID, &loc.ClientID, &loc.Name, &loc.Address, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}
