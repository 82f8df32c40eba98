// Package tenancy models the containment hierarchy: a workspace owns
// clients, a client owns locations. The authorization middleware uses it to
// find the outer scope ids a nested permission check needs.
package tenancy

import "time"

// Workspace is the top-level tenant.
type Workspace struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Client is a customer account owned by exactly one workspace.
type Client struct {
	ID          int64
	WorkspaceID int64
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Location is a guarded site owned by exactly one client.
type Location struct {
	ID        int64
	ClientID  int64
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
