package auth

import "time"

// User represents a stored identity with credential state.
type User struct {
	ID                  int64
	Email               string
	Phone               string
	Name                string
	PasswordHash        string
	IsActive            bool
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SessionUser is the minimal projection bound to a session. It never carries
// the password hash.
type SessionUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name"`
}

func (u *User) sessionUser() *SessionUser {
	return &SessionUser{ID: u.ID, Email: u.Email, Phone: u.Phone, Name: u.Name}
}
