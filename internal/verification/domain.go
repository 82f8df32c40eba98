// Package verification tracks one-time code attempts through their lifecycle:
// issued codes stay pending until confirmed, expired, or failed out after too
// many mismatches. A resend supersedes the prior pending attempt; only the
// newest attempt for a subject and channel is ever confirmable.
package verification

import "time"

// Channel is the delivery medium for verification codes.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Status is the lifecycle state of an attempt. Pending is the only
// non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// Attempt is a single issued code's lifecycle instance.
type Attempt struct {
	ID          string    `json:"id"`
	SubjectID   int64     `json:"subject_id"`
	Channel     Channel   `json:"channel"`
	Destination string    `json:"destination"`
	Code        string    `json:"code"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Status      Status    `json:"status"`
	Mismatches  int       `json:"mismatches"`

	// Delivered reports whether dispatch to the notifier succeeded. A
	// failed dispatch does not roll back the attempt; callers surface it
	// as a warning.
	Delivered bool `json:"delivered"`
}
