package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSendSMS is the task type for sending SMS messages.
	TaskTypeSendSMS = "sms:send"
	// TaskTypeClearLockouts clears expired account lockouts.
	TaskTypeClearLockouts = "auth:clear_lockouts"
	// TaskTypePurgeSessions deletes expired session records.
	TaskTypePurgeSessions = "auth:purge_sessions"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// SendSMSPayload describes the information required to send an SMS.
type SendSMSPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewSendSMSTask constructs an Asynq task.
func NewSendSMSTask(payload SendSMSPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendSMS, data), nil
}

// NewClearLockoutsTask constructs the lockout maintenance task.
func NewClearLockoutsTask() *asynq.Task {
	return asynq.NewTask(TaskTypeClearLockouts, nil)
}

// NewPurgeSessionsTask constructs the session purge task.
func NewPurgeSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeSessions, nil)
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks. Provider
// integration is out of scope; dispatch is logged so a mail relay can be
// wired in without touching the queue contract.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("send email", slog.String("to", payload.To), slog.String("template", payload.Template))
	return nil
}

// HandleSendSMSTask processes TaskTypeSendSMS tasks.
func HandleSendSMSTask(ctx context.Context, t *asynq.Task) error {
	var payload SendSMSPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("send sms", slog.String("to", payload.To), slog.String("template", payload.Template))
	return nil
}
