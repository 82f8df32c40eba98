package verification

import "context"

// Notifier delivers verification codes. The production implementation
// enqueues asynq tasks; tests use in-memory fakes.
type Notifier interface {
	SendEmail(ctx context.Context, to, template string, data map[string]string) error
	SendSMS(ctx context.Context, to, template string, data map[string]string) error
}

// TemplateCode is the notification template used for verification codes.
const TemplateCode = "verification_code"
