package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Notifier implements the verification dispatch collaborator by enqueueing
// Asynq tasks. Delivery is fire-and-forget from the caller's perspective;
// only enqueue failures surface.
type Notifier struct {
	client *Client
}

// NewNotifier constructs a Notifier over the jobs client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// SendEmail enqueues an email dispatch task.
func (n *Notifier) SendEmail(ctx context.Context, to, template string, data map[string]string) error {
	task, err := NewSendEmailTask(SendEmailPayload{To: to, Template: template, Data: data})
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task)
	return err
}

// SendSMS enqueues an SMS dispatch task.
func (n *Notifier) SendSMS(ctx context.Context, to, template string, data map[string]string) error {
	task, err := NewSendSMSTask(SendSMSPayload{To: to, Template: template, Data: data})
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task)
	return err
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Enqueue submits a task on the default queue.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
