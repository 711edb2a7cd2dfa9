package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeEmail is the task type for the post-registration
	// welcome email.
	TaskTypeWelcomeEmail = "mail:welcome"
)

// WelcomeEmailPayload describes the information required to greet a
// freshly registered account.
type WelcomeEmailPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// NewWelcomeEmailTask constructs an Asynq task.
func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeEmail, data, asynq.Queue(QueueDefault)), nil
}

// Sender delivers a rendered email.
type Sender interface {
	Send(to, subject, body string) error
}

// NewWelcomeEmailHandler builds the handler processing
// TaskTypeWelcomeEmail tasks.
func NewWelcomeEmailHandler(sender Sender, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload WelcomeEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		body := fmt.Sprintf("Hi %s,\n\nWelcome to Lumora. Your account is ready.\n", payload.Username)
		if err := sender.Send(payload.Email, "Welcome to Lumora", body); err != nil {
			logger.Warn("send welcome email", slog.String("to", payload.Email), slog.Any("error", err))
			return err
		}
		return nil
	}
}
