package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// Publisher is the slice of the RabbitMQ client the queue adaptor needs.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// QueueMessage is the wire format placed on the durable queue. Delivery is
// at-least-once; workers must be idempotent keyed on run_id.
type QueueMessage struct {
	Handler  string              `json:"handler"`
	Envelope domain.TaskEnvelope `json:"envelope"`
}

// QueueAdaptor submits tasks to the worker fleet through RabbitMQ.
type QueueAdaptor struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewQueueAdaptor creates a QueueAdaptor
func NewQueueAdaptor(publisher Publisher, logger *slog.Logger) *QueueAdaptor {
	return &QueueAdaptor{publisher: publisher, logger: logger}
}

// Name returns the backend identifier
func (a *QueueAdaptor) Name() string {
	return config.BackendQueue
}

// ExecuteTask publishes the envelope as a persistent message. A publish
// failure means the task never started and is a submission error.
func (a *QueueAdaptor) ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error {
	handler, err := HandlerFor(env.EventClass)
	if err != nil {
		return err
	}

	body, err := json.Marshal(QueueMessage{Handler: handler, Envelope: env})
	if err != nil {
		return domain.NewSubmissionError(fmt.Errorf("failed to encode queue message: %w", err))
	}

	if err := a.publisher.Publish(ctx, body, "application/json"); err != nil {
		return domain.NewSubmissionError(err)
	}

	a.logger.Info("Task enqueued",
		slog.String("run_id", env.RunID),
		slog.String("handler", handler),
		slog.String("event_class", env.EventClass),
	)

	return nil
}
