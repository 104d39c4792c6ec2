package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/event-scheduler/internal/executor"
	"github.com/cuongbtq/event-scheduler/internal/store"
	"github.com/cuongbtq/event-scheduler/shared/rabbitmq"
)

// RunLog is the slice of the event log the worker needs: claiming a run,
// heartbeating it, and recording its terminal status.
type RunLog interface {
	Mark(ctx context.Context, runID, status string, fields *store.MarkFields) error
	Touch(ctx context.Context, runID string) error
}

// taskMessage pairs a decoded queue message with its delivery tag for
// manual ack/nack.
type taskMessage struct {
	Message     executor.QueueMessage
	DeliveryTag uint64
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	RabbitClient      *rabbitmq.Client
	RunLog            RunLog
	Handlers          *HandlerSet
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	PrefetchCount     int
	QueueName         string
}

// Worker consumes task envelopes from the durable queue and executes them
// through the event-class handler set. Delivery is at-least-once, so all
// processing is idempotent keyed on run_id.
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	runs              RunLog
	handlers          *HandlerSet
	concurrency       int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	prefetchCount     int
	queueName         string
	workerID          string
	tasksChan         chan *taskMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		runs:              cfg.RunLog,
		handlers:          cfg.Handlers,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		prefetchCount:     prefetch,
		queueName:         cfg.QueueName,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		tasksChan:         make(chan *taskMessage),
		stopChan:          make(chan struct{}),
	}
}

// Start subscribes to the queue, spawns the worker pool, and blocks
// dispatching deliveries until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
}
