package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// Handler executes one task envelope and returns a result summary that is
// persisted on the run record.
type Handler func(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error)

// HandlerSet maps handler names from queue messages to their
// implementations. The names match the routing the execution layer uses
// when it enqueues a task.
type HandlerSet struct {
	logger   *slog.Logger
	handlers map[string]Handler
}

// NewHandlerSet builds the default handler set covering every event class.
func NewHandlerSet(logger *slog.Logger) *HandlerSet {
	s := &HandlerSet{
		logger:   logger,
		handlers: make(map[string]Handler),
	}

	s.Register("bot.train", s.handleTraining)
	s.Register("bot.test", s.handleTesting)
	s.Register("bot.data-import", s.handleDataImport)
	s.Register("bot.history-purge", s.handleHistoryPurge)
	s.Register("bot.translate", s.handleMultilingual)
	s.Register("bot.broadcast", s.handleBroadcast)
	s.Register("bot.delete-history", s.handleDeleteHistory)
	s.Register("bot.generic", s.handleGeneric)

	return s
}

// Register binds a handler name to an implementation, replacing any
// previous binding.
func (s *HandlerSet) Register(name string, h Handler) {
	s.handlers[name] = h
}

// For returns the handler registered under name.
func (s *HandlerSet) For(name string) (Handler, bool) {
	h, ok := s.handlers[name]
	return h, ok
}

// stringParam reads an optional string parameter from the envelope payload.
func stringParam(env domain.TaskEnvelope, key string) string {
	if env.Params == nil {
		return ""
	}
	v, _ := env.Params[key].(string)
	return v
}

// requireParam reads a mandatory string parameter from the envelope payload.
func requireParam(env domain.TaskEnvelope, key string) (string, error) {
	v := stringParam(env, key)
	if v == "" {
		return "", fmt.Errorf("missing required param %q", key)
	}
	return v, nil
}

func (s *HandlerSet) handleTraining(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("Running model training",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
	)

	// The actual training pipeline is invoked out of process; here we
	// record what was requested so the run summary is useful either way.
	return map[string]interface{}{
		"tenant_id":  env.TenantID,
		"task_kind":  env.TaskKind,
		"trained_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleTesting(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suite := stringParam(env, "suite")
	if suite == "" {
		suite = "default"
	}

	s.logger.Info("Running model test suite",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
		slog.String("suite", suite),
	)

	return map[string]interface{}{
		"suite":     suite,
		"tested_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleDataImport(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	source, err := requireParam(env, "source")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Running data import",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
		slog.String("source", source),
	)

	return map[string]interface{}{
		"source":      source,
		"imported_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleHistoryPurge(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	retention := stringParam(env, "retention")

	s.logger.Info("Running history purge",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
		slog.String("retention", retention),
	)

	return map[string]interface{}{
		"retention": retention,
		"purged_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleMultilingual(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	language, err := requireParam(env, "language")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Running multilingual generation",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
		slog.String("language", language),
	)

	return map[string]interface{}{
		"language":     language,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleBroadcast(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	message, err := requireParam(env, "message")
	if err != nil {
		return nil, err
	}

	channel := stringParam(env, "channel")
	if channel == "" {
		channel = "all"
	}

	s.logger.Info("Running broadcast",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
		slog.String("channel", channel),
	)

	return map[string]interface{}{
		"channel":      channel,
		"message_size": len(message),
		"sent_at":      time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleDeleteHistory(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("Running history deletion",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
	)

	return map[string]interface{}{
		"deleted_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *HandlerSet) handleGeneric(ctx context.Context, env domain.TaskEnvelope) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("Running generic task",
		slog.String("run_id", env.RunID),
		slog.String("tenant_id", env.TenantID),
		slog.String("event_class", env.EventClass),
	)

	return map[string]interface{}{
		"event_class":  env.EventClass,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
