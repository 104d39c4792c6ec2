package executor

import (
	"context"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// HandlerMapping statically maps event classes to worker handler names.
// Adaptors carry the handler name, never a captured function reference, so
// the scheduler and the worker fleet can deploy independently.
var HandlerMapping = map[string]string{
	domain.EventClassTraining:      "bot.train",
	domain.EventClassTesting:       "bot.test",
	domain.EventClassDataImport:    "bot.data-import",
	domain.EventClassHistoryPurge:  "bot.history-purge",
	domain.EventClassMultilingual:  "bot.translate",
	domain.EventClassBroadcast:     "bot.broadcast",
	domain.EventClassDeleteHistory: "bot.delete-history",
	domain.EventClassOther:         "bot.generic",
}

// HandlerFor returns the handler name for an event class. Unknown classes
// fail fast with invalid input.
func HandlerFor(eventClass string) (string, error) {
	name, ok := HandlerMapping[eventClass]
	if !ok {
		return "", domain.InvalidInputf("unknown event class %q", eventClass)
	}
	return name, nil
}

// Backend is the uniform adaptor contract. ExecuteTask returns nil once
// the task has been accepted by the backend; failures to start are
// submission errors, failures after start surface through the event log.
type Backend interface {
	Name() string
	ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error
}

// Registry holds the available backends and the configured selection.
type Registry struct {
	backends map[string]Backend
	selected string
}

// NewRegistry creates a registry with the given backends. selected names
// the process-wide backend choice; it may be empty, in which case Backend
// reports unconfigured.
func NewRegistry(selected string, backends ...Backend) *Registry {
	byName := make(map[string]Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	return &Registry{
		backends: byName,
		selected: selected,
	}
}

// Backend returns the configured backend adaptor.
func (r *Registry) Backend() (Backend, error) {
	if r.selected == "" {
		return nil, domain.ErrUnconfigured
	}

	backend, ok := r.backends[r.selected]
	if !ok {
		return nil, domain.ErrUnconfigured
	}

	return backend, nil
}
