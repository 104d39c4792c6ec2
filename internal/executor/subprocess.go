package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/domain"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

// RunLog is the slice of the event log the subprocess adaptor needs to
// record execution outcomes.
type RunLog interface {
	Mark(ctx context.Context, runID, status string, fields *store.MarkFields) error
}

// SubprocessAdaptor runs each task as a standalone child process. The
// envelope travels through EVENT_* environment variables; exit code 0 is
// completed, anything else is failed with stderr captured into the run's
// exception field.
type SubprocessAdaptor struct {
	command string
	args    []string
	timeout time.Duration
	runs    RunLog
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewSubprocessAdaptor creates a SubprocessAdaptor
func NewSubprocessAdaptor(cfg config.SubprocessConfig, runs RunLog, logger *slog.Logger) *SubprocessAdaptor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Hour
	}

	return &SubprocessAdaptor{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		runs:    runs,
		logger:  logger,
	}
}

// Name returns the backend identifier
func (a *SubprocessAdaptor) Name() string {
	return config.BackendSubprocess
}

// Wait blocks until all spawned children have exited. Used on shutdown.
func (a *SubprocessAdaptor) Wait() {
	a.wg.Wait()
}

// ExecuteTask starts the child and returns once it is running; the wait
// and the terminal event log transition happen in the background so a slow
// child cannot stall the dispatcher.
func (a *SubprocessAdaptor) ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error {
	params, err := json.Marshal(env.Params)
	if err != nil {
		return domain.NewSubmissionError(fmt.Errorf("failed to encode params: %w", err))
	}

	// Detach the child's lifetime from the dispatch call
	runCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	cmd := exec.CommandContext(runCtx, a.command, a.args...)
	cmd.Env = append(os.Environ(),
		"EVENT_CLASS="+env.EventClass,
		"EVENT_TENANT_ID="+env.TenantID,
		"EVENT_RUN_ID="+env.RunID,
		"EVENT_ACTOR="+env.Actor,
		"EVENT_TASK_KIND="+env.TaskKind,
		"EVENT_PARAMS="+string(params),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return domain.NewSubmissionError(fmt.Errorf("failed to start %s: %w", a.command, err))
	}

	if err := a.runs.Mark(runCtx, env.RunID, domain.RunStatusInProgress, nil); err != nil {
		a.logger.Error("Failed to mark run in progress",
			slog.String("run_id", env.RunID),
			slog.Any("error", err),
		)
	}

	a.logger.Info("Subprocess started",
		slog.String("run_id", env.RunID),
		slog.String("command", a.command),
		slog.Int("pid", cmd.Process.Pid),
	)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		a.awaitExit(cmd, env, &stderr)
	}()

	return nil
}

// awaitExit waits for the child and writes the terminal transition.
func (a *SubprocessAdaptor) awaitExit(cmd *exec.Cmd, env domain.TaskEnvelope, stderr *bytes.Buffer) {
	err := cmd.Wait()

	// The run context is gone by now; terminal transitions get their own
	// deadline so a slow database cannot leak the goroutine.
	markCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err == nil {
		fields := &store.MarkFields{
			ResultSummary: map[string]interface{}{"exit_code": 0},
		}
		if markErr := a.runs.Mark(markCtx, env.RunID, domain.RunStatusCompleted, fields); markErr != nil {
			a.logger.Error("Failed to mark run completed",
				slog.String("run_id", env.RunID),
				slog.Any("error", markErr),
			)
			// If the earlier claim never landed the run is still ENQUEUED,
			// where COMPLETED is unreachable. FAILED is reachable from both
			// ENQUEUED and IN_PROGRESS, so record the outcome there instead
			// of leaving the run to the reaper.
			fallback := &store.MarkFields{
				Exception:     fmt.Sprintf("subprocess exited 0 but completion was not recorded: %v", markErr),
				ResultSummary: map[string]interface{}{"exit_code": 0},
			}
			if failErr := a.runs.Mark(markCtx, env.RunID, domain.RunStatusFailed, fallback); failErr != nil {
				a.logger.Error("Failed to mark run failed after unrecorded completion",
					slog.String("run_id", env.RunID),
					slog.Any("error", failErr),
				)
			}
		}
		return
	}

	exitCode := -1
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	exception := strings.TrimSpace(stderr.String())
	if exception == "" {
		exception = err.Error()
	}

	fields := &store.MarkFields{
		Exception:     exception,
		ResultSummary: map[string]interface{}{"exit_code": exitCode},
	}

	if markErr := a.runs.Mark(markCtx, env.RunID, domain.RunStatusFailed, fields); markErr != nil {
		a.logger.Error("Failed to mark run failed",
			slog.String("run_id", env.RunID),
			slog.Any("error", markErr),
		)
	}

	a.logger.Warn("Subprocess failed",
		slog.String("run_id", env.RunID),
		slog.Int("exit_code", exitCode),
		slog.String("stderr", exception),
	)
}
