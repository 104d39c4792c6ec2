package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// FaaSAdaptor invokes a named remote function with the task envelope. The
// call is fire-and-forget: a 2xx means the function accepted the task, and
// the function itself maintains the event log from there on.
type FaaSAdaptor struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFaaSAdaptor creates a FaaSAdaptor
func NewFaaSAdaptor(cfg config.FaaSConfig, logger *slog.Logger) *FaaSAdaptor {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FaaSAdaptor{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name returns the backend identifier
func (a *FaaSAdaptor) Name() string {
	return config.BackendFaaS
}

// ExecuteTask POSTs the envelope to the function named after the event
// class handler. Transport errors and non-2xx responses are submission
// errors.
func (a *FaaSAdaptor) ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error {
	handler, err := HandlerFor(env.EventClass)
	if err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return domain.NewSubmissionError(fmt.Errorf("failed to encode envelope: %w", err))
	}

	url := fmt.Sprintf("%s/functions/%s", a.baseURL, handler)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.NewSubmissionError(fmt.Errorf("failed to build function request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewSubmissionError(fmt.Errorf("function invocation failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.NewSubmissionError(fmt.Errorf("function %s returned status %d: %s", handler, resp.StatusCode, string(detail)))
	}

	a.logger.Info("Task submitted to function backend",
		slog.String("run_id", env.RunID),
		slog.String("handler", handler),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}
