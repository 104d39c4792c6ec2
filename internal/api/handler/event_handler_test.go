package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/event-scheduler/internal/domain"
	"github.com/cuongbtq/event-scheduler/internal/executor"
	"github.com/cuongbtq/event-scheduler/internal/lifecycle"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

type stubEngine struct{}

func (stubEngine) Register(ctx context.Context, desc *domain.JobDescriptor) error {
	desc.JobID = "job-1"
	return nil
}

func (stubEngine) Reschedule(ctx context.Context, jobID, cronExpr, timezone string, payload map[string]interface{}) error {
	return nil
}

func (stubEngine) Remove(ctx context.Context, jobID string) error { return nil }

func (stubEngine) Get(ctx context.Context, jobID string) (*domain.JobDescriptor, error) {
	return nil, domain.ErrNotFound
}

func (stubEngine) List(ctx context.Context, tenantID string) ([]string, error) { return nil, nil }

type stubRunLog struct{}

func (stubRunLog) OpenRun(ctx context.Context, tenantID, eventClass, actor, jobID string) (string, error) {
	return "run-1", nil
}

func (stubRunLog) Mark(ctx context.Context, runID, status string, fields *store.MarkFields) error {
	return nil
}

func (stubRunLog) Get(ctx context.Context, runID string) (*domain.Run, error) {
	return nil, domain.ErrNotFound
}

func (stubRunLog) List(ctx context.Context, filter store.RunFilter) ([]*domain.Run, error) {
	return nil, nil
}

type stubGate struct {
	runErr error
}

func (g stubGate) CheckRun(ctx context.Context, tenantID, eventClass string) error { return g.runErr }

func (stubGate) CheckLimit(ctx context.Context, tenantID, kind string) error { return nil }

type stubDispatcher struct{}

func (stubDispatcher) ExecuteTask(ctx context.Context, env domain.TaskEnvelope) error { return nil }

type stubProbe struct{}

func (stubProbe) Backend() (executor.Backend, error) { return nil, nil }

func newTestRouter(gate stubGate) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	controller := lifecycle.NewController(stubEngine{}, stubRunLog{}, gate, stubDispatcher{}, stubProbe{}, logger)
	h := NewEventHandler(&Dependencies{Logger: logger, Controller: controller})

	r := gin.New()
	r.POST("/events/execute/:event_class", h.ExecuteEvent)
	r.GET("/runs/:run_id", h.GetRun)
	return r
}

func TestEventHandler_ExecuteEvent(t *testing.T) {
	t.Run("missing tenant header rejected", func(t *testing.T) {
		r := newTestRouter(stubGate{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events/execute/training", strings.NewReader(`{}`))
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("one-shot enqueue returns run id", func(t *testing.T) {
		r := newTestRouter(stubGate{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events/execute/training", strings.NewReader(`{"data":{"depth":3}}`))
		req.Header.Set("X-Tenant-ID", "tenant-1")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)
	})

	t.Run("scheduled registration returns job id", func(t *testing.T) {
		r := newTestRouter(stubGate{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events/execute/training?scheduled=true",
			strings.NewReader(`{"cron":"0 3 * * *"}`))
		req.Header.Set("X-Tenant-ID", "tenant-1")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)
	})

	t.Run("quota denial maps to 429", func(t *testing.T) {
		r := newTestRouter(stubGate{runErr: domain.NewLimitExceeded("Daily limit exceeded.")})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events/execute/training", strings.NewReader(`{}`))
		req.Header.Set("X-Tenant-ID", "tenant-1")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}

func TestEventHandler_GetRun_NotFound(t *testing.T) {
	r := newTestRouter(stubGate{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runs/run-missing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
