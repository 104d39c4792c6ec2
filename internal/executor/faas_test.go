package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/domain"
)

func TestFaaSAdaptor_ExecuteTask(t *testing.T) {
	env := domain.TaskEnvelope{
		EventClass: domain.EventClassMultilingual,
		TenantID:   "tenant-1",
		RunID:      "run-1",
		Actor:      "api",
		TaskKind:   domain.TaskKindOneShot,
		Params:     map[string]interface{}{"language": "vi"},
	}

	t.Run("posts envelope to the named function", func(t *testing.T) {
		var gotPath string
		var gotEnv domain.TaskEnvelope

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEnv))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		adaptor := NewFaaSAdaptor(config.FaaSConfig{BaseURL: srv.URL}, testLogger())

		require.NoError(t, adaptor.ExecuteTask(context.Background(), env))
		assert.Equal(t, "/functions/bot.translate", gotPath)
		assert.Equal(t, env, gotEnv)
	})

	t.Run("non-2xx response is a submission error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "function not deployed", http.StatusNotFound)
		}))
		defer srv.Close()

		adaptor := NewFaaSAdaptor(config.FaaSConfig{BaseURL: srv.URL}, testLogger())

		err := adaptor.ExecuteTask(context.Background(), env)
		require.Error(t, err)

		var subErr *domain.SubmissionError
		require.True(t, errors.As(err, &subErr))
		assert.Contains(t, err.Error(), "function not deployed")
	})

	t.Run("unreachable endpoint is a submission error", func(t *testing.T) {
		adaptor := NewFaaSAdaptor(config.FaaSConfig{BaseURL: "http://127.0.0.1:1"}, testLogger())

		err := adaptor.ExecuteTask(context.Background(), env)
		require.Error(t, err)

		var subErr *domain.SubmissionError
		assert.True(t, errors.As(err, &subErr))
	})
}
