package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePublisher struct {
	err         error
	body        []byte
	contentType string
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte, contentType string) error {
	p.body = body
	p.contentType = contentType
	return p.err
}

func TestQueueAdaptor_ExecuteTask(t *testing.T) {
	env := domain.TaskEnvelope{
		EventClass: domain.EventClassDataImport,
		TenantID:   "tenant-1",
		RunID:      "run-1",
		Actor:      "api",
		TaskKind:   domain.TaskKindOneShot,
		Params:     map[string]interface{}{"source": "s3://bucket"},
	}

	t.Run("publishes handler-wrapped envelope", func(t *testing.T) {
		publisher := &fakePublisher{}
		adaptor := NewQueueAdaptor(publisher, testLogger())

		require.NoError(t, adaptor.ExecuteTask(context.Background(), env))

		assert.Equal(t, "application/json", publisher.contentType)

		var msg QueueMessage
		require.NoError(t, json.Unmarshal(publisher.body, &msg))
		assert.Equal(t, "bot.data-import", msg.Handler)
		assert.Equal(t, env, msg.Envelope)
	})

	t.Run("publish failure is a submission error", func(t *testing.T) {
		publisher := &fakePublisher{err: errors.New("channel closed")}
		adaptor := NewQueueAdaptor(publisher, testLogger())

		err := adaptor.ExecuteTask(context.Background(), env)
		require.Error(t, err)

		var subErr *domain.SubmissionError
		assert.True(t, errors.As(err, &subErr))
	})

	t.Run("unknown event class never reaches the broker", func(t *testing.T) {
		publisher := &fakePublisher{}
		adaptor := NewQueueAdaptor(publisher, testLogger())

		bad := env
		bad.EventClass = "reindex"
		err := adaptor.ExecuteTask(context.Background(), bad)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		assert.Nil(t, publisher.body)
	})
}
