package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/event-scheduler/internal/config"
	"github.com/cuongbtq/event-scheduler/internal/domain"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

type recordingRunLog struct {
	mu       sync.Mutex
	marks    []markRecord
	failWith map[string]error
}

type markRecord struct {
	runID  string
	status string
	fields *store.MarkFields
}

func (l *recordingRunLog) Mark(ctx context.Context, runID, status string, fields *store.MarkFields) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = append(l.marks, markRecord{runID, status, fields})
	if err, ok := l.failWith[status]; ok {
		return err
	}
	return nil
}

func (l *recordingRunLog) recorded() []markRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]markRecord, len(l.marks))
	copy(out, l.marks)
	return out
}

func subprocessEnv() domain.TaskEnvelope {
	return domain.TaskEnvelope{
		EventClass: domain.EventClassHistoryPurge,
		TenantID:   "tenant-1",
		RunID:      "run-1",
		Actor:      "scheduler",
		TaskKind:   domain.TaskKindScheduled,
		Params:     map[string]interface{}{"retention": "30d"},
	}
}

func TestSubprocessAdaptor_ExitZeroCompletes(t *testing.T) {
	runs := &recordingRunLog{}
	adaptor := NewSubprocessAdaptor(config.SubprocessConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 0"},
		Timeout: 5 * time.Second,
	}, runs, testLogger())

	require.NoError(t, adaptor.ExecuteTask(context.Background(), subprocessEnv()))
	adaptor.Wait()

	marks := runs.recorded()
	require.Len(t, marks, 2)
	assert.Equal(t, domain.RunStatusInProgress, marks[0].status)
	assert.Equal(t, domain.RunStatusCompleted, marks[1].status)
	require.NotNil(t, marks[1].fields)
	assert.Equal(t, 0, marks[1].fields.ResultSummary["exit_code"])
}

func TestSubprocessAdaptor_NonZeroExitFails(t *testing.T) {
	runs := &recordingRunLog{}
	adaptor := NewSubprocessAdaptor(config.SubprocessConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo 'model artifact missing' >&2; exit 3"},
		Timeout: 5 * time.Second,
	}, runs, testLogger())

	require.NoError(t, adaptor.ExecuteTask(context.Background(), subprocessEnv()))
	adaptor.Wait()

	marks := runs.recorded()
	require.Len(t, marks, 2)

	final := marks[1]
	assert.Equal(t, domain.RunStatusFailed, final.status)
	require.NotNil(t, final.fields)
	assert.Equal(t, "model artifact missing", final.fields.Exception)
	assert.Equal(t, 3, final.fields.ResultSummary["exit_code"])
}

func TestSubprocessAdaptor_EnvelopeThroughEnvironment(t *testing.T) {
	runs := &recordingRunLog{}
	adaptor := NewSubprocessAdaptor(config.SubprocessConfig{
		Command: "/bin/sh",
		Args: []string{"-c",
			`test "$EVENT_CLASS" = history_purge && test "$EVENT_RUN_ID" = run-1 && test "$EVENT_TASK_KIND" = scheduled`},
		Timeout: 5 * time.Second,
	}, runs, testLogger())

	require.NoError(t, adaptor.ExecuteTask(context.Background(), subprocessEnv()))
	adaptor.Wait()

	marks := runs.recorded()
	require.Len(t, marks, 2)
	assert.Equal(t, domain.RunStatusCompleted, marks[1].status)
}

func TestSubprocessAdaptor_UnrecordedCompletionFallsBackToFailed(t *testing.T) {
	// The claim never lands, so the run is still ENQUEUED when the child
	// exits 0 and the COMPLETED mark is rejected by the transition graph.
	// The outcome must still be recorded; FAILED is reachable from ENQUEUED.
	runs := &recordingRunLog{failWith: map[string]error{
		domain.RunStatusInProgress: errors.New("connection reset"),
		domain.RunStatusCompleted:  domain.ErrInvalidTransition,
	}}
	adaptor := NewSubprocessAdaptor(config.SubprocessConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 0"},
		Timeout: 5 * time.Second,
	}, runs, testLogger())

	require.NoError(t, adaptor.ExecuteTask(context.Background(), subprocessEnv()))
	adaptor.Wait()

	marks := runs.recorded()
	require.Len(t, marks, 3)
	assert.Equal(t, domain.RunStatusInProgress, marks[0].status)
	assert.Equal(t, domain.RunStatusCompleted, marks[1].status)

	fallback := marks[2]
	assert.Equal(t, domain.RunStatusFailed, fallback.status)
	require.NotNil(t, fallback.fields)
	assert.Contains(t, fallback.fields.Exception, "not recorded")
	assert.Equal(t, 0, fallback.fields.ResultSummary["exit_code"])
}

func TestSubprocessAdaptor_MissingBinaryIsSubmissionError(t *testing.T) {
	runs := &recordingRunLog{}
	adaptor := NewSubprocessAdaptor(config.SubprocessConfig{
		Command: "/nonexistent/event-runner",
		Timeout: time.Second,
	}, runs, testLogger())

	err := adaptor.ExecuteTask(context.Background(), subprocessEnv())
	require.Error(t, err)

	var subErr *domain.SubmissionError
	assert.True(t, errors.As(err, &subErr))
	assert.Empty(t, runs.recorded())
}
