package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"enqueued to in_progress", RunStatusEnqueued, RunStatusInProgress, true},
		{"enqueued to aborted", RunStatusEnqueued, RunStatusAborted, true},
		{"enqueued to failed", RunStatusEnqueued, RunStatusFailed, true},
		{"enqueued to completed skips in_progress", RunStatusEnqueued, RunStatusCompleted, false},
		{"in_progress to completed", RunStatusInProgress, RunStatusCompleted, true},
		{"in_progress to failed", RunStatusInProgress, RunStatusFailed, true},
		{"in_progress to aborted", RunStatusInProgress, RunStatusAborted, true},
		{"in_progress back to enqueued", RunStatusInProgress, RunStatusEnqueued, false},
		{"completed is terminal", RunStatusCompleted, RunStatusFailed, false},
		{"completed to completed", RunStatusCompleted, RunStatusCompleted, false},
		{"failed is terminal", RunStatusFailed, RunStatusInProgress, false},
		{"aborted is terminal", RunStatusAborted, RunStatusCompleted, false},
		{"unknown status", "RUNNING", RunStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestLegalPredecessors(t *testing.T) {
	tests := []struct {
		status string
		want   []string
	}{
		{RunStatusInProgress, []string{RunStatusEnqueued}},
		{RunStatusCompleted, []string{RunStatusInProgress}},
		{RunStatusFailed, []string{RunStatusEnqueued, RunStatusInProgress}},
		{RunStatusAborted, []string{RunStatusEnqueued, RunStatusInProgress}},
		{RunStatusEnqueued, nil},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, LegalPredecessors(tt.status))
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	assert.False(t, IsTerminalStatus(RunStatusEnqueued))
	assert.False(t, IsTerminalStatus(RunStatusInProgress))
	assert.True(t, IsTerminalStatus(RunStatusCompleted))
	assert.True(t, IsTerminalStatus(RunStatusFailed))
	assert.True(t, IsTerminalStatus(RunStatusAborted))
}

func TestCountedStatuses_ExcludeEnqueued(t *testing.T) {
	assert.NotContains(t, CountedStatuses, RunStatusEnqueued)
	assert.NotContains(t, CountedStatuses, RunStatusAborted)
	assert.Contains(t, CountedStatuses, RunStatusInProgress)
	assert.Contains(t, CountedStatuses, RunStatusCompleted)
	assert.Contains(t, CountedStatuses, RunStatusFailed)
}
