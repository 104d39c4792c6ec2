package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidEventClass(t *testing.T) {
	for _, class := range EventClasses {
		assert.True(t, IsValidEventClass(class), "class %q should be valid", class)
	}

	assert.False(t, IsValidEventClass(""))
	assert.False(t, IsValidEventClass("TRAINING"))
	assert.False(t, IsValidEventClass("reindex"))
}

func TestTaskEnvelope_JSON(t *testing.T) {
	env := TaskEnvelope{
		EventClass: EventClassTraining,
		TenantID:   "tenant-1",
		RunID:      "2f1f2d1e-8f2a-4f7e-9a61-0c6f34c9a111",
		Actor:      "api",
		TaskKind:   TaskKindOneShot,
		Params:     map[string]interface{}{"source": "s3://bucket/data"},
	}

	encoded, err := json.Marshal(env)
	require.NoError(t, err)

	// Wire field names are part of the worker contract
	assert.Contains(t, string(encoded), `"event_class":"training"`)
	assert.Contains(t, string(encoded), `"task_kind":"one_shot"`)

	var decoded TaskEnvelope
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, env, decoded)
}
