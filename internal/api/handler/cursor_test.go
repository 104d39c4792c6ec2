package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/event-scheduler/internal/store"
)

func TestRunCursor_RoundTrip(t *testing.T) {
	original := &store.RunCursor{
		StartedAt: time.Date(2026, 8, 1, 14, 30, 0, 123456789, time.UTC),
		RunID:     "8f14e45f-ceea-467f-a0f9-b1b74cf4a2d1",
	}

	encoded := EncodeRunCursor(original)
	decoded, err := DecodeRunCursor(encoded)

	require.NoError(t, err)
	assert.True(t, original.StartedAt.Equal(decoded.StartedAt))
	assert.Equal(t, original.RunID, decoded.RunID)
}

func TestDecodeRunCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		wantErr bool
		wantNil bool
	}{
		{
			name:    "empty cursor means first page",
			cursor:  "",
			wantNil: true,
		},
		{
			name:    "not base64",
			cursor:  "%%%not-base64%%%",
			wantErr: true,
		},
		{
			name:    "missing separator",
			cursor:  base64.StdEncoding.EncodeToString([]byte("1700000000000000000")),
			wantErr: true,
		},
		{
			name:    "non-numeric timestamp",
			cursor:  base64.StdEncoding.EncodeToString([]byte("yesterday|run-1")),
			wantErr: true,
		},
		{
			name:   "valid cursor",
			cursor: base64.StdEncoding.EncodeToString([]byte("1700000000000000000|run-1")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeRunCursor(tt.cursor)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cursor)
				return
			}
			require.NotNil(t, cursor)
			assert.Equal(t, "run-1", cursor.RunID)
			assert.Equal(t, int64(1700000000000000000), cursor.StartedAt.UnixNano())
		})
	}
}
