package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/event-scheduler/internal/store"
)

// DecodeRunCursor parses an opaque page cursor back into its
// (started_at, run_id) position. Empty input means first page.
func DecodeRunCursor(cursorStr string) (*store.RunCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var startedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at in cursor: %w", err)
	}

	return &store.RunCursor{
		StartedAt: time.Unix(0, startedAt),
		RunID:     parts[1],
	}, nil
}

// EncodeRunCursor renders a page position as an opaque cursor string.
func EncodeRunCursor(cursor *store.RunCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.StartedAt.UnixNano(), cursor.RunID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
