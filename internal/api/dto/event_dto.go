package dto

// ExecuteEventRequest is the body of POST/PUT /events/execute/:event_class.
// Cron and Timezone are only meaningful when scheduled=true.
type ExecuteEventRequest struct {
	Cron     string                 `json:"cron"`
	Timezone string                 `json:"timezone"`
	Data     map[string]interface{} `json:"data"`
}

// ExecuteEventResponse carries the identifier of what was created: a
// run_id for one-shots, a job_id for scheduled registrations.
type ExecuteEventResponse struct {
	RunID   string `json:"run_id,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message"`
}

// JobDTO is the wire shape of a scheduled job descriptor.
type JobDTO struct {
	JobID               string                 `json:"job_id"`
	TenantID            string                 `json:"tenant_id"`
	EventClass          string                 `json:"event_class"`
	Cron                string                 `json:"cron"`
	Timezone            string                 `json:"timezone"`
	Payload             map[string]interface{} `json:"payload"`
	NextFireTime        string                 `json:"next_fire_time,omitempty"`
	Coalesce            bool                   `json:"coalesce"`
	MisfireGraceSeconds int                    `json:"misfire_grace_seconds"`
	CreatedBy           string                 `json:"created_by"`
	CreatedAt           string                 `json:"created_at"`
	UpdatedAt           string                 `json:"updated_at"`
}

// ListRunsRequest is the query surface of GET /runs.
type ListRunsRequest struct {
	TenantID   string `form:"tenant_id" binding:"required"`
	EventClass string `form:"event_class"`
	Status     string `form:"status"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

// RunDTO is the wire shape of a run record.
type RunDTO struct {
	RunID         string                 `json:"run_id"`
	TenantID      string                 `json:"tenant_id"`
	EventClass    string                 `json:"event_class"`
	JobID         string                 `json:"job_id,omitempty"`
	Status        string                 `json:"status"`
	StartedAt     string                 `json:"started_at"`
	EndedAt       string                 `json:"ended_at,omitempty"`
	Exception     string                 `json:"exception,omitempty"`
	ResultSummary map[string]interface{} `json:"result_summary,omitempty"`
	Actor         string                 `json:"actor"`
}

// ListRunsResponse pages run records newest first.
type ListRunsResponse struct {
	Runs       []RunDTO `json:"runs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// RunStatusUpdateRequest is the body of the internal status callback.
type RunStatusUpdateRequest struct {
	Status        string                 `json:"status" binding:"required"`
	Exception     string                 `json:"exception"`
	ResultSummary map[string]interface{} `json:"result_summary"`
}
