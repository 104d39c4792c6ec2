package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/event-scheduler/internal/api/dto"
	"github.com/cuongbtq/event-scheduler/internal/store"
)

// tenantHeader carries the tenant the request acts on. Authentication is
// out of scope here; the REST layer in front of this service owns it.
const tenantHeader = "X-Tenant-ID"

// actorHeader optionally names the initiating user
const actorHeader = "X-Actor"

// ExecuteEvent handles POST /events/execute/:event_class
// With scheduled=true it registers a recurring job; otherwise it enqueues
// a one-shot run.
func (h *EventHandler) ExecuteEvent(c *gin.Context) {
	eventClass := c.Param("event_class")
	tenantID := c.GetHeader(tenantHeader)
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": tenantHeader + " header is required"})
		return
	}

	actor := c.GetHeader(actorHeader)
	if actor == "" {
		actor = "api"
	}

	var req dto.ExecuteEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	scheduled, _ := strconv.ParseBool(c.Query("scheduled"))

	h.logger.Info("ExecuteEvent called",
		slog.String("event_class", eventClass),
		slog.String("tenant_id", tenantID),
		slog.Bool("scheduled", scheduled),
	)

	if scheduled {
		jobID, err := h.controller.AddScheduled(c.Request.Context(), tenantID, eventClass, req.Cron, req.Timezone, req.Data, actor)
		if err != nil {
			h.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, dto.ExecuteEventResponse{
			JobID:   jobID,
			Message: "Event scheduled.",
		})
		return
	}

	runID, err := h.controller.EnqueueOnce(c.Request.Context(), tenantID, eventClass, req.Data, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ExecuteEventResponse{
		RunID:   runID,
		Message: "Event enqueued.",
	})
}

// UpdateScheduled handles PUT /events/execute/:event_class?scheduled=true&job_id=...
func (h *EventHandler) UpdateScheduled(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id query parameter is required"})
		return
	}

	var req dto.ExecuteEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.controller.UpdateScheduled(c.Request.Context(), jobID, req.Cron, req.Timezone, req.Data); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ExecuteEventResponse{
		JobID:   jobID,
		Message: "Schedule updated.",
	})
}

// DeleteScheduled handles DELETE /events/:job_id
func (h *EventHandler) DeleteScheduled(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.controller.DeleteScheduled(c.Request.Context(), jobID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule removed."})
}

// GetScheduled handles GET /events/:job_id
func (h *EventHandler) GetScheduled(c *gin.Context) {
	jobID := c.Param("job_id")

	desc, err := h.controller.GetScheduled(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := dto.JobDTO{
		JobID:               desc.JobID,
		TenantID:            desc.TenantID,
		EventClass:          desc.EventClass,
		Cron:                desc.CronExpr,
		Timezone:            desc.Timezone,
		Payload:             desc.Payload,
		Coalesce:            desc.Coalesce,
		MisfireGraceSeconds: desc.MisfireGraceSeconds,
		CreatedBy:           desc.CreatedBy,
		CreatedAt:           desc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           desc.UpdatedAt.Format(time.RFC3339),
	}
	if desc.NextFireTime != nil {
		out.NextFireTime = desc.NextFireTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, out)
}

// ListScheduled handles GET /events?tenant_id=...
func (h *EventHandler) ListScheduled(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		tenantID = c.GetHeader(tenantHeader)
	}
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	jobIDs, err := h.controller.ListScheduled(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_ids": jobIDs})
}

// ListRuns handles GET /runs with filtering and cursor pagination
func (h *EventHandler) ListRuns(c *gin.Context) {
	var req dto.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeRunCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	filter := store.RunFilter{
		TenantID:   req.TenantID,
		EventClass: req.EventClass,
		Status:     req.Status,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	}

	runs, err := h.controller.ListRuns(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	hasMore := len(runs) > req.PageSize
	if hasMore {
		runs = runs[:req.PageSize]
	}

	out := make([]dto.RunDTO, len(runs))
	for i, run := range runs {
		out[i] = dto.RunDTO{
			RunID:         run.RunID,
			TenantID:      run.TenantID,
			EventClass:    run.EventClass,
			JobID:         run.JobID,
			Status:        run.Status,
			StartedAt:     run.StartedAt.Format(time.RFC3339),
			Exception:     run.Exception,
			ResultSummary: run.ResultSummary,
			Actor:         run.Actor,
		}
		if run.EndedAt != nil {
			out[i].EndedAt = run.EndedAt.Format(time.RFC3339)
		}
	}

	var nextCursor string
	if hasMore {
		last := runs[len(runs)-1]
		nextCursor = EncodeRunCursor(&store.RunCursor{
			StartedAt: last.StartedAt,
			RunID:     last.RunID,
		})
	}

	c.JSON(http.StatusOK, dto.ListRunsResponse{
		Runs:       out,
		NextCursor: nextCursor,
	})
}

// GetRun handles GET /runs/:run_id
func (h *EventHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := h.controller.GetRun(c.Request.Context(), runID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := dto.RunDTO{
		RunID:         run.RunID,
		TenantID:      run.TenantID,
		EventClass:    run.EventClass,
		JobID:         run.JobID,
		Status:        run.Status,
		StartedAt:     run.StartedAt.Format(time.RFC3339),
		Exception:     run.Exception,
		ResultSummary: run.ResultSummary,
		Actor:         run.Actor,
	}
	if run.EndedAt != nil {
		out.EndedAt = run.EndedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, out)
}

// UpdateRunStatus handles POST /internal/runs/:run_id/status, the
// authenticated callback executing handlers use to report progress.
func (h *EventHandler) UpdateRunStatus(c *gin.Context) {
	runID := c.Param("run_id")

	var req dto.RunStatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.controller.MarkRun(c.Request.Context(), runID, req.Status, req.Exception, req.ResultSummary)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Status recorded."})
}
