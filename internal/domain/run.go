package domain

import "time"

// Run status constants
const (
	RunStatusEnqueued   = "ENQUEUED"
	RunStatusInProgress = "IN_PROGRESS"
	RunStatusCompleted  = "COMPLETED"
	RunStatusFailed     = "FAILED"
	RunStatusAborted    = "ABORTED"
)

// legalTransitions is the run status transition graph. Terminal states
// have no successors.
var legalTransitions = map[string][]string{
	RunStatusEnqueued:   {RunStatusInProgress, RunStatusAborted, RunStatusFailed},
	RunStatusInProgress: {RunStatusCompleted, RunStatusFailed, RunStatusAborted},
	RunStatusCompleted:  {},
	RunStatusFailed:     {},
	RunStatusAborted:    {},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LegalPredecessors returns the statuses from which a run may reach status.
// Used by the event log to enforce the graph inside the UPDATE predicate.
func LegalPredecessors(status string) []string {
	var preds []string
	for from, nexts := range legalTransitions {
		for _, next := range nexts {
			if next == status {
				preds = append(preds, from)
			}
		}
	}
	return preds
}

// IsTerminalStatus reports whether status is a sink in the transition graph.
func IsTerminalStatus(status string) bool {
	return status == RunStatusCompleted || status == RunStatusFailed || status == RunStatusAborted
}

// ActiveStatuses are the non-terminal statuses. At most one run per
// (tenant_id, event_class) may hold one of these at any instant.
var ActiveStatuses = []string{RunStatusEnqueued, RunStatusInProgress}

// CountedStatuses are the statuses that count against daily quotas.
// ENQUEUED is excluded so an admission that never starts does not burn quota.
var CountedStatuses = []string{RunStatusInProgress, RunStatusCompleted, RunStatusFailed}

// Run is one invocation of an event, scheduled or one-shot.
type Run struct {
	RunID         string
	TenantID      string
	EventClass    string
	JobID         string
	Status        string
	StartedAt     time.Time
	EndedAt       *time.Time
	Exception     string
	ResultSummary map[string]interface{}
	Actor         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobDescriptor is one registered recurring scheduled task.
type JobDescriptor struct {
	JobID               string
	TenantID            string
	EventClass          string
	CronExpr            string
	Timezone            string
	Payload             map[string]interface{}
	NextFireTime        *time.Time
	Coalesce            bool
	MisfireGraceSeconds int
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
