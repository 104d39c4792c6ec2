package domain

// Event class constants. Each class maps to exactly one worker handler
// registered in the executor registry.
const (
	EventClassTraining      = "training"
	EventClassTesting       = "testing"
	EventClassDataImport    = "data_import"
	EventClassHistoryPurge  = "history_purge"
	EventClassMultilingual  = "multilingual"
	EventClassBroadcast     = "broadcast"
	EventClassDeleteHistory = "delete_history"
	EventClassOther         = "other"
)

// EventClasses lists every known event class.
var EventClasses = []string{
	EventClassTraining,
	EventClassTesting,
	EventClassDataImport,
	EventClassHistoryPurge,
	EventClassMultilingual,
	EventClassBroadcast,
	EventClassDeleteHistory,
	EventClassOther,
}

// IsValidEventClass reports whether class is a known event class.
func IsValidEventClass(class string) bool {
	for _, c := range EventClasses {
		if c == class {
			return true
		}
	}
	return false
}

// Task kind constants distinguish scheduled fires from one-shot submissions.
const (
	TaskKindScheduled = "scheduled"
	TaskKindOneShot   = "one_shot"
)

// ActorScheduler is the actor recorded on runs produced by scheduled fires.
const ActorScheduler = "scheduler"

// TaskEnvelope is the class-agnostic payload handed to every backend
// adaptor. Params carries the original caller payload unchanged.
type TaskEnvelope struct {
	EventClass string                 `json:"event_class"`
	TenantID   string                 `json:"tenant_id"`
	RunID      string                 `json:"run_id"`
	Actor      string                 `json:"actor"`
	TaskKind   string                 `json:"task_kind"`
	Params     map[string]interface{} `json:"params"`
}
