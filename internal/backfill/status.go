package backfill

import "time"

// State is the lifecycle of a backfill job for one (bank, loan) key.
// There is no externally visible transition back to idle; a later run
// simply overwrites the stored status.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Status is the polled view of a backfill job.
type Status struct {
	State         State      `json:"status"`
	JobID         string     `json:"job_id,omitempty"`
	TotalDays     int        `json:"total_days"`
	ProcessedDays int        `json:"processed_days"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Message       string     `json:"message,omitempty"`
}
