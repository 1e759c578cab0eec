package models

import "time"

// RunStatus represents the lifecycle state of an agent run.
type RunStatus string

const (
	// RunStatusRunning means the orchestration loop is actively iterating.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted means the run finished successfully, either via an
	// explicit completion signal or by exhausting its iteration budget.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed means an unrecoverable error aborted the loop.
	RunStatusFailed RunStatus = "failed"

	// RunStatusStopped means the run was halted before completion: an
	// external stop signal, or the agent handing control back to the user.
	RunStatusStopped RunStatus = "stopped"
)

// Terminal reports whether the status is final. A run that has reached a
// terminal status never changes status again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusStopped:
		return true
	}
	return false
}

// Valid reports whether s is one of the known run statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusStopped:
		return true
	}
	return false
}

// Run is one end-to-end execution of the agent loop for a task.
//
// A run is created when a task is submitted and mutated only by the
// orchestrator through the run status store. Once terminal, its status
// never changes again.
type Run struct {
	ID           string     `json:"id"`
	ThreadID     string     `json:"thread_id"`
	ProjectID    string     `json:"project_id"`
	Status       RunStatus  `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Thread is the ordered, append-only conversation log for one run. It
// outlives the run for audit and history.
type Thread struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}
