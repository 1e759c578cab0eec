package agent

import (
	"errors"
	"fmt"
)

// Configuration errors surfaced by NewOrchestrator.
var (
	ErrNoProvider = errors.New("agent: provider is required")
	ErrNoStatus   = errors.New("agent: status store is required")
	ErrNoThreads  = errors.New("agent: thread store is required")
	ErrNoBroker   = errors.New("agent: stream broker is required")
)

// RunError wraps an unrecoverable failure from inside the iteration loop.
// Tool failures never produce one; they come back to the model as error
// results instead.
type RunError struct {
	RunID     string
	Iteration int
	Stage     string
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s iteration %d: %s: %v", e.RunID, e.Iteration, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
