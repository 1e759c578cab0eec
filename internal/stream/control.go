package stream

import (
	"fmt"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// Signal is a control-plane payload: a single token string.
type Signal string

const (
	SignalStop      Signal = "STOP"
	SignalPause     Signal = "PAUSE"
	SignalEndStream Signal = "END_STREAM"
	SignalError     Signal = "ERROR"
)

// newResponseToken is the content-free payload published on the response
// notification channel. The actual messages live in the response list;
// the token only says "new data available".
const newResponseToken = "new"

// responseListKey addresses a run's append-only serialized message list.
func responseListKey(runID string) string {
	return fmt.Sprintf("run:%s:responses", runID)
}

// newResponseChannel addresses a run's notification channel.
func newResponseChannel(runID string) string {
	return fmt.Sprintf("run:%s:new_response", runID)
}

// globalControlChannel addresses the run-scoped control channel any
// coordinator can signal knowing only the run id.
func globalControlChannel(runID string) string {
	return fmt.Sprintf("run:%s:control", runID)
}

// instanceControlChannel addresses the channel scoped to the worker
// instance executing the run.
func instanceControlChannel(runID, instanceID string) string {
	return fmt.Sprintf("run:%s:control:%s", runID, instanceID)
}

// activeRunKey marks a run as executing on a worker instance.
func activeRunKey(runID, instanceID string) string {
	return fmt.Sprintf("active_run:%s:%s", instanceID, runID)
}

// StatusSignal maps a run status transition to the control signal that
// lets subscribers end their stream without polling the status store.
// Non-terminal transitions emit nothing.
func StatusSignal(status models.RunStatus) (Signal, bool) {
	switch status {
	case models.RunStatusCompleted:
		return SignalEndStream, true
	case models.RunStatusFailed:
		return SignalError, true
	case models.RunStatusStopped:
		return SignalStop, true
	}
	return "", false
}
