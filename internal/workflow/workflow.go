// Package workflow defines the narrow contract to the external
// workflow-triggering collaborator (the ADW service) and its HTTP client.
//
// The orchestrator registry and retry engine depend only on the Connector
// interface; the ADW service itself is a black box.
package workflow

import "context"

// Info describes one workflow in the external catalogue.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// TriggerResult is the collaborator's acknowledgement of a trigger.
type TriggerResult struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
}

// Connector is the external workflow-triggering collaborator.
// Implementations must be safe for concurrent use.
type Connector interface {
	// Trigger starts workflowID with params and returns the remote run handle.
	Trigger(ctx context.Context, workflowID string, params map[string]any) (TriggerResult, error)

	// Status reports the remote status for a previously triggered run.
	Status(ctx context.Context, runID string) (string, error)

	// ListAvailable returns the workflow catalogue.
	ListAvailable(ctx context.Context) ([]Info, error)

	// Cancel requests cancellation of a remote run; true if it was cancelled.
	Cancel(ctx context.Context, runID string) (bool, error)
}
