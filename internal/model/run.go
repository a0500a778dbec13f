// Package model defines the core domain types for the gimli control plane.
//
// Types use strong typing (time.Time, string enums) and avoid interface{}
// wherever possible. The run store, orchestrator registry, and RPC layer
// all speak these types.
package model

import "time"

// RunStatus represents the lifecycle state of an asynchronous unit of work.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// Valid reports whether s is one of the declared run statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusError:
		return true
	}
	return false
}

// Run is one asynchronous execution instance (a triggered workflow or a hook
// invocation) tracked from creation through a terminal state.
//
// Invariants maintained by the run store: CompletedAt is set iff the status
// is terminal; StartedAt is set iff the status is not pending.
type Run struct {
	ID          string     `json:"run_id"`
	Name        string     `json:"name"`
	SessionKey  string     `json:"session_key"`
	Status      RunStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RunResultKind discriminates how a run ended.
type RunResultKind string

const (
	RunResultOK    RunResultKind = "ok"
	RunResultError RunResultKind = "error"
)

// RunResult carries the terminal outcome handed to the run store.
// Kind "error" produces RunStatusError; anything else RunStatusCompleted.
type RunResult struct {
	Kind    RunResultKind
	Summary string
	Output  string
	Error   string
}
