package domain

import "time"

// RunState enumerates lifecycle milestones of a triggered run.
type RunState string

const (
	RunQueued    RunState = "queued"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Done reports whether the run reached a terminal state.
func (s RunState) Done() bool {
	return s == RunSucceeded || s == RunFailed
}

// Run is the pollable record of one triggered pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	State      RunState   `json:"state"`
	Items      int        `json:"items"`
	Published  bool       `json:"published"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
