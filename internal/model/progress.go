package model

import "time"

// ProgressKind enumerates progress notifications emitted by an analysis job.
type ProgressKind string

const (
	ProgressStarted   ProgressKind = "started"
	ProgressHeartbeat ProgressKind = "heartbeat"
	ProgressCompleted ProgressKind = "completed"
	ProgressCancelled ProgressKind = "cancelled"
	ProgressFailed    ProgressKind = "failed"
)

// ProgressEvent is delivered to progress sinks. Error is set when a job
// failed, was stopped by an error rather than by its caller, or completed
// without history or export.
type ProgressEvent struct {
	JobID  string       `json:"job_id"`
	Wallet string       `json:"wallet"`
	Kind   ProgressKind `json:"kind"`
	State  string       `json:"state"`
	Rows   int          `json:"rows"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}
