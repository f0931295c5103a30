package domain

import "time"

// RunSnapshot is the observable state of the engine's current run.
type RunSnapshot struct {
	RunID           string                `json:"run_id,omitempty"`
	TraceID         string                `json:"trace_id,omitempty"`
	Status          RunStatus             `json:"status"`
	Mode            RunMode               `json:"mode,omitempty"`
	RootID          string                `json:"root_id,omitempty"`
	CurrentNodeID   string                `json:"current_node_id,omitempty"`
	PendingQuestion *QuestionInterrupt    `json:"pending_question,omitempty"`
	PendingPreview  *ActionPreview        `json:"pending_preview,omitempty"`
	Nodes           map[string]NodeStatus `json:"nodes,omitempty"`
	CancelRequested bool                  `json:"cancel_requested,omitempty"`
	StartedAt       time.Time             `json:"started_at,omitempty"`
	FinishedAt      time.Time             `json:"finished_at,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// Active reports whether a run is in progress.
func (s RunSnapshot) Active() bool { return s.Status == RunRunning }
