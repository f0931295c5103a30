package domain

import "time"

// SpanStatus is the lifecycle status of a trace or span.
type SpanStatus string

const (
	SpanRunning SpanStatus = "running"
	SpanSuccess SpanStatus = "success"
	SpanError   SpanStatus = "error"
)

// TraceStart opens a trace for one run.
type TraceStart struct {
	RootNodeID string  `json:"root_node_id"`
	Mode       RunMode `json:"mode"`
}

// SpanStart opens a span for one node execution.
type SpanStart struct {
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name"`
	Model    string `json:"model,omitempty"`
	Depth    int    `json:"depth"`
}

// SpanCompletion closes a span successfully.
type SpanCompletion struct {
	Usage        Usage         `json:"usage"`
	Latency      time.Duration `json:"latency"`
	Output       string        `json:"output,omitempty"`
	ResponseID   string        `json:"response_id,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// ErrorEvidence closes a span with a failure.
type ErrorEvidence struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

// Trace is a recorded run.
type Trace struct {
	ID         string     `json:"id"`
	RootNodeID string     `json:"root_node_id"`
	Mode       RunMode    `json:"mode"`
	Status     SpanStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	SpanIDs    []string   `json:"span_ids,omitempty"`
}

// Span is a recorded node execution.
type Span struct {
	ID         string          `json:"id"`
	TraceID    string          `json:"trace_id"`
	Start      SpanStart       `json:"start"`
	Status     SpanStatus      `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Completion *SpanCompletion `json:"completion,omitempty"`
	Error      *ErrorEvidence  `json:"error,omitempty"`
}

// CostRecord is one ledger entry, written per successful generation call.
type CostRecord struct {
	NodeID       string    `json:"node_id"`
	Model        string    `json:"model"`
	Usage        Usage     `json:"usage"`
	CostUSD      float64   `json:"cost_usd"`
	ResponseID   string    `json:"response_id,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	RecordedAt   time.Time `json:"recorded_at"`
}
