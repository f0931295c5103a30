package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeStart EventType = "node_start"
	EventNodeEnd   EventType = "node_finish"
	EventQuestion  EventType = "question"
	EventAction    EventType = "action"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// NodeEvent is emitted when a node starts or finishes.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NodeName string        `json:"node_name"`
	NodeType NodeType      `json:"node_type"`
	Depth    int           `json:"depth"`
	Status   NodeStatus    `json:"status,omitempty"`
	Latency  time.Duration `json:"latency,omitempty"`
	Usage    Usage         `json:"usage"`
	Err      string        `json:"error,omitempty"`
}

// QuestionEvent is emitted when a node pauses on a question.
type QuestionEvent struct {
	EventBase
	Interrupt QuestionInterrupt `json:"interrupt"`
	Attempt   int               `json:"attempt"`
}

// ActionEvent is emitted after a post-action completes.
type ActionEvent struct {
	EventBase
	NodeID string       `json:"node_id"`
	Result ActionResult `json:"result"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeFinish func(context.Context, *NodeEvent)
	OnQuestion   func(context.Context, *QuestionEvent)
	OnAction     func(context.Context, *ActionEvent)
}

// ComposeHooks returns hooks that call each set in order.
func ComposeHooks(sets ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range sets {
		out.OnNodeStart = chain(out.OnNodeStart, h.OnNodeStart)
		out.OnNodeFinish = chain(out.OnNodeFinish, h.OnNodeFinish)
		out.OnQuestion = chain(out.OnQuestion, h.OnQuestion)
		out.OnAction = chain(out.OnAction, h.OnAction)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
