package runtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
)

// telemetry wraps a TraceRecorder so that recording never fails a run.
// Empty IDs (from a failed or missing recorder) turn later calls into no-ops.
type telemetry struct {
	recorder ports.TraceRecorder
	logger   *slog.Logger
}

func (t telemetry) startTrace(ctx context.Context, start domain.TraceStart) string {
	if t.recorder == nil {
		return ""
	}
	id, err := t.recorder.StartTrace(ctx, start)
	if err != nil {
		t.logger.WarnContext(ctx, "failed to start trace", "root_id", start.RootNodeID, "error", err)
		return ""
	}
	return id
}

func (t telemetry) startSpan(ctx context.Context, traceID string, start domain.SpanStart) string {
	if t.recorder == nil || traceID == "" {
		return ""
	}
	id, err := t.recorder.CreateSpan(ctx, traceID, start)
	if err != nil {
		t.logger.WarnContext(ctx, "failed to create span", "node_id", start.NodeID, "error", err)
		return ""
	}
	return id
}

func (t telemetry) completeSpan(ctx context.Context, spanID string, c domain.SpanCompletion) {
	if t.recorder == nil || spanID == "" {
		return
	}
	if err := t.recorder.CompleteSpan(ctx, spanID, c); err != nil {
		t.logger.WarnContext(ctx, "failed to complete span", "span_id", spanID, "error", err)
	}
}

func (t telemetry) failSpan(ctx context.Context, spanID string, cause error) {
	if t.recorder == nil || spanID == "" {
		return
	}
	if err := t.recorder.FailSpan(ctx, spanID, evidenceOf(cause)); err != nil {
		t.logger.WarnContext(ctx, "failed to fail span", "span_id", spanID, "error", err)
	}
}

func (t telemetry) completeTrace(ctx context.Context, traceID string, status domain.SpanStatus) {
	if t.recorder == nil || traceID == "" {
		return
	}
	// The run context may already be cancelled; the trace still needs closing.
	if err := t.recorder.CompleteTrace(context.WithoutCancel(ctx), traceID, status); err != nil {
		t.logger.WarnContext(ctx, "failed to complete trace", "trace_id", traceID, "error", err)
	}
}

// evidenceOf classifies an execution error for the span record.
func evidenceOf(err error) domain.ErrorEvidence {
	ev := domain.ErrorEvidence{Type: "error", Message: err.Error()}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		ev.Code = coded.ErrorCode()
	}
	var retry interface{ Retryable() bool }
	if errors.As(err, &retry) {
		ev.Retryable = retry.Retryable()
	}
	switch {
	case errors.Is(err, domain.ErrNodeCancelled):
		ev.Type = "cancelled"
	case errors.Is(err, domain.ErrInterrupted):
		ev.Type = "interrupted"
	case errors.Is(err, domain.ErrTooManyInterrupts):
		ev.Type = "too_many_interrupts"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ev.Type = "context"
		ev.Retryable = true
	case errors.Is(err, domain.ErrGenerationFailed):
		ev.Type = "generation_failed"
	}
	return ev
}
