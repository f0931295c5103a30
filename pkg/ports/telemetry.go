package ports

import (
	"context"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
)

// CostLedger records one entry per successful generation call.
// Failures are logged by the engine and never abort a run.
type CostLedger interface {
	RecordCost(ctx context.Context, record domain.CostRecord) error
}

// TraceRecorder captures traces and spans. Failures are logged and swallowed.
type TraceRecorder interface {
	StartTrace(ctx context.Context, start domain.TraceStart) (string, error)
	CreateSpan(ctx context.Context, traceID string, start domain.SpanStart) (string, error)
	CompleteSpan(ctx context.Context, spanID string, completion domain.SpanCompletion) error
	FailSpan(ctx context.Context, spanID string, evidence domain.ErrorEvidence) error
	CompleteTrace(ctx context.Context, traceID string, status domain.SpanStatus) error
}

// OrphanCleaner is optionally implemented by recorders to close spans
// left running by a crashed process.
type OrphanCleaner interface {
	CleanupOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}
