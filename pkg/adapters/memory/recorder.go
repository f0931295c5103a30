package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/google/uuid"
)

// Recorder implements ports.TraceRecorder and ports.OrphanCleaner in memory.
type Recorder struct {
	mu     sync.Mutex
	traces map[string]*domain.Trace
	spans  map[string]*domain.Span
	order  []string
	now    func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		traces: make(map[string]*domain.Trace),
		spans:  make(map[string]*domain.Span),
		now:    time.Now,
	}
}

func (r *Recorder) StartTrace(ctx context.Context, start domain.TraceStart) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.traces[id] = &domain.Trace{ID: id, RootNodeID: start.RootNodeID, Mode: start.Mode, Status: domain.SpanRunning, StartedAt: r.now()}
	r.order = append(r.order, id)
	return id, nil
}

func (r *Recorder) CreateSpan(ctx context.Context, traceID string, start domain.SpanStart) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[traceID]
	if !ok {
		return "", fmt.Errorf("trace %s not found", traceID)
	}
	id := uuid.NewString()
	r.spans[id] = &domain.Span{ID: id, TraceID: traceID, Start: start, Status: domain.SpanRunning, StartedAt: r.now()}
	t.SpanIDs = append(t.SpanIDs, id)
	return id, nil
}

func (r *Recorder) CompleteSpan(ctx context.Context, spanID string, c domain.SpanCompletion) error {
	return r.endSpan(spanID, func(s *domain.Span) {
		s.Status = domain.SpanSuccess
		s.Completion = &c
	})
}

func (r *Recorder) FailSpan(ctx context.Context, spanID string, ev domain.ErrorEvidence) error {
	return r.endSpan(spanID, func(s *domain.Span) {
		s.Status = domain.SpanError
		s.Error = &ev
	})
}

func (r *Recorder) endSpan(spanID string, fn func(*domain.Span)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.spans[spanID]
	if !ok {
		return fmt.Errorf("span %s not found", spanID)
	}
	now := r.now()
	s.EndedAt = &now
	fn(s)
	return nil
}

func (r *Recorder) CompleteTrace(ctx context.Context, traceID string, status domain.SpanStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[traceID]
	if !ok {
		return fmt.Errorf("trace %s not found", traceID)
	}
	now := r.now()
	t.EndedAt = &now
	t.Status = status
	return nil
}

// CleanupOrphans fails spans that are still running after olderThan.
func (r *Recorder) CleanupOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-olderThan)
	n := 0
	for _, s := range r.spans {
		if s.Status == domain.SpanRunning && s.StartedAt.Before(cutoff) {
			now := r.now()
			s.Status = domain.SpanError
			s.EndedAt = &now
			s.Error = &domain.ErrorEvidence{Type: "orphaned", Message: "span never completed"}
			n++
		}
	}
	return n, nil
}

// Traces returns copies of all traces in start order.
func (r *Recorder) Traces() []domain.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Trace, 0, len(r.order))
	for _, id := range r.order {
		t := *r.traces[id]
		t.SpanIDs = append([]string(nil), t.SpanIDs...)
		out = append(out, t)
	}
	return out
}

// Spans returns copies of the spans of a trace in creation order.
func (r *Recorder) Spans(traceID string) []domain.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.traces[traceID]
	if !ok {
		return nil
	}
	out := make([]domain.Span, 0, len(t.SpanIDs))
	for _, id := range t.SpanIDs {
		out = append(out, *r.spans[id])
	}
	return out
}
