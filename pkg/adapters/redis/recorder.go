package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Recorder implements ports.TraceRecorder and ports.OrphanCleaner.
//
// Running spans are indexed in a ZSET scored by start time so orphans can be
// found with a single range query.
type Recorder struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type RecorderOption func(*Recorder)

// WithRecorderTTL expires traces and spans after ttl.
func WithRecorderTTL(ttl time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.ttl = ttl
	}
}

// WithRecorderClock overrides time.Now.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder. An empty prefix means DefaultPrefix.
func NewRecorder(client *backend.Client, prefix string, opts ...RecorderOption) *Recorder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	r := &Recorder{client: client, prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) traceKey(id string) string { return r.prefix + "trace:" + id }
func (r *Recorder) spanKey(id string) string  { return r.prefix + "span:" + id }
func (r *Recorder) runningKey() string        { return r.prefix + "spans:running" }

func (r *Recorder) StartTrace(ctx context.Context, start domain.TraceStart) (string, error) {
	t := domain.Trace{
		ID:         uuid.NewString(),
		RootNodeID: start.RootNodeID,
		Mode:       start.Mode,
		Status:     domain.SpanRunning,
		StartedAt:  r.now(),
	}
	if err := r.put(ctx, r.traceKey(t.ID), t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (r *Recorder) CreateSpan(ctx context.Context, traceID string, start domain.SpanStart) (string, error) {
	s := domain.Span{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Start:     start,
		Status:    domain.SpanRunning,
		StartedAt: r.now(),
	}
	err := r.modifyTrace(ctx, traceID, func(t *domain.Trace) {
		t.SpanIDs = append(t.SpanIDs, s.ID)
	})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal span: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.spanKey(s.ID), data, r.ttl)
	pipe.ZAdd(ctx, r.runningKey(), backend.Z{Score: float64(s.StartedAt.UnixMilli()), Member: s.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to save span: %w", err)
	}
	return s.ID, nil
}

func (r *Recorder) CompleteSpan(ctx context.Context, spanID string, c domain.SpanCompletion) error {
	return r.endSpan(ctx, spanID, func(s *domain.Span) {
		s.Status = domain.SpanSuccess
		s.Completion = &c
	})
}

func (r *Recorder) FailSpan(ctx context.Context, spanID string, ev domain.ErrorEvidence) error {
	return r.endSpan(ctx, spanID, func(s *domain.Span) {
		s.Status = domain.SpanError
		s.Error = &ev
	})
}

func (r *Recorder) CompleteTrace(ctx context.Context, traceID string, status domain.SpanStatus) error {
	return r.modifyTrace(ctx, traceID, func(t *domain.Trace) {
		now := r.now()
		t.EndedAt = &now
		t.Status = status
	})
}

// CleanupOrphans fails spans still running after olderThan.
func (r *Recorder) CleanupOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().Add(-olderThan).UnixMilli()
	ids, err := r.client.ZRangeByScore(ctx, r.runningKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan running spans: %w", err)
	}
	n := 0
	for _, id := range ids {
		err := r.endSpan(ctx, id, func(s *domain.Span) {
			s.Status = domain.SpanError
			s.Error = &domain.ErrorEvidence{Type: "orphaned", Message: "span never completed"}
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Trace loads a trace by id.
func (r *Recorder) Trace(ctx context.Context, id string) (*domain.Trace, error) {
	var t domain.Trace
	if err := r.get(ctx, r.traceKey(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Spans loads the spans of a trace in creation order.
func (r *Recorder) Spans(ctx context.Context, traceID string) ([]domain.Span, error) {
	t, err := r.Trace(ctx, traceID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Span, 0, len(t.SpanIDs))
	for _, id := range t.SpanIDs {
		var s domain.Span
		if err := r.get(ctx, r.spanKey(id), &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Recorder) endSpan(ctx context.Context, spanID string, fn func(*domain.Span)) error {
	var s domain.Span
	if err := r.get(ctx, r.spanKey(spanID), &s); err != nil {
		return err
	}
	now := r.now()
	s.EndedAt = &now
	fn(&s)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal span: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.spanKey(spanID), data, r.ttl)
	pipe.ZRem(ctx, r.runningKey(), spanID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save span: %w", err)
	}
	return nil
}

func (r *Recorder) modifyTrace(ctx context.Context, traceID string, fn func(*domain.Trace)) error {
	key := r.traceKey(traceID)
	return r.client.Watch(ctx, func(tx *backend.Tx) error {
		var t domain.Trace
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return fmt.Errorf("trace %s not found", traceID)
			}
			return err
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("failed to unmarshal trace: %w", err)
		}
		fn(&t)
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trace: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p backend.Pipeliner) error {
			p.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)
}

func (r *Recorder) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (r *Recorder) get(ctx context.Context, key string, v any) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return fmt.Errorf("%s not found", key)
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
