package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the cascade collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	NodeRuns     *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	Tokens       *prometheus.CounterVec
	Questions    prometheus.Counter
	Actions      *prometheus.CounterVec
	Children     prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		NodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_node_runs_total",
			Help: "Node executions by final status.",
		}, []string{"node_type", "status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascade_node_duration_seconds",
			Help:    "Wall time of node executions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"node_type"}),
		Tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_tokens_total",
			Help: "Tokens consumed by generation calls.",
		}, []string{"kind"}),
		Questions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cascade_questions_total",
			Help: "Questions raised by question nodes.",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_actions_total",
			Help: "Post-actions by outcome.",
		}, []string{"post_action", "status"}),
		Children: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cascade_children_created_total",
			Help: "Nodes created by post-actions.",
		}),
	}
	reg.MustRegister(m.NodeRuns, m.NodeDuration, m.Tokens, m.Questions, m.Actions, m.Children)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Hooks records every lifecycle event.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeRuns.WithLabelValues(string(e.NodeType), string(e.Status)).Inc()
			m.NodeDuration.WithLabelValues(string(e.NodeType)).Observe(e.Latency.Seconds())
			m.Tokens.WithLabelValues("prompt").Add(float64(e.Usage.PromptTokens))
			m.Tokens.WithLabelValues("completion").Add(float64(e.Usage.CompletionTokens))
		},
		OnQuestion: func(context.Context, *domain.QuestionEvent) {
			m.Questions.Inc()
		},
		OnAction: func(_ context.Context, e *domain.ActionEvent) {
			m.Actions.WithLabelValues(e.Result.PostAction, string(e.Result.Status)).Inc()
			if e.Result.Succeeded() {
				m.Children.Add(float64(e.Result.CreatedCount))
			}
		},
	}
}

// LogHooks writes one structured line per lifecycle event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_start", "node_id", e.NodeID, "type", e.NodeType, "depth", e.Depth)
		},
		OnNodeFinish: func(ctx context.Context, e *domain.NodeEvent) {
			level := slog.LevelInfo
			if e.Status == domain.NodeFailed {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "node_finish",
				"node_id", e.NodeID,
				"status", e.Status,
				"latency", e.Latency,
				"tokens", e.Usage.TotalTokens,
				"err", e.Err,
			)
		},
		OnQuestion: func(ctx context.Context, e *domain.QuestionEvent) {
			logger.InfoContext(ctx, "question", "node_id", e.Interrupt.NodeID, "variable", e.Interrupt.VariableName, "attempt", e.Attempt)
		},
		OnAction: func(ctx context.Context, e *domain.ActionEvent) {
			logger.InfoContext(ctx, "action",
				"node_id", e.NodeID,
				"post_action", e.Result.PostAction,
				"status", e.Result.Status,
				"created", e.Result.CreatedCount,
			)
		},
	}
}
