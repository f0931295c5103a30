package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeFinish(ctx, &domain.NodeEvent{
		NodeType: domain.NodeTypeStandard,
		Status:   domain.NodeSucceeded,
		Latency:  200 * time.Millisecond,
		Usage:    domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
	hooks.OnNodeFinish(ctx, &domain.NodeEvent{NodeType: domain.NodeTypeStandard, Status: domain.NodeFailed})
	hooks.OnQuestion(ctx, &domain.QuestionEvent{})
	hooks.OnAction(ctx, &domain.ActionEvent{Result: domain.ActionResult{
		Status: domain.ActionSucceeded, PostAction: "create_children_json", CreatedCount: 3,
	}})
	hooks.OnAction(ctx, &domain.ActionEvent{Result: domain.ActionResult{
		Status: domain.ActionFailed, PostAction: "create_children_json", CreatedCount: 0,
	}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeRuns.WithLabelValues("standard", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeRuns.WithLabelValues("standard", "failed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.Tokens.WithLabelValues("prompt")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Tokens.WithLabelValues("completion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Questions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("create_children_json", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("create_children_json", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Children))
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics(nil)
	m.Questions.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cascade_questions_total 1")
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := domain.ComposeHooks(observability.LogHooks(logger))
	ctx := context.Background()

	hooks.OnNodeStart(ctx, &domain.NodeEvent{NodeID: "n1", Depth: 2})
	hooks.OnNodeFinish(ctx, &domain.NodeEvent{NodeID: "n1", Status: domain.NodeFailed, Err: "boom"})
	hooks.OnAction(ctx, &domain.ActionEvent{NodeID: "n1", Result: domain.ActionResult{PostAction: "create_children_json", CreatedCount: 2}})

	out := buf.String()
	assert.Contains(t, out, `"msg":"node_start"`)
	assert.Contains(t, out, `"level":"WARN","msg":"node_finish"`)
	assert.Contains(t, out, `"err":"boom"`)
	assert.Contains(t, out, `"created":2`)
}
