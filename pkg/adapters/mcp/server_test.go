package mcp

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/adapters/memory"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, provider ports.GenerationProvider) *Server {
	t.Helper()
	store := memory.NewStore(&domain.PromptNode{ID: "root", Name: "Root", Children: []*domain.PromptNode{
		{ID: "a", Name: "A", NodeType: domain.NodeTypeQuestion},
		{ID: "b", Name: "B"},
	}})
	mgr := session.NewManager(func(ci *runtime.ChannelInteractor) *runtime.Engine {
		return runtime.NewEngine(store, provider, runtime.WithQuestionAsker(ci), runtime.WithConfirmer(ci))
	})
	return NewServer(store, mgr, "0.1.0", WithWaitLimit(2*time.Second))
}

func askingProvider() ports.GenerationProvider {
	var asked atomic.Bool
	return ports.GenerationFunc(func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
		if req.NodeID == "a" && req.Resume == nil && asked.CompareAndSwap(false, true) {
			return &domain.GenerationResponse{ResponseID: "r1", Interrupt: &domain.QuestionInterrupt{Question: "Who?", VariableName: "who"}}, nil
		}
		return &domain.GenerationResponse{Response: "ok:" + req.NodeID}, nil
	})
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_TreeTools(t *testing.T) {
	s := newTestServer(t, askingProvider())
	ctx := context.Background()

	res, err := s.handleListTrees(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	var roots []domain.PromptNode
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &roots))
	require.Len(t, roots, 1)
	assert.Equal(t, "root", roots[0].ID)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"tree_id": "root"}
	res, err = s.handleGetTree(ctx, req)
	require.NoError(t, err)
	var tree domain.PromptNode
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &tree))
	assert.Len(t, tree.Children, 2)

	req.Params.Arguments = map[string]any{"tree_id": "missing"}
	res, err = s.handleGetTree(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	v, err := s.handleValidateTree(ctx, mcp.CallToolRequest{}, map[string]interface{}{"tree_id": "root"})
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestServer_RunWithQuestion(t *testing.T) {
	s := newTestServer(t, askingProvider())
	ctx := context.Background()

	resp, err := s.handleRunCascade(ctx, mcp.CallToolRequest{}, map[string]interface{}{"node_id": "root", "wait": true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RunID)
	require.NotNil(t, resp.State.PendingQuestion, "wait returns once the run pauses")
	assert.Equal(t, "Who?", resp.State.PendingQuestion.Question)

	_, err = s.handleDecide(ctx, mcp.CallToolRequest{}, map[string]interface{}{"run_id": resp.RunID, "approve": true})
	assert.ErrorIs(t, err, domain.ErrNothingPending)

	_, err = s.handleAnswer(ctx, mcp.CallToolRequest{}, map[string]interface{}{"run_id": resp.RunID, "answer": "students"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := s.handleGetRun(ctx, mcp.CallToolRequest{}, map[string]interface{}{"run_id": resp.RunID})
		return err == nil && r.Finished
	}, time.Second, 5*time.Millisecond)

	final, err := s.handleGetRun(ctx, mcp.CallToolRequest{}, map[string]interface{}{"run_id": resp.RunID})
	require.NoError(t, err)
	require.NotNil(t, final.Result)
	assert.Equal(t, domain.RunCompleted, final.Result.Status)
	assert.Equal(t, []string{"root", "a", "b"}, final.Result.VisitOrder())
	assert.Empty(t, final.Error)
}

func TestServer_RunArguments(t *testing.T) {
	s := newTestServer(t, askingProvider())
	ctx := context.Background()

	_, err := s.handleRunCascade(ctx, mcp.CallToolRequest{}, map[string]interface{}{})
	assert.Error(t, err)

	_, err = s.handleRunCascade(ctx, mcp.CallToolRequest{}, map[string]interface{}{"node_id": "b", "mode": "sideways"})
	assert.Error(t, err)

	_, err = s.handleRunCascade(ctx, mcp.CallToolRequest{}, map[string]interface{}{"node_id": "b", "seed": "{not json"})
	assert.Error(t, err)

	resp, err := s.handleRunCascade(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"node_id": "b", "mode": "single", "seed": `{"topic":"go"}`, "wait": true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Finished)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []string{"b"}, resp.Result.VisitOrder())

	_, err = s.handleGetRun(ctx, mcp.CallToolRequest{}, map[string]interface{}{"run_id": "nope"})
	assert.ErrorIs(t, err, session.ErrRunNotFound)
}
