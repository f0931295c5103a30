package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/adapters/memory"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCascade_PreOrder(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "a", Position: 0, Children: []*domain.PromptNode{{ID: "a1"}, {ID: "a2"}}},
		{ID: "b", Position: 1, Children: []*domain.PromptNode{{ID: "b1"}}},
		{ID: "c", Position: 2},
	}}
	provider := newScriptedProvider()
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "a", "a1", "a2", "b", "b1", "c"}, res.VisitOrder())
	assert.Equal(t, domain.RunCompleted, res.Status)
	assert.False(t, res.DepthLimitReached)

	b1, ok := res.Result("b1")
	require.True(t, ok)
	assert.Equal(t, 2, b1.Depth)
	assert.Equal(t, "ok:b1", b1.Response)
}

func TestRunCascade_ExcludedSubtrees(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "a", ExcludeFromCascade: true, Children: []*domain.PromptNode{{ID: "a1"}}},
		{ID: "b", Children: []*domain.PromptNode{{ID: "b1", ExcludeFromCascade: true}, {ID: "b2"}}},
	}}
	provider := newScriptedProvider()
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "b", "b2"}, res.VisitOrder())
	assert.ElementsMatch(t, []string{"a", "b1"}, res.Skipped)
	for _, req := range provider.requests() {
		assert.NotContains(t, []string{"a", "a1", "b1"}, req.NodeID)
	}
}

func TestRunCascade_ExcludedRoot(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", ExcludeFromCascade: true, Children: []*domain.PromptNode{{ID: "a"}}}
	provider := newScriptedProvider()
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Zero(t, provider.callCount())
}

func TestRunCascade_NoChildren(t *testing.T) {
	provider := newScriptedProvider()
	engine := runtime.NewEngine(memory.NewStore(&domain.PromptNode{ID: "lonely"}), provider)

	res, err := engine.RunCascade(context.Background(), "lonely", domain.CascadeOptions{})
	assert.ErrorIs(t, err, domain.ErrNoChildrenToCascade)
	assert.Nil(t, res)
	assert.Zero(t, provider.callCount())
	assert.Equal(t, domain.RunIdle, engine.State().Snapshot().Status)
}

func TestRunCascade_MissingRoot(t *testing.T) {
	engine := runtime.NewEngine(memory.NewStore(), newScriptedProvider())
	_, err := engine.RunCascade(context.Background(), "ghost", domain.CascadeOptions{})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestRunCascade_AutoSpawnedChildrenInterleave(t *testing.T) {
	tree := &domain.PromptNode{ID: "root", Children: []*domain.PromptNode{
		{
			ID:               "A",
			Name:             "A",
			NodeType:         domain.NodeTypeAction,
			PostAction:       runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"jsonPath": "$.items", "placement": "self"},
			AutoRunChildren:  true,
			Children:         []*domain.PromptNode{{ID: "A-existing"}},
		},
		{ID: "B"},
	}}
	store := memory.NewStore(tree)
	provider := newScriptedProvider().on("A", `{"items":["x","y"]}`)
	confirmer := &fakeConfirmer{approve: true}
	engine := runtime.NewEngine(store, provider, runtime.WithConfirmer(confirmer))

	res, err := engine.RunCascade(context.Background(), "root", domain.CascadeOptions{})
	require.NoError(t, err)

	order := res.VisitOrder()
	require.Len(t, order, 6)
	assert.Equal(t, []string{"root", "A"}, order[:2])
	assert.Equal(t, []string{"A-existing", "B"}, order[4:])

	x, y := res.Results[2], res.Results[3]
	assert.True(t, x.Spawned)
	assert.Equal(t, "x", x.Name)
	assert.Equal(t, "y", y.Name)
	assert.Equal(t, 2, x.Depth)

	a, _ := res.Result("A")
	require.NotNil(t, a.Action)
	assert.Equal(t, 2, a.Action.CreatedCount)

	stored, err := store.GetSubtree(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, stored.Children, 3)
	assert.Equal(t, "x", stored.Children[1].UserPrompt)
	assert.Equal(t, "y", stored.Children[2].UserPrompt)
}

func TestRunCascade_WithoutAutoRunCreatedChildrenWait(t *testing.T) {
	tree := &domain.PromptNode{ID: "root", Children: []*domain.PromptNode{
		{
			ID:               "A",
			NodeType:         domain.NodeTypeAction,
			PostAction:       runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"jsonPath": "$.items"},
		},
	}}
	provider := newScriptedProvider().on("A", `{"items":["x"]}`)
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunCascade(context.Background(), "root", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "A"}, res.VisitOrder())
}

func TestRunCascade_DepthLimit(t *testing.T) {
	tree := &domain.PromptNode{
		ID:               "root",
		NodeType:         domain.NodeTypeAction,
		PostAction:       runtime.ActionCreateChildrenJSON,
		PostActionConfig: map[string]any{"jsonPath": "$.items", "childNodeType": "action", "skipPreview": true},
		AutoRunChildren:  true,
		Children:         []*domain.PromptNode{{ID: "seed"}},
	}
	provider := newScriptedProvider()
	provider.fallback = func(req domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return &domain.GenerationResponse{Response: `{"items":["deeper"]}`}, nil
	}
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunCascade(context.Background(), "root", domain.CascadeOptions{MaxDepth: 3})
	require.NoError(t, err)
	assert.True(t, res.DepthLimitReached)
	assert.Equal(t, domain.RunDepthLimitReached, res.Status)

	maxDepth := 0
	for _, r := range res.Results {
		if r.Depth > maxDepth {
			maxDepth = r.Depth
		}
	}
	assert.Equal(t, 3, maxDepth)
	assert.Len(t, res.Results, 5)
}

func TestRunCascade_GenerationFailureAborts(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "a", Children: []*domain.PromptNode{{ID: "a1"}}},
		{ID: "b"},
	}}
	provider := newScriptedProvider().fail("a", errors.New("rate limited"))
	recorder := memory.NewRecorder()
	engine := runtime.NewEngine(memory.NewStore(tree), provider, runtime.WithTraceRecorder(recorder))

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.ErrorIs(t, err, domain.ErrGenerationFailed)
	require.NotNil(t, res)
	assert.Equal(t, domain.RunFailed, res.Status)
	assert.Equal(t, []string{"r", "a"}, res.VisitOrder())
	assert.Equal(t, domain.NodeFailed, res.Results[1].Status)

	traces := recorder.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, domain.SpanError, traces[0].Status)
	spans := recorder.Spans(traces[0].ID)
	require.Len(t, spans, 2)
	assert.Equal(t, domain.SpanError, spans[1].Status)
	assert.Equal(t, "generation_failed", spans[1].Error.Type)

	snap := engine.State().Snapshot()
	assert.Equal(t, domain.RunFailed, snap.Status)
	assert.Equal(t, domain.NodeFailed, snap.Nodes["a"])
	assert.NotEmpty(t, snap.Error)
}

func TestRunCascade_ActionFailureSkipsOwnSubtree(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{
			ID:               "a",
			NodeType:         domain.NodeTypeAction,
			PostAction:       runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"jsonPath": "$.items"},
			Children:         []*domain.PromptNode{{ID: "a1"}},
		},
		{ID: "b"},
	}}
	provider := newScriptedProvider().on("a", "not json")
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "a", "b"}, res.VisitOrder())
	a, _ := res.Result("a")
	assert.False(t, a.Success)
	assert.Equal(t, domain.CodeJSONParse, a.Action.ErrorCode)
	assert.Contains(t, res.Skipped, "a1")
	assert.Equal(t, domain.RunCompleted, res.Status)
}

func TestRunCascade_CancelledQuestionSkipsSubtree(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "q", NodeType: domain.NodeTypeQuestion, Children: []*domain.PromptNode{{ID: "q1"}}},
		{ID: "b"},
	}}
	provider := newScriptedProvider().ask("q", "q.q.name", "Name?")
	engine := runtime.NewEngine(memory.NewStore(tree), provider, runtime.WithQuestionAsker(&fakeAsker{}))

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "q", "b"}, res.VisitOrder())
	q, _ := res.Result("q")
	assert.Equal(t, domain.NodeCancelled, q.Status)
}

func TestRunCascade_ScopeFlowsToDescendants(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "q", NodeType: domain.NodeTypeQuestion, Children: []*domain.PromptNode{
			{ID: "child", UserPrompt: "Write for {{q.q.audience}} about {{topic}}"},
		}},
	}}
	provider := newScriptedProvider().ask("q", "q.q.audience", "Audience?").on("q", "fine")
	asker := &fakeAsker{answers: []*string{strPtr("kids")}}
	engine := runtime.NewEngine(memory.NewStore(tree), provider, runtime.WithQuestionAsker(asker))

	_, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{Seed: map[string]any{"topic": "space"}})
	require.NoError(t, err)

	var childPrompt string
	for _, req := range provider.requests() {
		if req.NodeID == "child" {
			childPrompt = req.UserPrompt
		}
	}
	assert.Equal(t, "Write for kids about space", childPrompt)
}

func TestRunCascade_HooksCostsAndSpans(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{{ID: "a"}}}
	provider := newScriptedProvider().on("r", "root out").on("a", "child out")
	ledger := memory.NewLedger()
	recorder := memory.NewRecorder()
	var started, finished []string
	hooks := domain.LifecycleHooks{
		OnNodeStart:  func(_ context.Context, e *domain.NodeEvent) { started = append(started, e.NodeID) },
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) { finished = append(finished, e.NodeID+":"+string(e.Status)) },
	}
	engine := runtime.NewEngine(memory.NewStore(tree), provider,
		runtime.WithCostLedger(ledger),
		runtime.WithTraceRecorder(recorder),
		runtime.WithHooks(hooks))

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"r", "a"}, started)
	assert.Equal(t, []string{"r:succeeded", "a:succeeded"}, finished)
	assert.Len(t, ledger.Records(), 2)

	spans := recorder.Spans(res.TraceID)
	require.Len(t, spans, 2)
	assert.Equal(t, "child out", spans[1].Completion.Output)
	assert.Equal(t, domain.SpanSuccess, recorder.Traces()[0].Status)
}

type failingRecorder struct{}

func (failingRecorder) StartTrace(context.Context, domain.TraceStart) (string, error) {
	return "", errors.New("telemetry down")
}
func (failingRecorder) CreateSpan(context.Context, string, domain.SpanStart) (string, error) {
	return "", errors.New("telemetry down")
}
func (failingRecorder) CompleteSpan(context.Context, string, domain.SpanCompletion) error {
	return errors.New("telemetry down")
}
func (failingRecorder) FailSpan(context.Context, string, domain.ErrorEvidence) error {
	return errors.New("telemetry down")
}
func (failingRecorder) CompleteTrace(context.Context, string, domain.SpanStatus) error {
	return errors.New("telemetry down")
}

type failingLedger struct{}

func (failingLedger) RecordCost(context.Context, domain.CostRecord) error {
	return errors.New("ledger down")
}

func TestRunCascade_TelemetryFailuresAreSwallowed(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{{ID: "a"}}}
	engine := runtime.NewEngine(memory.NewStore(tree), newScriptedProvider(),
		runtime.WithTraceRecorder(failingRecorder{}),
		runtime.WithCostLedger(failingLedger{}))

	res, err := engine.RunCascade(context.Background(), "r", domain.CascadeOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.TraceID)
	assert.Len(t, res.Results, 2)
}

func TestRunCascade_CancelAndRunInProgress(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "q", NodeType: domain.NodeTypeQuestion},
		{ID: "after"},
	}}
	provider := newScriptedProvider().ask("q", "q.q.x", "X?").on("q", "answered")
	interactor := runtime.NewChannelInteractor()
	engine := runtime.NewEngine(memory.NewStore(tree), provider,
		runtime.WithQuestionAsker(interactor),
		runtime.WithConfirmer(interactor))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	watch := engine.State().Watch(ctx)

	type outcome struct {
		res *domain.CascadeResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.RunCascade(ctx, "r", domain.CascadeOptions{})
		done <- outcome{res, err}
	}()

	for snap := range watch {
		if snap.PendingQuestion != nil {
			assert.Equal(t, "X?", snap.PendingQuestion.Question)
			assert.Equal(t, domain.NodeInterrupted, snap.Nodes["q"])
			break
		}
	}

	_, err := engine.RunCascade(ctx, "r", domain.CascadeOptions{})
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	engine.State().RequestCancel()
	require.Eventually(t, func() bool {
		return interactor.Answer(strPtr("yes")) == nil
	}, 2*time.Second, 5*time.Millisecond)

	out := <-done
	require.NoError(t, out.err)
	assert.True(t, out.res.Cancelled)
	assert.Equal(t, domain.RunCancelled, out.res.Status)
	assert.Equal(t, []string{"r", "q"}, out.res.VisitOrder())
	assert.ErrorIs(t, interactor.Answer(nil), domain.ErrNothingPending)
}

func TestRunNode_SingleNode(t *testing.T) {
	tree := &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{{ID: "a"}}}
	provider := newScriptedProvider().on("a", "just a")
	engine := runtime.NewEngine(memory.NewStore(tree), provider)

	res, err := engine.RunNode(context.Background(), "a", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.VisitOrder())
	assert.Equal(t, "just a", res.Results[0].Response)
	assert.Equal(t, domain.RunCompleted, res.Status)
	assert.Equal(t, 1, provider.callCount())
}
