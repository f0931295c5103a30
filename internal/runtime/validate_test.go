package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTree(t *testing.T) {
	tree := &domain.PromptNode{
		ID:         "root",
		PostAction: runtime.ActionCreateChildrenJSON,
		Children: []*domain.PromptNode{
			{ID: "dup"},
			{ID: "dup"},
			{ID: "bad-action", NodeType: domain.NodeTypeAction, PostAction: "nope"},
			{ID: "bad-place", NodeType: domain.NodeTypeAction, PostAction: runtime.ActionCreateChildrenJSON,
				PostActionConfig: map[string]any{"placement": "specific_prompt"}},
			{ID: "schema", ResponseFormat: domain.ResponseFormatJSONSchema},
			{ID: "auto", AutoRunChildren: true},
			{ID: "typed", VariableAssignmentsConfig: &domain.VariableAssignmentsConfig{
				Enabled:     true,
				Assignments: []domain.VariableAssignment{{Name: "when", Path: "when", Type: "date"}},
			}},
		},
	}

	issues := runtime.ValidateTree(tree, nil)
	require.True(t, runtime.HasErrors(issues))

	byNode := map[string][]runtime.Severity{}
	for _, i := range issues {
		byNode[i.NodeID] = append(byNode[i.NodeID], i.Severity)
	}
	assert.Equal(t, []runtime.Severity{runtime.SeverityWarning}, byNode["root"])
	assert.Equal(t, []runtime.Severity{runtime.SeverityError}, byNode["dup"])
	assert.Contains(t, byNode["bad-action"], runtime.SeverityError)
	assert.Contains(t, byNode["bad-place"], runtime.SeverityError)
	assert.Contains(t, byNode["schema"], runtime.SeverityError)
	assert.Equal(t, []runtime.Severity{runtime.SeverityError}, byNode["typed"])
	assert.Equal(t, []runtime.Severity{runtime.SeverityWarning}, byNode["auto"])
}

func TestValidateTree_SpecificTargetOutsideTree(t *testing.T) {
	tree := &domain.PromptNode{ID: "root", Children: []*domain.PromptNode{
		{ID: "inside", NodeType: domain.NodeTypeAction, PostAction: runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"placement": "specific_prompt", "targetPromptId": "root"}},
		{ID: "outside", NodeType: domain.NodeTypeAction, PostAction: runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"placement": "specific_prompt", "targetPromptId": "elsewhere"}},
	}}

	issues := runtime.ValidateTree(tree, nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "outside", issues[0].NodeID)
	assert.Equal(t, runtime.SeverityWarning, issues[0].Severity)
	assert.False(t, runtime.HasErrors(issues))
}

func TestValidateTree_Paths(t *testing.T) {
	tree := &domain.PromptNode{ID: "root", Children: []*domain.PromptNode{
		{ID: "good", NodeType: domain.NodeTypeAction, PostAction: runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"jsonPath": "$.sub-items[*]"}},
		{ID: "bad-path", NodeType: domain.NodeTypeAction, PostAction: runtime.ActionCreateChildrenJSON,
			PostActionConfig: map[string]any{"jsonPath": "$.items[first]"}},
		{ID: "bad-assign", VariableAssignmentsConfig: &domain.VariableAssignmentsConfig{
			Enabled:     true,
			Assignments: []domain.VariableAssignment{{Name: "x", Path: "$.a["}},
		}},
	}}

	issues := runtime.ValidateTree(tree, nil)
	require.Len(t, issues, 2)
	assert.Equal(t, "bad-path", issues[0].NodeID)
	assert.Contains(t, issues[0].Message, "jsonPath")
	assert.Equal(t, "bad-assign", issues[1].NodeID)
	assert.Contains(t, issues[1].Message, "variable x")
}

func TestValidateTree_Clean(t *testing.T) {
	tree := &domain.PromptNode{ID: "root", Children: []*domain.PromptNode{{ID: "a", ParentID: "root"}}}
	assert.Empty(t, runtime.ValidateTree(tree, nil))
}

func TestDecodeActionConfig(t *testing.T) {
	cfg, err := runtime.DecodeActionConfig(map[string]any{
		"jsonPath":    "$.items",
		"skipPreview": "true",
		"extra":       42,
	})
	require.NoError(t, err)
	assert.Equal(t, "$.items", cfg.JSONPath)
	assert.True(t, cfg.SkipPreview)
	assert.Equal(t, domain.PlaceSelf, cfg.Placement)

	_, err = runtime.DecodeActionConfig(map[string]any{"placement": "sideways"})
	assert.Error(t, err)
	_, err = runtime.DecodeActionConfig(map[string]any{"childNodeType": "robot"})
	assert.Error(t, err)
}

func TestRunState_IdleAndCancelNoop(t *testing.T) {
	s := runtime.NewRunState()
	s.RequestCancel()
	snap := s.Snapshot()
	assert.Equal(t, domain.RunIdle, snap.Status)
	assert.False(t, snap.CancelRequested)
	assert.False(t, s.CancelRequested())

	var nilState *runtime.RunState
	assert.Equal(t, domain.RunIdle, nilState.Snapshot().Status)
	nilState.RequestCancel()
	assert.False(t, nilState.CancelRequested())

	ch := nilState.Watch(context.Background())
	snap, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, domain.RunIdle, snap.Status)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestChannelInteractor_Decide(t *testing.T) {
	ci := runtime.NewChannelInteractor()
	assert.ErrorIs(t, ci.Decide(true), domain.ErrNothingPending)

	done := make(chan bool, 1)
	go func() {
		ok, _ := ci.Confirm(context.Background(), domain.ActionPreview{NodeID: "a"})
		done <- ok
	}()
	require.Eventually(t, func() bool { return ci.Decide(true) == nil }, time.Second, 5*time.Millisecond)
	assert.True(t, <-done)
}

func TestChannelInteractor_ContextCancel(t *testing.T) {
	ci := runtime.NewChannelInteractor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ci.AskQuestion(ctx, domain.QuestionInterrupt{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, ci.Answer(nil), domain.ErrNothingPending)
}
