package domain_test

import (
	"errors"
	"testing"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableScope_FirstWriteWins(t *testing.T) {
	s := domain.NewVariableScope(map[string]any{"q.root.topic": "go"})

	assert.False(t, s.Set("q.root.topic", "rust"))
	assert.True(t, s.Set("q.root.audience", "students"))

	v, ok := s.Get("q.root.topic")
	require.True(t, ok)
	assert.Equal(t, "go", v)

	rejected := s.Merge(map[string]any{"q.root.audience": "x", "fresh": 1})
	assert.Equal(t, []string{"q.root.audience"}, rejected)
	assert.Equal(t, 3, s.Len())
}

func TestVariableScope_SnapshotIsCopy(t *testing.T) {
	s := domain.NewVariableScope(nil)
	s.Set("a", 1)
	snap := s.Snapshot()
	snap["b"] = 2

	_, ok := s.Get("b")
	assert.False(t, ok)
}

func TestVariableScope_IgnoresBlankNames(t *testing.T) {
	s := domain.NewVariableScope(nil)
	assert.False(t, s.Set("  ", "x"))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "q.outline.topic", domain.QualifiedName("outline", "topic"))
}

func TestPromptNode_ActionSignals(t *testing.T) {
	n := &domain.PromptNode{NodeType: domain.NodeTypeAction, PostAction: "create_children_json"}
	assert.True(t, n.IsAction())
	assert.True(t, n.IsConsistent())

	drift := &domain.PromptNode{PostAction: "create_children_json"}
	assert.True(t, drift.IsAction())
	assert.False(t, drift.IsConsistent())
	assert.Equal(t, domain.NodeTypeStandard, drift.EffectiveType())
}

func TestPromptNode_CloneAndFind(t *testing.T) {
	temp := 0.2
	root := &domain.PromptNode{
		ID:          "root",
		Temperature: &temp,
		Children: []*domain.PromptNode{
			{ID: "a", Children: []*domain.PromptNode{{ID: "a1"}}},
			{ID: "b"},
		},
	}
	c := root.Clone()
	*c.Temperature = 0.9
	c.Children[0].Name = "changed"

	assert.Equal(t, 0.2, *root.Temperature)
	assert.Empty(t, root.Children[0].Name)
	assert.Equal(t, "a1", root.Find("a1").ID)
	assert.Nil(t, root.Find("zzz"))

	var order []string
	root.Walk(func(n *domain.PromptNode, _ int) bool {
		order = append(order, n.ID)
		return n.ID != "a"
	})
	assert.Equal(t, []string{"root", "a", "b"}, order)
	assert.Nil(t, root.Shallow().Children)
}

func TestGenerationFailedError_Matches(t *testing.T) {
	cause := errors.New("boom")
	err := error(&domain.GenerationFailedError{NodeID: "n1", Cause: cause})

	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "n1")

	interrupted := error(&domain.InterruptedError{NodeID: "n2"})
	assert.ErrorIs(t, interrupted, domain.ErrInterrupted)
}
