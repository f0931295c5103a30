package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CatalogTreeStore is a TreeStore that can also import trees.
type CatalogTreeStore interface {
	TreeStore
	TreeCatalog
}

// RunTreeStoreContract runs a suite of tests to verify that a TreeStore
// implementation adheres to the defined interface contract.
func RunTreeStoreContract(t *testing.T, store CatalogTreeStore) {
	ctx := context.Background()
	rootID := "contract-root-" + time.Now().Format("20060102150405")

	tree := &domain.PromptNode{
		ID:         rootID,
		Name:       "Root",
		UserPrompt: "Plan {{topic}}",
		NodeType:   domain.NodeTypeAction,
		PostAction: "create_children_json",
		PostActionConfig: map[string]any{
			"jsonPath": "$.items",
		},
		Children: []*domain.PromptNode{
			{ID: rootID + "-a", Name: "A", Position: 0, UserPrompt: "first"},
			{ID: rootID + "-b", Name: "B", Position: 1, UserPrompt: "second",
				Children: []*domain.PromptNode{{ID: rootID + "-b1", Name: "B1", Position: 0}}},
		},
	}
	require.NoError(t, store.PutTree(ctx, tree), "PutTree should not return error")

	t.Run("GetSubtree", func(t *testing.T) {
		got, err := store.GetSubtree(ctx, rootID)
		require.NoError(t, err)
		assert.Equal(t, "Root", got.Name)
		assert.Equal(t, "create_children_json", got.PostAction)
		assert.Equal(t, "$.items", got.PostActionConfig["jsonPath"])
		require.Len(t, got.Children, 2)
		assert.Equal(t, rootID+"-a", got.Children[0].ID)
		assert.Equal(t, rootID+"-b", got.Children[1].ID)
		require.Len(t, got.Children[1].Children, 1)
		assert.Equal(t, rootID+"-b", got.Children[1].Children[0].ParentID)
	})

	t.Run("GetNode Without Children", func(t *testing.T) {
		got, err := store.GetNode(ctx, rootID+"-b")
		require.NoError(t, err)
		assert.Equal(t, "second", got.UserPrompt)
		assert.Equal(t, rootID, got.ParentID)
		assert.Empty(t, got.Children)
	})

	t.Run("Missing Node", func(t *testing.T) {
		_, err := store.GetNode(ctx, "missing-"+rootID)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
		_, err = store.GetSubtree(ctx, "missing-"+rootID)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
		err = store.UpdateNode(ctx, "missing-"+rootID, domain.NodeUpdate{})
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
		_, err = store.CreateNode(ctx, "missing-"+rootID, domain.PromptNode{Name: "x"})
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})

	t.Run("CreateNode Appends", func(t *testing.T) {
		created, err := store.CreateNode(ctx, rootID, domain.PromptNode{Name: "C", UserPrompt: "third"})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, rootID, created.ParentID)
		assert.Equal(t, 2, created.Position)

		got, err := store.GetSubtree(ctx, rootID)
		require.NoError(t, err)
		require.Len(t, got.Children, 3)
		assert.Equal(t, created.ID, got.Children[2].ID)
	})

	t.Run("UpdateNode Partial", func(t *testing.T) {
		resp := "raw output"
		record := &domain.ActionRecord{Status: domain.ActionSucceeded, PostAction: "create_children_json", CreatedCount: 2}
		require.NoError(t, store.UpdateNode(ctx, rootID, domain.NodeUpdate{LastResponse: &resp}))
		require.NoError(t, store.UpdateNode(ctx, rootID, domain.NodeUpdate{
			LastActionResult:   record,
			ExtractedVariables: map[string]any{"items": []any{"x"}},
		}))

		got, err := store.GetNode(ctx, rootID)
		require.NoError(t, err)
		assert.Equal(t, "raw output", got.LastResponse)
		require.NotNil(t, got.LastActionResult)
		assert.Equal(t, 2, got.LastActionResult.CreatedCount)
		assert.Equal(t, domain.ActionSucceeded, got.LastActionResult.Status)
		assert.Contains(t, got.ExtractedVariables, "items")
		assert.Equal(t, "Plan {{topic}}", got.UserPrompt)
	})

	t.Run("ListRoots", func(t *testing.T) {
		roots, err := store.ListRoots(ctx)
		require.NoError(t, err)
		var found bool
		for _, r := range roots {
			if r.ID == rootID {
				found = true
				assert.Empty(t, r.Children)
			}
		}
		assert.True(t, found, "imported root should be listed")
	})
}
