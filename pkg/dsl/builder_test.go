package dsl_test

import (
	"context"
	"testing"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Tree(t *testing.T) {
	b := dsl.New()
	course := b.Add("course").Name("Course").Prompt("Outline {{topic}}").JSON()
	course.Child("modules").
		Prompt("List modules").
		CreateChildren("modules").
		Configure("titleKey", "title").
		Assign("count", "count").
		AssignTyped("titles", "modules[*].title", "[string]").
		AutoRun()
	course.Child("level").Prompt("Pick a level").Question()
	b.Add("notes").Under("modules").Prompt("notes").Exclude()

	tree, err := b.Tree("course")
	require.NoError(t, err)
	assert.Equal(t, "Course", tree.Name)
	assert.Equal(t, domain.ResponseFormatJSONObject, tree.ResponseFormat)
	require.Len(t, tree.Children, 2)

	modules := tree.Children[0]
	assert.Equal(t, "modules", modules.ID)
	assert.Equal(t, 0, modules.Position)
	assert.Equal(t, runtime.ActionCreateChildrenJSON, modules.PostAction)
	assert.Equal(t, map[string]any{"jsonPath": "modules", "titleKey": "title"}, modules.PostActionConfig)
	require.NotNil(t, modules.VariableAssignmentsConfig)
	assert.True(t, modules.VariableAssignmentsConfig.Enabled)
	assert.Equal(t, []domain.VariableAssignment{
		{Name: "count", Path: "count"},
		{Name: "titles", Path: "modules[*].title", Type: "[string]"},
	}, modules.VariableAssignmentsConfig.Assignments)
	assert.True(t, modules.AutoRunChildren)
	require.Len(t, modules.Children, 1)
	assert.True(t, modules.Children[0].ExcludeFromCascade)

	level := tree.Children[1]
	assert.Equal(t, 1, level.Position)
	assert.Equal(t, domain.NodeTypeQuestion, level.NodeType)

	assert.Empty(t, runtime.ValidateTree(tree, nil))
}

func TestBuilder_Errors(t *testing.T) {
	b := dsl.New()
	b.Add("a").Under("ghost")
	_, err := b.Tree("a")
	assert.Error(t, err)

	_, err = b.Tree("missing")
	assert.Error(t, err)

	c := dsl.New()
	c.Add("x").Under("y")
	c.Add("y").Under("x")
	_, err = c.Tree("x")
	assert.ErrorContains(t, err, "cycle")

	_, err = c.Build()
	assert.ErrorContains(t, err, "no root")
}

func TestBuilder_Build(t *testing.T) {
	b := dsl.New()
	b.Add("r1").Child("c1")
	b.Add("r2").Temperature(0.2).Model("gpt-4o")

	store, err := b.Build()
	require.NoError(t, err)

	roots, err := store.ListRoots(context.Background())
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	tree, err := store.GetSubtree(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "c1", tree.Children[0].ID)

	r2 := b.Add("r2").Build()
	require.NotNil(t, r2.Temperature)
	assert.Equal(t, 0.2, *r2.Temperature)
}
