package graph_test

import (
	"testing"

	"github.com/aretw0/cascade/internal/presentation/graph"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/awalterschulze/gographviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *domain.PromptNode {
	return &domain.PromptNode{ID: "root", Name: "Course", Children: []*domain.PromptNode{
		{ID: "ask-level", Name: "Level", NodeType: domain.NodeTypeQuestion, ParentID: "root"},
		{
			ID: "outline", Name: `Outline "v2"`, ParentID: "root",
			NodeType:   domain.NodeTypeAction,
			PostAction: "create_children_json",
			PostActionConfig: map[string]any{
				"placement":      "specific_prompt",
				"targetPromptId": "root",
			},
		},
		{ID: "path/to.notes", ParentID: "root"},
	}}
}

func TestGenerateMermaid(t *testing.T) {
	got := graph.GenerateMermaid(sampleTree(), nil)

	for _, want := range []string{
		"graph TD\n",
		`root(("Course"))`,
		`ask_level[/"Level"/]`,
		`outline[["Outline 'v2'"]]`,
		`path_to_notes["path/to.notes"]`,
		"root --> ask_level",
		"root --> outline",
		`outline -. "create_children_json" .-> root`,
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	res := &domain.CascadeResult{Results: []domain.NodeResult{
		{NodeID: "root", Success: true, Status: domain.NodeSucceeded},
		{NodeID: "ask-level", Status: domain.NodeFailed},
	}}
	overlay := graph.OverlayFromResult(res)
	overlay.Current = "outline"

	got := graph.GenerateMermaid(sampleTree(), overlay)
	assert.Contains(t, got, "class root visited;")
	assert.Contains(t, got, "class ask_level visited;")
	assert.Contains(t, got, "class ask_level failed;")
	assert.Contains(t, got, "class outline current;")

	assert.Nil(t, graph.OverlayFromResult(nil))
}

func TestOverlayFromSnapshot(t *testing.T) {
	o := graph.OverlayFromSnapshot(domain.RunSnapshot{
		CurrentNodeID: "b",
		Nodes: map[string]domain.NodeStatus{
			"a": domain.NodeSucceeded,
			"b": domain.NodeRunning,
			"c": domain.NodeIdle,
			"d": domain.NodeFailed,
		},
	})
	assert.ElementsMatch(t, []string{"a", "b", "d"}, o.Visited)
	assert.Equal(t, []string{"d"}, o.Failed)
	assert.Equal(t, "b", o.Current)
}

func TestGenerateDOT(t *testing.T) {
	out, err := graph.GenerateDOT(sampleTree(), &graph.Overlay{Visited: []string{"root"}})
	require.NoError(t, err)

	ast, err := gographviz.ParseString(out)
	require.NoError(t, err, out)
	g := gographviz.NewGraph()
	require.NoError(t, gographviz.Analyse(ast, g))

	assert.True(t, g.Directed)
	assert.Len(t, g.Nodes.Nodes, 4)
	assert.Len(t, g.Edges.Edges, 4, "three child edges plus the spawn edge")

	root := g.Nodes.Lookup[`"root"`]
	require.NotNil(t, root)
	assert.Equal(t, "circle", root.Attrs["shape"])
	assert.Equal(t, "filled", root.Attrs["style"])
	assert.Equal(t, "box3d", g.Nodes.Lookup[`"outline"`].Attrs["shape"])
}
