package graph

import (
	"fmt"
	"strconv"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/awalterschulze/gographviz"
)

const dotGraphName = "cascade"

// GenerateDOT renders the tree as a Graphviz digraph.
func GenerateDOT(root *domain.PromptNode, overlay *Overlay) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(dotGraphName); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if root == nil {
		return g.String(), nil
	}

	fill := fillColors(overlay)
	var walkErr error
	root.Walk(func(n *domain.PromptNode, depth int) bool {
		attrs := map[string]string{
			"label": strconv.Quote(label(n)),
			"shape": dotShape(n, depth),
		}
		if color, ok := fill[n.ID]; ok {
			attrs["style"] = "filled"
			attrs["fillcolor"] = strconv.Quote(color)
		}
		if err := g.AddNode(dotGraphName, strconv.Quote(n.ID), attrs); err != nil {
			walkErr = fmt.Errorf("add node %s: %w", n.ID, err)
			return false
		}
		for _, c := range n.Children {
			if err := g.AddEdge(strconv.Quote(n.ID), strconv.Quote(c.ID), true, nil); err != nil {
				walkErr = fmt.Errorf("add edge %s -> %s: %w", n.ID, c.ID, err)
				return false
			}
		}
		if target := spawnTarget(n); target != "" {
			err := g.AddEdge(strconv.Quote(n.ID), strconv.Quote(target), true, map[string]string{
				"style": "dashed",
				"label": strconv.Quote(n.PostAction),
			})
			if err != nil {
				walkErr = fmt.Errorf("add edge %s -> %s: %w", n.ID, target, err)
				return false
			}
		}
		return true
	})
	if walkErr != nil {
		return "", walkErr
	}
	return g.String(), nil
}

func dotShape(n *domain.PromptNode, depth int) string {
	switch {
	case depth == 0:
		return "circle"
	case n.IsAction():
		return "box3d"
	case n.EffectiveType() == domain.NodeTypeQuestion:
		return "parallelogram"
	}
	return "box"
}

func fillColors(o *Overlay) map[string]string {
	out := make(map[string]string)
	if o == nil {
		return out
	}
	for _, id := range o.Visited {
		out[id] = "#e1f5fe"
	}
	for _, id := range o.Failed {
		out[id] = "#ffebee"
	}
	if o.Current != "" {
		out[o.Current] = "#ffeb3b"
	}
	return out
}
