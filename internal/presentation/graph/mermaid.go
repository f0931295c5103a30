// Package graph renders prompt trees as Mermaid flowcharts or Graphviz DOT.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
)

// Overlay carries run state to highlight on the graph.
type Overlay struct {
	Visited []string
	Failed  []string
	Current string
}

// OverlayFromResult marks every node a run visited, and the failed ones.
func OverlayFromResult(res *domain.CascadeResult) *Overlay {
	if res == nil {
		return nil
	}
	o := &Overlay{}
	for _, r := range res.Results {
		o.Visited = append(o.Visited, r.NodeID)
		if !r.Success && r.Status == domain.NodeFailed {
			o.Failed = append(o.Failed, r.NodeID)
		}
	}
	return o
}

// OverlayFromSnapshot highlights a live run.
func OverlayFromSnapshot(snap domain.RunSnapshot) *Overlay {
	o := &Overlay{Current: snap.CurrentNodeID}
	for id, st := range snap.Nodes {
		switch st {
		case domain.NodeFailed:
			o.Failed = append(o.Failed, id)
			o.Visited = append(o.Visited, id)
		case domain.NodeIdle, domain.NodeSkipped:
		default:
			o.Visited = append(o.Visited, id)
		}
	}
	return o
}

// GenerateMermaid produces a top-down flowchart of the tree.
// Shapes follow the node type:
//   - root: ((Circle))
//   - action: [[Subroutine]]
//   - question: [/Parallelogram/]
//   - standard: [Rectangle]
//
// Actions that place children on another node get a dotted edge to it.
func GenerateMermaid(root *domain.PromptNode, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if root == nil {
		return sb.String()
	}

	root.Walk(func(n *domain.PromptNode, depth int) bool {
		id := sanitizeMermaidID(n.ID)
		opener, closer := "[", "]"
		switch {
		case depth == 0:
			opener, closer = "((", "))"
		case n.IsAction():
			opener, closer = "[[", "]]"
		case n.EffectiveType() == domain.NodeTypeQuestion:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, escapeLabel(label(n)), closer)

		for _, c := range n.Children {
			fmt.Fprintf(&sb, "    %s --> %s\n", id, sanitizeMermaidID(c.ID))
		}
		if target := spawnTarget(n); target != "" {
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", id, n.PostAction, sanitizeMermaidID(target))
		}
		return true
	})

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#b71c1c,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		writeClass(&sb, "visited", overlay.Visited)
		writeClass(&sb, "failed", overlay.Failed)
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}
	return sb.String()
}

func writeClass(sb *strings.Builder, class string, ids []string) {
	seen := make(map[string]bool)
	for _, id := range ids {
		safe := sanitizeMermaidID(id)
		if safe == "" || seen[safe] {
			continue
		}
		seen[safe] = true
		fmt.Fprintf(sb, "    class %s %s;\n", safe, class)
	}
}

// spawnTarget returns the node an action attaches children to when it is
// not the action itself.
func spawnTarget(n *domain.PromptNode) string {
	if !n.IsAction() {
		return ""
	}
	cfg, err := runtime.DecodeActionConfig(n.PostActionConfig)
	if err != nil {
		return ""
	}
	switch cfg.Placement {
	case domain.PlaceSpecific:
		return cfg.TargetPromptID
	case domain.PlaceParent:
		return n.ParentID
	}
	return ""
}

func label(n *domain.PromptNode) string {
	if n.Name == "" || n.Name == n.ID {
		return n.ID
	}
	return n.Name
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
