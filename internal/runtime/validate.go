package runtime

import (
	"fmt"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/registry"
	"github.com/aretw0/cascade/pkg/schema"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single problem found by ValidateTree.
type Issue struct {
	NodeID   string   `json:"node_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.NodeID, i.Message)
}

// ValidateTree checks a tree for configuration mistakes before running it.
func ValidateTree(root *domain.PromptNode, handlers *registry.Registry) []Issue {
	if handlers == nil {
		handlers = NewDefaultRegistry(nil)
	}
	var issues []Issue
	report := func(id string, sev Severity, format string, args ...any) {
		issues = append(issues, Issue{NodeID: id, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	paths := NewPathEvaluator()
	checkPath := func(id, label, path string) {
		if IsRoot(path) {
			return
		}
		if _, err := paths.Compile(path); err != nil {
			report(id, SeverityError, "%s: %v", label, err)
		}
	}

	seen := make(map[string]bool)
	var targets [][2]string
	var walk func(n *domain.PromptNode, parentID string)
	walk = func(n *domain.PromptNode, parentID string) {
		if n.ID == "" {
			report("(unnamed:"+n.Name+")", SeverityError, "node has no id")
		} else if seen[n.ID] {
			report(n.ID, SeverityError, "duplicate node id")
		}
		seen[n.ID] = true

		if parentID != "" && n.ParentID != "" && n.ParentID != parentID {
			report(n.ID, SeverityError, "parent_id %q does not match containing node %q", n.ParentID, parentID)
		}
		switch n.EffectiveType() {
		case domain.NodeTypeStandard, domain.NodeTypeAction, domain.NodeTypeQuestion:
		default:
			report(n.ID, SeverityError, "unknown node type %q", n.NodeType)
		}
		if !n.IsConsistent() {
			report(n.ID, SeverityWarning, "node_type %q and post_action %q disagree; the node will still be treated as an action", n.EffectiveType(), n.PostAction)
		}
		if n.PostAction != "" {
			if _, err := handlers.Get(n.PostAction); err != nil {
				report(n.ID, SeverityError, "%v", err)
			}
		}
		if n.IsAction() {
			cfg, err := DecodeActionConfig(n.PostActionConfig)
			switch {
			case err != nil:
				report(n.ID, SeverityError, "%v", err)
			default:
				checkPath(n.ID, "jsonPath", cfg.JSONPath)
				if cfg.Placement == domain.PlaceSpecific {
					targets = append(targets, [2]string{n.ID, cfg.TargetPromptID})
				}
			}
		}
		if n.ResponseFormat == domain.ResponseFormatJSONSchema && len(n.JSONSchema) == 0 {
			report(n.ID, SeverityError, "response_format json_schema requires json_schema")
		}
		if n.AutoRunChildren && !n.IsAction() {
			report(n.ID, SeverityWarning, "auto_run_children has no effect on a non-action node")
		}
		if n.VariableAssignmentsConfig != nil && n.VariableAssignmentsConfig.Enabled {
			for _, a := range n.VariableAssignmentsConfig.Assignments {
				if a.Name == "" || a.Path == "" {
					report(n.ID, SeverityError, "variable assignment needs both name and path")
				} else {
					checkPath(n.ID, "variable "+a.Name, a.Path)
				}
				if a.Type != "" {
					if _, err := schema.ParseType(a.Type); err != nil {
						report(n.ID, SeverityError, "variable %s: %v", a.Name, err)
					}
				}
			}
		}
		for _, c := range n.Children {
			walk(c, n.ID)
		}
	}
	walk(root, "")
	for _, t := range targets {
		if !seen[t[1]] {
			report(t[0], SeverityWarning, "target %q is outside this tree; it must exist in the store at run time", t[1])
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
