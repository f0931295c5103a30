package runtime

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/registry"
)

// Built-in post-action names.
const (
	ActionCreateChildrenJSON = "create_children_json"
	ActionAssignVariables    = "assign_variables"
)

const maxDerivedNameRunes = 60

var (
	defaultContentKeys = []string{"content", "prompt", "description"}
	defaultTitleKeys   = []string{"title", "name"}
)

// NewDefaultRegistry returns a registry with the built-in handlers.
func NewDefaultRegistry(paths *PathEvaluator) *registry.Registry {
	if paths == nil {
		paths = NewPathEvaluator()
	}
	r := registry.NewRegistry()
	r.Register(ActionCreateChildrenJSON, &createChildren{paths: paths})
	r.Register(ActionAssignVariables, registry.HandlerFuncs{})
	return r
}

// createChildren turns each element of a selected array into a child node.
type createChildren struct {
	paths *PathEvaluator
}

func (h *createChildren) Validate(req *registry.Request) (*registry.Plan, error) {
	items, err := h.selectItems(req.Parsed, req.Config.JSONPath)
	if err != nil {
		return nil, err
	}
	plan := &registry.Plan{Items: items, Names: make([]string, len(items))}
	for i, item := range items {
		plan.Names[i] = childName(req.Node, req.Config, i, item)
	}
	return plan, nil
}

func (h *createChildren) Execute(ctx context.Context, req *registry.Request) ([]*domain.PromptNode, error) {
	var created []*domain.PromptNode
	for i, item := range req.Plan.Items {
		child := childFromItem(req.Node, req.Config, req.Plan.Names[i], item)
		n, err := req.Store.CreateNode(ctx, req.TargetParentID, child)
		if err != nil {
			return created, fmt.Errorf("create child %d of %d: %w", i+1, len(req.Plan.Items), err)
		}
		created = append(created, n)
	}
	return created, nil
}

func (h *createChildren) selectItems(parsed any, path string) ([]any, error) {
	if strings.TrimSpace(path) == "" {
		if arr, ok := parsed.([]any); ok {
			return nonEmpty(arr, "$")
		}
		found := FindArrays(parsed)
		if len(found) != 1 {
			return nil, fmt.Errorf("jsonPath is not set and %d candidate arrays were found", len(found))
		}
		path = found[0]
	}
	v, err := h.paths.Eval(path, parsed)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("path %q resolved to %T, not an array", path, v)
	}
	return nonEmpty(arr, path)
}

func nonEmpty(arr []any, path string) ([]any, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("array at %q is empty", path)
	}
	return arr, nil
}

func childFromItem(parent *domain.PromptNode, cfg domain.ActionConfig, name string, item any) domain.PromptNode {
	child := domain.PromptNode{
		Name:         name,
		UserPrompt:   itemContent(cfg, item),
		SystemPrompt: cfg.ChildSystemPrompt,
		Model:        parent.Model,
		NodeType:     domain.NodeTypeStandard,
	}
	if cfg.ChildModel != "" {
		child.Model = cfg.ChildModel
	}
	if cfg.ChildNodeType != "" {
		child.NodeType = cfg.ChildNodeType
	}
	if child.NodeType == domain.NodeTypeAction {
		child.PostAction = parent.PostAction
		child.PostActionConfig = parent.Clone().PostActionConfig
		child.AutoRunChildren = parent.AutoRunChildren
		child.ResponseFormat = parent.ResponseFormat
	}
	return child
}

func childName(parent *domain.PromptNode, cfg domain.ActionConfig, i int, item any) string {
	title := itemTitle(cfg, item)
	if cfg.NamingTemplate == "" {
		if title != "" {
			return title
		}
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			return truncateRunes(strings.TrimSpace(s), maxDerivedNameRunes)
		}
		return fmt.Sprintf("%s %d", parent.Name, i+1)
	}

	vars := map[string]any{
		"index": i + 1,
		"value": itemContent(cfg, item),
	}
	if title != "" {
		vars["name"] = title
		vars["title"] = title
	}
	if obj, ok := item.(map[string]any); ok {
		for k, v := range obj {
			if _, taken := vars[k]; !taken {
				vars[k] = v
			}
		}
	}
	return Resolve(cfg.NamingTemplate, domain.NewVariableScope(vars))
}

func itemContent(cfg domain.ActionConfig, item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return Stringify(item)
	}
	keys := defaultContentKeys
	if cfg.ContentKey != "" {
		keys = []string{cfg.ContentKey}
	}
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return Stringify(obj)
}

func itemTitle(cfg domain.ActionConfig, item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	keys := defaultTitleKeys
	if cfg.TitleKey != "" {
		keys = []string{cfg.TitleKey}
	}
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
