package domain

import "time"

// NodeType declares how a node behaves when executed.
type NodeType string

const (
	// NodeTypeStandard produces a response and nothing else.
	NodeTypeStandard NodeType = "standard"
	// NodeTypeAction post-processes its response into tree mutations.
	NodeTypeAction NodeType = "action"
	// NodeTypeQuestion is allowed to pause and ask the operator for input.
	NodeTypeQuestion NodeType = "question"
)

// ResponseFormat selects the output format requested from the provider.
type ResponseFormat string

const (
	ResponseFormatText       ResponseFormat = "text"
	ResponseFormatJSONObject ResponseFormat = "json_object"
	ResponseFormatJSONSchema ResponseFormat = "json_schema"
)

// PromptNode is a single prompt configuration inside a tree.
type PromptNode struct {
	ID       string `json:"id" yaml:"id"`
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Position int    `json:"position" yaml:"position"`

	SystemPrompt    string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	UserPrompt      string         `json:"user_prompt,omitempty" yaml:"user_prompt,omitempty"`
	Model           string         `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens       *int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	ResponseFormat  ResponseFormat `json:"response_format,omitempty" yaml:"response_format,omitempty"`
	JSONSchema      map[string]any `json:"json_schema,omitempty" yaml:"json_schema,omitempty"`

	NodeType                  NodeType                   `json:"node_type,omitempty" yaml:"node_type,omitempty"`
	PostAction                string                     `json:"post_action,omitempty" yaml:"post_action,omitempty"`
	PostActionConfig          map[string]any             `json:"post_action_config,omitempty" yaml:"post_action_config,omitempty"`
	VariableAssignmentsConfig *VariableAssignmentsConfig `json:"variable_assignments_config,omitempty" yaml:"variable_assignments_config,omitempty"`

	ExcludeFromCascade bool `json:"exclude_from_cascade,omitempty" yaml:"exclude_from_cascade,omitempty"`
	AutoRunChildren    bool `json:"auto_run_children,omitempty" yaml:"auto_run_children,omitempty"`

	// Written by the engine.
	ExtractedVariables map[string]any `json:"extracted_variables,omitempty" yaml:"extracted_variables,omitempty"`
	LastActionResult   *ActionRecord  `json:"last_action_result,omitempty" yaml:"last_action_result,omitempty"`
	LastResponse       string         `json:"last_response,omitempty" yaml:"last_response,omitempty"`

	Children []*PromptNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsAction reports whether the node takes part in action processing.
// Either signal is enough; see IsConsistent for the strict check.
func (n *PromptNode) IsAction() bool {
	return n.NodeType == NodeTypeAction || n.PostAction != ""
}

// IsConsistent reports whether NodeType and PostAction agree.
func (n *PromptNode) IsConsistent() bool {
	return (n.NodeType == NodeTypeAction) == (n.PostAction != "")
}

// EffectiveType returns NodeType, defaulting to standard.
func (n *PromptNode) EffectiveType() NodeType {
	if n.NodeType == "" {
		return NodeTypeStandard
	}
	return n.NodeType
}

// Clone returns a deep copy of the node and its children.
func (n *PromptNode) Clone() *PromptNode {
	if n == nil {
		return nil
	}
	c := *n
	if n.Temperature != nil {
		t := *n.Temperature
		c.Temperature = &t
	}
	if n.MaxTokens != nil {
		m := *n.MaxTokens
		c.MaxTokens = &m
	}
	c.JSONSchema = cloneMap(n.JSONSchema)
	c.PostActionConfig = cloneMap(n.PostActionConfig)
	c.ExtractedVariables = cloneMap(n.ExtractedVariables)
	if n.VariableAssignmentsConfig != nil {
		v := *n.VariableAssignmentsConfig
		v.Assignments = append([]VariableAssignment(nil), n.VariableAssignmentsConfig.Assignments...)
		c.VariableAssignmentsConfig = &v
	}
	if n.LastActionResult != nil {
		r := *n.LastActionResult
		r.AvailableArrays = append([]string(nil), n.LastActionResult.AvailableArrays...)
		c.LastActionResult = &r
	}
	if n.Children != nil {
		c.Children = make([]*PromptNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Shallow returns a copy of the node without its children.
func (n *PromptNode) Shallow() *PromptNode {
	c := *n
	c.Children = nil
	return c.Clone()
}

// Walk visits the node and its descendants in pre-order.
// Returning false from fn stops the descent into that node's children.
func (n *PromptNode) Walk(fn func(node *PromptNode, depth int) bool) {
	var walk func(*PromptNode, int)
	walk = func(node *PromptNode, depth int) {
		if !fn(node, depth) {
			return
		}
		for _, c := range node.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
}

// Find returns the descendant (or the node itself) with the given ID.
func (n *PromptNode) Find(id string) *PromptNode {
	var found *PromptNode
	n.Walk(func(node *PromptNode, _ int) bool {
		if found != nil {
			return false
		}
		if node.ID == id {
			found = node
			return false
		}
		return true
	})
	return found
}

// VariableAssignment maps a path inside the parsed output to a scope name.
// Type, when set, is checked before the value is published.
type VariableAssignment struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	Path string `json:"path" yaml:"path" mapstructure:"path"`
	Type string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
}

// VariableAssignmentsConfig controls which parsed values are published
// into the shared scope after a successful action.
type VariableAssignmentsConfig struct {
	Enabled     bool                 `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Assignments []VariableAssignment `json:"assignments" yaml:"assignments" mapstructure:"assignments"`
}

// NodeUpdate is a partial update applied by TreeStore.UpdateNode.
// Nil fields are left untouched.
type NodeUpdate struct {
	LastResponse       *string
	LastActionResult   *ActionRecord
	ExtractedVariables map[string]any
}

// ActionRecord is the persisted summary of the last post-action on a node.
type ActionRecord struct {
	Status          ActionStatus `json:"status" yaml:"status"`
	PostAction      string       `json:"post_action" yaml:"post_action"`
	CreatedCount    int          `json:"created_count" yaml:"created_count"`
	TargetParentID  string       `json:"target_parent_id,omitempty" yaml:"target_parent_id,omitempty"`
	ErrorCode       string       `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Error           string       `json:"error,omitempty" yaml:"error,omitempty"`
	AvailableArrays []string     `json:"available_arrays,omitempty" yaml:"available_arrays,omitempty"`
	ExecutedAt      time.Time    `json:"executed_at" yaml:"executed_at"`
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
