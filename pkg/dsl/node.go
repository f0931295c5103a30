package dsl

import (
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.PromptNode
	builder *Builder
}

// Under attaches the node to parentID.
func (n *NodeBuilder) Under(parentID string) *NodeBuilder {
	n.node.ParentID = parentID
	return n
}

// Child adds a node under this one and returns its builder.
func (n *NodeBuilder) Child(id string) *NodeBuilder {
	return n.builder.Add(id).Under(n.node.ID)
}

// Name sets the display name.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.node.Name = name
	return n
}

// Prompt sets the user prompt template.
func (n *NodeBuilder) Prompt(template string) *NodeBuilder {
	n.node.UserPrompt = template
	return n
}

// System sets the system prompt template.
func (n *NodeBuilder) System(template string) *NodeBuilder {
	n.node.SystemPrompt = template
	return n
}

// Model overrides the provider's default model.
func (n *NodeBuilder) Model(model string) *NodeBuilder {
	n.node.Model = model
	return n
}

// Temperature sets the sampling temperature.
func (n *NodeBuilder) Temperature(t float64) *NodeBuilder {
	n.node.Temperature = &t
	return n
}

// JSON asks for a JSON object response.
func (n *NodeBuilder) JSON() *NodeBuilder {
	n.node.ResponseFormat = domain.ResponseFormatJSONObject
	return n
}

// Schema asks for a response matching schema.
func (n *NodeBuilder) Schema(schema map[string]any) *NodeBuilder {
	n.node.ResponseFormat = domain.ResponseFormatJSONSchema
	n.node.JSONSchema = schema
	return n
}

// Question lets the node pause and ask the operator.
func (n *NodeBuilder) Question() *NodeBuilder {
	n.node.NodeType = domain.NodeTypeQuestion
	return n
}

// Action marks the node as an action running handler with config.
func (n *NodeBuilder) Action(handler string, config map[string]any) *NodeBuilder {
	n.node.NodeType = domain.NodeTypeAction
	n.node.PostAction = handler
	n.node.PostActionConfig = config
	return n
}

// CreateChildren turns the array at jsonPath into child nodes.
// An empty jsonPath lets the engine pick the first array.
func (n *NodeBuilder) CreateChildren(jsonPath string) *NodeBuilder {
	cfg := map[string]any{}
	if jsonPath != "" {
		cfg["jsonPath"] = jsonPath
	}
	return n.Action(runtime.ActionCreateChildrenJSON, cfg)
}

// Configure sets one post-action config key.
func (n *NodeBuilder) Configure(key string, value any) *NodeBuilder {
	if n.node.PostActionConfig == nil {
		n.node.PostActionConfig = make(map[string]any)
	}
	n.node.PostActionConfig[key] = value
	return n
}

// Assign publishes the value at path under name after a successful action.
func (n *NodeBuilder) Assign(name, path string) *NodeBuilder {
	if n.node.VariableAssignmentsConfig == nil {
		n.node.VariableAssignmentsConfig = &domain.VariableAssignmentsConfig{Enabled: true}
	}
	n.node.VariableAssignmentsConfig.Assignments = append(n.node.VariableAssignmentsConfig.Assignments,
		domain.VariableAssignment{Name: name, Path: path})
	return n
}

// AssignTyped is Assign with a declared type such as "int" or "[string]".
func (n *NodeBuilder) AssignTyped(name, path, typ string) *NodeBuilder {
	n.Assign(name, path)
	a := n.node.VariableAssignmentsConfig.Assignments
	a[len(a)-1].Type = typ
	return n
}

// AutoRun runs the children an action creates within the same cascade.
func (n *NodeBuilder) AutoRun() *NodeBuilder {
	n.node.AutoRunChildren = true
	return n
}

// Exclude keeps the node and its subtree out of cascades.
func (n *NodeBuilder) Exclude() *NodeBuilder {
	n.node.ExcludeFromCascade = true
	return n
}

// Build returns a copy of the configured node without children.
func (n *NodeBuilder) Build() domain.PromptNode {
	return *n.node.Shallow()
}
