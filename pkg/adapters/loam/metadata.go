package loam

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// NodeMetadata is the frontmatter of a prompt document. The markdown body
// holds the user prompt.
// Structured values are kept as plain maps so any serializer can round-trip them.
type NodeMetadata struct {
	ID              string   `json:"id" yaml:"id" mapstructure:"id"`
	ParentID        string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty" mapstructure:"parent_id"`
	Name            string   `json:"name" yaml:"name" mapstructure:"name"`
	Position        int      `json:"position" yaml:"position" mapstructure:"position"`
	SystemPrompt    string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Model           string   `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	Temperature     *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens       *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty" mapstructure:"reasoning_effort"`
	ResponseFormat  string   `json:"response_format,omitempty" yaml:"response_format,omitempty" mapstructure:"response_format"`
	NodeType        string   `json:"node_type,omitempty" yaml:"node_type,omitempty" mapstructure:"node_type"`
	PostAction      string   `json:"post_action,omitempty" yaml:"post_action,omitempty" mapstructure:"post_action"`

	ExcludeFromCascade bool `json:"exclude_from_cascade,omitempty" yaml:"exclude_from_cascade,omitempty" mapstructure:"exclude_from_cascade"`
	AutoRunChildren    bool `json:"auto_run_children,omitempty" yaml:"auto_run_children,omitempty" mapstructure:"auto_run_children"`

	JSONSchema          map[string]any `json:"json_schema,omitempty" yaml:"json_schema,omitempty" mapstructure:"json_schema"`
	PostActionConfig    map[string]any `json:"post_action_config,omitempty" yaml:"post_action_config,omitempty" mapstructure:"post_action_config"`
	VariableAssignments map[string]any `json:"variable_assignments_config,omitempty" yaml:"variable_assignments_config,omitempty" mapstructure:"variable_assignments_config"`
	ExtractedVariables  map[string]any `json:"extracted_variables,omitempty" yaml:"extracted_variables,omitempty" mapstructure:"extracted_variables"`
	LastActionResult    map[string]any `json:"last_action_result,omitempty" yaml:"last_action_result,omitempty" mapstructure:"last_action_result"`
	LastResponse        string         `json:"last_response,omitempty" yaml:"last_response,omitempty" mapstructure:"last_response"`
}

func toMetadata(n *domain.PromptNode) (NodeMetadata, error) {
	m := NodeMetadata{
		ID:                 n.ID,
		ParentID:           n.ParentID,
		Name:               n.Name,
		Position:           n.Position,
		SystemPrompt:       n.SystemPrompt,
		Model:              n.Model,
		Temperature:        n.Temperature,
		MaxTokens:          n.MaxTokens,
		ReasoningEffort:    n.ReasoningEffort,
		ResponseFormat:     string(n.ResponseFormat),
		NodeType:           string(n.NodeType),
		PostAction:         n.PostAction,
		ExcludeFromCascade: n.ExcludeFromCascade,
		AutoRunChildren:    n.AutoRunChildren,
		JSONSchema:         n.JSONSchema,
		PostActionConfig:   n.PostActionConfig,
		ExtractedVariables: n.ExtractedVariables,
		LastResponse:       n.LastResponse,
	}
	var err error
	if n.VariableAssignmentsConfig != nil {
		if m.VariableAssignments, err = toMap(n.VariableAssignmentsConfig); err != nil {
			return m, err
		}
	}
	if n.LastActionResult != nil {
		if m.LastActionResult, err = toMap(n.LastActionResult); err != nil {
			return m, err
		}
	}
	return m, nil
}

func fromMetadata(m NodeMetadata, content string) (*domain.PromptNode, error) {
	n := &domain.PromptNode{
		ID:                 m.ID,
		ParentID:           m.ParentID,
		Name:               m.Name,
		Position:           m.Position,
		SystemPrompt:       m.SystemPrompt,
		UserPrompt:         content,
		Model:              m.Model,
		Temperature:        m.Temperature,
		MaxTokens:          m.MaxTokens,
		ReasoningEffort:    m.ReasoningEffort,
		ResponseFormat:     domain.ResponseFormat(m.ResponseFormat),
		JSONSchema:         m.JSONSchema,
		NodeType:           domain.NodeType(m.NodeType),
		PostAction:         m.PostAction,
		PostActionConfig:   m.PostActionConfig,
		ExcludeFromCascade: m.ExcludeFromCascade,
		AutoRunChildren:    m.AutoRunChildren,
		ExtractedVariables: m.ExtractedVariables,
		LastResponse:       m.LastResponse,
	}
	if m.VariableAssignments != nil {
		var cfg domain.VariableAssignmentsConfig
		if err := fromMap(m.VariableAssignments, &cfg); err != nil {
			return nil, fmt.Errorf("variable_assignments_config of %s: %w", m.ID, err)
		}
		n.VariableAssignmentsConfig = &cfg
	}
	if m.LastActionResult != nil {
		var rec domain.ActionRecord
		if err := fromMap(m.LastActionResult, &rec); err != nil {
			return nil, fmt.Errorf("last_action_result of %s: %w", m.ID, err)
		}
		n.LastActionResult = &rec
	}
	return n, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromMap decodes using json tag names so maps produced by toMap round-trip.
func fromMap(m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			timeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

// timeHook accepts RFC 3339 strings and already-parsed YAML timestamps.
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, v)
	case time.Time:
		return v, nil
	}
	return data, nil
}
