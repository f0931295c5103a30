package domain

import "time"

// Usage counts tokens consumed by a generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// GenerationRequest is what the executor hands to a GenerationProvider.
// Prompts are already resolved against the scope.
type GenerationRequest struct {
	NodeID          string         `json:"node_id"`
	Model           string         `json:"model"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	UserPrompt      string         `json:"user_prompt"`
	Temperature     *float64       `json:"temperature,omitempty"`
	MaxTokens       *int           `json:"max_tokens,omitempty"`
	ReasoningEffort string         `json:"reasoning_effort,omitempty"`
	ResponseFormat  ResponseFormat `json:"response_format,omitempty"`
	JSONSchema      map[string]any `json:"json_schema,omitempty"`
	SchemaName      string         `json:"schema_name,omitempty"`

	// AllowQuestions exposes the question tool to the model.
	AllowQuestions bool `json:"allow_questions,omitempty"`

	// Resume continues a conversation that paused on a question.
	Resume *Resume `json:"resume,omitempty"`
}

// Resume carries the operator's answer back to the provider.
type Resume struct {
	ResponseID   string `json:"response_id"`
	CallID       string `json:"call_id,omitempty"`
	VariableName string `json:"variable_name"`
	Answer       string `json:"answer"`
}

// GenerationResponse is a provider reply. Exactly one of Response or
// Interrupt is meaningful.
type GenerationResponse struct {
	Response     string             `json:"response"`
	Usage        Usage              `json:"usage"`
	FinishReason string             `json:"finish_reason,omitempty"`
	ResponseID   string             `json:"response_id,omitempty"`
	Model        string             `json:"model,omitempty"`
	Interrupt    *QuestionInterrupt `json:"interrupt,omitempty"`
}

// QuestionInterrupt is raised when the model needs operator input.
type QuestionInterrupt struct {
	NodeID       string `json:"node_id"`
	Question     string `json:"question"`
	VariableName string `json:"variable_name"`
	Description  string `json:"description,omitempty"`
	ResponseID   string `json:"response_id"`
	CallID       string `json:"call_id,omitempty"`
}

// ResumeState is the explicit continuation of a paused node execution.
// Answer is supplied by the caller; a nil Answer cancels the node.
type ResumeState struct {
	ResponseID          string             `json:"response_id"`
	CallID              string             `json:"call_id,omitempty"`
	PendingVariableName string             `json:"pending_variable_name"`
	Attempts            int                `json:"attempts"`
	Interrupt           *QuestionInterrupt `json:"interrupt,omitempty"`
	Answer              *string            `json:"answer,omitempty"`
}

// ExecutionResult is the outcome of running one node to completion.
type ExecutionResult struct {
	NodeID       string        `json:"node_id"`
	Response     string        `json:"response"`
	Usage        Usage         `json:"usage"`
	FinishReason string        `json:"finish_reason,omitempty"`
	ResponseID   string        `json:"response_id,omitempty"`
	Model        string        `json:"model,omitempty"`
	Latency      time.Duration `json:"latency"`
	Interrupts   int           `json:"interrupts"`

	// Node is the freshly loaded node the execution used.
	Node *PromptNode `json:"-"`
}
