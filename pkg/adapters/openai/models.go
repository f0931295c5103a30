package openai

// Wire types for the /responses endpoint. Only the fields the engine uses.

type responseRequest struct {
	Model              string           `json:"model"`
	Instructions       string           `json:"instructions,omitempty"`
	Input              any              `json:"input"`
	PreviousResponseID string           `json:"previous_response_id,omitempty"`
	Temperature        *float64         `json:"temperature,omitempty"`
	MaxOutputTokens    *int             `json:"max_output_tokens,omitempty"`
	Reasoning          *reasoningConfig `json:"reasoning,omitempty"`
	Text               *textConfig      `json:"text,omitempty"`
	Tools              []functionTool   `json:"tools,omitempty"`
	Store              *bool            `json:"store,omitempty"`
}

type reasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

type textConfig struct {
	Format *textFormat `json:"format,omitempty"`
}

type textFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict *bool          `json:"strict,omitempty"`
}

type functionTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type functionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responseBody struct {
	ID                string             `json:"id"`
	Model             string             `json:"model"`
	Status            string             `json:"status"`
	Output            []outputItem       `json:"output"`
	Usage             *usageDetails      `json:"usage,omitempty"`
	Error             *errorDetails      `json:"error,omitempty"`
	IncompleteDetails *incompleteDetails `json:"incomplete_details,omitempty"`
}

type outputItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Role      string          `json:"role,omitempty"`
	Content   []contentOutput `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
}

type contentOutput struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type usageDetails struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type errorDetails struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type incompleteDetails struct {
	Reason string `json:"reason"`
}

type errorEnvelope struct {
	Error *errorDetails `json:"error"`
}

type questionArgs struct {
	Question     string `json:"question"`
	VariableName string `json:"variable_name"`
	Description  string `json:"description"`
}
