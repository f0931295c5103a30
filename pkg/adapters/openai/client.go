// Package openai implements ports.GenerationProvider on the OpenAI Responses API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/kaptinlin/jsonrepair"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	// QuestionTool is the function exposed to question nodes.
	QuestionTool = "ask_user_question"
)

// Client calls POST {baseURL}/responses.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithBaseURL(url string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the model used when a node does not name one.
func WithModel(model string) Option {
	return func(cl *Client) {
		cl.model = model
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http = &http.Client{Timeout: d}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// New creates a client. The API key may be empty for local compatible servers.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 2 * time.Minute},
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   DefaultModel,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx reply or a response with status "failed".
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("openai: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports rate limits and server-side failures.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *APIError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Type
}

// Generate implements ports.GenerationProvider.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	body := c.buildRequest(req)
	res, err := c.post(ctx, "/responses", body)
	if err != nil {
		return nil, err
	}
	if res.Status == "failed" && res.Error != nil {
		return nil, &APIError{Type: res.Error.Type, Code: res.Error.Code, Message: res.Error.Message}
	}
	out := &domain.GenerationResponse{
		ResponseID:   res.ID,
		Model:        res.Model,
		FinishReason: finishReason(res),
	}
	if res.Usage != nil {
		out.Usage = domain.Usage{
			PromptTokens:     res.Usage.InputTokens,
			CompletionTokens: res.Usage.OutputTokens,
			TotalTokens:      res.Usage.TotalTokens,
		}
	}

	var text strings.Builder
	for _, item := range res.Output {
		switch item.Type {
		case "function_call":
			if item.Name != QuestionTool || !req.AllowQuestions {
				continue
			}
			q, err := parseQuestion(item.Arguments)
			if err != nil {
				return nil, fmt.Errorf("invalid %s arguments: %w", QuestionTool, err)
			}
			out.Interrupt = &domain.QuestionInterrupt{
				NodeID:       req.NodeID,
				Question:     q.Question,
				VariableName: q.VariableName,
				Description:  q.Description,
				ResponseID:   res.ID,
				CallID:       item.CallID,
			}
			return out, nil
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					text.WriteString(part.Text)
				} else if part.Refusal != "" {
					text.WriteString(part.Refusal)
				}
			}
		}
	}
	out.Response = text.String()
	return out, nil
}

func (c *Client) buildRequest(req domain.GenerationRequest) responseRequest {
	body := responseRequest{
		Model:           req.Model,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.ReasoningEffort != "" {
		body.Reasoning = &reasoningConfig{Effort: req.ReasoningEffort}
	}

	switch {
	case req.Resume != nil && req.Resume.CallID != "":
		body.PreviousResponseID = req.Resume.ResponseID
		body.Input = []any{functionCallOutput{Type: "function_call_output", CallID: req.Resume.CallID, Output: req.Resume.Answer}}
	case req.Resume != nil:
		body.PreviousResponseID = req.Resume.ResponseID
		body.Input = []any{inputMessage{Role: "user", Content: req.Resume.Answer}}
	default:
		body.Instructions = req.SystemPrompt
		body.Input = []any{inputMessage{Role: "user", Content: req.UserPrompt}}
	}

	switch req.ResponseFormat {
	case domain.ResponseFormatJSONSchema:
		if len(req.JSONSchema) > 0 {
			strict := false
			body.Text = &textConfig{Format: &textFormat{
				Type:   "json_schema",
				Name:   SchemaName(req.SchemaName),
				Schema: req.JSONSchema,
				Strict: &strict,
			}}
			break
		}
		body.Text = &textConfig{Format: &textFormat{Type: "json_object"}}
	case domain.ResponseFormatJSONObject:
		body.Text = &textConfig{Format: &textFormat{Type: "json_object"}}
	}

	if req.AllowQuestions {
		body.Tools = []functionTool{questionTool()}
	}
	return body
}

func questionTool() functionTool {
	return functionTool{
		Type:        "function",
		Name:        QuestionTool,
		Description: "Ask the user a clarifying question before answering. The answer is stored under variable_name.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question":      map[string]any{"type": "string", "description": "The question to show the user."},
				"variable_name": map[string]any{"type": "string", "description": "Short snake_case name for the answer."},
				"description":   map[string]any{"type": "string", "description": "Why the answer is needed."},
			},
			"required": []string{"question", "variable_name"},
		},
	}
}

// post follows the same shape as a plain JSON POST helper: marshal, send,
// read, check status, unmarshal.
func (c *Client) post(ctx context.Context, path string, body any) (*responseBody, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", "err", cerr)
		}
	}()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	c.logger.DebugContext(ctx, "openai response", "status", res.StatusCode, "bytes", len(raw), "duration", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: truncate(string(raw), 500)}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			apiErr.Type, apiErr.Code, apiErr.Message = env.Error.Type, env.Error.Code, env.Error.Message
		}
		return nil, apiErr
	}

	var out responseBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("error unmarshaling response body (status %d): %w", res.StatusCode, err)
	}
	return &out, nil
}

func finishReason(res *responseBody) string {
	if res.IncompleteDetails != nil && res.IncompleteDetails.Reason != "" {
		return res.IncompleteDetails.Reason
	}
	if res.Status == "completed" {
		return "stop"
	}
	return res.Status
}

func parseQuestion(raw string) (questionArgs, error) {
	var q questionArgs
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return q, err
		}
		if err := json.Unmarshal([]byte(repaired), &q); err != nil {
			return q, err
		}
	}
	if strings.TrimSpace(q.Question) == "" {
		return q, errors.New("empty question")
	}
	return q, nil
}

var invalidSchemaChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SchemaName converts a title into a name the API accepts:
// letters, digits, underscores and dashes, at most 64 characters.
func SchemaName(title string) string {
	name := strings.Trim(invalidSchemaChars.ReplaceAllString(strings.TrimSpace(title), "_"), "_")
	if name == "" {
		return "response"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
