package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// StructuredClient wraps the Anthropic SDK directly (rather than going
// through the Provider/ChatRequest abstraction) for calls that must
// return a single JSON object validated against a caller-supplied
// schema — trend classification, evidence extraction, and calibration
// summaries all need a strict shape back, not free-form prose.
type StructuredClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewStructuredClient builds a client against the given API key and
// default model. Individual calls may override the model.
func NewStructuredClient(apiKey, defaultModel string) *StructuredClient {
	return &StructuredClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(defaultModel),
	}
}

// ExtractRequest describes a single structured-extraction call.
type ExtractRequest struct {
	Model      string          // overrides the client default when set
	System     string          // system prompt, e.g. extraction instructions
	Prompt     string          // user content
	MaxTokens  int             // defaults to 1024
	SchemaName string          // label only, used in error messages
	Schema     json.RawMessage // JSON schema the response must validate against (advisory — not enforced server-side)
}

// ExtractResponse carries the raw decoded JSON payload plus usage.
type ExtractResponse struct {
	Raw          json.RawMessage
	InputTokens  int64
	OutputTokens int64
}

// Extract asks the model to return exactly one JSON object matching
// req.Schema and decodes it. The schema is embedded in the prompt
// rather than passed as a tool definition — Anthropic's Messages API
// has no native response-format constraint, so validation happens
// client-side by unmarshaling into a generic value and checking it
// decodes cleanly; callers re-unmarshal Raw into their own typed
// struct for field-level validation.
func (c *StructuredClient) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	model := c.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	maxTokens := int64(1024)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	system := req.System
	if len(req.Schema) > 0 {
		system = strings.TrimSpace(system + "\n\nRespond with ONLY a single JSON object matching this schema (no prose, no markdown fences):\n" + string(req.Schema))
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("structured extract (%s): %w", req.SchemaName, err)
	}
	if len(message.Content) == 0 || message.Content[0].Type != "text" {
		return nil, fmt.Errorf("structured extract (%s): response has no text block", req.SchemaName)
	}

	raw, err := ExtractJSONObject(message.Content[0].Text)
	if err != nil {
		return nil, fmt.Errorf("structured extract (%s): %w", req.SchemaName, err)
	}

	return &ExtractResponse{
		Raw:          raw,
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}, nil
}

// ExtractJSONObject trims any leading/trailing prose or markdown
// fences the model added despite instructions, then validates the
// remainder decodes as a JSON object.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	candidate := text[start : end+1]

	var probe map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil, fmt.Errorf("response is not a valid JSON object: %w", err)
	}
	return json.RawMessage(candidate), nil
}
