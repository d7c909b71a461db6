package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Model is a chat model. When Prompt.Output is set the model is asked for a
// JSON object holding that single field; Invoke still returns raw text.
type Model interface {
	Invoke(ctx context.Context, prompt Prompt) (string, error)
}

type Prompt struct {
	System      string
	User        string
	Temperature float64
	Output      *OutputField
}

type OutputField struct {
	Name        string
	Description string
}

// ModelOutputError reports a response that does not carry the requested
// structured field.
type ModelOutputError struct {
	Field  string
	Reason string
	Raw    string
}

func (e *ModelOutputError) Error() string {
	return fmt.Sprintf("model output missing field %q: %s", e.Field, e.Reason)
}

// InvokeField runs a structured prompt and returns the requested field.
func InvokeField(ctx context.Context, model Model, prompt Prompt) (string, error) {
	if prompt.Output == nil || strings.TrimSpace(prompt.Output.Name) == "" {
		return "", fmt.Errorf("structured prompt needs an output field")
	}
	raw, err := model.Invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	return ParseField(raw, prompt.Output.Name)
}

// ParseField extracts a string field from a JSON object, tolerating code
// fences and prose around it.
func ParseField(raw, field string) (string, error) {
	body := stripCodeFence(raw)
	start := strings.Index(body, "{")
	if start < 0 {
		return "", &ModelOutputError{Field: field, Reason: "no JSON object in response", Raw: raw}
	}

	var payload map[string]any
	if err := json.NewDecoder(strings.NewReader(body[start:])).Decode(&payload); err != nil {
		return "", &ModelOutputError{Field: field, Reason: "invalid JSON: " + err.Error(), Raw: raw}
	}
	value, ok := payload[field]
	if !ok {
		return "", &ModelOutputError{Field: field, Reason: "field not present", Raw: raw}
	}
	text, ok := value.(string)
	if !ok {
		return "", &ModelOutputError{Field: field, Reason: fmt.Sprintf("field has type %T, want string", value), Raw: raw}
	}
	return text, nil
}

func stripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// outputSchema is the JSON schema for a single required string field.
func outputSchema(field OutputField) map[string]any {
	property := map[string]any{"type": "string"}
	if field.Description != "" {
		property["description"] = field.Description
	}
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{field.Name: property},
		"required":             []string{field.Name},
		"additionalProperties": false,
	}
}
