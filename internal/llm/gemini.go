package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/duckmesh/sqlagent/internal/observability"
)

const providerGemini = "gemini"

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

type GeminiModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(cfg.APIKey)))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &GeminiModel{client: client, model: model, timeout: cfg.Timeout, logger: logger}, nil
}

func (m *GeminiModel) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := m.generativeModel(prompt).GenerateContent(ctx, genai.Text(prompt.User))
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveModelCall(providerGemini, true, elapsed)
		return "", fmt.Errorf("generate content: %w", err)
	}
	text, err := responseText(resp)
	observability.ObserveModelCall(providerGemini, err != nil, elapsed)
	if err != nil {
		return "", err
	}
	m.logger.DebugContext(ctx, "model call finished",
		append(observability.LogAttrs(ctx), "provider", providerGemini, "model", m.model, "duration_ms", elapsed.Milliseconds())...)
	return text, nil
}

func (m *GeminiModel) Close() error {
	return m.client.Close()
}

func (m *GeminiModel) generativeModel(prompt Prompt) *genai.GenerativeModel {
	model := m.client.GenerativeModel(m.model)
	model.SetTemperature(float32(prompt.Temperature))
	if strings.TrimSpace(prompt.System) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}
	if prompt.Output != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = geminiSchema(*prompt.Output)
	}
	return model
}

func geminiSchema(field OutputField) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			field.Name: {Type: genai.TypeString, Description: field.Description},
		},
		Required: []string{field.Name},
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty gemini response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", fmt.Errorf("gemini candidate has no content (finish reason %v)", candidate.FinishReason)
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini response has no text parts")
	}
	return sb.String(), nil
}
