package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIModelInvokeSendsStructuredRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"sql_query\":\"SELECT 1\"}"}}]}`))
	}))
	defer server.Close()

	model, err := NewOpenAIModel(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "secret", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOpenAIModel() error = %v", err)
	}

	got, err := InvokeField(context.Background(), model, Prompt{
		System:      "Convert natural language question to SQL.",
		User:        "Question: how many users?",
		Temperature: 0,
		Output:      &OutputField{Name: "sql_query"},
	})
	if err != nil {
		t.Fatalf("InvokeField() error = %v", err)
	}
	if got != "SELECT 1" {
		t.Fatalf("InvokeField() = %q", got)
	}

	if captured["model"] != "test-model" {
		t.Fatalf("model = %v", captured["model"])
	}
	messages := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", messages)
	}
	if role := messages[0].(map[string]any)["role"]; role != "system" {
		t.Fatalf("first role = %v", role)
	}
	format := captured["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %#v", format)
	}
	schema := format["json_schema"].(map[string]any)
	if schema["name"] != "sql_query" {
		t.Fatalf("json_schema = %#v", schema)
	}
}

func TestOpenAIModelFreeTextOmitsResponseFormat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"There are 2 users."}}]}`))
	}))
	defer server.Close()

	model, err := NewOpenAIModel(OpenAIConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewOpenAIModel() error = %v", err)
	}
	got, err := model.Invoke(context.Background(), Prompt{User: "Query: SELECT 1\nResult: {count: 2}", Temperature: 0.7})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "There are 2 users." {
		t.Fatalf("Invoke() = %q", got)
	}
	if _, ok := captured["response_format"]; ok {
		t.Fatalf("unexpected response_format in %#v", captured)
	}
	if captured["temperature"] != 0.7 {
		t.Fatalf("temperature = %v", captured["temperature"])
	}
	if messages := captured["messages"].([]any); len(messages) != 1 {
		t.Fatalf("messages = %#v", messages)
	}
}

func TestOpenAIModelReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	model, err := NewOpenAIModel(OpenAIConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewOpenAIModel() error = %v", err)
	}
	_, err = model.Invoke(context.Background(), Prompt{User: "hi"})
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Invoke() error = %v", err)
	}
}

func TestOpenAIModelRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	model, err := NewOpenAIModel(OpenAIConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewOpenAIModel() error = %v", err)
	}
	if _, err := model.Invoke(context.Background(), Prompt{User: "hi"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestNewOpenAIModelValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIModel(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected base URL error")
	}
	if _, err := NewOpenAIModel(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected api key error")
	}
}
