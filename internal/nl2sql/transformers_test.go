package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/duckmesh/sqlagent/internal/llm"
)

type scriptedModel struct {
	responses []string
	err       error
	prompts   []llm.Prompt
}

func (m *scriptedModel) Invoke(_ context.Context, prompt llm.Prompt) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

const testSchema = "Table: User\n- id: INTEGER, NULLABLE, Primary Key\n"

func TestClassifyRelevance(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"relevance":"Relevant"}`}}
	tr := New(model, Config{})

	got, err := tr.ClassifyRelevance(context.Background(), "How many users?", testSchema)
	if err != nil {
		t.Fatalf("ClassifyRelevance() error = %v", err)
	}
	if got != "Relevant" {
		t.Fatalf("ClassifyRelevance() = %q", got)
	}
	prompt := model.prompts[0]
	if !strings.Contains(prompt.System, testSchema) {
		t.Fatalf("system prompt missing schema: %q", prompt.System)
	}
	if prompt.User != "Question: How many users?" {
		t.Fatalf("user prompt = %q", prompt.User)
	}
	if prompt.Output == nil || prompt.Output.Name != "relevance" {
		t.Fatalf("Output = %#v", prompt.Output)
	}
}

func TestGenerateSQLStripsMarkdownFences(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"sql_query":"` + "```sql\\nSELECT COUNT(*) FROM User;\\n```" + `"}`}}
	tr := New(model, Config{Dialect: "SQLite", Temperature: 0})

	got, err := tr.GenerateSQL(context.Background(), "How many users?", testSchema)
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if got != "SELECT COUNT(*) FROM User;" {
		t.Fatalf("GenerateSQL() = %q", got)
	}
	prompt := model.prompts[0]
	if prompt.Output == nil || prompt.Output.Name != "sql_query" {
		t.Fatalf("Output = %#v", prompt.Output)
	}
	if !strings.Contains(prompt.System, "The database is SQLite.") {
		t.Fatalf("system prompt = %q", prompt.System)
	}
}

func TestGenerateSQLMissingFieldIsModelOutputError(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"query":"SELECT 1"}`}}
	_, err := New(model, Config{}).GenerateSQL(context.Background(), "q", testSchema)

	var outputErr *llm.ModelOutputError
	if !errors.As(err, &outputErr) {
		t.Fatalf("GenerateSQL() error = %v, want ModelOutputError", err)
	}
}

func TestExplainResultIsFreeText(t *testing.T) {
	model := &scriptedModel{responses: []string{"There are 2 users."}}
	got, err := New(model, Config{}).ExplainResult(context.Background(), "SELECT COUNT(*) FROM User", "{COUNT(*): 2}")
	if err != nil {
		t.Fatalf("ExplainResult() error = %v", err)
	}
	if got != "There are 2 users." {
		t.Fatalf("ExplainResult() = %q", got)
	}
	prompt := model.prompts[0]
	if prompt.Output != nil {
		t.Fatalf("Output = %#v, want nil", prompt.Output)
	}
	if prompt.User != "Query: SELECT COUNT(*) FROM User\nResult: {COUNT(*): 2}" {
		t.Fatalf("user prompt = %q", prompt.User)
	}
}

func TestRewriteQuestion(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"question":"Count rows in the User table"}`}}
	got, err := New(model, Config{}).RewriteQuestion(context.Background(), "users?")
	if err != nil {
		t.Fatalf("RewriteQuestion() error = %v", err)
	}
	if got != "Count rows in the User table" {
		t.Fatalf("RewriteQuestion() = %q", got)
	}
	if model.prompts[0].User != "Original Question: users?" {
		t.Fatalf("user prompt = %q", model.prompts[0].User)
	}
}

func TestFunnyResponseUsesFallbackTemperature(t *testing.T) {
	model := &scriptedModel{responses: []string{"Try a sandwich query."}}
	got, err := New(model, Config{Temperature: 0, FallbackTemperature: 0.7}).FunnyResponse(context.Background())
	if err != nil {
		t.Fatalf("FunnyResponse() error = %v", err)
	}
	if got != "Try a sandwich query." {
		t.Fatalf("FunnyResponse() = %q", got)
	}
	if model.prompts[0].Temperature != 0.7 {
		t.Fatalf("Temperature = %v", model.prompts[0].Temperature)
	}
}

func TestTransformersPropagateModelErrors(t *testing.T) {
	boom := errors.New("upstream unavailable")
	tr := New(&scriptedModel{err: boom}, Config{})
	ctx := context.Background()

	calls := map[string]func() error{
		"ClassifyRelevance": func() error { _, err := tr.ClassifyRelevance(ctx, "q", ""); return err },
		"GenerateSQL":       func() error { _, err := tr.GenerateSQL(ctx, "q", ""); return err },
		"ExplainResult":     func() error { _, err := tr.ExplainResult(ctx, "s", "r"); return err },
		"RewriteQuestion":   func() error { _, err := tr.RewriteQuestion(ctx, "q"); return err },
		"FunnyResponse":     func() error { _, err := tr.FunnyResponse(ctx); return err },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, boom) {
			t.Fatalf("%s() error = %v, want %v", name, err, boom)
		}
	}
}

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
	if got := stripMarkdownSQL("  SELECT 2  "); got != "SELECT 2" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}
