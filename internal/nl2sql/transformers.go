package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/duckmesh/sqlagent/internal/llm"
)

const (
	RelevanceRelevant    = "relevant"
	RelevanceNotRelevant = "not_relevant"
)

type Config struct {
	// Dialect is mentioned to the model when generating SQL, e.g. "SQLite".
	Dialect             string
	Temperature         float64
	FallbackTemperature float64
}

// Transformers are the model-backed steps of a run. They hold no state
// between calls.
type Transformers struct {
	model               llm.Model
	dialect             string
	temperature         float64
	fallbackTemperature float64
}

func New(model llm.Model, cfg Config) *Transformers {
	return &Transformers{
		model:               model,
		dialect:             strings.TrimSpace(cfg.Dialect),
		temperature:         cfg.Temperature,
		fallbackTemperature: cfg.FallbackTemperature,
	}
}

// ClassifyRelevance labels the question against the schema. The label is
// returned as the model wrote it.
func (t *Transformers) ClassifyRelevance(ctx context.Context, question, schema string) (string, error) {
	return llm.InvokeField(ctx, t.model, llm.Prompt{
		System: fmt.Sprintf(
			"You are an assistant that checks if a user question is related to this database schema:\n%s\nRespond only with '%s' or '%s'.",
			schema, RelevanceRelevant, RelevanceNotRelevant,
		),
		User:        "Question: " + question,
		Temperature: t.temperature,
		Output: &llm.OutputField{
			Name:        "relevance",
			Description: fmt.Sprintf("Either '%s' or '%s'.", RelevanceRelevant, RelevanceNotRelevant),
		},
	})
}

// GenerateSQL translates the question into a single statement. The SQL is
// not validated.
func (t *Transformers) GenerateSQL(ctx context.Context, question, schema string) (string, error) {
	system := fmt.Sprintf("Convert natural language question to SQL based on this schema:\n%s\nOnly return SQL.", schema)
	if t.dialect != "" {
		system += fmt.Sprintf(" The database is %s.", t.dialect)
	}
	sql, err := llm.InvokeField(ctx, t.model, llm.Prompt{
		System:      system,
		User:        "Question: " + question,
		Temperature: t.temperature,
		Output: &llm.OutputField{
			Name:        "sql_query",
			Description: "The SQL query corresponding to the user's natural language question.",
		},
	})
	if err != nil {
		return "", err
	}
	return stripMarkdownSQL(sql), nil
}

func (t *Transformers) ExplainResult(ctx context.Context, sql, result string) (string, error) {
	return t.model.Invoke(ctx, llm.Prompt{
		System:      "Convert SQL query result to natural language explanation.",
		User:        fmt.Sprintf("Query: %s\nResult: %s", sql, result),
		Temperature: t.temperature,
	})
}

func (t *Transformers) RewriteQuestion(ctx context.Context, question string) (string, error) {
	return llm.InvokeField(ctx, t.model, llm.Prompt{
		System:      "Rewrite the question for better SQL generation.",
		User:        "Original Question: " + question,
		Temperature: t.temperature,
		Output: &llm.OutputField{
			Name:        "question",
			Description: "The rewritten question.",
		},
	})
}

func (t *Transformers) FunnyResponse(ctx context.Context) (string, error) {
	return t.model.Invoke(ctx, llm.Prompt{
		System:      "Be a witty assistant.",
		User:        "That question isn't about a database, but maybe you're hungry?",
		Temperature: t.fallbackTemperature,
	})
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
