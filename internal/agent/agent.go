package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duckmesh/sqlagent/internal/executor"
	"github.com/duckmesh/sqlagent/internal/observability"
)

type Transformers interface {
	ClassifyRelevance(ctx context.Context, question, schema string) (string, error)
	GenerateSQL(ctx context.Context, question, schema string) (string, error)
	ExplainResult(ctx context.Context, sql, result string) (string, error)
	RewriteQuestion(ctx context.Context, question string) (string, error)
	FunnyResponse(ctx context.Context) (string, error)
}

type SQLExecutor interface {
	Execute(ctx context.Context, query string) (executor.Outcome, error)
}

type SchemaDescriber interface {
	Describe(ctx context.Context) (string, error)
}

// Recorder receives every run that reached a terminal node.
type Recorder interface {
	Record(ctx context.Context, state State) error
}

type Config struct {
	MaxAttempts int
	Logger      *slog.Logger
	Recorder    Recorder
}

type Agent struct {
	transformers Transformers
	executor     SQLExecutor
	schema       SchemaDescriber
	maxAttempts  int
	logger       *slog.Logger
	recorder     Recorder
}

func New(transformers Transformers, exec SQLExecutor, schema SchemaDescriber, cfg Config) (*Agent, error) {
	if transformers == nil {
		return nil, fmt.Errorf("transformers are required")
	}
	if exec == nil {
		return nil, fmt.Errorf("sql executor is required")
	}
	if schema == nil {
		return nil, fmt.Errorf("schema describer is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Agent{
		transformers: transformers,
		executor:     exec,
		schema:       schema,
		maxAttempts:  maxAttempts,
		logger:       logger,
		recorder:     cfg.Recorder,
	}, nil
}

// run carries what one question needs besides State.
type run struct {
	schema       string
	schemaLoaded bool
}

// Run answers one question. Business failures end in State.QueryResult; a
// returned error means a model, database or caller failure and names the
// node it happened in.
func (a *Agent) Run(ctx context.Context, question string) (State, error) {
	state := NewState(question)
	ctx = observability.ContextWithSessionID(ctx, state.SessionID)
	a.logger.InfoContext(ctx, "run started", observability.LogAttrs(ctx)...)

	r := &run{}
	node := StartNode
	for {
		if err := ctx.Err(); err != nil {
			return a.fail(ctx, state, node, err)
		}
		state.Visited = append(state.Visited, node)
		observability.IncrementNodeExecution(string(node))

		if err := a.step(ctx, r, node, &state); err != nil {
			return a.fail(ctx, state, node, err)
		}
		a.logger.DebugContext(ctx, "node finished",
			append(observability.LogAttrs(ctx), "node", string(node), "attempts", state.Attempts, "sql_error", state.SQLError)...)

		if node.Terminal() {
			break
		}
		node = NextWithLimit(node, state, a.maxAttempts)
	}

	state.FinishedAt = time.Now().UTC()
	outcome := state.Outcome()
	observability.ObserveRun(outcome, state.Attempts)
	a.logger.InfoContext(ctx, "run finished",
		append(observability.LogAttrs(ctx),
			"outcome", outcome,
			"attempts", state.Attempts,
			"duration_ms", state.FinishedAt.Sub(state.StartedAt).Milliseconds(),
		)...)

	if a.recorder != nil {
		if err := a.recorder.Record(ctx, state); err != nil {
			a.logger.WarnContext(ctx, "record run failed", append(observability.LogAttrs(ctx), "error", err.Error())...)
		}
	}
	return state, nil
}

func (a *Agent) fail(ctx context.Context, state State, node Node, err error) (State, error) {
	state.Failed = true
	state.FinishedAt = time.Now().UTC()
	observability.ObserveRun(OutcomeError, state.Attempts)
	a.logger.ErrorContext(ctx, "run failed",
		append(observability.LogAttrs(ctx), "node", string(node), "attempts", state.Attempts, "error", err.Error())...)
	return state, fmt.Errorf("%s: %w", node, err)
}

func (a *Agent) step(ctx context.Context, r *run, node Node, state *State) error {
	switch node {
	case NodeCheckRelevance:
		schema, err := a.loadSchema(ctx, r)
		if err != nil {
			return err
		}
		relevance, err := a.transformers.ClassifyRelevance(ctx, state.Question, schema)
		if err != nil {
			return err
		}
		state.Relevance = relevance
	case NodeConvertToSQL:
		schema, err := a.loadSchema(ctx, r)
		if err != nil {
			return err
		}
		sql, err := a.transformers.GenerateSQL(ctx, state.Question, schema)
		if err != nil {
			return err
		}
		state.SQLQuery = sql
	case NodeExecuteSQL:
		outcome, err := a.executor.Execute(ctx, state.SQLQuery)
		if err != nil {
			return err
		}
		state.QueryResult = outcome.Result
		state.QueryColumns = outcome.Columns
		state.QueryRows = outcome.Rows
		state.SQLError = outcome.SQLError
	case NodeRegenerateQuery:
		question, err := a.transformers.RewriteQuestion(ctx, state.Question)
		if err != nil {
			return err
		}
		state.Question = question
		state.Attempts++
	case NodeHumanAnswer:
		answer, err := a.transformers.ExplainResult(ctx, state.SQLQuery, state.QueryResult)
		if err != nil {
			return err
		}
		state.QueryResult = answer
	case NodeFunnyResponse:
		joke, err := a.transformers.FunnyResponse(ctx)
		if err != nil {
			return err
		}
		state.QueryResult = joke
	case NodeEndMaxIterations:
		state.QueryResult = MaxIterationsMessage
	default:
		return fmt.Errorf("unknown node %q", node)
	}
	return nil
}

func (a *Agent) loadSchema(ctx context.Context, r *run) (string, error) {
	if r.schemaLoaded {
		return r.schema, nil
	}
	schema, err := a.schema.Describe(ctx)
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	r.schema = schema
	r.schemaLoaded = true
	return schema, nil
}
