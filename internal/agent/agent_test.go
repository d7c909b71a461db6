package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/duckmesh/sqlagent/internal/executor"
)

type fakeTransformers struct {
	relevance     string
	sqls          []string
	rewrites      []string
	answer        string
	joke          string
	generateErr   error
	explainErr    error
	classifyCalls int
	generateCalls []string
	rewriteCalls  []string
	explainCalls  []string
	funnyCalls    int
}

func (f *fakeTransformers) ClassifyRelevance(_ context.Context, _ string, _ string) (string, error) {
	f.classifyCalls++
	return f.relevance, nil
}

func (f *fakeTransformers) GenerateSQL(_ context.Context, question, _ string) (string, error) {
	f.generateCalls = append(f.generateCalls, question)
	if f.generateErr != nil {
		return "", f.generateErr
	}
	if len(f.sqls) == 0 {
		return "SELECT 1", nil
	}
	next := f.sqls[0]
	if len(f.sqls) > 1 {
		f.sqls = f.sqls[1:]
	}
	return next, nil
}

func (f *fakeTransformers) ExplainResult(_ context.Context, sql, result string) (string, error) {
	f.explainCalls = append(f.explainCalls, sql+" => "+result)
	if f.explainErr != nil {
		return "", f.explainErr
	}
	return f.answer, nil
}

func (f *fakeTransformers) RewriteQuestion(_ context.Context, question string) (string, error) {
	f.rewriteCalls = append(f.rewriteCalls, question)
	if len(f.rewrites) == 0 {
		return question + " (rephrased)", nil
	}
	next := f.rewrites[0]
	f.rewrites = f.rewrites[1:]
	return next, nil
}

func (f *fakeTransformers) FunnyResponse(context.Context) (string, error) {
	f.funnyCalls++
	return f.joke, nil
}

type fakeExecutor struct {
	outcomes []executor.Outcome
	err      error
	queries  []string
}

func (f *fakeExecutor) Execute(_ context.Context, query string) (executor.Outcome, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return executor.Outcome{}, f.err
	}
	next := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return next, nil
}

type fakeSchema struct {
	text  string
	err   error
	calls int
}

func (f *fakeSchema) Describe(context.Context) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeRecorder struct {
	states []State
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, state State) error {
	f.states = append(f.states, state)
	return f.err
}

func newTestAgent(t *testing.T, tr Transformers, exec SQLExecutor, schema SchemaDescriber, cfg Config) *Agent {
	t.Helper()
	a, err := New(tr, exec, schema, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func sqlFailure(text string) executor.Outcome {
	return executor.Outcome{Kind: executor.KindSelect, Result: text, SQLError: true}
}

func TestRunAnswersRelevantQuestion(t *testing.T) {
	tr := &fakeTransformers{
		relevance: "relevant",
		sqls:      []string{"SELECT COUNT(*) FROM User"},
		answer:    "There are 2 users.",
	}
	exec := &fakeExecutor{outcomes: []executor.Outcome{{
		Kind:    executor.KindSelect,
		Result:  "{COUNT(*): 2}",
		Columns: []string{"COUNT(*)"},
		Rows:    []executor.Row{{"COUNT(*)": int64(2)}},
	}}}
	schema := &fakeSchema{text: "Table: User\n"}
	a := newTestAgent(t, tr, exec, schema, Config{})

	state, err := a.Run(context.Background(), "How many users are there?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.QueryResult != "There are 2 users." {
		t.Fatalf("QueryResult = %q", state.QueryResult)
	}
	if state.SQLQuery != "SELECT COUNT(*) FROM User" || state.Attempts != 0 || state.SQLError {
		t.Fatalf("state = %#v", state)
	}
	if len(state.QueryRows) != 1 || state.QueryRows[0]["COUNT(*)"] != int64(2) {
		t.Fatalf("QueryRows = %#v", state.QueryRows)
	}
	want := []Node{NodeCheckRelevance, NodeConvertToSQL, NodeExecuteSQL, NodeHumanAnswer}
	if !reflect.DeepEqual(state.Visited, want) {
		t.Fatalf("Visited = %v, want %v", state.Visited, want)
	}
	if tr.explainCalls[0] != "SELECT COUNT(*) FROM User => {COUNT(*): 2}" {
		t.Fatalf("explain input = %q", tr.explainCalls[0])
	}
	if schema.calls != 1 {
		t.Fatalf("schema described %d times, want 1", schema.calls)
	}
	if state.Outcome() != OutcomeAnswered || state.SessionID == "" || state.FinishedAt.IsZero() {
		t.Fatalf("state = %#v", state)
	}
}

func TestRunNotRelevantSkipsExecution(t *testing.T) {
	tr := &fakeTransformers{relevance: "not_relevant", joke: "Maybe grab a snack?"}
	exec := &fakeExecutor{}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "What's the weather?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.QueryResult != "Maybe grab a snack?" {
		t.Fatalf("QueryResult = %q", state.QueryResult)
	}
	if len(exec.queries) != 0 || len(tr.generateCalls) != 0 {
		t.Fatalf("unexpected execution: queries=%v generate=%v", exec.queries, tr.generateCalls)
	}
	if state.SQLQuery != "" || state.Outcome() != OutcomeNotRelevant {
		t.Fatalf("state = %#v", state)
	}
}

func TestRunRelevanceIsCaseInsensitive(t *testing.T) {
	tr := &fakeTransformers{relevance: "RELEVANT", answer: "ok"}
	exec := &fakeExecutor{outcomes: []executor.Outcome{{Result: "{x: 1}"}}}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Outcome() != OutcomeAnswered {
		t.Fatalf("Visited = %v", state.Visited)
	}
}

func TestRunPaddedRelevanceLabelFallsBack(t *testing.T) {
	tr := &fakeTransformers{relevance: " relevant ", joke: "ha"}
	exec := &fakeExecutor{}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Outcome() != OutcomeNotRelevant || len(exec.queries) != 0 {
		t.Fatalf("Visited = %v, queries = %v", state.Visited, exec.queries)
	}
}

func TestRunUnknownRelevanceLabelFallsBack(t *testing.T) {
	tr := &fakeTransformers{relevance: "maybe", joke: "ha"}
	a := newTestAgent(t, tr, &fakeExecutor{}, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.funnyCalls != 1 || state.QueryResult != "ha" {
		t.Fatalf("state = %#v", state)
	}
}

func TestRunRetriesOnceThenAnswers(t *testing.T) {
	tr := &fakeTransformers{
		relevance: "relevant",
		sqls:      []string{"SELEC * FROM User", "SELECT * FROM User"},
		rewrites:  []string{"List every user"},
		answer:    "Alice and Bob.",
	}
	exec := &fakeExecutor{outcomes: []executor.Outcome{
		sqlFailure("near \"SELEC\": syntax error"),
		{Kind: executor.KindSelect, Result: "{name: Alice}\n{name: Bob}"},
	}}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "users?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", state.Attempts)
	}
	if state.Question != "List every user" {
		t.Fatalf("Question = %q", state.Question)
	}
	if !reflect.DeepEqual(tr.generateCalls, []string{"users?", "List every user"}) {
		t.Fatalf("generate calls = %v", tr.generateCalls)
	}
	if state.QueryResult != "Alice and Bob." {
		t.Fatalf("QueryResult = %q", state.QueryResult)
	}
}

func TestRunStopsAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransformers{relevance: "relevant", sqls: []string{"SELECT nope"}}
	exec := &fakeExecutor{outcomes: []executor.Outcome{sqlFailure("no such column: nope")}}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.QueryResult != MaxIterationsMessage {
		t.Fatalf("QueryResult = %q", state.QueryResult)
	}
	if state.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", state.Attempts)
	}
	if len(exec.queries) != 4 {
		t.Fatalf("executions = %d, want 4", len(exec.queries))
	}
	if len(tr.rewriteCalls) != 3 {
		t.Fatalf("rewrites = %d", len(tr.rewriteCalls))
	}
	if last := state.Visited[len(state.Visited)-1]; last != NodeEndMaxIterations {
		t.Fatalf("last node = %s", last)
	}
	if state.Outcome() != OutcomeMaxIterations {
		t.Fatalf("Outcome() = %q", state.Outcome())
	}
}

func TestRunHonorsConfiguredMaxAttempts(t *testing.T) {
	tr := &fakeTransformers{relevance: "relevant"}
	exec := &fakeExecutor{outcomes: []executor.Outcome{sqlFailure("boom")}}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{MaxAttempts: 1})

	state, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.Attempts != 1 || len(exec.queries) != 2 {
		t.Fatalf("attempts=%d executions=%d", state.Attempts, len(exec.queries))
	}
}

func TestRunPropagatesTransformerError(t *testing.T) {
	boom := errors.New("model unavailable")
	tr := &fakeTransformers{relevance: "relevant", generateErr: boom}
	exec := &fakeExecutor{}
	recorder := &fakeRecorder{}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{Recorder: recorder})

	state, err := a.Run(context.Background(), "q")
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if !strings.HasPrefix(err.Error(), string(NodeConvertToSQL)+":") {
		t.Fatalf("error %q should name the node", err)
	}
	if len(exec.queries) != 0 {
		t.Fatalf("executor should not run")
	}
	if len(recorder.states) != 0 {
		t.Fatalf("failed runs should not be recorded")
	}
	if state.Outcome() != OutcomeError {
		t.Fatalf("Outcome() = %q", state.Outcome())
	}
}

func TestRunFailureInTerminalNodeReportsError(t *testing.T) {
	boom := errors.New("model timeout")
	tr := &fakeTransformers{relevance: "relevant", explainErr: boom}
	exec := &fakeExecutor{outcomes: []executor.Outcome{{Result: "{count: 2}"}}}
	a := newTestAgent(t, tr, exec, &fakeSchema{}, Config{})

	state, err := a.Run(context.Background(), "q")
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if !strings.HasPrefix(err.Error(), string(NodeHumanAnswer)+":") {
		t.Fatalf("error %q should name the node", err)
	}
	if last := state.Visited[len(state.Visited)-1]; last != NodeHumanAnswer {
		t.Fatalf("Visited = %v", state.Visited)
	}
	if state.Outcome() != OutcomeError {
		t.Fatalf("Outcome() = %q, want %q", state.Outcome(), OutcomeError)
	}
}

func TestRunPropagatesExecutorInfrastructureError(t *testing.T) {
	boom := errors.New("begin transaction: connection refused")
	tr := &fakeTransformers{relevance: "relevant"}
	a := newTestAgent(t, tr, &fakeExecutor{err: boom}, &fakeSchema{}, Config{})

	if _, err := a.Run(context.Background(), "q"); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunPropagatesSchemaError(t *testing.T) {
	boom := errors.New("database is closed")
	a := newTestAgent(t, &fakeTransformers{}, &fakeExecutor{}, &fakeSchema{err: boom}, Config{})

	_, err := a.Run(context.Background(), "q")
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), string(NodeCheckRelevance)) {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	tr := &fakeTransformers{relevance: "relevant"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newTestAgent(t, tr, &fakeExecutor{}, &fakeSchema{}, Config{})
	if _, err := a.Run(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.classifyCalls != 0 {
		t.Fatalf("no node should run after cancellation")
	}
}

func TestRunRecordsFinishedRuns(t *testing.T) {
	tr := &fakeTransformers{relevance: "not_relevant", joke: "ha"}
	recorder := &fakeRecorder{err: errors.New("bucket missing")}
	a := newTestAgent(t, tr, &fakeExecutor{}, &fakeSchema{}, Config{Recorder: recorder})

	state, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run() error = %v, recorder failures must not fail the run", err)
	}
	if len(recorder.states) != 1 || recorder.states[0].SessionID != state.SessionID {
		t.Fatalf("recorded = %#v", recorder.states)
	}
}

func TestRunUsesFreshStatePerQuestion(t *testing.T) {
	tr := &fakeTransformers{relevance: "not_relevant", joke: "ha"}
	a := newTestAgent(t, tr, &fakeExecutor{}, &fakeSchema{}, Config{})

	first, _ := a.Run(context.Background(), "one")
	second, _ := a.Run(context.Background(), "two")
	if first.SessionID == second.SessionID {
		t.Fatalf("session ids should differ")
	}
	if len(second.Visited) != 2 || second.Question != "two" {
		t.Fatalf("second state = %#v", second)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	if _, err := New(nil, &fakeExecutor{}, &fakeSchema{}, Config{}); err == nil {
		t.Fatalf("expected transformers error")
	}
	if _, err := New(&fakeTransformers{}, nil, &fakeSchema{}, Config{}); err == nil {
		t.Fatalf("expected executor error")
	}
	if _, err := New(&fakeTransformers{}, &fakeExecutor{}, nil, Config{}); err == nil {
		t.Fatalf("expected schema error")
	}
}
