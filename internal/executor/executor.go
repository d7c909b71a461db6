package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/duckmesh/sqlagent/internal/observability"
)

const (
	NoResultsMessage = "No results found."
	SuccessMessage   = "Query executed successfully."
)

const (
	KindSelect = "select"
	KindWrite  = "write"
)

// Row maps column names to values. Use Outcome.Columns for ordering.
type Row map[string]any

// Outcome is the business result of one statement. Statement failures are
// reported here with SQLError set; they are not Go errors.
type Outcome struct {
	Kind     string
	Result   string
	Columns  []string
	Rows     []Row
	SQLError bool
}

// Beginner is satisfied by *sql.DB.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type Executor struct {
	db      Beginner
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Executor)

func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) { e.timeout = timeout }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(db Beginner, opts ...Option) *Executor {
	e := &Executor{db: db, logger: observability.DiscardLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsSelect reports whether the statement is read-only by the leading keyword
// rule. WITH and other read forms count as writes.
func IsSelect(query string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(query)), "select")
}

// Execute runs query in its own transaction. A non-nil error means the
// database could not be reached or the caller gave up.
func (e *Executor) Execute(ctx context.Context, query string) (Outcome, error) {
	if e == nil || e.db == nil {
		return Outcome{}, fmt.Errorf("executor is not configured")
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	kind := KindWrite
	if IsSelect(query) {
		kind = KindSelect
	}

	stmtCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		stmtCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	tx, err := e.db.BeginTx(stmtCtx, nil)
	if err != nil {
		observability.ObserveSQLExecution(kind, true, time.Since(start))
		return Outcome{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var outcome Outcome
	if kind == KindSelect {
		outcome, err = runSelect(stmtCtx, tx, query)
	} else {
		outcome, err = runWrite(stmtCtx, tx, query)
	}
	elapsed := time.Since(start)

	if err != nil {
		observability.ObserveSQLExecution(kind, true, elapsed)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		e.logger.DebugContext(ctx, "sql execution failed",
			append(observability.LogAttrs(ctx), "kind", kind, "error", err.Error())...)
		return Outcome{Kind: kind, Result: err.Error(), SQLError: true}, nil
	}

	observability.ObserveSQLExecution(kind, false, elapsed)
	e.logger.DebugContext(ctx, "sql executed",
		append(observability.LogAttrs(ctx), "kind", kind, "rows", len(outcome.Rows), "duration_ms", elapsed.Milliseconds())...)
	return outcome, nil
}

func runSelect(ctx context.Context, tx *sql.Tx, query string) (Outcome, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Outcome{}, err
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return Outcome{}, err
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Kind: KindSelect, Columns: columns, Rows: result}
	if len(result) == 0 {
		outcome.Result = NoResultsMessage
		return outcome, nil
	}
	lines := make([]string, 0, len(result))
	for _, row := range result {
		lines = append(lines, FormatRow(columns, row))
	}
	outcome.Result = strings.Join(lines, "\n")
	return outcome, nil
}

func runWrite(ctx context.Context, tx *sql.Tx, query string) (Outcome, error) {
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindWrite, Result: SuccessMessage}, nil
}

// FormatRow renders one row as {col: value, ...} in column order.
func FormatRow(columns []string, row Row) string {
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, column+": "+FormatValue(row[column]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// JSONRows returns a copy of rows in which every value encodes as JSON.
// Non-finite floats and other unencodable values become their FormatValue text.
func JSONRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		safe := make(Row, len(row))
		for column, value := range row {
			safe[column] = jsonValue(value)
		}
		out[i] = safe
	}
	return out
}

func jsonValue(value any) any {
	switch v := value.(type) {
	case nil, string, bool, int, int32, int64, time.Time:
		return v
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return FormatValue(v)
		}
		return v
	case float32:
		if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
			return FormatValue(v)
		}
		return v
	}
	if _, err := json.Marshal(value); err != nil {
		return FormatValue(value)
	}
	return value
}

func normalizeValue(value any) any {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}
