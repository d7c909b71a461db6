// Package query runs read-only SQL over archived session files.
package query

import (
	"context"
	"time"

	"github.com/duckmesh/sqlagent/internal/storage"
)

// SessionsView is the name archived sessions are exposed under.
const SessionsView = "sessions"

// SummarySQL aggregates one set of archived sessions by outcome.
const SummarySQL = `SELECT
    outcome,
    COUNT(*) AS runs,
    ROUND(AVG(attempts), 2) AS avg_attempts,
    ROUND(AVG(finished_at_unix_ms - started_at_unix_ms)) AS avg_duration_ms
FROM sessions
GROUP BY outcome
ORDER BY runs DESC, outcome`

type Request struct {
	SQL      string
	RowLimit int
	Objects  []storage.ObjectInfo
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
