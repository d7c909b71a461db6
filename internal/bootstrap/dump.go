package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/duckmesh/sqlagent/internal/executor"
	"github.com/duckmesh/sqlagent/internal/schema"
)

// Dump writes every row of every table to w.
func Dump(ctx context.Context, db *sql.DB, introspector schema.Introspector, w io.Writer) error {
	tables, err := schema.TableNames(ctx, introspector)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "Tables in the database:"); err != nil {
		return err
	}
	for _, table := range tables {
		if _, err := fmt.Fprintf(w, "\n- %s\n", table); err != nil {
			return err
		}
		lines, err := tableLines(ctx, db, table)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			lines = []string{"  (No data)"}
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func tableLines(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+schema.QuoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns of %q: %w", table, err)
	}
	var lines []string
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row of %q: %w", table, err)
		}
		row := make(executor.Row, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
				continue
			}
			row[column] = values[i]
		}
		lines = append(lines, "   "+executor.FormatRow(columns, row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %q: %w", table, err)
	}
	return lines, nil
}
