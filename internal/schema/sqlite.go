package schema

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	sqliteTablesQuery      = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	sqliteColumnsQuery     = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`
	sqliteForeignKeysQuery = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`
)

type SQLiteIntrospector struct {
	db *sql.DB
}

func (s *SQLiteIntrospector) Tables(ctx context.Context) ([]Table, error) {
	names, err := queryStrings(ctx, s.db, sqliteTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		columns, err := s.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		foreignKeys, err := s.foreignKeys(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: columns, ForeignKeys: foreignKeys})
	}
	return tables, nil
}

func (s *SQLiteIntrospector) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, sqliteColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var (
			name, declaredType string
			notNull, pk        int64
			defaultValue       sql.NullString
		)
		if err := rows.Scan(&name, &declaredType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %q: %w", table, err)
		}
		columns = append(columns, Column{
			Name:       name,
			Type:       declaredType,
			Nullable:   notNull == 0,
			Default:    nullableString(defaultValue),
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %q: %w", table, err)
	}
	return columns, nil
}

func (s *SQLiteIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx, sqliteForeignKeysQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []ForeignKey
	for rows.Next() {
		var (
			from, refTable string
			refColumn      sql.NullString
		)
		if err := rows.Scan(&from, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key of %q: %w", table, err)
		}
		keys = append(keys, ForeignKey{Column: from, ReferencedTable: refTable, ReferencedColumn: refColumn.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys of %q: %w", table, err)
	}
	return keys, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
