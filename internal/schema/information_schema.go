package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	infoTablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`

	infoColumnsQuery = `
SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	infoPrimaryKeysQuery = `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = tc.constraint_schema
 AND kcu.constraint_name = tc.constraint_name
 AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2`

	infoForeignKeysQuery = `
SELECT kcu.column_name, ref.table_name, ref.column_name
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = rc.constraint_schema
 AND kcu.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage ref
  ON ref.constraint_schema = rc.unique_constraint_schema
 AND ref.constraint_name = rc.unique_constraint_name
 AND ref.ordinal_position = kcu.position_in_unique_constraint
WHERE kcu.table_schema = $1 AND kcu.table_name = $2
ORDER BY kcu.constraint_name, kcu.ordinal_position`
)

// InformationSchemaIntrospector serves PostgreSQL and DuckDB.
type InformationSchemaIntrospector struct {
	db     *sql.DB
	schema string
}

func (s *InformationSchemaIntrospector) Tables(ctx context.Context) ([]Table, error) {
	names, err := queryStrings(ctx, s.db, infoTablesQuery, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in schema %q: %w", s.schema, err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		primaryKeys, err := queryStrings(ctx, s.db, infoPrimaryKeysQuery, s.schema, name)
		if err != nil {
			return nil, fmt.Errorf("query primary key of %q: %w", name, err)
		}
		columns, err := s.columns(ctx, name, primaryKeys)
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

func (s *InformationSchemaIntrospector) columns(ctx context.Context, table string, primaryKeys []string) ([]Column, error) {
	pkSet := make(map[string]struct{}, len(primaryKeys))
	for _, name := range primaryKeys {
		pkSet[name] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, infoColumnsQuery, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var (
			name, dataType, isNullable string
			defaultValue               sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &isNullable, &defaultValue); err != nil {
			return nil, fmt.Errorf("scan column of %q: %w", table, err)
		}
		_, isPK := pkSet[name]
		columns = append(columns, Column{
			Name:       name,
			Type:       strings.ToUpper(dataType),
			Nullable:   strings.EqualFold(isNullable, "YES"),
			Default:    nullableString(defaultValue),
			PrimaryKey: isPK,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %q: %w", table, err)
	}
	return columns, nil
}

func (s *InformationSchemaIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx, infoForeignKeysQuery, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []ForeignKey
	for rows.Next() {
		var key ForeignKey
		if err := rows.Scan(&key.Column, &key.ReferencedTable, &key.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key of %q: %w", table, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys of %q: %w", table, err)
	}
	return keys, nil
}
