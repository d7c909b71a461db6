package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/duckmesh/sqlagent/internal/store"
)

type Column struct {
	Name       string
	Type       string
	Nullable   bool
	Default    *string
	PrimaryKey bool
}

type ForeignKey struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Introspector lists tables in a stable order: by name, columns in
// declaration order.
type Introspector interface {
	Tables(ctx context.Context) ([]Table, error)
}

func New(db *sql.DB, dialect store.Dialect, schemaName string) (Introspector, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	switch dialect {
	case store.DialectSQLite:
		return &SQLiteIntrospector{db: db}, nil
	case store.DialectPostgres:
		return &InformationSchemaIntrospector{db: db, schema: firstNonEmpty(schemaName, "public")}, nil
	case store.DialectDuckDB:
		return &InformationSchemaIntrospector{db: db, schema: firstNonEmpty(schemaName, "main")}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// Describe renders every table as prompt context.
func Describe(ctx context.Context, introspector Introspector) (string, error) {
	tables, err := introspector.Tables(ctx)
	if err != nil {
		return "", err
	}
	return Render(tables), nil
}

// Render formats tables as
//
//	Table: Orders
//	- id: INTEGER, NULLABLE, Primary Key
//	- user_id: INTEGER, NULLABLE
//	  ForeignKey: user_id -> User.id
//
// with one blank line between tables.
func Render(tables []Table) string {
	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		var sb strings.Builder
		sb.WriteString("Table: " + table.Name + "\n")
		for _, column := range table.Columns {
			parts := make([]string, 0, 4)
			if column.Type != "" {
				parts = append(parts, column.Type)
			}
			if column.Nullable {
				parts = append(parts, "NULLABLE")
			} else {
				parts = append(parts, "NOT NULL")
			}
			if column.Default != nil {
				parts = append(parts, "DEFAULT "+*column.Default)
			}
			if column.PrimaryKey {
				parts = append(parts, "Primary Key")
			}
			sb.WriteString("- " + column.Name + ": " + strings.Join(parts, ", ") + "\n")
		}
		for _, fk := range table.ForeignKeys {
			sb.WriteString(fmt.Sprintf("  ForeignKey: %s -> %s.%s\n", fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n")
}

// Describer binds an Introspector to Describe.
type Describer struct {
	introspector Introspector
}

func NewDescriber(introspector Introspector) *Describer {
	return &Describer{introspector: introspector}
}

func (d *Describer) Describe(ctx context.Context) (string, error) {
	return Describe(ctx, d.introspector)
}

// TableNames is the name-only view used by the table dump.
func TableNames(ctx context.Context, introspector Introspector) ([]string, error) {
	tables, err := introspector.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	return names, nil
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}
