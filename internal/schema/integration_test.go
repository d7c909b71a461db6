//go:build integration

package schema

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/duckmesh/sqlagent/internal/store"
)

func TestInformationSchemaAgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SQLAGENT_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("SQLAGENT_TEST_POSTGRES_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer func() { _ = st.Close() }()

	statements := []string{
		`DROP SCHEMA IF EXISTS sqlagent_it CASCADE`,
		`CREATE SCHEMA sqlagent_it`,
		`CREATE TABLE sqlagent_it.customer (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE sqlagent_it.purchase (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES sqlagent_it.customer(id),
			total NUMERIC DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := st.DB.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	t.Cleanup(func() {
		_, _ = st.DB.ExecContext(context.Background(), `DROP SCHEMA IF EXISTS sqlagent_it CASCADE`)
	})

	introspector, err := New(st.DB, st.Dialect(), "sqlagent_it")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	text, err := Describe(ctx, introspector)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	for _, want := range []string{
		"Table: customer\n- id: INTEGER, NOT NULL, Primary Key\n- name: TEXT, NOT NULL\n",
		"Table: purchase\n",
		"- total: NUMERIC, NULLABLE, DEFAULT 0\n",
		"  ForeignKey: customer_id -> customer.id\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("Describe() missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "Table: customer") > strings.Index(text, "Table: purchase") {
		t.Fatalf("tables not in name order:\n%s", text)
	}
}
