package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/duckmesh/sqlagent/internal/schema"
	"github.com/duckmesh/sqlagent/internal/store"
)

func TestSplitStatementsIgnoresSemicolonsInStrings(t *testing.T) {
	got := splitStatements("CREATE TABLE t (a TEXT);\nINSERT INTO t VALUES ('x;y');\n\n  ;")
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %#v", got)
	}
	if got[1] != "INSERT INTO t VALUES ('x;y')" {
		t.Fatalf("second statement = %q", got[1])
	}
}

func TestLoadScriptsSortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_seed.sql":   {Data: []byte("INSERT INTO t VALUES (1);")},
		"sql/000001_schema.sql": {Data: []byte("CREATE TABLE t (a INTEGER);")},
		"sql/README.md":         {Data: []byte("ignored")},
	}
	scripts, err := loadScripts(fsys)
	if err != nil {
		t.Fatalf("loadScripts() error = %v", err)
	}
	if len(scripts) != 2 || scripts[0].Version != 1 || scripts[1].Version != 2 {
		t.Fatalf("unexpected script order: %+v", scripts)
	}
}

func TestLoadScriptsRejectsDuplicateVersionsAndEmptyScripts(t *testing.T) {
	_, err := loadScripts(fstest.MapFS{
		"sql/000001_a.sql": {Data: []byte("SELECT 1;")},
		"sql/000001_b.sql": {Data: []byte("SELECT 2;")},
	})
	if err == nil || !strings.Contains(err.Error(), "share version") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}

	_, err = loadScripts(fstest.MapFS{"sql/000001_a.sql": {Data: []byte("  \n")}})
	if err == nil || !strings.Contains(err.Error(), "no statements") {
		t.Fatalf("expected empty script error, got %v", err)
	}
}

func TestApplyCreatesAndSeedsDatabase(t *testing.T) {
	ctx := context.Background()
	st := openMemoryStore(t)
	runner := NewRunner()

	for i := 0; i < 2; i++ {
		if _, err := runner.Apply(ctx, st.DB); err != nil {
			t.Fatalf("Apply() run %d error = %v", i+1, err)
		}
	}

	counts := map[string]int{
		"User":          2,
		"Product":       3,
		"Orders":        2,
		"OrderItem":     5,
		"ProductReview": 2,
		"Offer":         2,
	}
	for table, want := range counts {
		var got int
		if err := st.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Fatalf("%s has %d rows, want %d", table, got, want)
		}
	}

	introspector, err := schema.New(st.DB, store.DialectSQLite, "")
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	text, err := schema.Describe(ctx, introspector)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	for _, want := range []string{
		"Table: Offer\n",
		"- email: TEXT, NOT NULL\n",
		"- price: REAL, NOT NULL\n",
		"  ForeignKey: user_id -> User.id\n",
		"  ForeignKey: product_id -> Product.id\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("schema text missing %q:\n%s", want, text)
		}
	}
	if !strings.HasPrefix(text, "Table: Offer\n") {
		t.Fatalf("tables should be ordered by name:\n%s", text)
	}
}

func TestNeeded(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "shop.db")
	if err := os.WriteFile(existing, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	tests := []struct {
		name string
		dsn  string
		want bool
	}{
		{"memory", "sqlite://:memory:", true},
		{"missing file", "sqlite://" + filepath.Join(dir, "new.db"), true},
		{"existing file", "sqlite://" + existing, false},
		{"postgres", "postgres://user@localhost/shop", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := store.ParseDSN(tc.dsn)
			if err != nil {
				t.Fatalf("ParseDSN() error = %v", err)
			}
			got, err := Needed(loc)
			if err != nil {
				t.Fatalf("Needed() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Needed() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDumpPrintsRowsAndEmptyTables(t *testing.T) {
	ctx := context.Background()
	st := openMemoryStore(t)
	if _, err := NewRunner().Apply(ctx, st.DB); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := st.DB.ExecContext(ctx, "DELETE FROM ProductReview"); err != nil {
		t.Fatalf("DELETE error = %v", err)
	}

	introspector, err := schema.New(st.DB, store.DialectSQLite, "")
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	var out bytes.Buffer
	if err := Dump(ctx, st.DB, introspector, &out); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Tables in the database:\n",
		"\n- User\n",
		"   {id: 1, name: Alice, email: alice@example.com, address: 123 Apple St}\n",
		"\n- ProductReview\n  (No data)\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("dump missing %q:\n%s", want, text)
		}
	}
}

func openMemoryStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{DSN: "sqlite://:memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
