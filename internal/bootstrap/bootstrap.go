package bootstrap

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/duckmesh/sqlagent/internal/store"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

var scriptNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.sql$`)

// Runner creates and seeds the sample e-commerce database.
type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type script struct {
	Version    int64
	Name       string
	Statements []string
}

// Needed reports whether the database at loc has to be created. Only
// SQLite stores are bootstrapped; an existing file is left alone.
func Needed(loc store.Location) (bool, error) {
	if loc.Dialect != store.DialectSQLite {
		return false, nil
	}
	if loc.InMemory() {
		return true, nil
	}
	_, err := os.Stat(loc.Path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("stat sqlite file %q: %w", loc.Path, err)
}

// Apply drops, recreates and seeds every table in one transaction. It
// returns the number of statements executed.
func (r *Runner) Apply(ctx context.Context, db *sql.DB) (int, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	count := 0
	for _, item := range scripts {
		for _, stmt := range item.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return 0, fmt.Errorf("apply %s: %w", item.Name, err)
			}
			count++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bootstrap: %w", err)
	}
	return count, nil
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read bootstrap dir: %w", err)
	}

	var scripts []script
	seen := map[int64]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := scriptNamePattern.FindStringSubmatch(base)
		if len(matches) != 2 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse script version for %q: %w", base, err)
		}
		if other, ok := seen[version]; ok {
			return nil, fmt.Errorf("scripts %q and %q share version %d", other, base, version)
		}
		seen[version] = base

		raw, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read script %q: %w", entry.Name(), err)
		}
		statements := splitStatements(string(raw))
		if len(statements) == 0 {
			return nil, fmt.Errorf("script %q has no statements", base)
		}
		scripts = append(scripts, script{Version: version, Name: base, Statements: statements})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// splitStatements splits a script on semicolons outside string literals.
func splitStatements(raw string) []string {
	var (
		statements []string
		current    strings.Builder
		inString   bool
	)
	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}
	for _, r := range raw {
		switch {
		case r == '\'':
			inString = !inString
			current.WriteRune(r)
		case r == ';' && !inString:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return statements
}
