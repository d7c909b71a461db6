package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

const memoryPath = ":memory:"

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Location is a parsed store DSN.
type Location struct {
	Dialect Dialect
	Driver  string
	// Source is what gets handed to sql.Open.
	Source string
	// Path is the database file for embedded dialects, empty otherwise.
	Path string
}

func (l Location) InMemory() bool {
	return l.Path == memoryPath
}

// Store owns the connection pool for the question-answering database. It is
// created by the caller and passed to every component that needs it.
type Store struct {
	DB       *sql.DB
	Location Location
}

func ParseDSN(dsn string) (Location, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return Location{}, fmt.Errorf("store dsn is required")
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return Location{}, fmt.Errorf("store dsn %q has no scheme", dsn)
	}
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		if rest == "" {
			return Location{}, fmt.Errorf("sqlite dsn needs a file path or :memory:")
		}
		path, _, _ := strings.Cut(rest, "?")
		return Location{Dialect: DialectSQLite, Driver: "sqlite", Source: rest, Path: path}, nil
	case "duckdb":
		if rest == "" || rest == memoryPath {
			return Location{Dialect: DialectDuckDB, Driver: "duckdb", Source: "", Path: memoryPath}, nil
		}
		path, _, _ := strings.Cut(rest, "?")
		return Location{Dialect: DialectDuckDB, Driver: "duckdb", Source: rest, Path: path}, nil
	case "postgres", "postgresql":
		return Location{Dialect: DialectPostgres, Driver: "pgx", Source: dsn}, nil
	default:
		return Location{}, fmt.Errorf("unsupported store scheme %q", scheme)
	}
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	location, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(location.Driver, location.Source)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", location.Dialect, err)
	}

	// Every connection to an in-memory database sees its own empty database.
	if location.InMemory() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", location.Dialect, err)
	}

	return &Store{DB: db, Location: location}, nil
}

func (s *Store) Dialect() Dialect {
	return s.Location.Dialect
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
