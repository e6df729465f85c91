// Package store persists modules, languages, external identifiers, record
// values and code translations in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/minios-linux/transkit/store/migrations"
)

// ErrNotFound is returned when an external identifier does not resolve.
var ErrNotFound = errors.New("not found")

// Dialects understood by Open.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "pgx"
)

// Options tune a Store.
type Options struct {
	// SourceCacheSize bounds the GetSource memo. Zero uses 4096 entries.
	SourceCacheSize int
	Log             logrus.FieldLogger
}

// Store is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect string
	sq      sq.StatementBuilderType
	sources *lru.Cache[sourceKey, string]
	log     logrus.FieldLogger
}

// ParseDSN returns the database/sql driver, data source and dialect for a
// DSN. postgres:// and postgresql:// URLs use pgx, anything else is a SQLite
// path, optionally prefixed with sqlite://.
func ParseDSN(dsn string) (driver, source, dialect string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, DialectPostgres
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), DialectSQLite
	}
	return "sqlite", dsn, DialectSQLite
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	driver, source, dialect := ParseDSN(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// Every connection to ":memory:" is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s database: %w", driver, err)
	}
	s, err := New(db, dialect, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB, dialect string, opts Options) (*Store, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.SourceCacheSize <= 0 {
		opts.SourceCacheSize = 4096
	}
	sources, err := lru.New[sourceKey, string](opts.SourceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("source cache: %w", err)
	}
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &Store{db: db, dialect: dialect, sq: builder, sources: sources, log: opts.Log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// goose keeps its configuration in package state.
var gooseMu sync.Mutex

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(s.log.WithField("component", "migrations"))
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q DBTX, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}
