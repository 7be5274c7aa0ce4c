// Package store loads cleaned output files into PostgreSQL.
//
// The target table is replaced on every load: it is created when missing,
// truncated, and refilled with COPY in one transaction, so readers see either
// the previous rows or the new ones. Every column is text; the file header
// names the columns.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Separator is the field separator of the files this package reads.
const Separator = ';'

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL      string
	MaxConns int
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: ping: %w", err)
	}

	slog.Info("connected to database", "name", poolConfig.ConnConfig.Database)
	return pool, nil
}

// PostgresLoader replaces the contents of one table with a CSV file.
type PostgresLoader struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// NewPostgresLoader returns a loader for table, which may be schema-qualified.
func NewPostgresLoader(pool *pgxpool.Pool, table string) *PostgresLoader {
	return &PostgresLoader{pool: pool, table: ParseTableName(table)}
}

// ParseTableName splits "schema.table" into an identifier.
func ParseTableName(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

// Load copies csvPath into the table and returns the number of rows copied.
// Empty fields are loaded as NULL.
func (l *PostgresLoader) Load(ctx context.Context, csvPath string) (int64, error) {
	start := time.Now()
	table := l.table.Sanitize()

	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	defer f.Close()

	src, err := NewCSVSource(f)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("connect to database: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, CreateTableSQL(l.table, src.Columns())); err != nil {
		return 0, fmt.Errorf("copy into %s: create table: %w", table, err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+table); err != nil {
		return 0, fmt.Errorf("copy into %s: truncate: %w", table, err)
	}

	n, err := tx.CopyFrom(ctx, l.table, src.Columns(), src)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("copy into %s: commit: %w", table, err)
	}

	slog.Info("table loaded",
		"table", table,
		"rows", n,
		"elapsed", time.Since(start).String(),
	)
	return n, nil
}

// CreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement with one text
// column per name.
func CreateTableSQL(table pgx.Identifier, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " text"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table.Sanitize(), strings.Join(defs, ", "))
}

// CSVSource adapts a semicolon-separated file to pgx.CopyFromSource.
type CSVSource struct {
	r       *csv.Reader
	columns []string
	values  []any
	err     error
}

// NewCSVSource reads the header row of r.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.Comma = Separator
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	return &CSVSource{
		r:       cr,
		columns: append([]string(nil), header...),
		values:  make([]any, len(header)),
	}, nil
}

// Columns returns the header row.
func (s *CSVSource) Columns() []string {
	return s.columns
}

// Next advances to the next row.
func (s *CSVSource) Next() bool {
	rec, err := s.r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		return false
	}

	for i, v := range rec {
		if v == "" {
			s.values[i] = nil
		} else {
			s.values[i] = v
		}
	}
	return true
}

// Values returns the current row. Empty fields are nil.
func (s *CSVSource) Values() ([]any, error) {
	return s.values, nil
}

// Err returns the first read error.
func (s *CSVSource) Err() error {
	return s.err
}
