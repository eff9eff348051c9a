package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	numericType string
	boolType    string
	placeholder func(n int) string
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		numericType: "REAL",
		boolType:    "INTEGER",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:        "postgres",
		numericType: "DOUBLE PRECISION",
		boolType:    "BOOLEAN",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// SQLWriter replaces a database table with the contents of a listings table.
// The schema is derived from the column kinds on every Write.
type SQLWriter struct {
	db      *sql.DB
	dialect dialect
	table   string
	// BatchSize bounds rows per INSERT statement.
	BatchSize int
}

// NewSQLiteWriter opens (creating if needed) the SQLite database at path.
func NewSQLiteWriter(path, table string) (*SQLWriter, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("sqlite: create output dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLWriter{db: db, dialect: sqliteDialect, table: table, BatchSize: 50}, nil
}

// NewPostgresWriter connects to PostgreSQL, retrying the ping a few times
// while the server comes up.
func NewPostgresWriter(ctx context.Context, dsn, table string) (*SQLWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}
	return &SQLWriter{db: db, dialect: postgresDialect, table: table, BatchSize: 50}, nil
}

// DB exposes the underlying handle.
func (w *SQLWriter) DB() *sql.DB { return w.db }

// Write drops and recreates the table, then inserts every row in one transaction.
func (w *SQLWriter) Write(ctx context.Context, t *dataset.Table) error {
	if t == nil {
		return &dataset.StateError{Op: "export", Reason: "no table"}
	}
	if t.NumCols() == 0 {
		return &dataset.SchemaError{Reason: "cannot export a table without columns"}
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", w.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(w.table)); err != nil {
		return fmt.Errorf("%s: drop table: %w", w.dialect.name, err)
	}
	if _, err := tx.ExecContext(ctx, w.createStmt(t)); err != nil {
		return fmt.Errorf("%s: create table: %w", w.dialect.name, err)
	}

	batch := w.BatchSize
	if batch <= 0 {
		batch = 50
	}
	for start := 0; start < t.NumRows(); start += batch {
		end := min(start+batch, t.NumRows())
		query, args := w.insertStmt(t, start, end)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: insert rows %d-%d: %w", w.dialect.name, start+1, end, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", w.dialect.name, err)
	}
	return nil
}

// Close closes the database handle.
func (w *SQLWriter) Close() error { return w.db.Close() }

func (w *SQLWriter) createStmt(t *dataset.Table) string {
	defs := make([]string, 0, t.NumCols())
	for _, c := range t.Columns() {
		typ := "TEXT"
		switch c.Kind {
		case dataset.KindNumeric:
			typ = w.dialect.numericType
		case dataset.KindBool:
			typ = w.dialect.boolType
		}
		defs = append(defs, quoteIdent(c.Name)+" "+typ)
	}
	return "CREATE TABLE " + quoteIdent(w.table) + " (" + strings.Join(defs, ", ") + ")"
}

func (w *SQLWriter) insertStmt(t *dataset.Table, start, end int) (string, []any) {
	cols := t.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.Name)
	}
	rows := make([]string, 0, end-start)
	args := make([]any, 0, (end-start)*len(cols))
	ph := make([]string, len(cols))
	for i := start; i < end; i++ {
		for j, c := range cols {
			args = append(args, cellValue(c, i))
			ph[j] = w.dialect.placeholder(len(args))
		}
		rows = append(rows, "("+strings.Join(ph, ", ")+")")
	}
	return "INSERT INTO " + quoteIdent(w.table) + " (" + strings.Join(names, ", ") + ") VALUES " + strings.Join(rows, ", "), args
}

// cellValue maps a cell to a driver value; missing cells become NULL.
func cellValue(c *dataset.Column, i int) any {
	if c.IsMissing(i) {
		return nil
	}
	switch c.Kind {
	case dataset.KindNumeric:
		return c.Num[i]
	case dataset.KindBool:
		return c.Bool[i]
	default:
		return c.Str[i]
	}
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
