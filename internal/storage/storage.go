// Package storage exports listing tables to files and databases.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
)

// DefaultTable is the table name used for database exports.
const DefaultTable = "listings"

// Writer persists a whole table, replacing any previous export at the same destination.
type Writer interface {
	Write(ctx context.Context, t *dataset.Table) error
	Close() error
}

// Format names an export backend.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatSQLite   Format = "sqlite"
	FormatPostgres Format = "postgres"
)

// ParseFormat normalizes a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "sqlite", "sqlite3", "db":
		return FormatSQLite, nil
	case "postgres", "postgresql", "pg":
		return FormatPostgres, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, sqlite or postgres)", s)
	}
}

// Open returns a Writer for format. dest is a file path for csv and sqlite and
// a connection string for postgres. table is ignored for csv.
func Open(ctx context.Context, format Format, dest, table string) (Writer, error) {
	if strings.TrimSpace(dest) == "" {
		return nil, fmt.Errorf("%s export needs a destination", format)
	}
	if table == "" {
		table = DefaultTable
	}
	switch format {
	case FormatCSV:
		return NewCSVWriter(dest), nil
	case FormatSQLite:
		return NewSQLiteWriter(dest, table)
	case FormatPostgres:
		return NewPostgresWriter(ctx, dest, table)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
