package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

// CSVWriter writes a table to a comma-separated file with a header row.
// Missing cells are written empty.
type CSVWriter struct {
	path string
}

// NewCSVWriter returns a writer for path. Nothing is created until Write.
func NewCSVWriter(path string) *CSVWriter { return &CSVWriter{path: path} }

// Write replaces the file at path atomically.
func (c *CSVWriter) Write(_ context.Context, t *dataset.Table) error {
	if t == nil {
		return &dataset.StateError{Op: "export", Reason: "no table"}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Names()); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	cols := t.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < t.NumRows(); i++ {
		for j, col := range cols {
			rec[j] = col.Text(i)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("csv: write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	if err := utils.EnsureDir(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}
	if err := utils.SafeWriteFile(c.path, buf.Bytes()); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}

// Close is a no-op; Write leaves nothing open.
func (c *CSVWriter) Close() error { return nil }
