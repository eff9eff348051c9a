package dataset

import (
	"strings"

	"go.uber.org/zap"
)

// Recorder receives per-stage counters from the Cleaner.
type Recorder interface {
	ObserveStage(stage string, rowsIn, rowsOut int)
	ObserveCoercionFailures(column string, n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, int, int) {}
func (nopRecorder) ObserveCoercionFailures(string, int) {}

// Stage names reported to the Recorder and the log.
const (
	StageRename      = "rename"
	StageDeriveMake  = "derive_make"
	StageDropTarget  = "drop_missing_target"
	StageDropColumns = "drop_columns"
	StageCoerce      = "coerce_numeric"
	StageFillMean    = "fill_mean"
	StageDropMissing = "drop_missing"
)

// Cleaner turns a raw listings table into a model-ready one.
type Cleaner struct {
	schema   Schema
	logger   *zap.Logger
	recorder Recorder
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithLogger sets the logger used for per-stage shape reports.
func WithLogger(l *zap.Logger) CleanerOption {
	return func(c *Cleaner) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) CleanerOption {
	return func(c *Cleaner) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewCleaner returns a Cleaner for schema.
func NewCleaner(schema Schema, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{schema: schema, logger: zap.NewNop(), recorder: nopRecorder{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Schema returns the schema the Cleaner applies.
func (c *Cleaner) Schema() Schema { return c.schema }

// Clean applies the cleaning stages to t in place and returns it.
// Running Clean on its own output is a no-op.
func (c *Cleaner) Clean(t *Table) (*Table, error) {
	if t == nil {
		return nil, &StateError{Op: "clean", Reason: "no table loaded"}
	}
	if err := c.schema.Validate(); err != nil {
		return nil, err
	}
	s := c.schema

	rows := t.NumRows()
	if err := t.Rename(s.Rename); err != nil {
		return nil, err
	}
	c.stage(StageRename, t, rows)

	if s.Make != "" {
		if err := c.deriveMake(t); err != nil {
			return nil, err
		}
	}
	c.stage(StageDeriveMake, t, rows)

	target, ok := t.Column(s.Target)
	if !ok {
		return nil, &SchemaError{Column: s.Target, Reason: "is missing"}
	}
	t.FilterRows(func(i int) bool { return target.Valid[i] })
	c.stage(StageDropTarget, t, rows)
	rows = t.NumRows()

	t.Drop(s.Drop...)
	c.stage(StageDropColumns, t, rows)

	for _, name := range s.Numeric {
		col, ok := t.Column(name)
		if !ok {
			return nil, &SchemaError{Column: name, Reason: "is missing"}
		}
		num, failed := coerceNumeric(col)
		if failed > 0 {
			c.logger.Debug("coercion failures", zap.String("column", name), zap.Int("count", failed))
			c.recorder.ObserveCoercionFailures(name, failed)
		}
		if err := t.Set(num); err != nil {
			return nil, err
		}
	}
	c.stage(StageCoerce, t, rows)

	for _, col := range t.Columns() {
		if col.Kind == KindNumeric {
			fillMean(col)
		}
	}
	c.stage(StageFillMean, t, rows)

	t.FilterRows(t.RowComplete)
	c.stage(StageDropMissing, t, rows)
	return t, nil
}

func (c *Cleaner) stage(name string, t *Table, rowsIn int) {
	r, n := t.Shape()
	c.logger.Info("cleaning stage", zap.String("stage", name), zap.Int("rows", r), zap.Int("columns", n))
	c.recorder.ObserveStage(name, rowsIn, r)
}

// deriveMake sets Make to the first token of Title. A table that already has Make
// and no Title has been cleaned before and is left alone.
func (c *Cleaner) deriveMake(t *Table) error {
	title, ok := t.Column(c.schema.Title)
	if !ok {
		if t.Has(c.schema.Make) {
			return nil
		}
		return &SchemaError{Column: c.schema.Title, Reason: "is missing"}
	}
	n := title.Len()
	out := &Column{Name: c.schema.Make, Kind: KindString, Str: make([]string, n), Valid: make([]bool, n)}
	for i := 0; i < n; i++ {
		fields := strings.Fields(title.Text(i))
		if len(fields) == 0 {
			continue
		}
		out.Str[i] = fields[0]
		out.Valid[i] = true
	}
	return t.Set(out)
}

// coerceNumeric converts col to a numeric column. Values that do not parse become
// missing and are counted.
func coerceNumeric(col *Column) (*Column, int) {
	if col.Kind == KindNumeric {
		return col, 0
	}
	n := col.Len()
	out := &Column{Name: col.Name, Kind: KindNumeric, Num: make([]float64, n), Valid: make([]bool, n)}
	failed := 0
	for i := 0; i < n; i++ {
		if !col.Valid[i] {
			continue
		}
		f, ok := col.Float(i)
		if !ok {
			failed++
			continue
		}
		out.Num[i] = f
		out.Valid[i] = true
	}
	return out, failed
}

// fillMean replaces missing values with the mean of present ones.
// Columns with no present values are left untouched.
func fillMean(col *Column) {
	var sum float64
	present := 0
	for i, ok := range col.Valid {
		if ok {
			sum += col.Num[i]
			present++
		}
	}
	if present == 0 || present == col.Len() {
		return
	}
	mean := sum / float64(present)
	for i, ok := range col.Valid {
		if !ok {
			col.Num[i] = mean
			col.Valid[i] = true
		}
	}
}
