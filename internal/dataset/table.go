package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindString Kind = iota
	KindNumeric
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Column is a typed, nullable column. Exactly one of Str, Num or Bool is populated,
// matching Kind. Valid[i] is false when row i is missing.
type Column struct {
	Name  string
	Kind  Kind
	Str   []string
	Num   []float64
	Bool  []bool
	Valid []bool
}

// Strings builds a string column; empty strings are treated as missing.
func Strings(name string, vals ...string) *Column {
	valid := make([]bool, len(vals))
	for i, v := range vals {
		valid[i] = v != ""
	}
	return &Column{Name: name, Kind: KindString, Str: vals, Valid: valid}
}

// Floats builds a numeric column; NaN values are treated as missing.
func Floats(name string, vals ...float64) *Column {
	valid := make([]bool, len(vals))
	for i, v := range vals {
		valid[i] = !math.IsNaN(v)
	}
	return &Column{Name: name, Kind: KindNumeric, Num: vals, Valid: valid}
}

// Bools builds a boolean column with no missing values.
func Bools(name string, vals ...bool) *Column {
	valid := make([]bool, len(vals))
	for i := range valid {
		valid[i] = true
	}
	return &Column{Name: name, Kind: KindBool, Bool: vals, Valid: valid}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int { return len(c.Valid) }

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool { return !c.Valid[i] }

// MissingCount returns the number of missing rows.
func (c *Column) MissingCount() int {
	n := 0
	for _, ok := range c.Valid {
		if !ok {
			n++
		}
	}
	return n
}

// Float returns row i as a float64. Booleans map to 0/1; strings are parsed.
// The second result is false for missing or unparsable values.
func (c *Column) Float(i int) (float64, bool) {
	if !c.Valid[i] {
		return 0, false
	}
	switch c.Kind {
	case KindNumeric:
		return c.Num[i], true
	case KindBool:
		if c.Bool[i] {
			return 1, true
		}
		return 0, true
	default:
		return parseFloat(c.Str[i])
	}
}

// Text renders row i for display. Missing values render as "".
func (c *Column) Text(i int) string {
	if !c.Valid[i] {
		return ""
	}
	switch c.Kind {
	case KindNumeric:
		return strconv.FormatFloat(c.Num[i], 'f', -1, 64)
	case KindBool:
		if c.Bool[i] {
			return "True"
		}
		return "False"
	default:
		return c.Str[i]
	}
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Valid: append([]bool(nil), c.Valid...)}
	switch c.Kind {
	case KindNumeric:
		out.Num = append([]float64(nil), c.Num...)
	case KindBool:
		out.Bool = append([]bool(nil), c.Bool...)
	default:
		out.Str = append([]string(nil), c.Str...)
	}
	return out
}

// keep retains only the given row positions, in order.
func (c *Column) keep(rows []int) {
	valid := make([]bool, len(rows))
	for j, i := range rows {
		valid[j] = c.Valid[i]
	}
	c.Valid = valid
	switch c.Kind {
	case KindNumeric:
		num := make([]float64, len(rows))
		for j, i := range rows {
			num[j] = c.Num[i]
		}
		c.Num = num
	case KindBool:
		b := make([]bool, len(rows))
		for j, i := range rows {
			b[j] = c.Bool[i]
		}
		c.Bool = b
	default:
		s := make([]string, len(rows))
		for j, i := range rows {
			s[j] = c.Str[i]
		}
		c.Str = s
	}
}

// Table is an ordered set of equal-length named columns.
type Table struct {
	cols  []*Column
	index map[string]int
}

// NewTable assembles columns into a table. Names must be unique and lengths equal.
func NewTable(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("nil column")
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, &SchemaError{Column: c.Name, Reason: "appears more than once"}
		}
		if len(t.cols) > 0 && c.Len() != t.cols[0].Len() {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), t.cols[0].Len())
		}
		t.index[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// MustTable is NewTable that panics on error. Intended for fixtures.
func MustTable(cols ...*Column) *Table {
	t, err := NewTable(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) { return t.NumRows(), t.NumCols() }

// Names returns column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the underlying columns in order.
func (t *Table) Columns() []*Column { return t.cols }

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Set appends col, or replaces the existing column with the same name in place.
func (t *Table) Set(col *Column) error {
	if len(t.cols) > 0 && col.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d rows, want %d", col.Name, col.Len(), t.NumRows())
	}
	if i, ok := t.index[col.Name]; ok {
		t.cols[i] = col
		return nil
	}
	t.index[col.Name] = len(t.cols)
	t.cols = append(t.cols, col)
	return nil
}

// Rename applies a {from: to} mapping. Names not present are ignored.
func (t *Table) Rename(mapping map[string]string) error {
	next := make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		name := c.Name
		if to, ok := mapping[name]; ok {
			name = to
		}
		if _, dup := next[name]; dup {
			return &SchemaError{Column: name, Reason: "would appear more than once after rename"}
		}
		next[name] = i
	}
	for name, i := range next {
		t.cols[i].Name = name
	}
	t.index = next
	return nil
}

// Drop removes the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) {
	gone := make(map[string]bool, len(names))
	for _, n := range names {
		gone[n] = true
	}
	kept := t.cols[:0]
	for _, c := range t.cols {
		if !gone[c.Name] {
			kept = append(kept, c)
		}
	}
	t.cols = kept
	t.index = make(map[string]int, len(kept))
	for i, c := range kept {
		t.index[c.Name] = i
	}
}

// FilterRows keeps rows for which keep returns true and returns how many were dropped.
func (t *Table) FilterRows(keep func(row int) bool) int {
	n := t.NumRows()
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == n {
		return 0
	}
	for _, c := range t.cols {
		c.keep(rows)
	}
	return n - len(rows)
}

// MissingCount returns the number of missing cells across all columns.
func (t *Table) MissingCount() int {
	n := 0
	for _, c := range t.cols {
		n += c.MissingCount()
	}
	return n
}

// RowComplete reports whether row i has a value in every column.
func (t *Table) RowComplete(i int) bool {
	for _, c := range t.cols {
		if !c.Valid[i] {
			return false
		}
	}
	return true
}

// RowText renders row i as "name: value" lines, skipping missing cells.
func (t *Table) RowText(i int) string {
	var b strings.Builder
	for _, c := range t.cols {
		if !c.Valid[i] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c.Name)
		b.WriteString(": ")
		b.WriteString(c.Text(i))
	}
	return b.String()
}

// Head returns a copy of the first n rows.
func (t *Table) Head(n int) *Table {
	if n > t.NumRows() {
		n = t.NumRows()
	}
	out := t.Clone()
	out.FilterRows(func(row int) bool { return row < n })
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{cols: make([]*Column, len(t.cols)), index: make(map[string]int, len(t.cols))}
	for i, c := range t.cols {
		out.cols[i] = c.clone()
		out.index[c.Name] = i
	}
	return out
}

// NumericNames returns the names of numeric columns in order.
func (t *Table) NumericNames() []string {
	var out []string
	for _, c := range t.cols {
		if c.Kind == KindNumeric {
			out = append(out, c.Name)
		}
	}
	return out
}

// parseFloat is the single numeric coercion rule: surrounding space is ignored
// and non-finite results count as failures.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
