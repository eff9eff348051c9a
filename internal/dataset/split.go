package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Series is a named numeric vector aligned with a feature table.
type Series struct {
	Name   string
	Values []float64
}

// Len returns the number of values.
func (s *Series) Len() int { return len(s.Values) }

// Encoding records how one string column was expanded into indicators.
type Encoding struct {
	Column    string   `json:"column"`
	Reference string   `json:"reference"`
	Levels    []string `json:"levels"`
}

// Indicator returns the indicator column name for value.
func (e Encoding) Indicator(value string) string { return e.Column + "_" + value }

// FeatureTable is a table of numeric and boolean columns produced by Split.
type FeatureTable struct {
	*Table
	Encodings []Encoding
}

// Matrix returns the features row-major as float64, booleans as 0/1.
func (f *FeatureTable) Matrix() [][]float64 {
	rows, cols := f.Shape()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j, c := range f.Columns() {
			out[i][j], _ = c.Float(i)
		}
	}
	return out
}

// Split separates target from the cleaned table t and one-hot encodes the
// remaining string columns, dropping the first-seen category of each.
// Numeric and boolean columns come first in their original order,
// followed by indicator columns grouped by source column.
func Split(t *Table, target string) (*FeatureTable, *Series, error) {
	if t == nil {
		return nil, nil, &StateError{Op: "split", Reason: "no cleaned table; run the cleaner first"}
	}
	if n := t.MissingCount(); n > 0 {
		return nil, nil, &StateError{Op: "split", Reason: fmt.Sprintf("table has %d missing values; run the cleaner first", n)}
	}
	tc, ok := t.Column(target)
	if !ok {
		return nil, nil, &SchemaError{Column: target, Reason: "is missing"}
	}
	if tc.Kind != KindNumeric {
		return nil, nil, &SchemaError{Column: target, Reason: fmt.Sprintf("must be numeric, got %s", tc.Kind)}
	}
	y := &Series{Name: target, Values: append([]float64(nil), tc.Num...)}

	var passthrough, indicators []*Column
	var encodings []Encoding
	for _, c := range t.Columns() {
		if c.Name == target {
			continue
		}
		if c.Kind != KindString {
			passthrough = append(passthrough, c.clone())
			continue
		}
		enc := Encoding{Column: c.Name, Levels: levels(c)}
		if len(enc.Levels) == 0 {
			encodings = append(encodings, enc)
			continue
		}
		enc.Reference = enc.Levels[0]
		for _, lv := range enc.Levels[1:] {
			ind := &Column{Name: enc.Indicator(lv), Kind: KindBool, Bool: make([]bool, c.Len()), Valid: make([]bool, c.Len())}
			for i, v := range c.Str {
				ind.Bool[i] = v == lv
				ind.Valid[i] = true
			}
			indicators = append(indicators, ind)
		}
		encodings = append(encodings, enc)
	}
	ft, err := NewTable(append(passthrough, indicators...)...)
	if err != nil {
		return nil, nil, err
	}
	return &FeatureTable{Table: ft, Encodings: encodings}, y, nil
}

// levels returns distinct values in first-seen order.
func levels(c *Column) []string {
	seen := make(map[string]bool)
	out := []string{}
	for i, v := range c.Str {
		if !c.Valid[i] || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// AlignRow builds a single-row feature table with this table's columns from
// user supplied values keyed by source column. Numeric columns are parsed;
// categorical values set the matching indicator. Anything that does not map
// onto the training columns is reported as a warning, and unset numeric
// columns default to zero with a warning.
func (f *FeatureTable) AlignRow(values map[string]string) (*FeatureTable, []string, error) {
	var warnings []string
	cols := make([]*Column, 0, f.NumCols())
	index := make(map[string]*Column, f.NumCols())
	for _, c := range f.Columns() {
		nc := &Column{Name: c.Name, Kind: c.Kind, Valid: []bool{true}}
		if c.Kind == KindBool {
			nc.Bool = []bool{false}
		} else {
			nc.Num = []float64{0}
		}
		cols = append(cols, nc)
		index[c.Name] = nc
	}

	indicators := make(map[string]bool)
	for _, e := range f.Encodings {
		for _, lv := range e.Levels {
			indicators[e.Indicator(lv)] = true
		}
	}
	used := make(map[string]bool, len(values))

	for _, e := range f.Encodings {
		v, ok := values[e.Column]
		if !ok {
			continue
		}
		used[e.Column] = true
		if v == e.Reference {
			continue
		}
		ind, ok := index[e.Indicator(v)]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown %s %q: not seen in training data", e.Column, v))
			continue
		}
		ind.Bool[0] = true
	}

	for _, c := range cols {
		if indicators[c.Name] {
			continue
		}
		raw, ok := values[c.Name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s not provided; defaulting to 0", c.Name))
			continue
		}
		used[c.Name] = true
		if c.Kind == KindBool {
			switch strings.ToLower(strings.TrimSpace(raw)) {
			case "true", "1", "yes":
				c.Bool[0] = true
			case "false", "0", "no", "":
			default:
				return nil, nil, fmt.Errorf("%s: %q is not a boolean", c.Name, raw)
			}
			continue
		}
		v, ok := parseFloat(raw)
		if !ok {
			return nil, nil, fmt.Errorf("%s: %q is not a number", c.Name, raw)
		}
		c.Num[0] = v
	}

	var extra []string
	for k := range values {
		if !used[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		warnings = append(warnings, fmt.Sprintf("%s is not a feature of the trained model; ignored", k))
	}

	t, err := NewTable(cols...)
	if err != nil {
		return nil, nil, err
	}
	return &FeatureTable{Table: t, Encodings: f.Encodings}, warnings, nil
}

// FeatureColumn names one feature column and its kind for persistence.
type FeatureColumn struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Layout returns the column names and kinds of f in order.
func (f *FeatureTable) Layout() []FeatureColumn {
	out := make([]FeatureColumn, 0, f.NumCols())
	for _, c := range f.Columns() {
		out = append(out, FeatureColumn{Name: c.Name, Kind: c.Kind.String()})
	}
	return out
}

// EmptyFeatureTable rebuilds a zero-row feature table from a saved layout so
// that AlignRow can be used without the training data.
func EmptyFeatureTable(layout []FeatureColumn, encodings []Encoding) (*FeatureTable, error) {
	cols := make([]*Column, len(layout))
	for i, fc := range layout {
		c := &Column{Name: fc.Name, Valid: []bool{}}
		switch fc.Kind {
		case KindNumeric.String():
			c.Kind, c.Num = KindNumeric, []float64{}
		case KindBool.String():
			c.Kind, c.Bool = KindBool, []bool{}
		default:
			return nil, &SchemaError{Column: fc.Name, Reason: fmt.Sprintf("feature kind %q is not numeric or bool", fc.Kind)}
		}
		cols[i] = c
	}
	t, err := NewTable(cols...)
	if err != nil {
		return nil, err
	}
	return &FeatureTable{Table: t, Encodings: encodings}, nil
}
