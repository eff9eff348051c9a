// Package eda summarizes and charts the listings table for exploratory analysis.
package eda

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
)

// Stats is the describe() row for one numeric column. Std is the sample
// standard deviation; quartiles are empirical. Undefined values are NaN.
type Stats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Q50    float64 `json:"q50"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// CategoryCount is one level of a value count.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // row-major, Values[i][j]
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A, B string
	R    float64
}

// MarshalJSON writes undefined statistics as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Column string   `json:"column"`
		Count  int      `json:"count"`
		Mean   *float64 `json:"mean"`
		Std    *float64 `json:"std"`
		Min    *float64 `json:"min"`
		Q25    *float64 `json:"q25"`
		Q50    *float64 `json:"q50"`
		Q75    *float64 `json:"q75"`
		Max    *float64 `json:"max"`
	}{s.Column, s.Count, finite(s.Mean), finite(s.Std), finite(s.Min), finite(s.Q25), finite(s.Q50), finite(s.Q75), finite(s.Max)})
}

// MarshalJSON writes undefined coefficients as null.
func (m CorrMatrix) MarshalJSON() ([]byte, error) {
	vals := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		vals[i] = make([]*float64, len(row))
		for j, v := range row {
			vals[i][j] = finite(v)
		}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Values  [][]*float64 `json:"values"`
	}{m.Columns, vals})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Frame converts t into a gota DataFrame. Missing cells become NaN elements.
func Frame(t *dataset.Table) dataframe.DataFrame {
	cols := make([]series.Series, 0, t.NumCols())
	for _, c := range t.Columns() {
		vals := make([]string, c.Len())
		for i := range vals {
			if c.IsMissing(i) {
				vals[i] = "NaN"
				continue
			}
			vals[i] = c.Text(i)
		}
		typ := series.String
		switch c.Kind {
		case dataset.KindNumeric:
			typ = series.Float
		case dataset.KindBool:
			typ = series.Bool
		}
		cols = append(cols, series.New(vals, typ, c.Name))
	}
	return dataframe.New(cols...)
}

// Describe computes count, mean, std, min, quartiles and max for every numeric
// column of t, ignoring missing values.
func Describe(t *dataset.Table) ([]Stats, error) {
	if t == nil {
		return nil, &dataset.StateError{Op: "describe", Reason: "no table"}
	}
	names := t.NumericNames()
	if len(names) == 0 {
		return nil, nil
	}
	df := Frame(t)
	if df.Err != nil {
		return nil, fmt.Errorf("build frame: %w", df.Err)
	}
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		s := df.Col(name)
		present := presentFloats(s)
		st := Stats{Column: name, Count: len(present)}
		if len(present) == 0 {
			st.Mean, st.Std, st.Min, st.Q25, st.Q50, st.Q75, st.Max = nan(), nan(), nan(), nan(), nan(), nan(), nan()
			out = append(out, st)
			continue
		}
		ps := series.Floats(present)
		st.Mean = ps.Mean()
		st.Std = nan()
		if len(present) > 1 {
			st.Std = ps.StdDev()
		}
		st.Min = ps.Min()
		st.Max = ps.Max()
		st.Q25 = ps.Quantile(0.25)
		st.Q50 = ps.Quantile(0.5)
		st.Q75 = ps.Quantile(0.75)
		out = append(out, st)
	}
	return out, nil
}

func presentFloats(s series.Series) []float64 {
	na := s.IsNaN()
	vals := s.Float()
	out := make([]float64, 0, len(vals))
	for i, v := range vals {
		if na[i] || math.IsNaN(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func nan() float64 { return math.NaN() }

// ValueCounts counts the distinct values of column col, most frequent first.
// Ties keep first-seen order. Missing cells are not counted.
func ValueCounts(t *dataset.Table, col string) ([]CategoryCount, error) {
	if t == nil {
		return nil, &dataset.StateError{Op: "value counts", Reason: "no table"}
	}
	c, ok := t.Column(col)
	if !ok {
		return nil, &dataset.SchemaError{Column: col, Reason: "column not found"}
	}
	idx := map[string]int{}
	var out []CategoryCount
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		v := c.Text(i)
		if j, seen := idx[v]; seen {
			out[j].Count++
			continue
		}
		idx[v] = len(out)
		out = append(out, CategoryCount{Value: v, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// Correlation computes pairwise Pearson correlations among cols, or among all
// numeric columns when cols is empty. Each pair uses the rows where both values
// are present; pairs with fewer than two such rows or zero variance are NaN.
func Correlation(t *dataset.Table, cols ...string) (*CorrMatrix, error) {
	if t == nil {
		return nil, &dataset.StateError{Op: "correlation", Reason: "no table"}
	}
	if len(cols) == 0 {
		cols = t.NumericNames()
	}
	columns := make([]*dataset.Column, len(cols))
	for i, name := range cols {
		c, ok := t.Column(name)
		if !ok {
			return nil, &dataset.SchemaError{Column: name, Reason: "column not found"}
		}
		if c.Kind == dataset.KindString {
			return nil, &dataset.SchemaError{Column: name, Reason: "correlation needs a numeric or boolean column"}
		}
		columns[i] = c
	}
	m := &CorrMatrix{Columns: append([]string(nil), cols...), Values: make([][]float64, len(cols))}
	for i := range cols {
		m.Values[i] = make([]float64, len(cols))
	}
	for i := range columns {
		for j := 0; j <= i; j++ {
			r := pearson(columns[i], columns[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m, nil
}

func pearson(a, b *dataset.Column) float64 {
	var xs, ys []float64
	for i := 0; i < a.Len(); i++ {
		x, okx := a.Float(i)
		y, oky := b.Float(i)
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 2 || constant(xs) || constant(ys) {
		return nan()
	}
	return stat.Correlation(xs, ys, nil)
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// Pairs returns the off-diagonal pairs ordered by |r| descending, skipping NaN.
func (m *CorrMatrix) Pairs() []PairCorr {
	var pairs []PairCorr
	for i := 0; i < len(m.Columns); i++ {
		for j := 0; j < i; j++ {
			r := m.Values[i][j]
			if math.IsNaN(r) {
				continue
			}
			pairs = append(pairs, PairCorr{A: m.Columns[j], B: m.Columns[i], R: r})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return math.Abs(pairs[i].R) > math.Abs(pairs[j].R) })
	return pairs
}

// With returns the correlation of every other column against name, strongest first.
func (m *CorrMatrix) With(name string) []PairCorr {
	var out []PairCorr
	for _, p := range m.Pairs() {
		switch name {
		case p.A:
			out = append(out, PairCorr{A: p.A, B: p.B, R: p.R})
		case p.B:
			out = append(out, PairCorr{A: p.B, B: p.A, R: p.R})
		}
	}
	return out
}
