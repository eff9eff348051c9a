package eda

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

// DefaultBins is the histogram bin count used when none is given.
const DefaultBins = 30

var barColor = color.RGBA{R: 0x4c, G: 0x72, B: 0xb0, A: 0xff}

// PlotDistribution draws a histogram of a numeric column.
func PlotDistribution(t *dataset.Table, col string, bins int) (*plot.Plot, error) {
	c, err := numericColumn(t, col)
	if err != nil {
		return nil, err
	}
	var vals plotter.Values
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Float(i); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, &dataset.SchemaError{Column: col, Reason: "no values to plot"}
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", col, err)
	}
	h.FillColor = barColor
	p := plot.New()
	p.Title.Text = "Distribution of " + col
	p.X.Label.Text = col
	p.Y.Label.Text = "count"
	p.Add(h)
	return p, nil
}

// PlotTopCategories draws the n most frequent values of col as a bar chart.
func PlotTopCategories(t *dataset.Table, col string, n int) (*plot.Plot, error) {
	counts, err := ValueCounts(t, col)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return barChart(counts, fmt.Sprintf("Top %d %s", len(counts), col), col)
}

// PlotCategoryDistribution draws every level of col as a bar chart.
func PlotCategoryDistribution(t *dataset.Table, col string) (*plot.Plot, error) {
	counts, err := ValueCounts(t, col)
	if err != nil {
		return nil, err
	}
	return barChart(counts, "Distribution of "+col, col)
}

func barChart(counts []CategoryCount, title, xlabel string) (*plot.Plot, error) {
	if len(counts) == 0 {
		return nil, &dataset.SchemaError{Column: xlabel, Reason: "no values to plot"}
	}
	vals := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, c := range counts {
		vals[i] = float64(c.Count)
		names[i] = c.Value
	}
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "count"
	p.Add(bars)
	p.NominalX(names...)
	if len(names) > 6 {
		p.X.Tick.Label.Rotation = math.Pi / 4
		p.X.Tick.Label.XAlign = draw.XRight
		p.X.Tick.Label.YAlign = draw.YCenter
	}
	return p, nil
}

// corrGrid adapts a CorrMatrix to plotter.GridXYZ. Row 0 of the grid is the
// last matrix row so the first column reads top-down.
type corrGrid struct{ m *CorrMatrix }

func (g corrGrid) Dims() (c, r int) { n := len(g.m.Columns); return n, n }
func (g corrGrid) X(c int) float64   { return float64(c) }
func (g corrGrid) Y(r int) float64   { return float64(r) }
func (g corrGrid) Z(c, r int) float64 {
	v := g.m.Values[len(g.m.Columns)-1-r][c]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// PlotCorrelationHeatmap draws the correlation matrix of cols (all numeric
// columns when empty) with each cell annotated.
func PlotCorrelationHeatmap(t *dataset.Table, cols ...string) (*plot.Plot, error) {
	m, err := Correlation(t, cols...)
	if err != nil {
		return nil, err
	}
	n := len(m.Columns)
	if n == 0 {
		return nil, &dataset.SchemaError{Reason: "no numeric columns to correlate"}
	}
	hm := plotter.NewHeatMap(corrGrid{m}, palette.Heat(32, 1))
	hm.Min, hm.Max = -1, 1

	var xys plotter.XYs
	var labels []string
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			v := m.Values[n-1-r][c]
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
			if math.IsNaN(v) {
				labels = append(labels, "n/a")
			} else {
				labels = append(labels, fmt.Sprintf("%.2f", v))
			}
		}
	}
	lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return nil, fmt.Errorf("heatmap labels: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Correlation matrix"
	p.Add(hm, lbl)
	p.NominalX(m.Columns...)
	ys := make([]string, n)
	for r := range ys {
		ys[r] = m.Columns[n-1-r]
	}
	p.NominalY(ys...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	return p, nil
}

// Save renders p to path; the extension picks the format (png, svg, pdf, ...).
func Save(p *plot.Plot, path string, width, height vg.Length) error {
	if width <= 0 {
		width = 8 * vg.Inch
	}
	if height <= 0 {
		height = 5 * vg.Inch
	}
	if filepath.Ext(path) == "" {
		return fmt.Errorf("plot path %q needs a file extension such as .png or .svg", path)
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

func numericColumn(t *dataset.Table, col string) (*dataset.Column, error) {
	if t == nil {
		return nil, &dataset.StateError{Op: "plot", Reason: "no table"}
	}
	c, ok := t.Column(col)
	if !ok {
		return nil, &dataset.SchemaError{Column: col, Reason: "column not found"}
	}
	if c.Kind != dataset.KindNumeric {
		return nil, &dataset.SchemaError{Column: col, Reason: "expected a numeric column, got " + c.Kind.String()}
	}
	return c, nil
}
