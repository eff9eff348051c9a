package eda

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
)

// ReportOptions controls Summarize.
type ReportOptions struct {
	// HeadRows is how many leading rows to include. Zero means 5.
	HeadRows int
	// TopValues bounds the levels listed per categorical column. Zero means 5.
	TopValues int
	// Target, when set, lists correlations against this column.
	Target string
}

// Report is a markdown-friendly summary of a listings table.
type Report struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Cols     []ColumnSummary `json:"columns"`
	Corr     *CorrMatrix     `json:"correlation,omitempty"`
	Target   string          `json:"target,omitempty"`
	Head     *dataset.Table  `json:"-"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnSummary captures kind and statistics per column.
type ColumnSummary struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	NonNull int             `json:"non_null"`
	Missing int             `json:"missing"`
	Unique  int             `json:"unique"`
	Stats   *Stats          `json:"stats,omitempty"`
	Top     []CategoryCount `json:"top,omitempty"`
}

// Summarize builds a Report for t.
func Summarize(t *dataset.Table, name string, opt ReportOptions) (*Report, error) {
	if t == nil {
		return nil, &dataset.StateError{Op: "summarize", Reason: "no table"}
	}
	if opt.HeadRows <= 0 {
		opt.HeadRows = 5
	}
	if opt.TopValues <= 0 {
		opt.TopValues = 5
	}
	stats, err := Describe(t)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Stats, len(stats))
	for _, s := range stats {
		byName[s.Column] = s
	}

	rep := &Report{Name: name, Rows: t.NumRows(), Head: t.Head(opt.HeadRows)}
	for _, c := range t.Columns() {
		miss := c.MissingCount()
		cs := ColumnSummary{Name: c.Name, Kind: c.Kind.String(), NonNull: c.Len() - miss, Missing: miss}
		counts, err := ValueCounts(t, c.Name)
		if err != nil {
			return nil, err
		}
		cs.Unique = len(counts)
		if s, ok := byName[c.Name]; ok {
			cs.Stats = &s
		} else {
			cs.Top = counts[:min(len(counts), opt.TopValues)]
		}
		if miss > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s has %d missing values", c.Name, miss))
		}
		rep.Cols = append(rep.Cols, cs)
	}

	if len(stats) >= 2 {
		rep.Corr, err = Correlation(t)
		if err != nil {
			return nil, err
		}
	}
	if opt.Target != "" && t.Has(opt.Target) {
		rep.Target = opt.Target
	}
	return rep, nil
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n\n", len(r.Cols))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = 100 * float64(c.Missing) / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch {
		case c.Stats != nil:
			s := c.Stats
			fmt.Fprintf(&b, ": mean %s, std %s, min %s, median %s, max %s",
				num(s.Mean), num(s.Std), num(s.Min), num(s.Q50), num(s.Max))
		case len(c.Top) > 0:
			b.WriteString(": top ")
			for i, kv := range c.Top {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
			}
			if c.Unique > len(c.Top) {
				fmt.Fprintf(&b, "; unique=%d", c.Unique)
			}
		}
		b.WriteString("\n")
	}

	if r.Corr != nil {
		pairs := r.Corr.Pairs()
		title := "\n[CORRELATIONS]\n"
		if r.Target != "" {
			pairs = r.Corr.With(r.Target)
			title = fmt.Sprintf("\n[CORRELATIONS WITH %s]\n", r.Target)
		}
		if len(pairs) > 0 {
			b.WriteString(title)
			for _, p := range pairs[:min(len(pairs), 10)] {
				fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
			}
		}
	}

	if r.Head != nil && r.Head.NumRows() > 0 {
		b.WriteString("\n[HEAD]\n")
		names := r.Head.Names()
		b.WriteString("| ")
		for i, n := range names {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(n))
		}
		b.WriteString(" |\n|")
		for range names {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		cols := r.Head.Columns()
		for row := 0; row < r.Head.NumRows(); row++ {
			b.WriteString("| ")
			for i, c := range cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(c.Text(row)))
			}
			b.WriteString(" |\n")
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", v)
}

func safeName(s string) string {
	if s == "" {
		return "(unnamed)"
	}
	return safeVal(s)
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
