package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/eda"
)

var (
	plotColumn  string
	plotColumns []string
	plotTop     int
	plotBins    int
	plotOut     string
	plotWidth   float64
	plotHeight  float64
)

// plotKinds lists the charts in the order "all" renders them.
var plotKinds = []string{"distribution", "top", "category", "heatmap"}

var plotCmd = &cobra.Command{
	Use:   "plot <distribution|top|category|heatmap|all>",
	Short: "Render charts of the cleaned listings to PNG or SVG",
	Long: `Render charts of the cleaned listings.

  distribution  histogram of a numeric column (default price_de)
  top           the most frequent values of a column (default make, top 10)
  category      every level of a column (default drive_config)
  heatmap       Pearson correlations across numeric columns
  all           every chart above, written into --out as a directory`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: append(append([]string{}, plotKinds...), "all"),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := strings.ToLower(args[0])
		_, t, err := cleanedTable()
		if err != nil {
			return err
		}
		defer pipeline.Time("plot")()

		if kind == "all" {
			dir := plotOut
			if dir == "" {
				dir = filepath.Join(cfg.CacheDir, "plots")
			}
			for _, k := range plotKinds {
				path := filepath.Join(dir, k+".png")
				if err := renderPlot(t, k, "", path); err != nil {
					return err
				}
				fmt.Printf("✓ Wrote %s chart to %s\n", k, path)
			}
			return nil
		}

		path := plotOut
		if path == "" {
			path = filepath.Join(cfg.CacheDir, "plots", kind+".png")
		}
		if err := renderPlot(t, kind, plotColumn, path); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote %s chart to %s\n", kind, path)
		return nil
	},
}

// renderPlot draws one chart kind; an empty column picks the kind's default.
func renderPlot(t *dataset.Table, kind, column, path string) error {
	var (
		p   *plot.Plot
		err error
	)
	switch kind {
	case "distribution", "dist", "hist":
		p, err = eda.PlotDistribution(t, orDefault(column, "price_de"), plotBins)
	case "top":
		p, err = eda.PlotTopCategories(t, orDefault(column, "make"), plotTop)
	case "category", "cat":
		p, err = eda.PlotCategoryDistribution(t, orDefault(column, "drive_config"))
	case "heatmap", "corr":
		p, err = eda.PlotCorrelationHeatmap(t, plotColumns...)
	default:
		return fmt.Errorf("unknown plot kind %q (use %s or all)", kind, strings.Join(plotKinds, ", "))
	}
	if err != nil {
		return err
	}
	return eda.Save(p, path, vg.Length(plotWidth)*vg.Inch, vg.Length(plotHeight)*vg.Inch)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.Flags().StringVarP(&plotColumn, "column", "c", "", "column to chart (distribution, top, category)")
	plotCmd.Flags().StringSliceVar(&plotColumns, "columns", nil, "numeric columns for the heatmap (default all)")
	plotCmd.Flags().IntVar(&plotTop, "top", 10, "number of categories for the top chart")
	plotCmd.Flags().IntVar(&plotBins, "bins", eda.DefaultBins, "histogram bins")
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "", "output file (.png, .svg, .pdf); a directory for all")
	plotCmd.Flags().Float64Var(&plotWidth, "width", 8, "width in inches")
	plotCmd.Flags().Float64Var(&plotHeight, "height", 5, "height in inches")
}
