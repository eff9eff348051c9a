package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/eda"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

var (
	descOutput    string
	descJSON      bool
	descRaw       bool
	descHeadRows  int
	descTopValues int
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Summarize the listings: column statistics, top categories and correlations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := buildReport(descRaw, descHeadRows, descTopValues)
		if err != nil {
			return err
		}
		var out []byte
		if descJSON {
			b, err := utils.PrettyJSON(rep)
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			out = b
		} else {
			out = []byte(rep.Markdown())
		}
		if descOutput != "" {
			if err := utils.EnsureDir(filepath.Dir(descOutput)); err != nil {
				return err
			}
			if err := utils.SafeWriteFile(descOutput, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote summary to %s\n", descOutput)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

// buildReport summarizes the cleaned table, or the loaded one when raw is set.
func buildReport(raw bool, headRows, topValues int) (*eda.Report, error) {
	var (
		t   *dataset.Table
		svc *dataset.Service
		err error
	)
	if raw {
		if svc, err = newService(); err != nil {
			return nil, err
		}
		t, err = svc.Raw()
	} else {
		svc, t, err = cleanedTable()
	}
	if err != nil {
		return nil, err
	}
	defer pipeline.Time("describe")()
	opt := eda.ReportOptions{HeadRows: headRows, TopValues: topValues}
	if t.Has(svc.Target()) {
		opt.Target = svc.Target()
	}
	return eda.Summarize(t, filepath.Base(svc.Path()), opt)
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVarP(&descOutput, "output", "o", "", "write the summary to a file instead of stdout")
	describeCmd.Flags().BoolVar(&descJSON, "json", false, "emit JSON instead of Markdown")
	describeCmd.Flags().BoolVar(&descRaw, "raw", false, "summarize the file as loaded, before cleaning")
	describeCmd.Flags().IntVar(&descHeadRows, "head", 5, "number of leading rows to include")
	describeCmd.Flags().IntVar(&descTopValues, "top", 5, "levels listed per categorical column")
}
