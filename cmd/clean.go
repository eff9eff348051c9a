package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanHead int

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Load and clean the listings file and report what changed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		raw, err := svc.Load()
		if err != nil {
			return err
		}
		rawRows, rawCols := raw.Shape()
		fmt.Printf("✓ Loaded %s: %d rows × %d columns\n", svc.Path(), rawRows, rawCols)

		done := pipeline.Time("clean")
		t, err := svc.Clean()
		done()
		if err != nil {
			return err
		}
		rows, cols := t.Shape()
		fmt.Printf("✓ Cleaned: %d rows × %d columns (dropped %d rows)\n", rows, cols, rawRows-rows)
		fmt.Printf("  Target: %s\n", svc.Target())
		if cleanHead > 0 {
			head := t.Head(cleanHead)
			for i := 0; i < head.NumRows(); i++ {
				fmt.Printf("\n[row %d]\n%s\n", i+1, head.RowText(i))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().IntVar(&cleanHead, "head", 0, "print the first N cleaned rows")
}
