package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/model"
)

var (
	trainModel     string
	trainTestRatio float64
	trainSeed      int64
	trainTrees     int
	trainMaxDepth  int
	trainNoSave    bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train price regressors on the cleaned listings and report held-out scores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := trainKinds(trainModel)
		if err != nil {
			return err
		}
		svc, _, err := cleanedTable()
		if err != nil {
			return err
		}
		X, y, err := svc.FeaturesAndTarget()
		if err != nil {
			return err
		}
		fmt.Printf("✓ %d rows, %d features, target %s\n", X.NumRows(), X.NumCols(), y.Name)

		ratio, seed := cfg.TestRatio, cfg.RandomState
		if cmd.Flags().Changed("test-ratio") {
			ratio = trainTestRatio
		}
		if cmd.Flags().Changed("seed") {
			seed = trainSeed
		}
		trees, depth := cfg.ForestTrees, cfg.ForestMaxDepth
		if cmd.Flags().Changed("trees") {
			trees = trainTrees
		}
		if cmd.Flags().Changed("max-depth") {
			depth = trainMaxDepth
		}

		for _, kind := range kinds {
			if err := trainOne(cmd, kind, X, y, ratio, seed, trees, depth); err != nil {
				return err
			}
		}
		return nil
	},
}

func trainOne(cmd *cobra.Command, kind string, X *dataset.FeatureTable, y *dataset.Series, ratio float64, seed int64, trees, depth int) error {
	m, err := model.New(kind, trees, depth, seed)
	if err != nil {
		return err
	}
	tr := model.NewTrainer(m,
		model.WithTestRatio(ratio),
		model.WithSeed(seed),
		model.WithTrainerLogger(logger),
		model.WithObserver(pipeline),
	)
	if err := tr.SplitData(X, y); err != nil {
		return err
	}
	done := pipeline.Time("train_" + m.Name())
	err = tr.Fit(cmd.Context())
	done()
	if err != nil {
		return err
	}
	scores, err := tr.Evaluate()
	if err != nil {
		return err
	}
	fmt.Printf("\n[%s]\n", m.Name())
	fmt.Printf("  R2:   %.4f\n", scores["r2"])
	fmt.Printf("  MAE:  %s\n", formatEuro(scores["mae"]))
	fmt.Printf("  RMSE: %s\n", formatEuro(scores["rmse"]))
	fmt.Printf("  MSE:  %.2f\n", scores["mse"])
	if trainNoSave {
		return nil
	}
	a, err := tr.Artifact()
	if err != nil {
		return err
	}
	path := modelPath(m.Name())
	if err := a.Save(path); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	logger.Debug("model saved", zap.String("path", path))
	fmt.Printf("✓ Saved %s\n", path)
	return nil
}

func trainKinds(s string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "both":
		return []string{model.KindLinear, model.KindForest}, nil
	case model.KindLinear, "lr", "linear_regression":
		return []string{model.KindLinear}, nil
	case model.KindForest, "rf", "forest":
		return []string{model.KindForest}, nil
	}
	return nil, fmt.Errorf("unknown --model %q (use linear, random_forest or all)", s)
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVarP(&trainModel, "model", "m", "all", "model to train: linear, random_forest or all")
	trainCmd.Flags().Float64Var(&trainTestRatio, "test-ratio", 0.2, "held-out fraction (overrides config)")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "shuffle and forest seed (overrides config)")
	trainCmd.Flags().IntVar(&trainTrees, "trees", 100, "random forest trees (overrides config)")
	trainCmd.Flags().IntVar(&trainMaxDepth, "max-depth", 0, "random forest max depth, 0 for unlimited (overrides config)")
	trainCmd.Flags().BoolVar(&trainNoSave, "no-save", false, "do not write the trained models to the cache")
}
