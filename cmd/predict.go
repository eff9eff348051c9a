package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/model"
)

var (
	predModel       string
	predMake        string
	predModelName   string
	predDriveConfig string
	predBattery     float64
	predSeats       int
	predSet         []string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the German list price of a vehicle with a trained model",
	Example: `  evinsights predict --make Tesla --drive-config AWD --battery 75 --seats 5
  evinsights predict -m linear --set top_speed=233 --set range=560`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		values, err := parseAssignments(predSet)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("make") {
			values["make"] = predMake
		}
		if f.Changed("vehicle") {
			values["model"] = predModelName
		}
		if f.Changed("drive-config") {
			values["drive_config"] = predDriveConfig
		}
		if f.Changed("battery") {
			values["battery"] = strconv.FormatFloat(predBattery, 'f', -1, 64)
		}
		if f.Changed("seats") {
			values["seats"] = strconv.Itoa(predSeats)
		}
		if len(values) == 0 {
			return errors.New("no vehicle attributes given; use --make, --battery, --set column=value, ...")
		}

		kinds, err := trainKinds(predModel)
		if err != nil {
			return err
		}
		if len(kinds) != 1 {
			return errors.New("--model must name one model: linear or random_forest")
		}
		price, warnings, err := predictWith(kinds[0], values)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "⚠ %s\n", w)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Predicted Price (Germany, before incentives): %s\n", formatEuro(price))
		return nil
	},
}

// predictWith loads the saved model of kind and scores one vehicle.
func predictWith(kind string, values map[string]string) (float64, []string, error) {
	path := modelPath(kind)
	a, err := model.LoadArtifact(path)
	if err != nil {
		if errors.Is(err, dataset.ErrFileAccess) {
			return 0, nil, fmt.Errorf("no trained %s model at %s; run: evinsights train --model %s", kind, path, kind)
		}
		return 0, nil, err
	}
	done := pipeline.Time("predict")
	defer done()
	return a.PredictValues(values)
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringVarP(&predModel, "model", "m", model.KindForest, "trained model to use: linear or random_forest")
	predictCmd.Flags().StringVar(&predMake, "make", "", "manufacturer, e.g. Tesla")
	predictCmd.Flags().StringVar(&predModelName, "vehicle", "", "vehicle model name, when the model was trained with one")
	predictCmd.Flags().StringVar(&predDriveConfig, "drive-config", "", "drive configuration: AWD, RWD or FWD")
	predictCmd.Flags().Float64Var(&predBattery, "battery", 0, "battery capacity in kWh")
	predictCmd.Flags().IntVar(&predSeats, "seats", 0, "number of seats")
	predictCmd.Flags().StringArrayVar(&predSet, "set", nil, "any feature as column=value (repeatable)")
}
