package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

// ArtifactVersion is bumped when the saved layout changes.
const ArtifactVersion = 1

// Artifact is a trained model with everything needed to score new rows.
// Exactly one of Linear or Forest is set, matching Kind.
type Artifact struct {
	Version   int                     `json:"version"`
	Kind      string                  `json:"kind"`
	Target    string                  `json:"target"`
	Features  []dataset.FeatureColumn `json:"features"`
	Encodings []dataset.Encoding      `json:"encodings"`
	Metrics   Metrics                 `json:"metrics,omitempty"`
	TrainedAt time.Time               `json:"trained_at"`
	TestRatio float64                 `json:"test_ratio"`
	Seed      int64                   `json:"seed"`

	Linear *LinearRegression      `json:"linear,omitempty"`
	Forest *RandomForestRegressor `json:"forest,omitempty"`
}

// Save writes the artifact as JSON, creating parent directories.
func (a *Artifact) Save(path string) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return utils.SafeWriteFile(path, b)
}

// LoadArtifact reads a model written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &dataset.FileAccessError{Path: path, Err: err}
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("model %s has version %d, want %d; retrain it", path, a.Version, ArtifactVersion)
	}
	if _, err := a.Model(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &a, nil
}

// Model returns the stored regressor.
func (a *Artifact) Model() (Regressor, error) {
	switch {
	case a.Kind == KindLinear && a.Linear != nil:
		return a.Linear, nil
	case a.Kind == KindForest && a.Forest != nil:
		return a.Forest, nil
	default:
		return nil, fmt.Errorf("artifact of kind %q has no stored model", a.Kind)
	}
}

// Layout rebuilds the training feature layout for AlignRow.
func (a *Artifact) Layout() (*dataset.FeatureTable, error) {
	return dataset.EmptyFeatureTable(a.Features, a.Encodings)
}

// PredictValues aligns user values against the training features and
// predicts. Warnings report values that did not map onto the features.
func (a *Artifact) PredictValues(values map[string]string) (float64, []string, error) {
	m, err := a.Model()
	if err != nil {
		return 0, nil, err
	}
	layout, err := a.Layout()
	if err != nil {
		return 0, nil, err
	}
	row, warnings, err := layout.AlignRow(values)
	if err != nil {
		return 0, warnings, err
	}
	pred, err := predictAligned(m, layout, row)
	if err != nil {
		return 0, warnings, err
	}
	return pred[0], warnings, nil
}
