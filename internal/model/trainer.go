package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
)

// Model kinds as accepted on the command line and stored in artifacts.
const (
	KindLinear = "linear"
	KindForest = "random_forest"
)

var errNotFitted = errors.New("model is not fitted")

// Regressor is a trainable single-target regression model.
type Regressor interface {
	Name() string
	Fit(ctx context.Context, X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

// New returns an unfitted regressor of the given kind.
func New(kind string, trees, maxDepth int, seed int64) (Regressor, error) {
	switch kind {
	case KindLinear, "lr", "linear_regression":
		return NewLinearRegression(), nil
	case KindForest, "rf", "forest":
		opts := []ForestOption{WithRandomState(seed), WithMaxDepth(maxDepth)}
		if trees > 0 {
			opts = append(opts, WithEstimators(trees))
		}
		return NewRandomForestRegressor(opts...), nil
	default:
		return nil, fmt.Errorf("unknown model %q (want %s or %s)", kind, KindLinear, KindForest)
	}
}

// Observer receives evaluation scores.
type Observer interface {
	ObserveScores(model string, scores map[string]float64)
}

// Trainer holds one regressor through split, fit, evaluate and predict.
type Trainer struct {
	model     Regressor
	testRatio float64
	seed      int64
	logger    *zap.Logger
	observer  Observer

	target   string
	layout   *dataset.FeatureTable
	split    *Split
	fitted   bool
	metrics  Metrics
	fittedAt time.Time
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithTestRatio sets the held-out fraction. The default is 0.2.
func WithTestRatio(r float64) TrainerOption { return func(t *Trainer) { t.testRatio = r } }

// WithSeed sets the shuffle seed. The default is 42.
func WithSeed(s int64) TrainerOption { return func(t *Trainer) { t.seed = s } }

func WithTrainerLogger(l *zap.Logger) TrainerOption {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithObserver(o Observer) TrainerOption { return func(t *Trainer) { t.observer = o } }

// NewTrainer wraps m.
func NewTrainer(m Regressor, opts ...TrainerOption) *Trainer {
	t := &Trainer{model: m, testRatio: 0.2, seed: 42, logger: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	t.logger = t.logger.With(zap.String("model", m.Name()))
	return t
}

// Model returns the wrapped regressor.
func (t *Trainer) Model() Regressor { return t.model }

// SplitData partitions the features and target into train and test rows.
func (t *Trainer) SplitData(features *dataset.FeatureTable, target *dataset.Series) error {
	if features == nil || target == nil {
		return &dataset.StateError{Op: "split data", Reason: "no features; clean and split the table first"}
	}
	s, err := TrainTestSplit(features.Matrix(), target.Values, t.testRatio, t.seed)
	if err != nil {
		return err
	}
	layout, err := dataset.EmptyFeatureTable(features.Layout(), features.Encodings)
	if err != nil {
		return err
	}
	t.split, t.layout, t.target = s, layout, target.Name
	t.fitted, t.metrics = false, nil
	t.logger.Debug("split data",
		zap.Int("train", len(s.XTrain)),
		zap.Int("test", len(s.XTest)),
		zap.Int("features", features.NumCols()))
	return nil
}

// Fit trains on the training rows.
func (t *Trainer) Fit(ctx context.Context) error {
	if t.split == nil {
		return &dataset.StateError{Op: "fit", Reason: "data has not been split"}
	}
	start := time.Now()
	if err := t.model.Fit(ctx, t.split.XTrain, t.split.YTrain); err != nil {
		return fmt.Errorf("fit %s: %w", t.model.Name(), err)
	}
	t.fitted, t.fittedAt = true, time.Now()
	t.logger.Info("model fitted", zap.Duration("took", time.Since(start)))
	return nil
}

// Evaluate scores the model on the held-out rows.
func (t *Trainer) Evaluate() (Metrics, error) {
	if !t.fitted {
		return nil, &dataset.StateError{Op: "evaluate", Reason: "model is not fitted"}
	}
	pred, err := t.model.Predict(t.split.XTest)
	if err != nil {
		return nil, err
	}
	m, err := Score(t.split.YTest, pred)
	if err != nil {
		return nil, err
	}
	t.metrics = m
	if t.observer != nil {
		t.observer.ObserveScores(t.model.Name(), m)
	}
	t.logger.Info("model evaluated",
		zap.Float64("mae", m["mae"]),
		zap.Float64("rmse", m["rmse"]),
		zap.Float64("r2", m["r2"]))
	return m, nil
}

// Predict scores feature rows whose columns match the training features.
func (t *Trainer) Predict(rows *dataset.FeatureTable) ([]float64, error) {
	if !t.fitted {
		return nil, &dataset.StateError{Op: "predict", Reason: "model is not fitted"}
	}
	return predictAligned(t.model, t.layout, rows)
}

// Layout returns a zero-row feature table with the training columns, for
// building prediction rows with AlignRow.
func (t *Trainer) Layout() *dataset.FeatureTable { return t.layout }

// Artifact captures the fitted model and its feature layout for Save.
func (t *Trainer) Artifact() (*Artifact, error) {
	if !t.fitted {
		return nil, &dataset.StateError{Op: "save model", Reason: "model is not fitted"}
	}
	a := &Artifact{
		Version:   ArtifactVersion,
		Kind:      t.model.Name(),
		Target:    t.target,
		Features:  t.layout.Layout(),
		Encodings: t.layout.Encodings,
		Metrics:   t.metrics,
		TrainedAt: t.fittedAt,
		TestRatio: t.testRatio,
		Seed:      t.seed,
	}
	switch m := t.model.(type) {
	case *LinearRegression:
		a.Linear = m
	case *RandomForestRegressor:
		a.Forest = m
	default:
		return nil, fmt.Errorf("cannot save model of type %T", t.model)
	}
	return a, nil
}

func predictAligned(m Regressor, layout, rows *dataset.FeatureTable) ([]float64, error) {
	if rows == nil {
		return nil, errors.New("no rows to predict")
	}
	want, got := layout.Names(), rows.Names()
	if len(want) != len(got) {
		return nil, &dataset.SchemaError{Reason: fmt.Sprintf("prediction rows have %d features, model was trained on %d", len(got), len(want))}
	}
	for i := range want {
		if want[i] != got[i] {
			return nil, &dataset.SchemaError{Column: got[i], Reason: fmt.Sprintf("feature %d should be %q", i, want[i])}
		}
	}
	return m.Predict(rows.Matrix())
}

func checkXY(X [][]float64, y []float64) (n, p int, err error) {
	n = len(X)
	if n == 0 {
		return 0, 0, errors.New("no training rows")
	}
	if len(y) != n {
		return 0, 0, fmt.Errorf("%d feature rows but %d targets", n, len(y))
	}
	p = len(X[0])
	for i, row := range X {
		if len(row) != p {
			return 0, 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), p)
		}
	}
	return n, p, nil
}
