package model

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
)

func TestTrainTestSplit(t *testing.T) {
	X := make([][]float64, 10)
	y := make([]float64, 10)
	for i := range X {
		X[i] = []float64{float64(i)}
		y[i] = float64(i)
	}
	s, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, s.XTest, 2)
	assert.Len(t, s.XTrain, 8)
	for i, row := range s.XTrain {
		assert.Equal(t, row[0], s.YTrain[i], "rows and targets move together")
	}

	again, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, s.YTest, again.YTest, "same seed, same split")

	_, err = TrainTestSplit(X, y, 0, 42)
	assert.Error(t, err)
	_, err = TrainTestSplit(X[:1], y[:1], 0.2, 42)
	assert.Error(t, err)
	_, err = TrainTestSplit(X, y[:3], 0.2, 42)
	assert.Error(t, err)
}

func TestSplitPartitionsRows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 60).Draw(t, "n")
		ratio := rapid.Float64Range(0.05, 0.5).Draw(t, "ratio")
		X := make([][]float64, n)
		y := make([]float64, n)
		for i := range X {
			X[i] = []float64{float64(i)}
			y[i] = float64(i)
		}
		s, err := TrainTestSplit(X, y, ratio, rapid.Int64().Draw(t, "seed"))
		if err != nil {
			return
		}
		if len(s.YTest) != int(math.Ceil(float64(n)*ratio)) {
			t.Fatalf("test size %d for n=%d ratio=%g", len(s.YTest), n, ratio)
		}
		seen := map[float64]bool{}
		for _, v := range append(append([]float64(nil), s.YTrain...), s.YTest...) {
			if seen[v] {
				t.Fatalf("row %v appears twice", v)
			}
			seen[v] = true
		}
		if len(seen) != n {
			t.Fatalf("lost rows: %d of %d", len(seen), n)
		}
	})
}

func TestLinearRegressionExact(t *testing.T) {
	// y = 3 + 2a - b
	X := [][]float64{{1, 0}, {2, 1}, {3, 5}, {4, 2}, {0, 3}}
	y := make([]float64, len(X))
	for i, r := range X {
		y[i] = 3 + 2*r[0] - r[1]
	}
	m := NewLinearRegression()
	require.NoError(t, m.Fit(context.Background(), X, y))
	assert.InDelta(t, 3, m.Intercept, 1e-9)
	assert.InDeltaSlice(t, []float64{2, -1}, m.Coef, 1e-9)

	pred, err := m.Predict([][]float64{{10, 4}})
	require.NoError(t, err)
	assert.InDelta(t, 19, pred[0], 1e-9)

	_, err = m.Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestLinearRegressionRankDeficient(t *testing.T) {
	// Second column duplicates the first and the third never varies.
	X := [][]float64{{1, 1, 0}, {2, 2, 0}, {3, 3, 0}, {4, 4, 0}}
	y := []float64{2, 4, 6, 8}
	m := NewLinearRegression()
	require.NoError(t, m.Fit(context.Background(), X, y))
	assert.InDelta(t, 1, m.Coef[0], 1e-9)
	assert.InDelta(t, 1, m.Coef[1], 1e-9)
	assert.InDelta(t, 0, m.Coef[2], 1e-12)
	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, pred, 1e-9)
}

func TestLinearRegressionNoFeatures(t *testing.T) {
	m := NewLinearRegression()
	require.NoError(t, m.Fit(context.Background(), [][]float64{{}, {}}, []float64{1, 3}))
	pred, err := m.Predict([][]float64{{}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, pred)
}

func TestUnfittedPredict(t *testing.T) {
	_, err := NewLinearRegression().Predict([][]float64{{1}})
	assert.ErrorIs(t, err, errNotFitted)
	_, err = NewRandomForestRegressor().Predict([][]float64{{1}})
	assert.ErrorIs(t, err, errNotFitted)
}

func stepData(n int, seed int64) ([][]float64, []float64) {
	rnd := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		a, b := rnd.Float64()*10, rnd.Float64()*10
		X[i] = []float64{a, b}
		y[i] = 100
		if a > 5 {
			y[i] = 200
		}
	}
	return X, y
}

func TestRandomForestLearnsStep(t *testing.T) {
	X, y := stepData(200, 1)
	f := NewRandomForestRegressor(WithEstimators(20), WithRandomState(7))
	require.NoError(t, f.Fit(context.Background(), X, y))
	assert.Len(t, f.Trees, 20)

	pred, err := f.Predict([][]float64{{1, 5}, {9, 5}})
	require.NoError(t, err)
	assert.InDelta(t, 100, pred[0], 10)
	assert.InDelta(t, 200, pred[1], 10)
}

func TestRandomForestDeterministic(t *testing.T) {
	X, y := stepData(80, 3)
	probe := [][]float64{{4.9, 1}, {5.1, 9}, {2, 2}}

	a := NewRandomForestRegressor(WithEstimators(10), WithMaxFeatures(1), WithWorkers(1))
	b := NewRandomForestRegressor(WithEstimators(10), WithMaxFeatures(1), WithWorkers(8))
	require.NoError(t, a.Fit(context.Background(), X, y))
	require.NoError(t, b.Fit(context.Background(), X, y))
	pa, err := a.Predict(probe)
	require.NoError(t, err)
	pb, err := b.Predict(probe)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestRandomForestMaxDepth(t *testing.T) {
	X, y := stepData(50, 5)
	f := NewRandomForestRegressor(WithEstimators(3), WithMaxDepth(1))
	require.NoError(t, f.Fit(context.Background(), X, y))
	for _, tree := range f.Trees {
		assert.LessOrEqual(t, len(tree.Nodes), 3)
	}
}

func TestRandomForestCancelled(t *testing.T) {
	X, y := stepData(20, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRandomForestRegressor(WithEstimators(5)).Fit(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScore(t *testing.T) {
	m, err := Score([]float64{1, 2, 3}, []float64{1, 2, 5})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, m["mae"], 1e-12)
	assert.InDelta(t, 4.0/3, m["mse"], 1e-12)
	assert.InDelta(t, math.Sqrt(4.0/3), m["rmse"], 1e-12)
	assert.InDelta(t, 1-4.0/2, m["r2"], 1e-12)

	assert.Equal(t, 1.0, R2([]float64{5, 5}, []float64{5, 5}))
	assert.Equal(t, 0.0, R2([]float64{5, 5}, []float64{4, 5}))

	_, err = Score(nil, nil)
	assert.Error(t, err)
	_, err = Score([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

type scoreSink map[string]map[string]float64

func (s scoreSink) ObserveScores(model string, scores map[string]float64) { s[model] = scores }

func listingFeatures(t *testing.T) (*dataset.FeatureTable, *dataset.Series) {
	t.Helper()
	n := 40
	battery := make([]float64, n)
	drive := make([]string, n)
	price := make([]float64, n)
	for i := 0; i < n; i++ {
		battery[i] = 40 + float64(i)
		drive[i] = "RWD"
		if i%2 == 0 {
			drive[i] = "AWD"
		}
		price[i] = 10000 + 500*battery[i]
		if drive[i] == "AWD" {
			price[i] += 5000
		}
	}
	tbl := dataset.MustTable(
		dataset.Floats("battery", battery...),
		dataset.Strings("drive_config", drive...),
		dataset.Floats("price_de", price...),
	)
	f, y, err := dataset.Split(tbl, "price_de")
	require.NoError(t, err)
	return f, y
}

func TestTrainerLifecycle(t *testing.T) {
	features, target := listingFeatures(t)
	sink := scoreSink{}
	tr := NewTrainer(NewLinearRegression(), WithObserver(sink))

	require.ErrorIs(t, tr.Fit(context.Background()), dataset.ErrState)
	_, err := tr.Evaluate()
	require.ErrorIs(t, err, dataset.ErrState)
	_, err = tr.Artifact()
	require.ErrorIs(t, err, dataset.ErrState)

	require.NoError(t, tr.SplitData(features, target))
	require.NoError(t, tr.Fit(context.Background()))
	m, err := tr.Evaluate()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m["r2"], 1e-9)
	assert.Contains(t, sink, KindLinear)

	row, warnings, err := tr.Layout().AlignRow(map[string]string{"battery": "60", "drive_config": "RWD"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	pred, err := tr.Predict(row)
	require.NoError(t, err)
	assert.InDelta(t, 40000, pred[0], 1e-6)

	bad := dataset.MustTable(dataset.Floats("seats", 5))
	_, err = tr.Predict(&dataset.FeatureTable{Table: bad})
	assert.ErrorIs(t, err, dataset.ErrSchema)
}

func TestArtifactRoundTrip(t *testing.T) {
	features, target := listingFeatures(t)
	for _, kind := range []string{KindLinear, KindForest} {
		t.Run(kind, func(t *testing.T) {
			m, err := New(kind, 10, 0, 42)
			require.NoError(t, err)
			tr := NewTrainer(m)
			require.NoError(t, tr.SplitData(features, target))
			require.NoError(t, tr.Fit(context.Background()))
			_, err = tr.Evaluate()
			require.NoError(t, err)

			a, err := tr.Artifact()
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), "models", kind+".json")
			require.NoError(t, a.Save(path))

			loaded, err := LoadArtifact(path)
			require.NoError(t, err)
			assert.Equal(t, kind, loaded.Kind)
			assert.Equal(t, "price_de", loaded.Target)
			assert.Equal(t, a.Metrics, loaded.Metrics)

			values := map[string]string{"battery": "50", "drive_config": "AWD"}
			row, _, err := tr.Layout().AlignRow(values)
			require.NoError(t, err)
			want, err := tr.Predict(row)
			require.NoError(t, err)
			got, warnings, err := loaded.PredictValues(values)
			require.NoError(t, err)
			assert.Empty(t, warnings)
			assert.InDelta(t, want[0], got, 1e-9)

			_, warnings, err = loaded.PredictValues(map[string]string{"battery": "50", "drive_config": "FWD"})
			require.NoError(t, err)
			assert.Len(t, warnings, 1)
		})
	}
}

func TestLoadArtifactErrors(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, dataset.ErrFileAccess)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, (&Artifact{Version: ArtifactVersion, Kind: KindForest}).Save(path))
	_, err = LoadArtifact(path)
	assert.Error(t, err)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("svm", 0, 0, 1)
	assert.Error(t, err)
	m, err := New("rf", 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, m.(*RandomForestRegressor).NEstimators)
}
