// Package model trains and evaluates the price regressors.
package model

import (
	"fmt"
	"math"
	"math/rand"
)

// Split is a train/test partition of a feature matrix and its target.
type Split struct {
	XTrain, XTest [][]float64
	YTrain, YTest []float64
}

// TrainTestSplit shuffles rows with seed and holds out ceil(n*testRatio) of
// them for testing. Rows are shared, not copied.
func TrainTestSplit(X [][]float64, y []float64, testRatio float64, seed int64) (*Split, error) {
	n := len(X)
	if n != len(y) {
		return nil, fmt.Errorf("split: %d feature rows but %d targets", n, len(y))
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, fmt.Errorf("split: test ratio must be in (0, 1), got %g", testRatio)
	}
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest < 1 || n-nTest < 1 {
		return nil, fmt.Errorf("split: %d rows is too few for a test ratio of %g", n, testRatio)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	s := &Split{
		XTest:  make([][]float64, 0, nTest),
		YTest:  make([]float64, 0, nTest),
		XTrain: make([][]float64, 0, n-nTest),
		YTrain: make([]float64, 0, n-nTest),
	}
	for i, idx := range perm {
		if i < nTest {
			s.XTest = append(s.XTest, X[idx])
			s.YTest = append(s.YTest, y[idx])
		} else {
			s.XTrain = append(s.XTrain, X[idx])
			s.YTrain = append(s.YTrain, y[idx])
		}
	}
	return s, nil
}
