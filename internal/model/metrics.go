package model

import (
	"fmt"
	"math"
)

// Metrics maps metric name (mae, mse, rmse, r2) to its value.
type Metrics map[string]float64

func MAE(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		s += math.Abs(yPred[i] - yTrue[i])
	}
	return s / float64(len(yTrue))
}

func MSE(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}

func RMSE(yTrue, yPred []float64) float64 { return math.Sqrt(MSE(yTrue, yPred)) }

// R2 is the coefficient of determination. A constant yTrue scores 1 when
// predicted exactly and 0 otherwise.
func R2(yTrue, yPred []float64) float64 {
	var m float64
	for _, v := range yTrue {
		m += v
	}
	m /= float64(len(yTrue))
	var ssTot, ssRes float64
	for i := range yTrue {
		d := yTrue[i] - m
		ssTot += d * d
		r := yTrue[i] - yPred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// Score computes every metric for a prediction.
func Score(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("score: no samples")
	}
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("score: %d targets but %d predictions", len(yTrue), len(yPred))
	}
	mse := MSE(yTrue, yPred)
	return Metrics{
		"mae":  MAE(yTrue, yPred),
		"mse":  mse,
		"rmse": math.Sqrt(mse),
		"r2":   R2(yTrue, yPred),
	}, nil
}
