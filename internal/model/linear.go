package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// rankTol is the singular value cutoff relative to the largest one.
const rankTol = 1e-10

// LinearRegression is ordinary least squares with an intercept. Rank-deficient
// designs, such as one-hot columns that never vary in the training rows, get
// the minimum-norm solution.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewLinearRegression returns an unfitted model.
func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

// Name implements Regressor.
func (m *LinearRegression) Name() string { return KindLinear }

// Fit centers X and y, solves the least squares problem by SVD and recovers
// the intercept from the column means.
func (m *LinearRegression) Fit(_ context.Context, X [][]float64, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	xMean := make([]float64, p)
	var yMean float64
	for i, row := range X {
		for j, v := range row {
			xMean[j] += v
		}
		yMean += y[i]
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean /= float64(n)

	m.Coef = make([]float64, p)
	m.Intercept = yMean
	if p == 0 {
		return nil
	}

	a := mat.NewDense(n, p, nil)
	b := mat.NewDense(n, 1, nil)
	for i, row := range X {
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}
		b.Set(i, 0, y[i]-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.New("linear regression: SVD did not converge")
	}
	rank := svd.Rank(rankTol)
	if rank > 0 {
		var beta mat.Dense
		svd.SolveTo(&beta, b, rank)
		for j := range m.Coef {
			m.Coef[j] = beta.At(j, 0)
		}
	}
	for j, c := range m.Coef {
		m.Intercept -= c * xMean[j]
	}
	if math.IsNaN(m.Intercept) {
		return errors.New("linear regression: solution is not finite")
	}
	return nil
}

// Predict returns X·coef + intercept per row.
func (m *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, errNotFitted
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Coef) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.Coef))
		}
		v := m.Intercept
		for j, x := range row {
			v += m.Coef[j] * x
		}
		out[i] = v
	}
	return out, nil
}
