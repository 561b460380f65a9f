// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slim

import (
	"context"
	"math"
	"testing"

	"github.com/gorse-io/slim/base"
	"github.com/gorse-io/slim/common/progress"
	"github.com/gorse-io/slim/dataset"
	"github.com/gorse-io/slim/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var _ model.Model = (*Trainer)(nil)

func newInteractions() *dataset.Matrix {
	return dataset.FromDense(mat.NewDense(3, 4, []float64{
		1, 1, 0, 0,
		0, 1, 1, 0,
		1, 0, 0, 1,
	}))
}

func TestTrainer_Fit(t *testing.T) {
	y := newInteractions()
	trainer := NewTrainer(model.Params{
		model.TolX:     1e-3,
		model.MaxIters: 50,
	})
	w, err := trainer.Fit(context.Background(), y, 0.1, 0.1)
	require.NoError(t, err)
	rows, cols := w.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	assert.GreaterOrEqual(t, w.Iterations, 1)
	assert.LessOrEqual(t, w.Iterations, 50)
	assert.Equal(t, w.Delta <= 1e-3, w.Converged)
	w.ForEach(func(i, j int, v float64) {
		assert.GreaterOrEqual(t, v, 1e-5)
	})

	// evaluate on held-out items
	test := dataset.NewMatrixFromRows(4,
		[][]int{{2}, {3}, {1}},
		[][]float64{{1}, {1}, {1}})
	evaluator, err := NewEvaluator(y, test, NewEvalConfig())
	require.NoError(t, err)
	metrics, err := evaluator.Evaluate(context.Background(), w.Matrix, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.Users)
	assert.GreaterOrEqual(t, metrics.HitRate, 0.0)
	assert.LessOrEqual(t, metrics.HitRate, 1.0)
	assert.GreaterOrEqual(t, metrics.ARHR, 0.0)
	assert.LessOrEqual(t, metrics.ARHR, metrics.HitRate)
}

func TestTrainer_MaxItersZero(t *testing.T) {
	trainer := NewTrainer(model.Params{
		model.MaxIters:    0,
		model.RandomState: 1,
		model.Variance:    0.01,
		model.Threshold:   0.05,
	})
	w, err := trainer.Fit(context.Background(), newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	assert.Zero(t, w.Iterations)
	assert.Zero(t, w.Delta)
	assert.False(t, w.Converged)
	expected := base.NewRandomGenerator(1).UniformVector64(16, 0, math.Sqrt(0.01))
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if v := expected[i*4+j]; v < 0.05 {
				assert.Zero(t, w.At(i, j))
			} else {
				assert.Equal(t, v, w.At(i, j))
			}
		}
	}
}

func TestTrainer_InfiniteTolerance(t *testing.T) {
	trainer := NewTrainer(model.Params{
		model.TolX: math.Inf(1),
	})
	w, err := trainer.Fit(context.Background(), newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Iterations)
	assert.True(t, w.Converged)
}

func TestTrainer_RandomState(t *testing.T) {
	params := model.Params{
		model.MaxIters:    20,
		model.RandomState: 42,
	}
	a, err := NewTrainer(params).Fit(context.Background(), newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	b, err := NewTrainer(params).Fit(context.Background(), newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, a.Matrix, b.Matrix)
	assert.Equal(t, a.Iterations, b.Iterations)
}

func TestTrainer_Diagonal(t *testing.T) {
	// self-similarity is suppressed by the penalty
	trainer := NewTrainer(model.Params{
		model.TolX:     0.0,
		model.MaxIters: 5,
	})
	w, err := trainer.Fit(context.Background(), newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.Zero(t, w.At(i, i))
	}

	// self-similarity is forced to zero
	trainer = NewTrainer(model.Params{
		model.Gamma:        0.0,
		model.MaxIters:     20,
		model.ZeroDiagonal: true,
	})
	w, err = trainer.Fit(context.Background(), newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.Zero(t, w.At(i, i))
	}
	assert.True(t, w.NonNegative())
}

func TestTrainer_Invalid(t *testing.T) {
	trainer := NewTrainer(nil)
	ctx := context.Background()
	// empty shapes
	_, err := trainer.Fit(ctx, nil, 0.1, 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = trainer.Fit(ctx, dataset.NewMatrixFromRows(4, nil, nil), 0.1, 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = trainer.Fit(ctx, dataset.NewMatrixFromRows(0, [][]int{{}}, [][]float64{{}}), 0.1, 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	// negative regularization
	_, err = trainer.Fit(ctx, newInteractions(), -0.1, 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = trainer.Fit(ctx, newInteractions(), 0.1, -0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = trainer.Fit(ctx, newInteractions(), math.NaN(), 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	// negative interactions
	y, err := dataset.NewMatrix(1, 2, []int{0}, []int{1}, []float64{-1})
	require.NoError(t, err)
	_, err = trainer.Fit(ctx, y, 0.1, 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestTrainer_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(nil).Fit(ctx, newInteractions(), 0.1, 0.1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainer_SetParams(t *testing.T) {
	trainer := NewTrainer(nil)
	assert.Equal(t, 1e-2, trainer.tolX)
	assert.Equal(t, 0.01, trainer.variance)
	assert.Equal(t, 1000, trainer.maxIters)
	assert.Equal(t, 10000.0, trainer.gamma)
	assert.Equal(t, 1e-5, trainer.threshold)
	assert.False(t, trainer.zeroDiagonal)
	assert.Equal(t, 10, trainer.verbose)

	trainer.SetParams(model.Params{model.MaxIters: 3, model.Verbose: 0})
	assert.Equal(t, 3, trainer.maxIters)
	assert.Equal(t, 1, trainer.verbose)
}

func TestTrainer_Progress(t *testing.T) {
	tracer := progress.NewTracer("test")
	ctx, span := tracer.Start(context.Background(), "root", 1)
	_, err := NewTrainer(model.Params{model.MaxIters: 3, model.TolX: 0.0}).Fit(ctx, newInteractions(), 0.1, 0.1)
	require.NoError(t, err)
	span.End()
	list := tracer.List()
	require.Len(t, list, 1)
	assert.Equal(t, "root", list[0].Name)
	assert.Equal(t, progress.StatusComplete, list[0].Status)

	// cancellation fails the span
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewTrainer(nil).Fit(ctx, newInteractions(), 0.1, 0.1)
	assert.Error(t, err)
	assert.Equal(t, progress.StatusFailed, tracer.List()[0].Status)
}

func TestTrainer_FitOneIteration(t *testing.T) {
	const (
		seed   = 3
		beta   = 0.1
		lambda = 0.2
		gamma  = 2.0
	)
	y := newInteractions()
	trainer := NewTrainer(model.Params{
		model.RandomState: seed,
		model.MaxIters:    1,
		model.TolX:        0.0,
		model.Threshold:   0.0,
		model.Gamma:       gamma,
	})
	w, err := trainer.Fit(context.Background(), y, beta, lambda)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Iterations)

	// W ⊙ YᵗY ⊘ ((YᵗY + β)W + λ + ε + γI)
	epsilon := math.Nextafter(1, 2) - 1
	w0 := mat.NewDense(4, 4, base.NewRandomGenerator(seed).UniformVector64(16, 0, math.Sqrt(0.01)))
	yd := y.Dense()
	var numer, shifted, denom mat.Dense
	numer.Mul(yd.T(), yd)
	shifted.Apply(func(_, _ int, v float64) float64 { return v + beta }, &numer)
	denom.Mul(&shifted, w0)
	var maxChange, maxInit float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d := denom.At(i, j) + lambda + epsilon
			if i == j {
				d += gamma
			}
			expected := w0.At(i, j) * numer.At(i, j) / d
			assert.InDelta(t, expected, w.At(i, j), 1e-12)
			maxChange = math.Max(maxChange, math.Abs(expected-w0.At(i, j)))
			maxInit = math.Max(maxInit, math.Abs(w0.At(i, j)))
		}
	}
	assert.InDelta(t, maxChange/(math.Sqrt(epsilon)+maxInit), w.Delta, 1e-12)
	assert.Equal(t, w.Delta <= 0, w.Converged)
}
