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
	"fmt"
	"math"
	"time"

	"github.com/gorse-io/slim/common/log"
	"github.com/gorse-io/slim/common/progress"
	"github.com/gorse-io/slim/dataset"
	"github.com/gorse-io/slim/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// eps is the spacing of float64 at 1.
const eps = 0x1p-52

var sqrtEps = math.Sqrt(eps)

// WeightMatrix is the learned item-item weight matrix. Entry (i, j) is the
// contribution of an interaction with item i to the score of item j.
type WeightMatrix struct {
	*dataset.Matrix
	// Iterations is the number of updates performed.
	Iterations int
	// Delta is the relative change of the last update, or 0 if none ran.
	Delta float64
	// Converged is true if Delta dropped to the tolerance.
	Converged bool
}

// Trainer learns a nonnegative sparse item-item weight matrix W minimizing
//
//	1/2 ||Y - YW||² + β/2 ||W||² + λ ||W||₁ + γ tr(W)
//
// by multiplicative updates. Hyper-parameters:
//
//	TolX         - stop when the relative change is not larger. Default is 1e-2.
//	Variance     - initial weights are drawn from [0, √Variance). Default is 0.01.
//	MaxIters     - maximum number of updates. Default is 1000.
//	Gamma        - penalty on self-similarity. Default is 10000.
//	RandomState  - seed of the initialization. Default is 0.
//	Threshold    - weights below are set to zero. Default is 1e-5.
//	ZeroDiagonal - force self-similarity to zero. Default is false.
//	Verbose      - log every Verbose iterations. Default is 10.
type Trainer struct {
	model.BaseModel
	// Hyper-parameters
	tolX         float64
	variance     float64
	maxIters     int
	gamma        float64
	threshold    float64
	zeroDiagonal bool
	verbose      int
}

// NewTrainer creates a trainer.
func NewTrainer(params model.Params) *Trainer {
	trainer := new(Trainer)
	trainer.SetParams(params)
	return trainer
}

// SetParams sets hyper-parameters of the trainer.
func (trainer *Trainer) SetParams(params model.Params) {
	trainer.BaseModel.SetParams(params)
	trainer.tolX = trainer.Params.GetFloat64(model.TolX, 1e-2)
	trainer.variance = trainer.Params.GetFloat64(model.Variance, 0.01)
	trainer.maxIters = trainer.Params.GetInt(model.MaxIters, 1000)
	trainer.gamma = trainer.Params.GetFloat64(model.Gamma, 10000)
	trainer.threshold = trainer.Params.GetFloat64(model.Threshold, 1e-5)
	trainer.zeroDiagonal = trainer.Params.GetBool(model.ZeroDiagonal, false)
	trainer.verbose = max(trainer.Params.GetInt(model.Verbose, 10), 1)
}

// Fit learns a weight matrix from the interaction matrix y with the L2 coefficient
// l2Beta and the L1 coefficient l1Lambda. Failing to converge within MaxIters is
// not an error, it is reported by the diagnostics of the result.
func (trainer *Trainer) Fit(ctx context.Context, y *dataset.Matrix, l2Beta, l1Lambda float64) (*WeightMatrix, error) {
	if y == nil {
		return nil, errors.NotValidf("nil interaction matrix")
	}
	nUsers, nItems := y.Dims()
	if nUsers < 1 || nItems < 1 {
		return nil, errors.NotValidf("interaction matrix of shape %dx%d", nUsers, nItems)
	}
	if !(l2Beta >= 0) || math.IsInf(l2Beta, 1) {
		return nil, errors.NotValidf("L2 coefficient %v", l2Beta)
	}
	if !(l1Lambda >= 0) || math.IsInf(l1Lambda, 1) {
		return nil, errors.NotValidf("L1 coefficient %v", l1Lambda)
	}
	if !y.NonNegative() {
		return nil, errors.NotValidf("negative interaction")
	}
	log.Logger().Info("fit oslim",
		zap.Int("n_users", nUsers),
		zap.Int("n_items", nItems),
		zap.Int("n_interactions", y.NNZ()),
		zap.Float64("beta", l2Beta),
		zap.Float64("lambda", l1Lambda),
		zap.Any("params", trainer.GetParams()))

	// Initialize weights
	weights := trainer.GetRandomGenerator().UniformVector64(nItems*nItems, 0, math.Sqrt(trainer.variance))
	w := mat.NewDense(nItems, nItems, weights)
	if trainer.zeroDiagonal {
		clearDiagonal(w)
	}
	// Create buffers
	numer := y.Gram()
	shifted := mat.DenseCopyOf(numer)
	floats.AddConst(l2Beta, shifted.RawMatrix().Data)
	denom := mat.NewDense(nItems, nItems, nil)
	next := mat.NewDense(nItems, nItems, nil)

	result := &WeightMatrix{}
	_, span := progress.Start(ctx, "oSLIM.Fit", trainer.maxIters)
	for iter := 1; iter <= trainer.maxIters; iter++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		fitStart := time.Now()
		// denom = (YᵗY + β)W + λ + ε + γI
		denom.Mul(shifted, w)
		d := denom.RawMatrix().Data
		floats.AddConst(l1Lambda+eps, d)
		for i := 0; i < nItems; i++ {
			d[i*nItems+i] += trainer.gamma
		}
		// W ← W ⊙ YᵗY ⊘ denom
		floats.DivTo(d, numer.RawMatrix().Data, d)
		floats.MulTo(next.RawMatrix().Data, w.RawMatrix().Data, d)
		trainer.clip(next)
		// Relative change in max-norm
		dw := floats.Distance(next.RawMatrix().Data, w.RawMatrix().Data, math.Inf(1)) /
			(sqrtEps + floats.Norm(w.RawMatrix().Data, math.Inf(1)))
		w, next = next, w
		result.Iterations, result.Delta = iter, dw
		span.Add(1)
		if iter%trainer.verbose == 0 {
			log.Logger().Debug(fmt.Sprintf("fit oslim %v/%v", iter, trainer.maxIters),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float64("dw", dw))
		}
		if dw <= trainer.tolX {
			result.Converged = true
			break
		}
	}
	span.End()

	// Drop tiny weights
	raw := w.RawMatrix().Data
	for i, v := range raw {
		if v < trainer.threshold {
			raw[i] = 0
		}
	}
	result.Matrix = dataset.FromDense(w)
	if result.Converged {
		log.Logger().Info("fit oslim complete",
			zap.Int("n_iters", result.Iterations),
			zap.Float64("dw", result.Delta),
			zap.Int("n_weights", result.NNZ()))
	} else {
		log.Logger().Info("fit oslim stopped without convergence",
			zap.Int("n_iters", result.Iterations),
			zap.Float64("dw", result.Delta),
			zap.Float64("tol_x", trainer.tolX),
			zap.Int("n_weights", result.NNZ()))
	}
	return result, nil
}

func (trainer *Trainer) clip(w *mat.Dense) {
	raw := w.RawMatrix().Data
	for i, v := range raw {
		if v < 0 {
			raw[i] = 0
		}
	}
	if trainer.zeroDiagonal {
		clearDiagonal(w)
	}
}

func clearDiagonal(w *mat.Dense) {
	n, _ := w.Dims()
	for i := 0; i < n; i++ {
		w.Set(i, i, 0)
	}
}
