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

package model

import (
	"encoding/json"
	"fmt"

	"github.com/gorse-io/slim/common/log"
	"github.com/gorse-io/slim/config"
	"go.uber.org/zap"
)

/* ParamName */

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	TolX         ParamName = "TolX"         // relative change tolerance
	Variance     ParamName = "Variance"     // variance of uniform initial weights
	MaxIters     ParamName = "MaxIters"     // maximum number of updates
	Gamma        ParamName = "Gamma"        // diagonal penalty
	RandomState  ParamName = "RandomState"  // random state (seed)
	Threshold    ParamName = "Threshold"    // weights below are zeroed
	ZeroDiagonal ParamName = "ZeroDiagonal" // force self-similarity to zero
	Verbose      ParamName = "Verbose"      // log period in iterations
)

// Params stores hyper-parameters for an model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for oSLIM
// is given by:
//
//	model.Params{
//		model.TolX:     1e-3,
//		model.MaxIters: 50,
//		model.Gamma:    10000,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets a integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int"),
				zap.String("actual", fmt.Sprintf("%T", val)))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int64"),
				zap.String("actual", fmt.Sprintf("%T", val)))
		}
	}
	return _default
}

// GetBool gets a bool parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "bool"),
				zap.String("actual", fmt.Sprintf("%T", val)))
		}
	}
	return _default
}

// GetFloat64 gets a float parameter by name. Integers are converted.
func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "float64"),
				zap.String("actual", fmt.Sprintf("%T", val)))
		}
	}
	return _default
}

func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func (parameters Params) ToString() string {
	b, err := json.Marshal(parameters)
	if err != nil {
		log.Logger().Fatal("failed to marshal params", zap.Error(err))
	}
	return string(b)
}

func NewParamsFromConfig(config *config.TrainConfig) Params {
	return Params{
		TolX:         config.TolX,
		Variance:     config.Variance,
		MaxIters:     config.MaxIters,
		Gamma:        config.Gamma,
		RandomState:  config.RandomState,
		Threshold:    config.Threshold,
		ZeroDiagonal: config.ZeroDiagonal,
		Verbose:      config.Verbose,
	}
}
