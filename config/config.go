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

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const envPrefix = "OSLIM"

// Config is the configuration of a training and evaluation run.
type Config struct {
	Train    TrainConfig    `mapstructure:"train"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
}

// TrainConfig holds hyper-parameters fixed for the lifetime of a trainer. The
// regularization coefficients are given per run and are not part of it.
type TrainConfig struct {
	TolX         float64 `mapstructure:"tol_x" validate:"gte=0"`
	Variance     float64 `mapstructure:"variance" validate:"gte=0"`
	MaxIters     int     `mapstructure:"max_iters" validate:"gte=0"`
	Gamma        float64 `mapstructure:"gamma" validate:"gte=0"`
	RandomState  int64   `mapstructure:"random_state"`
	Threshold    float64 `mapstructure:"threshold" validate:"gte=0"`
	ZeroDiagonal bool    `mapstructure:"zero_diagonal"`
	Verbose      int     `mapstructure:"verbose" validate:"gt=0"`
}

type EvaluateConfig struct {
	RankSize     int    `mapstructure:"rank_size" validate:"gt=0"`
	EmptyTestRow string `mapstructure:"empty_test_row" validate:"oneof=skip miss"`
	Jobs         int    `mapstructure:"jobs" validate:"gt=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Train: TrainConfig{
			TolX:      1e-2,
			Variance:  0.01,
			MaxIters:  1000,
			Gamma:     10000,
			Threshold: 1e-5,
			Verbose:   10,
		},
		Evaluate: EvaluateConfig{
			RankSize:     25,
			EmptyTestRow: "skip",
			Jobs:         1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [train]
	v.SetDefault("train.tol_x", defaultConfig.Train.TolX)
	v.SetDefault("train.variance", defaultConfig.Train.Variance)
	v.SetDefault("train.max_iters", defaultConfig.Train.MaxIters)
	v.SetDefault("train.gamma", defaultConfig.Train.Gamma)
	v.SetDefault("train.random_state", defaultConfig.Train.RandomState)
	v.SetDefault("train.threshold", defaultConfig.Train.Threshold)
	v.SetDefault("train.zero_diagonal", defaultConfig.Train.ZeroDiagonal)
	v.SetDefault("train.verbose", defaultConfig.Train.Verbose)
	// [evaluate]
	v.SetDefault("evaluate.rank_size", defaultConfig.Evaluate.RankSize)
	v.SetDefault("evaluate.empty_test_row", defaultConfig.Evaluate.EmptyTestRow)
	v.SetDefault("evaluate.jobs", defaultConfig.Evaluate.Jobs)
}

// LoadConfig loads configuration from a TOML, YAML or JSON file. An empty path loads
// defaults only. Environment variables such as OSLIM_TRAIN_MAX_ITERS override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	return nil
}
