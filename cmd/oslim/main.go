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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorse-io/slim/cmd/version"
	"github.com/gorse-io/slim/common/log"
	"github.com/gorse-io/slim/common/progress"
	"github.com/gorse-io/slim/config"
	"github.com/gorse-io/slim/dataset"
	"github.com/gorse-io/slim/model"
	"github.com/gorse-io/slim/model/slim"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var topNChoices = []int{5, 10, 15, 20, 25}

var rootCommand = &cobra.Command{
	Use:     "oslim",
	Short:   "Train oSLIM and evaluate it by hit rate and average reciprocal hit rate.",
	Example: "  oslim -t train.mat -s test.mat -b 0.5 -l 4 -n 10",
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			return
		}
		if missing := missingFlags(cmd.PersistentFlags()); len(missing) > 0 {
			log.Logger().Fatal("required flags not set", zap.Strings("flags", missing))
		}

		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		trainPath, _ := cmd.PersistentFlags().GetString("training")
		testPath, _ := cmd.PersistentFlags().GetString("testing")
		beta, _ := cmd.PersistentFlags().GetFloat64("beta")
		lambda, _ := cmd.PersistentFlags().GetFloat64("lambda")
		topN, _ := cmd.PersistentFlags().GetInt("topn")
		outputDir, _ := cmd.PersistentFlags().GetString("output-dir")
		if !lo.Contains(topNChoices, topN) {
			log.Logger().Fatal("invalid top n", zap.Int("topn", topN), zap.Ints("choices", topNChoices))
		}

		// load matrices
		train, err := loadMatrix(trainPath, 0, 0)
		if err != nil {
			log.Logger().Fatal("failed to load training matrix", zap.Error(err))
		}
		nUsers, nItems := train.Dims()
		test, err := loadMatrix(testPath, nUsers, nItems)
		if err != nil {
			log.Logger().Fatal("failed to load testing matrix", zap.Error(err))
		}
		log.Logger().Info("load matrices",
			zap.Int("n_users", nUsers),
			zap.Int("n_items", nItems),
			zap.Int("n_train", train.NNZ()),
			zap.Int("n_test", test.NNZ()))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		tracer := progress.NewTracer("oslim")
		ctx, span := tracer.Start(ctx, "oSLIM", 2)

		// train
		trainer := slim.NewTrainer(model.NewParamsFromConfig(&conf.Train))
		w, err := trainer.Fit(ctx, train, beta, lambda)
		if err != nil {
			log.Logger().Fatal("failed to train oslim", zap.Error(err))
		}
		span.Add(1)

		// evaluate
		evalConfig := slim.NewEvalConfig().
			SetRankSize(conf.Evaluate.RankSize).
			SetJobs(conf.Evaluate.Jobs).
			SetEmptyTestRow(slim.EmptyRowPolicy(conf.Evaluate.EmptyTestRow))
		evaluator, err := slim.NewEvaluator(train, test, evalConfig)
		if err != nil {
			log.Logger().Fatal("failed to create evaluator", zap.Error(err))
		}
		metrics, err := evaluator.Evaluate(ctx, w.Matrix, topN)
		if err != nil {
			log.Logger().Fatal("failed to evaluate oslim", zap.Error(err))
		}
		span.End()
		for _, p := range tracer.List() {
			log.Logger().Info("complete oslim",
				zap.String("status", string(p.Status)),
				zap.String("time", p.FinishTime.Sub(p.StartTime).String()))
		}

		// dump results
		report := &Report{
			Beta:    beta,
			Lambda:  lambda,
			TopN:    topN,
			Metrics: metrics,
			Weights: w,
		}
		if err = report.Render(os.Stdout); err != nil {
			log.Logger().Fatal("failed to render results", zap.Error(err))
		}
		if err = report.Save(outputDir); err != nil {
			log.Logger().Fatal("failed to save results", zap.Error(err))
		}
		log.Logger().Info("save results", zap.String("output_dir", outputDir))
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().BoolP("version", "v", false, "oslim version")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().StringP("training", "t", "", "path of the training matrix")
	rootCommand.PersistentFlags().StringP("testing", "s", "", "path of the testing matrix")
	rootCommand.PersistentFlags().Float64P("beta", "b", 0, "L2 regularization coefficient")
	rootCommand.PersistentFlags().Float64P("lambda", "l", 0, "L1 regularization coefficient")
	rootCommand.PersistentFlags().IntP("topn", "n", 10, "length of recommendation lists (5, 10, 15, 20 or 25)")
	rootCommand.PersistentFlags().String("output-dir", ".", "directory of the report and the trained weights")
}

var requiredFlags = []string{"training", "testing", "beta", "lambda", "topn"}

// missingFlags returns required flags not given on the command line.
func missingFlags(flagSet *pflag.FlagSet) []string {
	return lo.Filter(requiredFlags, func(name string, _ int) bool {
		return !flagSet.Changed(name)
	})
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

// loadMatrix loads a matrix from a text file with a progress bar over bytes read.
func loadMatrix(path string, rows, cols int) (*dataset.Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Trace(err)
	}
	pbReader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), "Loading "+path))
	m, err := dataset.LoadMatrix(&pbReader, rows, cols)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load %s", path)
	}
	return m, nil
}
