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

	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/slim/common/heap"
	"github.com/gorse-io/slim/common/log"
	"github.com/gorse-io/slim/common/parallel"
	"github.com/gorse-io/slim/common/progress"
	"github.com/gorse-io/slim/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Score computes the sparse score matrix YW. Rows are computed by jobs workers.
func Score(ctx context.Context, y, w *dataset.Matrix, jobs int) (*dataset.Matrix, error) {
	nUsers, nItems := y.Dims()
	wRows, wCols := w.Dims()
	if wRows != nItems || wCols != nItems {
		return nil, errors.NotValidf("weight matrix of shape %dx%d for %d items", wRows, wCols, nItems)
	}
	jobs = max(jobs, 1)
	// Create buffers
	accumulators := make([][]float64, jobs)
	touched := make([]*bitset.BitSet, jobs)
	for i := 0; i < jobs; i++ {
		accumulators[i] = make([]float64, nItems)
		touched[i] = bitset.New(uint(nItems))
	}
	indices := make([][]int, nUsers)
	values := make([][]float64, nUsers)
	err := parallel.Parallel(ctx, nUsers, jobs, func(workerId, userIndex int) error {
		acc, set := accumulators[workerId], touched[workerId]
		items, ratings := y.Row(userIndex)
		for k, i := range items {
			neighbors, weights := w.Row(i)
			for l, j := range neighbors {
				acc[j] += ratings[k] * weights[l]
				set.Set(uint(j))
			}
		}
		for j, ok := set.NextSet(0); ok; j, ok = set.NextSet(j + 1) {
			if acc[j] != 0 {
				indices[userIndex] = append(indices[userIndex], int(j))
				values[userIndex] = append(values[userIndex], acc[j])
			}
			acc[j] = 0
		}
		set.ClearAll()
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return dataset.NewMatrixFromRows(nItems, indices, values), nil
}

// MaskSeen returns a copy of the score matrix s without entries of items that users
// interacted with in y.
func MaskSeen(y, s *dataset.Matrix) (*dataset.Matrix, error) {
	yRows, yCols := y.Dims()
	sRows, sCols := s.Dims()
	if yRows != sRows || yCols != sCols {
		return nil, errors.NotValidf("score matrix of shape %dx%d for interactions of shape %dx%d",
			sRows, sCols, yRows, yCols)
	}
	indices := make([][]int, sRows)
	values := make([][]float64, sRows)
	for u := 0; u < sRows; u++ {
		seenItems, _ := y.Row(u)
		seen := mapset.NewThreadUnsafeSet(seenItems...)
		items, scores := s.Row(u)
		for k, i := range items {
			if !seen.Contains(i) {
				indices[u] = append(indices[u], i)
				values[u] = append(values[u], scores[k])
			}
		}
	}
	return dataset.NewMatrixFromRows(sCols, indices, values), nil
}

// RankedItem is a candidate item with its score.
type RankedItem struct {
	Item  int
	Score float64
}

// RankedList is sorted by ascending score, so the best item comes last.
type RankedList []RankedItem

// Top returns the best n items of the list in ascending order.
func (list RankedList) Top(n int) RankedList {
	if n >= len(list) {
		return list
	}
	return list[len(list)-n:]
}

// Items returns item indices of the list.
func (list RankedList) Items() []int {
	return lo.Map(list, func(item RankedItem, _ int) int {
		return item.Item
	})
}

// Rank keeps the best rankSize stored scores of every user in ascending order. Ties
// are ordered by ascending item index. A non-positive rankSize keeps all items.
func Rank(s *dataset.Matrix, rankSize int) []RankedList {
	nUsers, _ := s.Dims()
	lists := make([]RankedList, nUsers)
	for u := range lists {
		items, scores := s.Row(u)
		filter := heap.NewTopKFilter(lo.Ternary(rankSize > 0, rankSize, len(items)), lessRankedItem)
		for k, i := range items {
			filter.Push(RankedItem{Item: i, Score: scores[k]})
		}
		lists[u] = filter.PopAll()
	}
	return lists
}

func lessRankedItem(a, b RankedItem) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Item < b.Item
}

// EmptyRowPolicy decides how users without test items are evaluated.
type EmptyRowPolicy string

const (
	// SkipEmptyRow excludes users without test items from evaluation.
	SkipEmptyRow EmptyRowPolicy = "skip"
	// MissEmptyRow counts users without test items as misses.
	MissEmptyRow EmptyRowPolicy = "miss"
)

// EvalConfig holds options of an Evaluator.
type EvalConfig struct {
	RankSize     int
	Jobs         int
	EmptyTestRow EmptyRowPolicy
}

// NewEvalConfig creates a config ranking 25 items with one job and skipping empty test rows.
func NewEvalConfig() *EvalConfig {
	return &EvalConfig{
		RankSize:     25,
		Jobs:         1,
		EmptyTestRow: SkipEmptyRow,
	}
}

// SetRankSize sets the number of items kept per user.
func (config *EvalConfig) SetRankSize(rankSize int) *EvalConfig {
	config.RankSize = rankSize
	return config
}

// SetJobs sets the number of scoring workers.
func (config *EvalConfig) SetJobs(jobs int) *EvalConfig {
	config.Jobs = jobs
	return config
}

// SetEmptyTestRow sets the policy for users without test items.
func (config *EvalConfig) SetEmptyTestRow(policy EmptyRowPolicy) *EvalConfig {
	config.EmptyTestRow = policy
	return config
}

// Metrics are ranking metrics of a weight matrix.
type Metrics struct {
	HitRate float64
	ARHR    float64
	// Users is the number of evaluated users.
	Users int
	// Skipped is the number of users skipped for having no test items.
	Skipped int
}

// Evaluator evaluates weight matrices on a held-out test matrix. The target of a
// user is the item of smallest index in its test row.
type Evaluator struct {
	train  *dataset.Matrix
	test   *dataset.Matrix
	config *EvalConfig
}

// NewEvaluator creates an evaluator. The test matrix must have as many items as
// the train matrix and no more users.
func NewEvaluator(train, test *dataset.Matrix, config *EvalConfig) (*Evaluator, error) {
	if config == nil {
		config = NewEvalConfig()
	}
	trainUsers, trainItems := train.Dims()
	testUsers, testItems := test.Dims()
	if testItems != trainItems {
		return nil, errors.NotValidf("%d test items for %d train items", testItems, trainItems)
	}
	if testUsers > trainUsers {
		return nil, errors.NotValidf("%d test users for %d train users", testUsers, trainUsers)
	}
	if config.RankSize < 1 {
		return nil, errors.NotValidf("rank size %d", config.RankSize)
	}
	if config.EmptyTestRow != SkipEmptyRow && config.EmptyTestRow != MissEmptyRow {
		return nil, errors.NotValidf("empty test row policy %q", config.EmptyTestRow)
	}
	return &Evaluator{train: train, test: test, config: config}, nil
}

// Evaluate computes hit rate and average reciprocal hit rate at topN in a single
// ranking pass.
func (evaluator *Evaluator) Evaluate(ctx context.Context, w *dataset.Matrix, topN int) (Metrics, error) {
	if topN < 1 || topN > evaluator.config.RankSize {
		return Metrics{}, errors.NotValidf("top %d out of rank size %d", topN, evaluator.config.RankSize)
	}
	testUsers, _ := evaluator.test.Dims()
	_, span := progress.Start(ctx, "oSLIM.Evaluate", testUsers)
	scores, err := Score(ctx, evaluator.train, w, evaluator.config.Jobs)
	if err != nil {
		span.Fail(err)
		return Metrics{}, errors.Trace(err)
	}
	if scores, err = MaskSeen(evaluator.train, scores); err != nil {
		span.Fail(err)
		return Metrics{}, errors.Trace(err)
	}
	lists := Rank(scores, evaluator.config.RankSize)

	var metrics Metrics
	var hits int
	var reciprocal float64
	for u := 0; u < testUsers; u++ {
		span.Add(1)
		targets, _ := evaluator.test.Row(u)
		if len(targets) == 0 {
			if evaluator.config.EmptyTestRow == SkipEmptyRow {
				metrics.Skipped++
			} else {
				metrics.Users++
			}
			continue
		}
		metrics.Users++
		if idx := lo.IndexOf(lists[u].Top(topN).Items(), targets[0]); idx >= 0 {
			hits++
			reciprocal += 1 / float64(topN-idx)
		}
	}
	span.End()
	if metrics.Users > 0 {
		metrics.HitRate = float64(hits) / float64(metrics.Users)
		metrics.ARHR = reciprocal / float64(metrics.Users)
	}
	log.Logger().Info("evaluate oslim",
		zap.Int("n_users", metrics.Users),
		zap.Int("n_skipped", metrics.Skipped),
		zap.Float64(fmt.Sprintf("HR@%v", topN), metrics.HitRate),
		zap.Float64(fmt.Sprintf("ARHR@%v", topN), metrics.ARHR))
	return metrics, nil
}

// HitRate returns the fraction of evaluated users whose target is in their top n.
func (evaluator *Evaluator) HitRate(ctx context.Context, w *dataset.Matrix, topN int) (float64, error) {
	metrics, err := evaluator.Evaluate(ctx, w, topN)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return metrics.HitRate, nil
}

// AverageReciprocalHitRate returns hit rate weighted by the reciprocal rank of hits.
func (evaluator *Evaluator) AverageReciprocalHitRate(ctx context.Context, w *dataset.Matrix, topN int) (float64, error) {
	metrics, err := evaluator.Evaluate(ctx, w, topN)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return metrics.ARHR, nil
}
