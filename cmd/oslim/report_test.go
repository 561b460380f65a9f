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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/slim/dataset"
	"github.com/gorse-io/slim/model/slim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newReport() *Report {
	return &Report{
		Beta:   0.5,
		Lambda: 4,
		TopN:   10,
		Metrics: slim.Metrics{
			HitRate: 0.25,
			ARHR:    0.125,
			Users:   4,
		},
		Weights: &slim.WeightMatrix{
			Matrix:     dataset.FromDense(mat.NewDense(2, 2, []float64{0, 0.5, 0.25, 0})),
			Iterations: 7,
			Converged:  true,
		},
	}
}

func TestReport_FileName(t *testing.T) {
	report := newReport()
	assert.Equal(t, "oSLIM_BETA_0.5_LAMBDA_4_TOP_10.txt", report.ReportFileName())
	assert.Equal(t, "trained_W_beta_0.5_lambda_4.csr", report.WeightFileName())
}

func TestReport_WriteTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := newReport().WriteTo(&buf)
	assert.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "Statistics for model trained with L2Beta: 0.5, L1Lambda: 4.\n"+
		"Hit Rate at top_10: 0.25\n"+
		"Average Reciprocal Hit Rate at top_10: 0.125\n", buf.String())
}

func TestReport_Render(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, newReport().Render(&buf))
	assert.Contains(t, buf.String(), "0.125")
	assert.Contains(t, buf.String(), "0.25")
}

func TestReport_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	report := newReport()
	require.NoError(t, report.Save(dir))

	content, err := os.ReadFile(filepath.Join(dir, report.ReportFileName()))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = report.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(content))

	content, err = os.ReadFile(filepath.Join(dir, report.WeightFileName()))
	require.NoError(t, err)
	assert.Equal(t, "2 0.5\n1 0.25\n", string(content))
	w, err := dataset.LoadMatrixFromFile(filepath.Join(dir, report.WeightFileName()), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.5, w.At(0, 1))
	assert.Equal(t, 0.25, w.At(1, 0))
}

func TestLoadMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.mat")
	require.NoError(t, os.WriteFile(path, []byte("1 1 2 1\n\n3 2\n"), 0644))
	m, err := loadMatrix(path, 0, 0)
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 3, m.NNZ())
	// shape of the training matrix
	m, err = loadMatrix(path, 4, 5)
	require.NoError(t, err)
	rows, cols = m.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 5, cols)

	_, err = loadMatrix(filepath.Join(t.TempDir(), "missing.mat"), 0, 0)
	assert.Error(t, err)
}
