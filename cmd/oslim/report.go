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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorse-io/slim/dataset"
	"github.com/gorse-io/slim/model/slim"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
)

// Report is the outcome of a training and evaluation run.
type Report struct {
	Beta    float64
	Lambda  float64
	TopN    int
	Metrics slim.Metrics
	Weights *slim.WeightMatrix
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReportFileName is the name of the statistics file.
func (report *Report) ReportFileName() string {
	return fmt.Sprintf("oSLIM_BETA_%s_LAMBDA_%s_TOP_%d.txt", formatFloat(report.Beta), formatFloat(report.Lambda), report.TopN)
}

// WeightFileName is the name of the weight matrix dump.
func (report *Report) WeightFileName() string {
	return fmt.Sprintf("trained_W_beta_%s_lambda_%s.csr", formatFloat(report.Beta), formatFloat(report.Lambda))
}

// WriteTo writes statistics in plain text.
func (report *Report) WriteTo(w io.Writer) (int64, error) {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Statistics for model trained with L2Beta: %s, L1Lambda: %s.\n",
		formatFloat(report.Beta), formatFloat(report.Lambda)))
	builder.WriteString(fmt.Sprintf("Hit Rate at top_%d: %s\n", report.TopN, formatFloat(report.Metrics.HitRate)))
	builder.WriteString(fmt.Sprintf("Average Reciprocal Hit Rate at top_%d: %s\n", report.TopN, formatFloat(report.Metrics.ARHR)))
	n, err := io.WriteString(w, builder.String())
	return int64(n), errors.Trace(err)
}

// Render prints statistics as a table.
func (report *Report) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Beta", "Lambda", fmt.Sprintf("HR@%d", report.TopN), fmt.Sprintf("ARHR@%d", report.TopN), "Users", "Iterations", "Converged")
	if err := table.Append([]string{
		formatFloat(report.Beta),
		formatFloat(report.Lambda),
		formatFloat(report.Metrics.HitRate),
		formatFloat(report.Metrics.ARHR),
		strconv.Itoa(report.Metrics.Users),
		strconv.Itoa(report.Weights.Iterations),
		strconv.FormatBool(report.Weights.Converged),
	}); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(table.Render())
}

// Save writes statistics and trained weights into dir.
func (report *Report) Save(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	file, err := os.Create(filepath.Join(dir, report.ReportFileName()))
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = report.WriteTo(file); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err = file.Close(); err != nil {
		return errors.Trace(err)
	}
	return dataset.SaveMatrixToFile(filepath.Join(dir, report.WeightFileName()), report.Weights.Matrix)
}
