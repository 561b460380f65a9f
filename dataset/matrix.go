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

package dataset

import (
	"sort"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"
)

// Matrix is an immutable sparse matrix in compressed sparse row format. Rows are users
// and columns are items for interaction matrices, rows and columns are both items for
// weight matrices.
//
// A Matrix is always canonical: column indices in a row are strictly ascending,
// duplicated entries are summed and zeros are never stored.
type Matrix struct {
	rows    int
	cols    int
	indptr  []int
	indices []int
	values  []float64
}

var _ mat.Matrix = (*Matrix)(nil)

// NewMatrix creates a matrix from coordinates. The i-th entry is located at
// (rowIndices[i], colIndices[i]) with value values[i].
func NewMatrix(rows, cols int, rowIndices, colIndices []int, values []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, errors.NotValidf("matrix shape %dx%d", rows, cols)
	}
	if len(rowIndices) != len(colIndices) || len(rowIndices) != len(values) {
		return nil, errors.NotValidf("coordinates with lengths (%d, %d, %d)",
			len(rowIndices), len(colIndices), len(values))
	}
	// count entries per row
	offsets := make([]int, rows+1)
	for k := range rowIndices {
		if rowIndices[k] < 0 || rowIndices[k] >= rows || colIndices[k] < 0 || colIndices[k] >= cols {
			return nil, errors.NotValidf("entry (%d, %d) in %dx%d matrix",
				rowIndices[k], colIndices[k], rows, cols)
		}
		offsets[rowIndices[k]+1]++
	}
	for i := 0; i < rows; i++ {
		offsets[i+1] += offsets[i]
	}
	// scatter entries into rows
	indices := make([]int, len(values))
	data := make([]float64, len(values))
	next := make([]int, rows)
	copy(next, offsets[:rows])
	for k, i := range rowIndices {
		indices[next[i]] = colIndices[k]
		data[next[i]] = values[k]
		next[i]++
	}
	// sort, sum duplicates and drop zeros
	m := &Matrix{
		rows:    rows,
		cols:    cols,
		indptr:  make([]int, rows+1),
		indices: make([]int, 0, len(values)),
		values:  make([]float64, 0, len(values)),
	}
	for i := 0; i < rows; i++ {
		begin, end := offsets[i], offsets[i+1]
		sort.Stable(&rowSorter{indices: indices[begin:end], values: data[begin:end]})
		for k := begin; k < end; {
			j, sum := indices[k], 0.0
			for ; k < end && indices[k] == j; k++ {
				sum += data[k]
			}
			if sum != 0 {
				m.indices = append(m.indices, j)
				m.values = append(m.values, sum)
			}
		}
		m.indptr[i+1] = len(m.indices)
	}
	return m, nil
}

// NewMatrixFromRows creates a matrix from sparse rows. Column indices of every row
// must be ascending, unique and less than cols. Zeros are dropped.
func NewMatrixFromRows(cols int, indices [][]int, values [][]float64) *Matrix {
	m := &Matrix{
		rows:   len(indices),
		cols:   cols,
		indptr: make([]int, len(indices)+1),
	}
	for i := range indices {
		for k, j := range indices[i] {
			if values[i][k] != 0 {
				m.indices = append(m.indices, j)
				m.values = append(m.values, values[i][k])
			}
		}
		m.indptr[i+1] = len(m.indices)
	}
	return m
}

// FromDense converts a dense matrix into a sparse matrix. Zeros are dropped.
func FromDense(a mat.Matrix) *Matrix {
	rows, cols := a.Dims()
	m := &Matrix{
		rows:   rows,
		cols:   cols,
		indptr: make([]int, rows+1),
	}
	dense, isDense := a.(*mat.Dense)
	for i := 0; i < rows; i++ {
		if isDense {
			for j, v := range dense.RawRowView(i) {
				if v != 0 {
					m.indices = append(m.indices, j)
					m.values = append(m.values, v)
				}
			}
		} else {
			for j := 0; j < cols; j++ {
				if v := a.At(i, j); v != 0 {
					m.indices = append(m.indices, j)
					m.values = append(m.values, v)
				}
			}
		}
		m.indptr[i+1] = len(m.indices)
	}
	return m
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (r, c int) {
	return m.rows, m.cols
}

// At returns the value at (i, j). It panics if the position is out of range.
func (m *Matrix) At(i, j int) float64 {
	if i < 0 || i >= m.rows {
		panic(mat.ErrRowAccess)
	}
	if j < 0 || j >= m.cols {
		panic(mat.ErrColAccess)
	}
	indices, values := m.Row(i)
	k := sort.SearchInts(indices, j)
	if k < len(indices) && indices[k] == j {
		return values[k]
	}
	return 0
}

// T returns the implicit transpose of the matrix.
func (m *Matrix) T() mat.Matrix {
	return mat.Transpose{Matrix: m}
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.values)
}

// Row returns column indices and values of the i-th row. The returned slices share
// storage with the matrix and must not be modified.
func (m *Matrix) Row(i int) ([]int, []float64) {
	begin, end := m.indptr[i], m.indptr[i+1]
	return m.indices[begin:end:end], m.values[begin:end:end]
}

// ForEach iterates stored entries in row-major order.
func (m *Matrix) ForEach(f func(i, j int, v float64)) {
	for i := 0; i < m.rows; i++ {
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			f(i, m.indices[k], m.values[k])
		}
	}
}

// NonNegative returns true if no stored entry is negative.
func (m *Matrix) NonNegative() bool {
	for _, v := range m.values {
		if v < 0 {
			return false
		}
	}
	return true
}

// Dense converts the matrix into a dense matrix. It returns nil for a matrix without
// rows or columns since gonum has no empty dense matrix.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	m.ForEach(func(i, j int, v float64) {
		d.Set(i, j, v)
	})
	return d
}

// Gram returns the dense product of the transposed matrix with the matrix itself, that
// is the co-occurrence matrix of columns. Its cost is the sum of squared row lengths.
func (m *Matrix) Gram() *mat.Dense {
	if m.cols == 0 {
		return nil
	}
	g := mat.NewDense(m.cols, m.cols, nil)
	raw := g.RawMatrix()
	for i := 0; i < m.rows; i++ {
		indices, values := m.Row(i)
		for a, j := range indices {
			row := raw.Data[j*raw.Stride : j*raw.Stride+m.cols]
			for b, k := range indices {
				row[k] += values[a] * values[b]
			}
		}
	}
	return g
}

type rowSorter struct {
	indices []int
	values  []float64
}

func (s *rowSorter) Len() int {
	return len(s.indices)
}

func (s *rowSorter) Less(i, j int) bool {
	return s.indices[i] < s.indices[j]
}

func (s *rowSorter) Swap(i, j int) {
	s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}
