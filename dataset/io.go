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
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// LoadMatrix reads a sparse matrix in the text format: one line per row, each line
// holds whitespace separated pairs of a 1-based column index and a value. A blank
// line is an empty row.
//
// A positive rows or cols fixes the shape and entries outside of it are rejected.
// Otherwise the number of rows is the number of lines and the number of columns is
// the largest column index.
func LoadMatrix(r io.Reader, rows, cols int) (*Matrix, error) {
	var (
		rowIndices []int
		colIndices []int
		values     []float64
		numLines   int
		maxCol     int
	)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.Trace(err)
		}
		if len(line) == 0 && err == io.EOF {
			break
		}
		lineNumber := numLines + 1
		fields := strings.Fields(line)
		if len(fields)%2 != 0 {
			return nil, errors.NotValidf("line %d with odd number of tokens (%d)", lineNumber, len(fields))
		}
		if len(fields) > 0 && rows > 0 && numLines >= rows {
			return nil, errors.NotValidf("line %d beyond %d rows", lineNumber, rows)
		}
		for i := 0; i < len(fields); i += 2 {
			col, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, errors.NotValidf("line %d: column index %q", lineNumber, fields[i])
			}
			if col < 1 {
				return nil, errors.NotValidf("line %d: column index %d (indices start from 1)", lineNumber, col)
			}
			if cols > 0 && col > cols {
				return nil, errors.NotValidf("line %d: column index %d beyond %d columns", lineNumber, col, cols)
			}
			value, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
				return nil, errors.NotValidf("line %d: value %q", lineNumber, fields[i+1])
			}
			rowIndices = append(rowIndices, numLines)
			colIndices = append(colIndices, col-1)
			values = append(values, value)
			maxCol = max(maxCol, col)
		}
		numLines++
		if err == io.EOF {
			break
		}
	}
	if rows <= 0 {
		rows = numLines
	}
	if cols <= 0 {
		cols = maxCol
	}
	return NewMatrix(rows, cols, rowIndices, colIndices, values)
}

// LoadMatrixFromFile reads a sparse matrix from a text file. See LoadMatrix.
func LoadMatrixFromFile(path string, rows, cols int) (*Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	m, err := LoadMatrix(file, rows, cols)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load %s", path)
	}
	return m, nil
}

// WriteTo writes the matrix in the text format read by LoadMatrix. Values are written
// with the shortest representation that parses back to the same float64.
func (m *Matrix) WriteTo(w io.Writer) (int64, error) {
	writer := bufio.NewWriter(w)
	var (
		written int64
		buf     []byte
	)
	for i := 0; i < m.rows; i++ {
		buf = buf[:0]
		indices, values := m.Row(i)
		for k := range indices {
			if k > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendInt(buf, int64(indices[k]+1), 10)
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, values[k], 'g', -1, 64)
		}
		buf = append(buf, '\n')
		n, err := writer.Write(buf)
		written += int64(n)
		if err != nil {
			return written, errors.Trace(err)
		}
	}
	return written, errors.Trace(writer.Flush())
}

// SaveMatrixToFile writes a sparse matrix to a text file. See WriteTo.
func SaveMatrixToFile(path string, m *Matrix) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = m.WriteTo(file); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	return errors.Trace(file.Close())
}
