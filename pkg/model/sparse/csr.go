// Package sparse implements a minimal compressed-sparse-row matrix and its
// on-disk serialization, used to hold doc-topic and topic-word matrices
// without ever densifying more than a single row at a time.
package sparse

import (
	"encoding/json"
	"fmt"
	"io"
)

// CSR is a compressed-sparse-row matrix: Data[RowPtr[i]:RowPtr[i+1]] are
// the non-zero values of row i, at column indices
// ColIdx[RowPtr[i]:RowPtr[i+1]].
type CSR struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	RowPtr []int     `json:"row_ptr"`
	ColIdx []int     `json:"col_idx"`
	Data   []float64 `json:"data"`
}

// New builds a CSR from dense rows, keeping only non-zero entries. Mainly
// useful in tests and tools that synthesize matrices.
func New(denseRows [][]float64) *CSR {
	m := &CSR{RowPtr: []int{0}}
	for _, row := range denseRows {
		if len(row) > m.Cols {
			m.Cols = len(row)
		}
		for col, v := range row {
			if v == 0 {
				continue
			}
			m.ColIdx = append(m.ColIdx, col)
			m.Data = append(m.Data, v)
		}
		m.RowPtr = append(m.RowPtr, len(m.Data))
	}
	m.Rows = len(denseRows)
	return m
}

// Row densifies a single row into a length-Cols slice. This is the only
// place a row is ever materialized in full; the rest of the matrix stays
// sparse.
func (m *CSR) Row(i int) ([]float64, error) {
	if i < 0 || i >= m.Rows {
		return nil, fmt.Errorf("sparse: row %d out of range [0,%d)", i, m.Rows)
	}
	row := make([]float64, m.Cols)
	start, end := m.RowPtr[i], m.RowPtr[i+1]
	for k := start; k < end; k++ {
		row[m.ColIdx[k]] = m.Data[k]
	}
	return row, nil
}

// NNZ returns the number of stored (non-zero) entries.
func (m *CSR) NNZ() int { return len(m.Data) }

// Decode reads a CSR matrix from its JSON on-disk representation, the
// format this implementation uses in place of the trainer's native .npz
// archives.
func Decode(r io.Reader) (*CSR, error) {
	var m CSR
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("sparse: decoding matrix: %w", err)
	}
	if len(m.RowPtr) != m.Rows+1 {
		return nil, fmt.Errorf("sparse: row_ptr length %d does not match rows=%d", len(m.RowPtr), m.Rows)
	}
	return &m, nil
}

// Encode writes m in the on-disk JSON representation Decode understands.
func Encode(w io.Writer, m *CSR) error {
	enc := json.NewEncoder(w)
	return enc.Encode(m)
}
