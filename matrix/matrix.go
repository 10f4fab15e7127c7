// Package matrix 提供只读的二维浮点矩阵：稠密与 CSR 稀疏两种表示。
// 用于用户×物品交互矩阵与物品×物品相似度矩阵，调用方不应假设具体表示。
package matrix

import (
	"math"

	"github.com/rushteam/recserve/core"
)

// Matrix 是只读矩阵接口。加载后不可变，并发读无需加锁。
type Matrix interface {
	Rows() int
	Cols() int

	// Row 返回第 r 行，长度恒为 Cols()；返回值为副本，调用方可修改。
	Row(r int) []float64

	// NonZero 返回第 r 行中值 > 0 的列下标（升序）
	NonZero(r int) []int

	At(r, c int) float64
}

// Dense 是行优先存储的稠密矩阵
type Dense struct {
	rows, cols int
	data       []float64
}

// NewDense 由行优先数据构建稠密矩阵，len(data) 必须等于 rows*cols。
func NewDense(rows, cols int, data []float64) (*Dense, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch,
			"dense %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	if err := checkValues(data); err != nil {
		return nil, err
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

// NewDenseRows 由二维切片构建，所有行长度必须一致。
func NewDenseRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return &Dense{}, nil
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch,
				"row %d has %d columns, want %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return NewDense(len(rows), cols, data)
}

func (m *Dense) Rows() int { return m.rows }
func (m *Dense) Cols() int { return m.cols }

func (m *Dense) Row(r int) []float64 {
	out := make([]float64, m.cols)
	if r < 0 || r >= m.rows {
		return out
	}
	copy(out, m.data[r*m.cols:(r+1)*m.cols])
	return out
}

func (m *Dense) NonZero(r int) []int {
	if r < 0 || r >= m.rows {
		return nil
	}
	var idx []int
	for c, v := range m.data[r*m.cols : (r+1)*m.cols] {
		if v > 0 {
			idx = append(idx, c)
		}
	}
	return idx
}

func (m *Dense) At(r, c int) float64 {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		return 0
	}
	return m.data[r*m.cols+c]
}

// CSR 是压缩稀疏行矩阵，布局与 scipy.sparse.csr_matrix 一致：
// 第 r 行的非零元素位于 indices/data 的 [indptr[r], indptr[r+1]) 区间。
type CSR struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// NewCSR 校验并构建 CSR 矩阵。每行内列下标必须严格递增。
func NewCSR(rows, cols int, indptr, indices []int, data []float64) (*CSR, error) {
	if rows < 0 || cols < 0 {
		return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch, "negative shape %dx%d", rows, cols)
	}
	if len(indptr) != rows+1 {
		return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch,
			"indptr length %d, want %d", len(indptr), rows+1)
	}
	if len(indices) != len(data) {
		return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch,
			"indices length %d != data length %d", len(indices), len(data))
	}
	if indptr[0] != 0 || indptr[rows] != len(data) {
		return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch,
			"indptr must span [0, %d]", len(data))
	}
	for r := 0; r < rows; r++ {
		lo, hi := indptr[r], indptr[r+1]
		if lo > hi {
			return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch, "indptr decreases at row %d", r)
		}
		prev := -1
		for _, c := range indices[lo:hi] {
			if c < 0 || c >= cols {
				return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeDimensionMismatch,
					"column %d out of range at row %d", c, r)
			}
			if c <= prev {
				return nil, core.Errorf(core.ModuleMatrix, core.ErrorCodeInvalidInput,
					"columns not strictly increasing at row %d", r)
			}
			prev = c
		}
	}
	if err := checkValues(data); err != nil {
		return nil, err
	}
	return &CSR{rows: rows, cols: cols, indptr: indptr, indices: indices, data: data}, nil
}

func (m *CSR) Rows() int { return m.rows }
func (m *CSR) Cols() int { return m.cols }

// NNZ 返回存储的非零元素个数
func (m *CSR) NNZ() int { return len(m.data) }

func (m *CSR) Row(r int) []float64 {
	out := make([]float64, m.cols)
	if r < 0 || r >= m.rows {
		return out
	}
	for k := m.indptr[r]; k < m.indptr[r+1]; k++ {
		out[m.indices[k]] = m.data[k]
	}
	return out
}

func (m *CSR) NonZero(r int) []int {
	if r < 0 || r >= m.rows {
		return nil
	}
	var idx []int
	for k := m.indptr[r]; k < m.indptr[r+1]; k++ {
		if m.data[k] > 0 {
			idx = append(idx, m.indices[k])
		}
	}
	return idx
}

func (m *CSR) At(r, c int) float64 {
	if r < 0 || r >= m.rows || c < 0 || c >= m.cols {
		return 0
	}
	lo, hi := m.indptr[r], m.indptr[r+1]
	// 行内列下标有序，二分查找
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch {
		case m.indices[mid] == c:
			return m.data[mid]
		case m.indices[mid] < c:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0
}

func checkValues(data []float64) error {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.Errorf(core.ModuleMatrix, core.ErrorCodeInvalidInput, "non-finite value at offset %d", i)
		}
	}
	return nil
}

// NonNegative 检查矩阵中没有负值（交互强度要求 >= 0）
func NonNegative(m Matrix) error {
	for r := 0; r < m.Rows(); r++ {
		for c, v := range m.Row(r) {
			if v < 0 {
				return core.Errorf(core.ModuleMatrix, core.ErrorCodeInvalidInput,
					"negative strength %v at (%d, %d)", v, r, c)
			}
		}
	}
	return nil
}

var (
	_ Matrix = (*Dense)(nil)
	_ Matrix = (*CSR)(nil)
)
