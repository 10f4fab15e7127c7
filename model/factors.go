package model

import (
	"math"

	"github.com/rushteam/recserve/core"
)

const (
	defaultFoldInIterations = 200
	defaultFoldInTolerance  = 1e-4
	foldInEpsilon           = 1e-12
)

// Factorization 是非负矩阵分解得到的物品因子矩阵 H（rank × N，行优先）。
//
// 打分分两步：
//  1. fold-in：固定 H，用乘法更新把观测行 x 投影到因子空间 w
//     w ← w ⊙ (x Hᵀ) / (w H Hᵀ)
//  2. 打分：score = w · H，每个物品一个分数
//
// 复杂度 O(iterations × rank × N)。
type Factorization struct {
	rank  int
	items int
	h     []float64
	// hht 是预计算的 H Hᵀ（rank × rank）
	hht []float64

	Iterations int
	Tolerance  float64
}

// NewFactorization 由 rank 行、每行 N 个非负值的因子矩阵构建。
func NewFactorization(components [][]float64) (*Factorization, error) {
	if len(components) == 0 {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeDimensionMismatch, "factorization has no components")
	}
	n := len(components[0])
	k := len(components)
	h := make([]float64, 0, k*n)
	for i, row := range components {
		if len(row) != n {
			return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
				"component %d has %d items, want %d", i, len(row), n)
		}
		for _, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput,
					"component %d has invalid value %v", i, v)
			}
		}
		h = append(h, row...)
	}

	f := &Factorization{
		rank:       k,
		items:      n,
		h:          h,
		hht:        make([]float64, k*k),
		Iterations: defaultFoldInIterations,
		Tolerance:  defaultFoldInTolerance,
	}
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			v := dot(f.component(a), f.component(b))
			f.hht[a*k+b] = v
			f.hht[b*k+a] = v
		}
	}
	return f, nil
}

func (f *Factorization) Rank() int  { return f.rank }
func (f *Factorization) Items() int { return f.items }

func (f *Factorization) component(a int) []float64 {
	return f.h[a*f.items : (a+1)*f.items]
}

// Project 把长度为 N 的观测行投影为 rank 维因子。
// 全零观测返回全零因子。
func (f *Factorization) Project(x []float64) []float64 {
	k := f.rank
	// x Hᵀ 在迭代中不变
	xht := make([]float64, k)
	var sum float64
	for a := 0; a < k; a++ {
		xht[a] = dot(x, f.component(a))
	}
	for _, v := range x {
		sum += v
	}

	w := make([]float64, k)
	if sum <= 0 {
		return w
	}
	init := math.Sqrt(sum / float64(len(x)) / float64(k))
	for a := range w {
		w[a] = init
	}

	denom := make([]float64, k)
	for it := 0; it < f.Iterations; it++ {
		// denom = w (H Hᵀ)
		for b := 0; b < k; b++ {
			var s float64
			for a := 0; a < k; a++ {
				s += w[a] * f.hht[a*k+b]
			}
			denom[b] = s
		}
		var change, norm float64
		for a := 0; a < k; a++ {
			next := w[a] * xht[a] / (denom[a] + foldInEpsilon)
			change += math.Abs(next - w[a])
			norm += math.Abs(next)
			w[a] = next
		}
		if norm == 0 || change/norm < f.Tolerance {
			break
		}
	}
	return w
}

// Scores 计算 w · H
func (f *Factorization) Scores(w []float64) []float64 {
	out := make([]float64, f.items)
	for a := 0; a < f.rank; a++ {
		if w[a] == 0 {
			continue
		}
		comp := f.component(a)
		for i, v := range comp {
			out[i] += w[a] * v
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
