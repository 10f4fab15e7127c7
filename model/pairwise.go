package model

import (
	"github.com/rushteam/recserve/core"
)

// BiasedMF 是带偏置项的矩阵分解逐对打分器：
//
//	score(u, i) = μ + b_u + b_i + p_u · q_i
type BiasedMF struct {
	GlobalMean  float64
	UserBias    []float64
	ItemBias    []float64
	UserFactors [][]float64
	ItemFactors [][]float64
}

// Validate 检查各部分维度一致
func (m *BiasedMF) Validate() error {
	if len(m.UserBias) != len(m.UserFactors) {
		return core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
			"user_bias has %d entries, user_factors %d", len(m.UserBias), len(m.UserFactors))
	}
	if len(m.ItemBias) != len(m.ItemFactors) {
		return core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
			"item_bias has %d entries, item_factors %d", len(m.ItemBias), len(m.ItemFactors))
	}
	rank := -1
	check := func(kind string, vecs [][]float64) error {
		for i, v := range vecs {
			if rank < 0 {
				rank = len(v)
			}
			if len(v) != rank {
				return core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
					"%s %d has rank %d, want %d", kind, i, len(v), rank)
			}
		}
		return nil
	}
	if err := check("user factor", m.UserFactors); err != nil {
		return err
	}
	return check("item factor", m.ItemFactors)
}

func (m *BiasedMF) Name() string { return "biased_mf" }
func (m *BiasedMF) Users() int   { return len(m.UserFactors) }
func (m *BiasedMF) Items() int   { return len(m.ItemFactors) }

func (m *BiasedMF) Predict(user, item int) (float64, error) {
	if user < 0 || user >= len(m.UserFactors) || item < 0 || item >= len(m.ItemFactors) {
		return 0, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
			"predict(%d, %d) outside %dx%d", user, item, len(m.UserFactors), len(m.ItemFactors))
	}
	return m.GlobalMean + m.UserBias[user] + m.ItemBias[item] + dot(m.UserFactors[user], m.ItemFactors[item]), nil
}

var _ PairwisePredictor = (*BiasedMF)(nil)
