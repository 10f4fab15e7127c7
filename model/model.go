// Package model 把不同族的训练产物（矩阵分解、逐对打分、物品相似度）
// 统一为一个打分接口：给定上下文，输出覆盖全部 N 个物品的原始分数向量。
package model

import (
	"fmt"

	"github.com/rushteam/recserve/matrix"
)

// Capability 是模型句柄声明的能力标签，每个句柄恰好一个。
type Capability string

const (
	// CapabilityFactors 暴露用户因子 × 物品因子分解
	CapabilityFactors Capability = "factors"
	// CapabilityPairwise 暴露直接的 用户×物品 打分函数
	CapabilityPairwise Capability = "pairwise-predict"
	// CapabilitySimilarity 暴露 物品×物品 相似度
	CapabilitySimilarity Capability = "similarity"
)

func (c Capability) String() string { return string(c) }

// ContextKind 区分打分上下文是用户还是种子物品
type ContextKind int

const (
	UserContext ContextKind = iota
	ItemContext
)

// Context 是一次打分的上下文
type Context struct {
	Kind  ContextKind
	Index int
}

func (c Context) String() string {
	if c.Kind == ItemContext {
		return fmt.Sprintf("item:%d", c.Index)
	}
	return fmt.Sprintf("user:%d", c.Index)
}

// PairwisePredictor 是逐对打分模型的最小抽象。
// 具体实现可以是本地模型（BiasedMF）或任意自定义打分函数。
type PairwisePredictor interface {
	Name() string
	// Users 返回模型认识的用户数，超出范围的用户走冷启动
	Users() int
	// Items 返回模型覆盖的物品数，必须与目录一致
	Items() int
	Predict(user, item int) (float64, error)
}

// Handle 是加载后的模型句柄：不透明产物 + 一个能力标签。
// 只有与 Capability 对应的字段非空。加载后不可变。
type Handle struct {
	Capability Capability

	Factors    *Factorization
	Pairwise   PairwisePredictor
	Similarity matrix.Matrix
}

// Items 返回句柄的物品维度
func (h *Handle) Items() int {
	switch h.Capability {
	case CapabilityFactors:
		if h.Factors != nil {
			return h.Factors.Items()
		}
	case CapabilityPairwise:
		if h.Pairwise != nil {
			return h.Pairwise.Items()
		}
	case CapabilitySimilarity:
		if h.Similarity != nil {
			return h.Similarity.Cols()
		}
	}
	return 0
}
