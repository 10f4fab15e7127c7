package model

import (
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/matrix"
)

// Adapter 是统一打分接口：Score(ctx) → 覆盖全部 N 个物品的原始分数。
// 构建时按 Capability 分派一次并绑定打分路径，之后不再判断模型族。
//
// Adapter 只读，可被任意多个请求并发使用。
type Adapter struct {
	handle       *Handle
	observations matrix.Matrix
	items        int
	kind         ContextKind
	rangeSize    int
	score        func(idx int) ([]float64, error)
}

// NewAdapter 绑定模型句柄。
//   - factors / pairwise-predict：observations 为用户×物品交互矩阵（必填）
//   - similarity：observations 忽略，相似度矩阵自身决定已知物品范围
//
// catalogItems 是目录大小，任一维度与之不符都返回 DIMENSION_MISMATCH。
func NewAdapter(h *Handle, observations matrix.Matrix, catalogItems int) (*Adapter, error) {
	if h == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeModelNotLoaded, "model handle is nil")
	}
	if catalogItems <= 0 {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch, "catalog is empty")
	}
	if got := h.Items(); got != catalogItems {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
			"%s model covers %d items, catalog has %d", h.Capability, got, catalogItems)
	}

	a := &Adapter{handle: h, observations: observations, items: catalogItems}
	switch h.Capability {
	case CapabilityFactors, CapabilityPairwise:
		if observations == nil {
			return nil, core.Errorf(core.ModuleModel, core.ErrorCodeModelNotLoaded,
				"%s model needs an interaction matrix", h.Capability)
		}
		if observations.Cols() != catalogItems {
			return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
				"interaction matrix has %d columns, catalog has %d", observations.Cols(), catalogItems)
		}
		a.kind = UserContext
		a.rangeSize = observations.Rows()
		if h.Capability == CapabilityFactors {
			a.score = a.scoreFactors
		} else {
			if users := h.Pairwise.Users(); users != observations.Rows() {
				return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
					"pairwise model knows %d users, interaction matrix has %d", users, observations.Rows())
			}
			a.score = a.scorePairwise
		}
	case CapabilitySimilarity:
		if h.Similarity.Rows() != h.Similarity.Cols() {
			return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch,
				"similarity matrix is %dx%d, want square", h.Similarity.Rows(), h.Similarity.Cols())
		}
		a.kind = ItemContext
		a.rangeSize = h.Similarity.Rows()
		a.score = a.scoreSimilarity
	default:
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput, "unknown capability %q", h.Capability)
	}
	return a, nil
}

// Capability 返回绑定的能力标签
func (a *Adapter) Capability() Capability {
	if a == nil || a.handle == nil {
		return ""
	}
	return a.handle.Capability
}

// Serves 判断适配器是否接受这类上下文
func (a *Adapter) Serves(kind ContextKind) bool {
	return a != nil && a.kind == kind
}

// Known 判断上下文是否落在模型已知范围内；不在范围内应走冷启动兜底。
func (a *Adapter) Known(ctx Context) bool {
	return a.Serves(ctx.Kind) && ctx.Index >= 0 && ctx.Index < a.rangeSize
}

// Seen 返回上下文已交互的物品：用户的交互行非零列，或种子物品本身。
func (a *Adapter) Seen(ctx Context) []int {
	if !a.Known(ctx) {
		return nil
	}
	if ctx.Kind == ItemContext {
		return []int{ctx.Index}
	}
	return a.observations.NonZero(ctx.Index)
}

// Score 返回长度为 N 的原始分数。
func (a *Adapter) Score(ctx Context) ([]float64, error) {
	if a == nil || a.score == nil {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeModelNotLoaded, "model adapter not bound")
	}
	if ctx.Index < 0 {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeDimensionMismatch, "negative context index %d", ctx.Index)
	}
	if !a.Serves(ctx.Kind) {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeInvalidInput,
			"%s model cannot score %s", a.handle.Capability, ctx)
	}
	if ctx.Index >= a.rangeSize {
		return nil, core.Errorf(core.ModuleModel, core.ErrorCodeNotFound, "unknown context %s", ctx)
	}
	return a.score(ctx.Index)
}

func (a *Adapter) scoreFactors(u int) ([]float64, error) {
	f := a.handle.Factors
	w := f.Project(a.observations.Row(u))
	return f.Scores(w), nil
}

// scorePairwise 每个物品调用一次 Predict，是最慢的路径。
func (a *Adapter) scorePairwise(u int) ([]float64, error) {
	p := a.handle.Pairwise
	out := make([]float64, a.items)
	for i := range out {
		s, err := p.Predict(u, i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (a *Adapter) scoreSimilarity(i int) ([]float64, error) {
	return a.handle.Similarity.Row(i), nil
}
