package rank

import (
	"cmp"
	"math"
	"slices"

	"github.com/rushteam/recserve/filter"
)

// Scored 是排序后的一条候选
type Scored struct {
	ItemID int
	Score  float64
}

// TopN 从原始分数中选出前 n 个物品。
//
// 规则：
//   - exclude 命中的物品不参与选择（不修改分数，避免负无穷哨兵与合法负分混淆）
//   - NaN / ±Inf 分数视为不可排序，直接跳过
//   - 按分数降序稳定排序，分数相同按 item_id 升序
//   - 截断到 n；可选物品不足 n 个时原样返回，不补齐
//
// n <= 0 返回空结果。
func TopN(scores []float64, exclude filter.Filter, n int) []Scored {
	if n <= 0 || len(scores) == 0 {
		return nil
	}
	cands := make([]Scored, 0, len(scores))
	for id, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		if exclude != nil && exclude.ShouldFilter(id) {
			continue
		}
		cands = append(cands, Scored{ItemID: id, Score: s})
	}
	slices.SortStableFunc(cands, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})
	if len(cands) > n {
		cands = cands[:n]
	}
	return cands
}
