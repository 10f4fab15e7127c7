package rank

import (
	"cmp"
	"slices"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/filter"
)

// Popularity 是热门兜底：冷启动用户/物品、无个性化能力时使用。
//   - 目录中有 popularity_score 时按其降序（无分数的物品排在后面，保持目录顺序）
//   - 否则按目录顺序
//
// 排序在快照构建时完成一次，请求路径上只做过滤与截断。
type Popularity struct {
	catalog *core.Catalog
	order   []int
	scored  bool
}

func NewPopularity(catalog *core.Catalog) *Popularity {
	items := catalog.Items()
	order := make([]int, len(items))
	scored := false
	for i, it := range items {
		order[i] = it.ItemID
		if it.PopularityScore != nil {
			scored = true
		}
	}
	if scored {
		slices.SortStableFunc(order, func(a, b int) int {
			pa, pb := items[a].PopularityScore, items[b].PopularityScore
			switch {
			case pa == nil && pb == nil:
				return 0
			case pa == nil:
				return 1
			case pb == nil:
				return -1
			}
			return cmp.Compare(*pb, *pa)
		})
	}
	return &Popularity{catalog: catalog, order: order, scored: scored}
}

// Scored 表示目录中是否存在 popularity_score
func (p *Popularity) Scored() bool { return p.scored }

func (p *Popularity) Name() string { return "rank.popular" }

// Top 返回前 n 个热门物品。category 非空时先按类目过滤再截断。
// Score 为 popularity_score（缺失时为 0）。
func (p *Popularity) Top(n int, category string, exclude filter.Filter) []Scored {
	if n <= 0 {
		return nil
	}
	out := make([]Scored, 0, min(n, len(p.order)))
	for _, id := range p.order {
		if len(out) >= n {
			break
		}
		it, _ := p.catalog.Get(id)
		if category != "" && it.Category != category {
			continue
		}
		if exclude != nil && exclude.ShouldFilter(id) {
			continue
		}
		var s float64
		if it.PopularityScore != nil {
			s = *it.PopularityScore
		}
		out = append(out, Scored{ItemID: id, Score: s})
	}
	return out
}
