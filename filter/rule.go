package filter

import (
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/dsl"
)

// Rule 是物品资格规则：CEL 表达式在快照构建时对整个目录求值一次，
// 结果固化为 Mask，请求路径上只做位图查找。
type Rule struct {
	Expr string
	mask Mask
}

// NewRule 编译表达式并对目录求值。表达式为空时返回 nil（全部放行）。
// 任一物品求值出错都视为规则无效，整个快照构建失败。
func NewRule(expr string, catalog *core.Catalog) (*Rule, error) {
	prg, err := dsl.Compile(expr)
	if err != nil || prg == nil {
		return nil, err
	}
	mask := make(Mask, catalog.Len())
	for _, it := range catalog.Items() {
		ok, err := prg.Eligible(it)
		if err != nil {
			return nil, err
		}
		mask[it.ItemID] = !ok
	}
	return &Rule{Expr: expr, mask: mask}, nil
}

func (r *Rule) Name() string { return "filter.rule" }

func (r *Rule) ShouldFilter(itemID int) bool {
	return r != nil && r.mask.ShouldFilter(itemID)
}

// Excluded 返回被规则排除的物品数
func (r *Rule) Excluded() int {
	if r == nil {
		return 0
	}
	return r.mask.Count()
}

var _ Filter = (*Rule)(nil)
