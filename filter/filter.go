package filter

// Filter 判断一个物品是否应被排除。
// 返回 true 表示排除（不出现在结果中），false 表示保留。
// 实现必须只读，可被并发调用。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 itemID 是否应该被过滤
	ShouldFilter(itemID int) bool
}

// Chain 组合多个过滤器，任一命中即排除。nil 元素被忽略。
type Chain []Filter

func (c Chain) Name() string { return "filter.chain" }

func (c Chain) ShouldFilter(itemID int) bool {
	for _, f := range c {
		if f != nil && f.ShouldFilter(itemID) {
			return true
		}
	}
	return false
}

// Set 是显式排除集合（调用方 exclude、用户已交互物品、种子物品）
type Set map[int]struct{}

// NewSet 由若干 id 列表构建集合
func NewSet(lists ...[]int) Set {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	s := make(Set, n)
	for _, l := range lists {
		for _, id := range l {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s Set) Name() string { return "filter.exclude" }

func (s Set) ShouldFilter(itemID int) bool {
	_, ok := s[itemID]
	return ok
}

// Mask 是按 item_id 下标的位图，true 表示排除
type Mask []bool

func (m Mask) Name() string { return "filter.mask" }

func (m Mask) ShouldFilter(itemID int) bool {
	return itemID >= 0 && itemID < len(m) && m[itemID]
}

// Count 返回被排除的物品数
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

var (
	_ Filter = Chain(nil)
	_ Filter = Set(nil)
	_ Filter = Mask(nil)
)
