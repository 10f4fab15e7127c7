package core

// RequestKind 标记请求类型，也是缓存 key 的第一段
type RequestKind string

const (
	KindUser    RequestKind = "user"
	KindSimilar RequestKind = "similar"
	KindPopular RequestKind = "popular"
)

// RecommendContext 承载一次推荐请求的参数，贯穿缓存、打分、排序、格式化。
type RecommendContext struct {
	Kind RequestKind

	// UserID 仅 KindUser 使用
	UserID int
	// ItemID 仅 KindSimilar 使用（种子物品）
	ItemID int

	N int

	// Exclude 是调用方显式排除的物品，可乱序、可重复
	Exclude []int

	// Category 仅 KindPopular 使用，空串表示不过滤
	Category string
}

// Target 返回请求的主标识（用户或种子物品），popular 请求返回 -1
func (rctx *RecommendContext) Target() int {
	switch rctx.Kind {
	case KindUser:
		return rctx.UserID
	case KindSimilar:
		return rctx.ItemID
	}
	return -1
}
