package core

import "github.com/rushteam/recserve/pkg/utils"

// Degradation 表示结果是个性化的还是降级（热门兜底）的
type Degradation string

const (
	Personalized Degradation = "personalized"
	Fallback     Degradation = "fallback"
)

// Label key
const (
	LabelAlgorithm = "algorithm" // factors / pairwise-predict / similarity / popular
	LabelReason    = "reason"    // 降级原因：unknown_context / capability / scoring_error
)

// Recommendation 是格式化后的一条推荐结果
type Recommendation struct {
	ItemID   int      `json:"item_id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Price    float64  `json:"price"`
	ImageURL string   `json:"image_url"`
	Rating   *float64 `json:"rating"`
	Rank     int      `json:"rank"`
	Score    float64  `json:"score"`
}

// Result 是一次推荐的完整结果，也是缓存中保存的值。
// 缓存整体替换，不做部分更新。
type Result struct {
	Items        []Recommendation       `json:"items"`
	Degradation  Degradation            `json:"degradation"`
	Labels       map[string]utils.Label `json:"labels,omitempty"`
	ModelVersion string                 `json:"model_version"`
	// Dropped 是格式化时因目录中不存在而被丢弃的物品数
	Dropped int `json:"dropped,omitempty"`
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (r *Result) PutLabel(key string, lbl utils.Label) {
	if r.Labels == nil {
		r.Labels = make(map[string]utils.Label)
	}
	if old, ok := r.Labels[key]; ok {
		r.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	r.Labels[key] = lbl
}

// IDs 返回结果中的 item_id 序列
func (r *Result) IDs() []int {
	if r == nil {
		return nil
	}
	ids := make([]int, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ItemID
	}
	return ids
}
