// Package recserve 是推荐服务引擎：加载离线训练好的模型产物，在线回答推荐请求。
//
// 设计要点：
// - Snapshot-first: 目录、交互矩阵、模型句柄作为一个快照原子替换，请求只看到一份一致的状态
// - Capability 分派: 模型按能力（factors / pairwise-predict / similarity）在加载时绑定一次
// - Fallback 不是错误: 未知用户/物品、能力缺失、打分异常都降级为热门推荐并打上标签
// - 缓存只是优化: 任何缓存故障都按未命中处理
//
// 包结构：core（领域类型）→ matrix / model（打分）→ filter / rank（排序）→
// cache / store（结果缓存）→ service（编排）→ api / cmd（对外接口）。
package recserve

import (
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/service"
)

// 轻量 facade：便于直接 import "recserve" 使用核心抽象。
type (
	Service     = service.Service
	Options     = service.Options
	Snapshot    = service.Snapshot
	Result      = core.Result
	ItemRecord  = core.ItemRecord
	Degradation = core.Degradation
)

const (
	Personalized = core.Personalized
	Fallback     = core.Fallback
)

// New 创建推荐服务，等价于 service.New
func New(opts Options) *Service {
	return service.New(opts)
}
