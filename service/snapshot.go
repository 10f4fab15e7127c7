package service

import (
	"fmt"
	"time"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/filter"
	"github.com/rushteam/recserve/model"
	"github.com/rushteam/recserve/rank"
)

// Snapshot 是一次加载后可服务的全部只读状态。
// 目录、交互矩阵、模型句柄总是一起替换：请求在开始时取一次快照，
// 整个请求期间只使用这一份，不会看到新目录配旧矩阵。
type Snapshot struct {
	Version  string
	Source   string
	Config   core.ModelConfig
	Catalog  *core.Catalog
	LoadedAt time.Time

	// User 处理用户上下文（factors / pairwise-predict），content_based 时为 nil
	User *model.Adapter
	// Item 处理种子物品上下文（similarity），collaborative 时为 nil
	Item *model.Adapter

	Popular  *rank.Popularity
	Eligible *filter.Rule
}

// NewSnapshot 把加载结果绑定为可服务快照：按能力分派适配器、预排热门、编译资格规则。
func NewSnapshot(b *model.Bundle, eligibility string, now time.Time) (*Snapshot, error) {
	if b == nil || b.Catalog == nil {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeModelNotLoaded, "empty model bundle")
	}
	snap := &Snapshot{
		Version:  b.Version,
		Source:   b.Source,
		Config:   b.Config,
		Catalog:  b.Catalog,
		LoadedAt: now,
		Popular:  rank.NewPopularity(b.Catalog),
	}
	n := b.Catalog.Len()

	var err error
	if b.UserModel != nil {
		if snap.User, err = model.NewAdapter(b.UserModel, b.Interactions, n); err != nil {
			return nil, err
		}
	}
	if b.ItemModel != nil {
		if snap.Item, err = model.NewAdapter(b.ItemModel, nil, n); err != nil {
			return nil, err
		}
	}
	if snap.Eligible, err = filter.NewRule(eligibility, b.Catalog); err != nil {
		return nil, fmt.Errorf("eligibility rule: %w", err)
	}
	return snap, nil
}

// Capabilities 返回快照中绑定的能力
func (s *Snapshot) Capabilities() []string {
	var out []string
	if s.User != nil {
		out = append(out, s.User.Capability().String())
	}
	if s.Item != nil {
		out = append(out, s.Item.Capability().String())
	}
	return out
}
