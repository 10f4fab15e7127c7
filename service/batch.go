package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/model"
)

// RecommendBatch 为多个用户并发生成推荐，每个用户独立走完整流程（含各自的缓存 key）。
// 单个用户失败不会影响整批：该用户的结果替换为热门兜底（reason=scoring_error）。
// 整批使用同一份快照。重复的用户 id 只计算一次。
func (s *Service) RecommendBatch(ctx context.Context, userIDs []int, n int) (map[int]*core.Result, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, core.ErrModelNotLoaded
	}
	if len(userIDs) == 0 {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "user_ids must not be empty")
	}
	if len(userIDs) > s.opts.MaxBatch {
		return nil, core.Errorf(core.ModuleService, core.ErrorCodeInvalidInput,
			"at most %d user_ids per batch, got %d", s.opts.MaxBatch, len(userIDs))
	}
	uniq := make([]int, 0, len(userIDs))
	seen := make(map[int]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id < 0 {
			return nil, core.Errorf(core.ModuleService, core.ErrorCodeInvalidInput, "user id must not be negative, got %d", id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if err := validate(snap, &core.RecommendContext{Kind: core.KindPopular, N: n}); err != nil {
		return nil, err
	}

	results := make([]*core.Result, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)
	for i, uid := range uniq {
		g.Go(func() error {
			rctx := &core.RecommendContext{Kind: core.KindUser, UserID: uid, N: n}
			res, err := s.serve(gctx, snap, rctx)
			if err != nil {
				s.logger.Warn().Err(err).Int("user_id", uid).Msg("batch entry failed, serving popularity fallback")
				seen := snap.User.Seen(model.Context{Kind: model.UserContext, Index: uid})
				res = s.popular(snap, rctx, ReasonScoringError, seen)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[int]*core.Result, len(uniq))
	for i, uid := range uniq {
		out[uid] = results[i]
	}
	return out, nil
}
