package service

import (
	"context"
	"time"

	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/filter"
	"github.com/rushteam/recserve/metrics"
	"github.com/rushteam/recserve/model"
	"github.com/rushteam/recserve/pkg/utils"
	"github.com/rushteam/recserve/rank"
)

// 降级原因
const (
	ReasonUnknownContext = "unknown_context"
	ReasonCapability     = "capability"
	ReasonScoringError   = "scoring_error"
)

// RecommendForUser 返回用户的个性化推荐。
// 未知用户（超出交互矩阵行数）或模型无用户侧能力时返回热门兜底，标记为 fallback。
// 用户已交互物品与 exclude 中的物品不会出现在结果中。
func (s *Service) RecommendForUser(ctx context.Context, userID, n int, exclude []int) (*core.Result, error) {
	return s.serve(ctx, s.snap.Load(), &core.RecommendContext{
		Kind:    core.KindUser,
		UserID:  userID,
		N:       n,
		Exclude: exclude,
	})
}

// RecommendSimilar 返回与种子物品相似的物品，种子本身不会出现在结果中。
func (s *Service) RecommendSimilar(ctx context.Context, itemID, n int) (*core.Result, error) {
	return s.serve(ctx, s.snap.Load(), &core.RecommendContext{
		Kind:   core.KindSimilar,
		ItemID: itemID,
		N:      n,
	})
}

// RecommendPopular 返回热门物品，category 非空时只返回该类目。
func (s *Service) RecommendPopular(ctx context.Context, n int, category string) (*core.Result, error) {
	return s.serve(ctx, s.snap.Load(), &core.RecommendContext{
		Kind:     core.KindPopular,
		N:        n,
		Category: category,
	})
}

func (s *Service) serve(ctx context.Context, snap *Snapshot, rctx *core.RecommendContext) (res *core.Result, err error) {
	s.requests.Add(1)
	defer func() {
		failed := err != nil && !core.IsInvalidInput(err)
		if res != nil && res.Labels[core.LabelReason].Value == ReasonScoringError {
			failed = true
		}
		if failed {
			s.errors.Add(1)
		}
		s.health.record(failed)
	}()

	if snap == nil {
		return nil, core.ErrModelNotLoaded
	}
	if err := validate(snap, rctx); err != nil {
		return nil, err
	}

	key := cacheKey(snap.Version, rctx)
	if res, ok := s.cache.Get(ctx, rctx.Kind, key); ok {
		s.logger.Debug().Str("kind", string(rctx.Kind)).Str("key", key).Bool("cache_hit", true).
			Int("count", len(res.Items)).Msg("recommendation")
		return res, nil
	}

	// 同一 key 的并发未命中只计算一次
	v, err, _ := s.group.Do(key, func() (any, error) {
		res, cacheable, err := s.compute(snap, rctx)
		if err != nil {
			return nil, err
		}
		if cacheable {
			s.cache.Put(ctx, rctx.Kind, key, res)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Result), nil
}

// compute 对缓存未命中的请求打分、排序、格式化。
// cacheable 为 false 表示结果来自打分异常后的兜底，不应写入缓存。
func (s *Service) compute(snap *Snapshot, rctx *core.RecommendContext) (res *core.Result, cacheable bool, err error) {
	start := time.Now()
	switch rctx.Kind {
	case core.KindUser:
		res, cacheable, err = s.personalized(snap, rctx, snap.User, model.Context{Kind: model.UserContext, Index: rctx.UserID})
	case core.KindSimilar:
		res, cacheable, err = s.personalized(snap, rctx, snap.Item, model.Context{Kind: model.ItemContext, Index: rctx.ItemID})
	default:
		res, cacheable = s.popular(snap, rctx, "", nil), true
	}
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug().
		Str("kind", string(rctx.Kind)).
		Int("target", rctx.Target()).
		Str("degradation", string(res.Degradation)).
		Str("algorithm", res.Labels[core.LabelAlgorithm].Value).
		Int("count", len(res.Items)).
		Int("dropped", res.Dropped).
		Float64("computation_time_ms", float64(time.Since(start).Microseconds())/1000).
		Bool("cache_hit", false).
		Msg("recommendation")
	return res, cacheable, nil
}

func (s *Service) personalized(snap *Snapshot, rctx *core.RecommendContext, a *model.Adapter, mctx model.Context) (*core.Result, bool, error) {
	if a == nil {
		return s.popular(snap, rctx, ReasonCapability, nil), true, nil
	}
	if !a.Known(mctx) {
		return s.popular(snap, rctx, ReasonUnknownContext, nil), true, nil
	}

	start := time.Now()
	s.scored.Add(1)
	scores, err := a.Score(mctx)
	if err != nil {
		if core.IsModelNotLoaded(err) || core.IsDimensionMismatch(err) {
			return nil, false, err
		}
		s.logger.Warn().Err(err).Str("context", mctx.String()).Str("capability", a.Capability().String()).
			Msg("scoring failed, serving popularity fallback")
		return s.popular(snap, rctx, ReasonScoringError, a.Seen(mctx)), false, nil
	}

	exclude := filter.Chain{filter.NewSet(a.Seen(mctx), rctx.Exclude), snap.Eligible}
	ranked := rank.TopN(scores, exclude, rctx.N)
	metrics.ScoringDuration.WithLabelValues(a.Capability().String()).Observe(time.Since(start).Seconds())

	res := format(snap, ranked, core.Personalized)
	res.PutLabel(core.LabelAlgorithm, utils.NewLabel(a.Capability().String(), "model"))
	return res, true, nil
}

// popular 是热门兜底。reason 为空表示调用方直接请求热门。
// seen 是上下文已交互的物品，打分失败但交互行可读时由调用方传入；相似请求兜底时也不返回种子物品。
func (s *Service) popular(snap *Snapshot, rctx *core.RecommendContext, reason string, seen []int) *core.Result {
	var seed []int
	if rctx.Kind == core.KindSimilar {
		seed = []int{rctx.ItemID}
	}
	exclude := filter.Chain{filter.NewSet(rctx.Exclude, seed, seen), snap.Eligible}
	res := format(snap, snap.Popular.Top(rctx.N, rctx.Category, exclude), core.Fallback)
	res.PutLabel(core.LabelAlgorithm, utils.NewLabel("popular", "rank"))
	if reason != "" {
		s.fallbacks.Add(1)
		metrics.Fallbacks.WithLabelValues(reason).Inc()
		res.PutLabel(core.LabelReason, utils.NewLabel(reason, "service"))
	}
	return res
}

// format 把排序结果解析为完整物品信息。目录中不存在的 id 直接丢弃并计数。
func format(snap *Snapshot, ranked []rank.Scored, d core.Degradation) *core.Result {
	res := &core.Result{
		Items:        make([]core.Recommendation, 0, len(ranked)),
		Degradation:  d,
		ModelVersion: snap.Version,
	}
	for _, sc := range ranked {
		it, ok := snap.Catalog.Get(sc.ItemID)
		if !ok {
			res.Dropped++
			continue
		}
		res.Items = append(res.Items, core.Recommendation{
			ItemID:   it.ItemID,
			Name:     it.Name,
			Category: it.Category,
			Price:    it.Price,
			ImageURL: it.ImageURL,
			Rating:   it.Rating,
			Rank:     len(res.Items) + 1,
			Score:    sc.Score,
		})
	}
	if res.Dropped > 0 {
		metrics.StaleItemsDropped.Add(float64(res.Dropped))
	}
	return res
}

func validate(snap *Snapshot, rctx *core.RecommendContext) error {
	n := snap.Catalog.Len()
	if rctx.N <= 0 || rctx.N > n {
		return core.Errorf(core.ModuleService, core.ErrorCodeInvalidInput, "n must be in [1, %d], got %d", n, rctx.N)
	}
	if rctx.Target() < 0 && rctx.Kind != core.KindPopular {
		return core.Errorf(core.ModuleService, core.ErrorCodeInvalidInput, "%s id must not be negative, got %d", rctx.Kind, rctx.Target())
	}
	for _, id := range rctx.Exclude {
		if id < 0 || id >= n {
			return core.Errorf(core.ModuleService, core.ErrorCodeInvalidInput, "exclude id %d outside [0, %d)", id, n)
		}
	}
	return nil
}

func cacheKey(version string, rctx *core.RecommendContext) string {
	switch rctx.Kind {
	case core.KindUser:
		return cache.UserKey(version, rctx.UserID, rctx.N, rctx.Exclude)
	case core.KindSimilar:
		return cache.SimilarKey(version, rctx.ItemID, rctx.N)
	}
	return cache.PopularKey(version, rctx.N, rctx.Category)
}
