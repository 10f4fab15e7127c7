// Package service 编排一次推荐请求：
//
//	RECEIVED → CACHE_LOOKUP → CACHE_HIT → 返回
//	                       └→ CACHE_MISS → RESOLVE_CONTEXT → SCORE → RANK → FORMAT → CACHE_STORE → 返回
//
// 未知用户/物品在 RESOLVE_CONTEXT 直接转到热门兜底，不视为错误。
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/metrics"
	"github.com/rushteam/recserve/model"
)

// Options 是 Service 的依赖与策略
type Options struct {
	// Source 是 Reload 使用的产物来源
	Source model.Source
	// Cache 为 nil 时不使用缓存
	Cache *cache.ResultCache
	// Eligibility 是物品资格 CEL 表达式，空表示全部可推荐
	Eligibility string

	// MaxBatch 是一次批量请求的最大用户数
	MaxBatch int
	// BatchConcurrency 是批量请求内的并发度
	BatchConcurrency int

	// DegradedErrorRate 超过该错误率时 health 报告 degraded
	DegradedErrorRate float64
	HealthWindow      time.Duration

	Logger zerolog.Logger
	// Now 是时钟，默认 time.Now
	Now func() time.Time
}

// Stats 是服务级计数
type Stats struct {
	Requests  int64 `json:"requests"`
	Scored    int64 `json:"scored"`
	Fallbacks int64 `json:"fallbacks"`
	Errors    int64 `json:"errors"`
}

// Service 是推荐服务。所有方法可并发调用。
type Service struct {
	opts   Options
	snap   atomic.Pointer[Snapshot]
	cache  *cache.ResultCache
	group  singleflight.Group
	logger zerolog.Logger
	health *healthMonitor

	started  time.Time
	reloadMu sync.Mutex

	requests  atomic.Int64
	scored    atomic.Int64
	fallbacks atomic.Int64
	errors    atomic.Int64
}

func New(opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 100
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 8
	}
	if opts.DegradedErrorRate <= 0 {
		opts.DegradedErrorRate = 0.01
	}
	if opts.HealthWindow <= 0 {
		opts.HealthWindow = 5 * time.Minute
	}
	s := &Service{
		opts:    opts,
		cache:   opts.Cache,
		logger:  opts.Logger.With().Str("component", "recommend").Logger(),
		health:  newHealthMonitor(opts.HealthWindow, opts.Now),
		started: opts.Now(),
	}
	return s
}

// Snapshot 返回当前快照，未加载时为 nil
func (s *Service) Snapshot() *Snapshot { return s.snap.Load() }

// Swap 原子替换快照并返回旧快照。进行中的请求继续使用旧快照。
func (s *Service) Swap(next *Snapshot) *Snapshot {
	prev := s.snap.Swap(next)
	if next != nil {
		metrics.SetModel(next.Version, string(next.Config.ModelType), next.Catalog.Len())
	}
	return prev
}

// Load 从 src 加载并切换快照。失败时旧快照继续服务。
func (s *Service) Load(ctx context.Context, src model.Source) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := s.opts.Now()
	bundle, err := model.Load(ctx, src)
	if err == nil {
		var snap *Snapshot
		if snap, err = NewSnapshot(bundle, s.opts.Eligibility, s.opts.Now()); err == nil {
			prev := s.Swap(snap)
			metrics.ModelReloads.WithLabelValues("success").Inc()
			ev := s.logger.Info().
				Str("version", snap.Version).
				Str("model_type", string(snap.Config.ModelType)).
				Strs("capabilities", snap.Capabilities()).
				Int("n_items", snap.Catalog.Len()).
				Int("n_users", snap.Config.NUsers).
				Int("ineligible", snap.Eligible.Excluded()).
				Dur("took", s.opts.Now().Sub(start))
			if prev != nil {
				ev = ev.Str("previous", prev.Version)
			}
			ev.Msg("model snapshot loaded")
			return nil
		}
	}

	metrics.ModelReloads.WithLabelValues("failure").Inc()
	name := "<nil>"
	if src != nil {
		name = src.Name()
	}
	ev := s.logger.Error().Err(err).Str("source", name)
	if cur := s.snap.Load(); cur != nil {
		ev = ev.Str("serving", cur.Version)
	}
	ev.Msg("model load failed, keeping current snapshot")
	return err
}

// Reload 从 Options.Source 重新加载
func (s *Service) Reload(ctx context.Context) error {
	return s.Load(ctx, s.opts.Source)
}

// Stats 返回计数快照
func (s *Service) Stats() Stats {
	return Stats{
		Requests:  s.requests.Load(),
		Scored:    s.scored.Load(),
		Fallbacks: s.fallbacks.Load(),
		Errors:    s.errors.Load(),
	}
}

// Close 释放缓存连接
func (s *Service) Close() error {
	return s.cache.Close()
}
