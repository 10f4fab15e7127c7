// Package cache 是推荐结果缓存：位于打分之前，吸收重复请求。
//
// 缓存只是优化：任何存储故障（超时、错误、熔断、脏数据）都等同于未命中，
// 写入失败只记录日志，永远不改变结果的正确性。
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/metrics"
)

// Config 是结果缓存策略
type Config struct {
	// Timeout 是单次存储往返上限，超时按未命中处理
	Timeout time.Duration

	UserTTL    time.Duration
	SimilarTTL time.Duration
	PopularTTL time.Duration

	Breaker BreakerConfig
}

// BreakerConfig 控制存储熔断：连续失败达到阈值后短路，Timeout 后半开探测。
type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:    75 * time.Millisecond,
		UserTTL:    time.Hour,
		SimilarTTL: time.Hour,
		PopularTTL: 2 * time.Hour,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          10 * time.Second,
		},
	}
}

// Stats 是缓存计数快照
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Breaker string `json:"breaker,omitempty"`
}

// ResultCache 在 core.Store 之上实现 fail-open 的结果缓存。
// store 为 nil 时缓存关闭，Get 恒未命中，Put 为空操作。
type ResultCache struct {
	store   core.Store
	cfg     Config
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

func New(store core.Store, cfg Config, logger zerolog.Logger) *ResultCache {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = def.UserTTL
	}
	if cfg.SimilarTTL <= 0 {
		cfg.SimilarTTL = def.SimilarTTL
	}
	if cfg.PopularTTL <= 0 {
		cfg.PopularTTL = def.PopularTTL
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = def.Breaker
	}

	c := &ResultCache{store: store, cfg: cfg}
	name := "none"
	if store != nil {
		name = store.Name()
	}
	c.logger = logger.With().Str("component", "cache").Str("store", name).Logger()

	if store != nil {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "cache:" + name,
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
			},
			// 未命中不是故障
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, core.ErrStoreNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("cache breaker state changed")
			},
		})
	}
	return c
}

// Enabled 表示是否配置了存储
func (c *ResultCache) Enabled() bool { return c != nil && c.store != nil }

// TTL 返回请求类型对应的过期时间
func (c *ResultCache) TTL(kind core.RequestKind) time.Duration {
	switch kind {
	case core.KindPopular:
		return c.cfg.PopularTTL
	case core.KindSimilar:
		return c.cfg.SimilarTTL
	}
	return c.cfg.UserTTL
}

// Get 读取缓存结果；任何失败都返回 (nil, false)。
func (c *ResultCache) Get(ctx context.Context, kind core.RequestKind, key string) (*core.Result, bool) {
	if !c.Enabled() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.store.Get(ctx, key)
	})
	if err != nil {
		if !errors.Is(err, core.ErrStoreNotFound) {
			c.fail("get", key, err)
		}
		c.miss(kind)
		return nil, false
	}

	var res core.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.fail("decode", key, err)
		c.miss(kind)
		return nil, false
	}
	c.hits.Add(1)
	metrics.CacheHits.WithLabelValues(string(kind)).Inc()
	return &res, true
}

// Put 写入缓存，整体替换旧值。失败只记录，不返回错误。
// 写入不受调用方取消影响，但仍受 Timeout 约束。
func (c *ResultCache) Put(ctx context.Context, kind core.RequestKind, key string, res *core.Result) {
	if !c.Enabled() || res == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		c.fail("encode", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.store.Set(ctx, key, raw, c.TTL(kind))
	})
	if err != nil {
		c.fail("set", key, err)
	}
}

// Stats 返回计数快照
func (c *ResultCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
	if c.breaker != nil {
		s.Breaker = c.breaker.State().String()
	}
	return s
}

// Close 释放底层存储
func (c *ResultCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Close()
}

func (c *ResultCache) miss(kind core.RequestKind) {
	c.misses.Add(1)
	metrics.CacheMisses.WithLabelValues(string(kind)).Inc()
}

func (c *ResultCache) fail(op, key string, err error) {
	c.errs.Add(1)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		op = "breaker"
	}
	metrics.CacheErrors.WithLabelValues(op).Inc()
	c.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("cache unavailable, continuing uncached")
}
