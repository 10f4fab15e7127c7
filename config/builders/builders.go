// Package builders 注册内置缓存后端。
package builders

import (
	"context"

	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/store"
)

func init() {
	config.RegisterStore("none", BuildNone)
	config.RegisterStore("memory", BuildMemory)
	config.RegisterStore("redis", BuildRedis)
	config.RegisterStore("tiered", BuildTiered)
}

func BuildNone(context.Context, config.CacheConfig) (core.Store, error) {
	return nil, nil
}

func BuildMemory(_ context.Context, cfg config.CacheConfig) (core.Store, error) {
	return store.NewMemoryStore(cfg.UserTTL), nil
}

func BuildRedis(ctx context.Context, cfg config.CacheConfig) (core.Store, error) {
	return store.NewRedisStore(ctx, cfg.Redis.Options())
}

// BuildTiered 进程内缓存 + Redis，Redis 不可达时启动失败
func BuildTiered(ctx context.Context, cfg config.CacheConfig) (core.Store, error) {
	far, err := store.NewRedisStore(ctx, cfg.Redis.Options())
	if err != nil {
		return nil, err
	}
	return store.NewTiered(store.NewMemoryStore(cfg.NearTTL), far, cfg.NearTTL), nil
}
