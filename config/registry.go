package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/recserve/core"
)

// 使用配置驱动的缓存后端时，需在 main 或入口处 import _ "github.com/rushteam/recserve/config/builders"
// 以触发内置后端（none、memory、redis、tiered）的 init 注册。

// StoreBuilder 根据缓存配置打开一个存储。返回 (nil, nil) 表示关闭缓存。
type StoreBuilder func(ctx context.Context, cfg CacheConfig) (core.Store, error)

var (
	storeBuilders   = make(map[string]StoreBuilder)
	storeBuildersMu sync.RWMutex
)

// RegisterStore 注册一种缓存后端，建议在 init 中调用。
func RegisterStore(name string, builder StoreBuilder) {
	if name == "" || builder == nil {
		return
	}
	storeBuildersMu.Lock()
	defer storeBuildersMu.Unlock()
	storeBuilders[name] = builder
}

// HasStore 判断后端是否已注册
func HasStore(name string) bool {
	storeBuildersMu.RLock()
	defer storeBuildersMu.RUnlock()
	_, ok := storeBuilders[name]
	return ok
}

// SupportedStores 返回已注册的后端（排序），用于错误提示与校验。
func SupportedStores() []string {
	storeBuildersMu.RLock()
	defer storeBuildersMu.RUnlock()
	names := make([]string, 0, len(storeBuilders))
	for name := range storeBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildStore 按 cfg.Backend 打开缓存存储
func BuildStore(ctx context.Context, cfg CacheConfig) (core.Store, error) {
	storeBuildersMu.RLock()
	builder, ok := storeBuilders[cfg.Backend]
	storeBuildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache backend %q, supported: %v", cfg.Backend, SupportedStores())
	}
	return builder(ctx, cfg)
}
