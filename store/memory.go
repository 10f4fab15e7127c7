package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rushteam/recserve/core"
)

// MemoryStore 是进程内实现的 Store，用于单实例部署、测试和 Tiered 的本地层。
// 支持 TTL，过期条目由 go-cache 的后台清理回收；进程重启后数据丢失。
type MemoryStore struct {
	c *cache.Cache
}

// NewMemoryStore 创建内存存储。
// defaultTTL 用于 Set 时 ttl <= 0 的条目，传 0 表示默认不过期。
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	exp := cache.NoExpiration
	cleanup := time.Minute
	if defaultTTL > 0 {
		exp = defaultTTL
		cleanup = defaultTTL * 2
	}
	return &MemoryStore{c: cache.New(exp, cleanup)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	return b, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	exp := cache.DefaultExpiration
	if ttl > 0 {
		exp = ttl
	}
	m.c.Set(key, value, exp)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Len 返回当前条目数（可能包含尚未清理的过期条目）
func (m *MemoryStore) Len() int { return m.c.ItemCount() }

func (m *MemoryStore) Close() error {
	m.c.Flush()
	return nil
}

var _ core.Store = (*MemoryStore)(nil)
