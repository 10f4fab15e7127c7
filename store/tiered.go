package store

import (
	"context"
	"errors"
	"time"

	"github.com/rushteam/recserve/core"
)

// Tiered 是两级缓存：本地 near（L1）+ 远端 far（L2）。
//   - Get：先查 L1；未命中查 L2，命中后回填 L1
//   - Set：写 L2 成功后写 L1；L1 TTL 取 min(ttl, nearTTL)
//
// L1 的 TTL 较短，其他实例写入新值后本实例最多延迟 nearTTL 才能看到。
type Tiered struct {
	near    *MemoryStore
	far     core.Store
	nearTTL time.Duration
}

func NewTiered(near *MemoryStore, far core.Store, nearTTL time.Duration) *Tiered {
	return &Tiered{near: near, far: far, nearTTL: nearTTL}
}

func (t *Tiered) Name() string { return "tiered(" + t.near.Name() + "+" + t.far.Name() + ")" }

func (t *Tiered) nearExpiry(ttl time.Duration) time.Duration {
	if t.nearTTL > 0 && (ttl <= 0 || ttl > t.nearTTL) {
		return t.nearTTL
	}
	return ttl
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := t.near.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := t.far.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = t.near.Set(ctx, key, v, t.nearExpiry(0))
	return v, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.far.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return t.near.Set(ctx, key, value, t.nearExpiry(ttl))
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.near.Delete(ctx, key)
	return t.far.Delete(ctx, key)
}

func (t *Tiered) Close() error {
	return errors.Join(t.near.Close(), t.far.Close())
}

var _ core.Store = (*Tiered)(nil)
