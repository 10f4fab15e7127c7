package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recserve/core"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	s := miniredis.RunT(t)
	st, err := NewRedisStore(context.Background(), RedisOptions{Addrs: []string{s.Addr()}, Namespace: "rs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return s, st
}

func TestStores_Contract(t *testing.T) {
	ctx := context.Background()
	_, rs := newRedis(t)
	_, far := newRedis(t)

	stores := map[string]core.Store{
		"memory": NewMemoryStore(0),
		"redis":  rs,
		"tiered": NewTiered(NewMemoryStore(0), far, time.Minute),
	}
	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(ctx, "missing")
			assert.ErrorIs(t, err, core.ErrStoreNotFound)
			assert.True(t, core.IsNotFound(err))

			require.NoError(t, st.Set(ctx, "k", []byte("v"), time.Hour))
			got, err := st.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)

			require.NoError(t, st.Set(ctx, "k", []byte("v2"), time.Hour))
			got, err = st.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			require.NoError(t, st.Delete(ctx, "k"))
			_, err = st.Get(ctx, "k")
			assert.ErrorIs(t, err, core.ErrStoreNotFound)
		})
	}
}

func TestRedisStore_NamespaceAndTTL(t *testing.T) {
	ctx := context.Background()
	s, st := newRedis(t)

	require.NoError(t, st.Set(ctx, "rec:1", []byte("x"), time.Hour))
	assert.True(t, s.Exists("rs:rec:1"))
	assert.Equal(t, time.Hour, s.TTL("rs:rec:1"))

	s.FastForward(2 * time.Hour)
	_, err := st.Get(ctx, "rec:1")
	assert.ErrorIs(t, err, core.ErrStoreNotFound)
}

func TestRedisStore_Unavailable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewRedisStore(context.Background(), RedisOptions{Addrs: []string{addr}, DialTimeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, core.IsUnavailable(err))
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(0)
	require.NoError(t, st.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.NoError(t, st.Set(ctx, "forever", []byte("y"), 0))

	time.Sleep(50 * time.Millisecond)
	_, err := st.Get(ctx, "short")
	assert.ErrorIs(t, err, core.ErrStoreNotFound)
	_, err = st.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestTiered_BackfillsNear(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	far := NewRedisStoreWithClient(client, "")
	near := NewMemoryStore(0)
	tiered := NewTiered(near, far, time.Minute)

	// 只存在于远端（例如另一实例写入）
	require.NoError(t, s.Set("k", "remote"))
	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)
	assert.Equal(t, 1, near.Len())

	// 远端宕机后本地层仍可命中
	s.Close()
	got, err = tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), got)

	// 远端写失败时不写本地
	assert.Error(t, tiered.Set(ctx, "other", []byte("v"), time.Hour))
	_, err = near.Get(ctx, "other")
	assert.ErrorIs(t, err, core.ErrStoreNotFound)
}
