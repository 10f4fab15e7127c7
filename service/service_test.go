package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/matrix"
	"github.com/rushteam/recserve/model"
	"github.com/rushteam/recserve/rank"
	"github.com/rushteam/recserve/store"
)

func f64(v float64) *float64 { return &v }

func testItems() []core.ItemRecord {
	return []core.ItemRecord{
		{ItemID: 0, Name: "Go Book", Category: "Books", Price: 30, PopularityScore: f64(0.5), Rating: f64(4.8)},
		{ItemID: 1, Name: "Toy Car", Category: "Toys", Price: 10, PopularityScore: f64(0.9)},
		{ItemID: 2, Name: "Novel", Category: "Books", Price: 15, PopularityScore: f64(0.7)},
		{ItemID: 3, Name: "Puzzle", Category: "Toys", Price: 12, PopularityScore: f64(0.2)},
		{ItemID: 4, Name: "Cookbook", Category: "Books", Price: 25, PopularityScore: f64(0.8)},
		{ItemID: 5, Name: "Atlas", Category: "Books", Price: 40},
	}
}

// countingPredictor 统计 Predict 调用次数，并可让指定用户打分失败
type countingPredictor struct {
	inner    *model.BiasedMF
	failUser int
	calls    atomic.Int64
}

func (p *countingPredictor) Name() string { return "counting" }
func (p *countingPredictor) Users() int   { return p.inner.Users() }
func (p *countingPredictor) Items() int   { return p.inner.Items() }
func (p *countingPredictor) Predict(u, i int) (float64, error) {
	p.calls.Add(1)
	if u == p.failUser {
		return 0, errors.New("predictor exploded")
	}
	return p.inner.Predict(u, i)
}

func newPredictor() *countingPredictor {
	return &countingPredictor{
		failUser: -1,
		inner: &model.BiasedMF{
			UserBias:    []float64{0, 0, 0},
			ItemBias:    []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
			UserFactors: [][]float64{{1, 0}, {0, 1}, {0, 0}},
			ItemFactors: [][]float64{{1, 0}, {0, 1}, {0.5, 0.5}, {0.2, 0.9}, {0.9, 0.1}, {0, 0}},
		},
	}
}

func testBundle(t *testing.T, p model.PairwisePredictor, modelType core.ModelType) *model.Bundle {
	t.Helper()
	catalog, err := core.NewCatalog(testItems())
	require.NoError(t, err)
	b := &model.Bundle{
		Version: "v1",
		Source:  "test",
		Config:  core.ModelConfig{ModelType: modelType, NUsers: 3, NItems: 6},
		Catalog: catalog,
	}
	if modelType.UsesInteractions() {
		b.Interactions, err = matrix.NewDenseRows([][]float64{
			{1, 0, 0, 0, 0, 0},
			{0, 1, 0, 1, 0, 0},
			{0, 0, 0, 0, 0, 0},
		})
		require.NoError(t, err)
		b.UserModel = &model.Handle{Capability: model.CapabilityPairwise, Pairwise: p}
	}
	if modelType.UsesSimilarity() {
		sim, err := matrix.NewDenseRows([][]float64{
			{1, 0.1, 0.9, 0, 0.8, 0.3},
			{0.1, 1, 0, 0.7, 0, 0},
			{0.9, 0, 1, 0, 0.6, 0.2},
			{0, 0.7, 0, 1, 0, 0},
			{0.8, 0, 0.6, 0, 1, 0.4},
			{0.3, 0, 0.2, 0, 0.4, 1},
		})
		require.NoError(t, err)
		b.ItemModel = &model.Handle{Capability: model.CapabilitySimilarity, Similarity: sim}
	}
	return b
}

func newTestService(t *testing.T, b *model.Bundle, opts Options) *Service {
	t.Helper()
	opts.Logger = zerolog.Nop()
	svc := New(opts)
	snap, err := NewSnapshot(b, opts.Eligibility, time.Now())
	require.NoError(t, err)
	svc.Swap(snap)
	return svc
}

func redisCache(t *testing.T) *cache.ResultCache {
	t.Helper()
	s := miniredis.RunT(t)
	rs := store.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}), "test")
	return cache.New(rs, cache.Config{}, zerolog.Nop())
}

func assertNoDuplicates(t *testing.T, ids []int) {
	t.Helper()
	seen := make(map[int]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate item %d", id)
		seen[id] = true
	}
}

func TestRecommendForUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{})

	res, err := svc.RecommendForUser(ctx, 0, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 3}, res.IDs())
	assert.Equal(t, core.Personalized, res.Degradation)
	assert.Equal(t, "pairwise-predict", res.Labels[core.LabelAlgorithm].Value)
	assert.Equal(t, "v1", res.ModelVersion)
	assert.Equal(t, 1, res.Items[0].Rank)
	assert.Equal(t, "Cookbook", res.Items[0].Name)
	assert.InDelta(t, 1.4, res.Items[0].Score, 1e-9)

	res, err = svc.RecommendForUser(ctx, 0, 3, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 5}, res.IDs())
}

func TestRecommendForUser_NeverReturnsSeenOrExcluded(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{})
	seen := map[int][]int{0: {0}, 1: {1, 3}, 2: nil}

	for user := 0; user < 5; user++ {
		for n := 1; n <= 6; n++ {
			for _, exclude := range [][]int{nil, {4}, {2, 4, 4}} {
				res, err := svc.RecommendForUser(ctx, user, n, exclude)
				require.NoError(t, err)
				ids := res.IDs()
				assert.LessOrEqual(t, len(ids), n)
				assertNoDuplicates(t, ids)
				for _, banned := range append(append([]int{}, seen[user]...), exclude...) {
					assert.NotContains(t, ids, banned, "user %d n %d", user, n)
				}
			}
		}
	}
}

func TestRecommendForUser_ColdStartMatchesPopular(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{})

	for n := 1; n <= 6; n++ {
		cold, err := svc.RecommendForUser(ctx, 3+n, n, nil)
		require.NoError(t, err)
		pop, err := svc.RecommendPopular(ctx, n, "")
		require.NoError(t, err)
		assert.Equal(t, pop.IDs(), cold.IDs())
		assert.Equal(t, core.Fallback, cold.Degradation)
		assert.Equal(t, ReasonUnknownContext, cold.Labels[core.LabelReason].Value)
	}
}

func TestRecommend_IdempotentWithCache(t *testing.T) {
	ctx := context.Background()
	p := newPredictor()
	svc := newTestService(t, testBundle(t, p, core.ModelTypeCollaborative), Options{Cache: redisCache(t)})

	first, err := svc.RecommendForUser(ctx, 1, 4, []int{5, 2})
	require.NoError(t, err)
	calls := p.calls.Load()
	require.Equal(t, int64(6), calls)

	// 排除集合顺序不同、逻辑相同
	second, err := svc.RecommendForUser(ctx, 1, 4, []int{2, 5, 5})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, calls, p.calls.Load(), "second request must not re-score")
	assert.Equal(t, int64(1), svc.Stats().Scored)
	assert.Equal(t, int64(1), svc.Health().Cache.Hits)
}

type failingStore struct{}

func (failingStore) Name() string { return "failing" }
func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("cache down")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (failingStore) Delete(context.Context, string) error { return nil }
func (failingStore) Close() error                         { return nil }

func TestRecommend_FailOpen(t *testing.T) {
	ctx := context.Background()
	b := testBundle(t, newPredictor(), core.ModelTypeHybrid)
	plain := newTestService(t, b, Options{})
	broken := newTestService(t, b, Options{Cache: cache.New(failingStore{}, cache.Config{}, zerolog.Nop())})

	for i := 0; i < 3; i++ {
		for user := 0; user < 4; user++ {
			want, err := plain.RecommendForUser(ctx, user, 4, []int{5})
			require.NoError(t, err)
			got, err := broken.RecommendForUser(ctx, user, 4, []int{5})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		want, err := plain.RecommendSimilar(ctx, 0, 3)
		require.NoError(t, err)
		got, err := broken.RecommendSimilar(ctx, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		want, err = plain.RecommendPopular(ctx, 5, "Books")
		require.NoError(t, err)
		got, err = broken.RecommendPopular(ctx, 5, "Books")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Positive(t, broken.Health().Cache.Errors)
	assert.Equal(t, StatusHealthy, broken.Health().Status)
}

func TestRecommendPopular_Category(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{})

	res, err := svc.RecommendPopular(ctx, 5, "Books")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 0, 5}, res.IDs())
	for _, it := range res.Items {
		assert.Equal(t, "Books", it.Category)
	}

	res, err = svc.RecommendPopular(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, res.IDs())
	assert.Empty(t, res.Labels[core.LabelReason].Value)

	res, err = svc.RecommendPopular(ctx, 3, "Garden")
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestRecommendBatch_Independent(t *testing.T) {
	ctx := context.Background()
	p := newPredictor()
	p.failUser = 1
	svc := newTestService(t, testBundle(t, p, core.ModelTypeCollaborative), Options{Cache: redisCache(t), BatchConcurrency: 2})

	out, err := svc.RecommendBatch(ctx, []int{0, 42, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)

	pop, err := svc.RecommendPopular(ctx, 3, "")
	require.NoError(t, err)

	assert.Equal(t, []int{4, 2, 3}, out[0].IDs())
	assert.Equal(t, core.Personalized, out[0].Degradation)
	assert.Equal(t, pop.IDs(), out[42].IDs())
	// 打分失败的兜底仍排除用户已交互的物品 {1, 3}
	assert.Equal(t, []int{4, 2, 0}, out[1].IDs())
	assert.NotContains(t, out[1].IDs(), 1)
	assert.NotContains(t, out[1].IDs(), 3)
	assert.Equal(t, ReasonScoringError, out[1].Labels[core.LabelReason].Value)
	for _, res := range out {
		assert.NotEmpty(t, res.Items)
	}

	// 打分失败的兜底结果不进缓存，下次仍会尝试打分
	before := p.calls.Load()
	_, err = svc.RecommendForUser(ctx, 1, 3, nil)
	require.NoError(t, err)
	assert.Greater(t, p.calls.Load(), before)
}

func TestRecommendBatch_Invalid(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{MaxBatch: 2})

	tests := []struct {
		name  string
		users []int
		n     int
	}{
		{"empty", nil, 3},
		{"too many", []int{0, 1, 2}, 3},
		{"negative user", []int{-1}, 3},
		{"zero n", []int{0}, 0},
		{"n beyond catalog", []int{0}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecommendBatch(ctx, tt.users, tt.n)
			assert.True(t, core.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestRecommendSimilar(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeHybrid), Options{})

	res, err := svc.RecommendSimilar(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, res.IDs())
	assert.Equal(t, "similarity", res.Labels[core.LabelAlgorithm].Value)

	for item := 0; item < 6; item++ {
		res, err := svc.RecommendSimilar(ctx, item, 6)
		require.NoError(t, err)
		assert.NotContains(t, res.IDs(), item)
	}

	res, err = svc.RecommendSimilar(ctx, 60, 2)
	require.NoError(t, err)
	assert.Equal(t, core.Fallback, res.Degradation)
	assert.Equal(t, []int{1, 4}, res.IDs())
}

func TestCapabilityFallback(t *testing.T) {
	ctx := context.Background()

	collab := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{})
	res, err := collab.RecommendSimilar(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, ReasonCapability, res.Labels[core.LabelReason].Value)
	assert.Equal(t, []int{4, 2}, res.IDs())

	content := newTestService(t, testBundle(t, nil, core.ModelTypeContentBased), Options{})
	res, err = content.RecommendForUser(ctx, 0, 2, []int{1})
	require.NoError(t, err)
	assert.Equal(t, core.Fallback, res.Degradation)
	assert.Equal(t, []int{4, 2}, res.IDs())
}

func TestRecommend_InvalidParameters(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeHybrid), Options{})

	_, err := svc.RecommendForUser(ctx, 0, 0, nil)
	assert.True(t, core.IsInvalidInput(err))
	_, err = svc.RecommendForUser(ctx, 0, 7, nil)
	assert.True(t, core.IsInvalidInput(err))
	_, err = svc.RecommendForUser(ctx, -1, 3, nil)
	assert.True(t, core.IsInvalidInput(err))
	_, err = svc.RecommendForUser(ctx, 0, 3, []int{6})
	assert.True(t, core.IsInvalidInput(err))
	_, err = svc.RecommendSimilar(ctx, -2, 3)
	assert.True(t, core.IsInvalidInput(err))
	_, err = svc.RecommendPopular(ctx, -1, "")
	assert.True(t, core.IsInvalidInput(err))

	// 参数错误不计入错误率
	assert.Zero(t, svc.Stats().Errors)
}

func TestModelNotLoaded(t *testing.T) {
	ctx := context.Background()
	svc := New(Options{Logger: zerolog.Nop()})

	_, err := svc.RecommendForUser(ctx, 0, 3, nil)
	assert.True(t, core.IsModelNotLoaded(err))
	_, err = svc.RecommendSimilar(ctx, 0, 3)
	assert.True(t, core.IsModelNotLoaded(err))
	_, err = svc.RecommendPopular(ctx, 3, "")
	assert.True(t, core.IsModelNotLoaded(err))
	_, err = svc.RecommendBatch(ctx, []int{0}, 3)
	assert.True(t, core.IsModelNotLoaded(err))

	h := svc.Health()
	assert.False(t, h.Loaded)
	assert.Equal(t, StatusNotLoaded, h.Status)
	assert.Equal(t, "not_loaded", h.ModelType)
}

func TestEligibilityRule(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeHybrid), Options{
		Eligibility: `item.category != "Toys"`,
	})

	for user := 0; user < 4; user++ {
		res, err := svc.RecommendForUser(ctx, user, 6, nil)
		require.NoError(t, err)
		assert.NotContains(t, res.IDs(), 1)
		assert.NotContains(t, res.IDs(), 3)
	}
	res, err := svc.RecommendPopular(ctx, 6, "")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 0, 5}, res.IDs())

	_, err = NewSnapshot(testBundle(t, newPredictor(), core.ModelTypeHybrid), `item.nope +`, time.Now())
	assert.Error(t, err)
}

func TestFormat_DropsStaleReferences(t *testing.T) {
	b := testBundle(t, newPredictor(), core.ModelTypeCollaborative)
	snap, err := NewSnapshot(b, "", time.Now())
	require.NoError(t, err)

	res := format(snap, []rank.Scored{{ItemID: 2, Score: 3}, {ItemID: 17, Score: 2}, {ItemID: 0, Score: 1}}, core.Personalized)
	assert.Equal(t, []int{2, 0}, res.IDs())
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 2, res.Items[1].Rank)
}

func TestSwap_IsolatesSnapshotsAndCache(t *testing.T) {
	ctx := context.Background()
	c := redisCache(t)
	svc := newTestService(t, testBundle(t, newPredictor(), core.ModelTypeCollaborative), Options{Cache: c})

	first, err := svc.RecommendPopular(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", first.ModelVersion)

	// 新版本目录中热门顺序改变
	items := testItems()
	items[5].PopularityScore = f64(1.0)
	catalog, err := core.NewCatalog(items)
	require.NoError(t, err)
	b2 := testBundle(t, newPredictor(), core.ModelTypeCollaborative)
	b2.Version, b2.Catalog = "v2", catalog
	snap, err := NewSnapshot(b2, "", time.Now())
	require.NoError(t, err)
	prev := svc.Swap(snap)
	assert.Equal(t, "v1", prev.Version)

	second, err := svc.RecommendPopular(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "v2", second.ModelVersion)
	assert.Equal(t, []int{5, 1}, second.IDs())
}

func writeArtifact(t *testing.T, dir, name string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), raw, 0o644))
}

func TestLoad_FailureKeepsCurrentSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeArtifact(t, dir, model.FileConfig, map[string]any{"model_type": "content_based", "n_items": 3})
	writeArtifact(t, dir, model.FileItems, []map[string]any{
		{"item_id": 0, "name": "a", "category": "X", "price": 1},
		{"item_id": 1, "name": "b", "category": "X", "price": 1},
		{"item_id": 2, "name": "c", "category": "Y", "price": 1},
	})
	writeArtifact(t, dir, model.FileSimilarity, map[string]any{
		"format": "csr", "shape": []int{3, 3}, "indptr": []int{0, 1, 2, 2}, "indices": []int{2, 0}, "data": []float64{0.5, 0.4},
	})

	svc := New(Options{Source: model.NewDirSource(dir), Logger: zerolog.Nop()})
	require.NoError(t, svc.Reload(ctx))
	version := svc.Snapshot().Version

	res, err := svc.RecommendSimilar(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.IDs())

	// 声明的维度与产物不一致：加载失败，旧快照继续服务
	writeArtifact(t, dir, model.FileConfig, map[string]any{"model_type": "content_based", "n_items": 4})
	err = svc.Reload(ctx)
	assert.True(t, core.IsDimensionMismatch(err))
	assert.Equal(t, version, svc.Snapshot().Version)

	h := svc.Health()
	assert.True(t, h.Loaded)
	assert.Equal(t, "content_based", h.ModelType)
	assert.Equal(t, 3, h.Dimensions.NItems)
	assert.Equal(t, []string{"similarity"}, h.Capabilities)
}

func TestHealth_Degraded(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	p := newPredictor()
	p.failUser = 2
	b := testBundle(t, p, core.ModelTypeCollaborative)

	svc := New(Options{Logger: zerolog.Nop(), Now: clock, HealthWindow: time.Minute})
	snap, err := NewSnapshot(b, "", now)
	require.NoError(t, err)
	svc.Swap(snap)

	for i := 0; i < 30; i++ {
		_, err := svc.RecommendForUser(ctx, 0, 2, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusHealthy, svc.Health().Status)

	for i := 0; i < 5; i++ {
		res, err := svc.RecommendForUser(ctx, 2, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, core.Fallback, res.Degradation)
	}
	h := svc.Health()
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, int64(5), h.Stats.Errors)

	// 两个窗口之后错误率归零
	now = now.Add(3 * time.Minute)
	assert.Equal(t, StatusHealthy, svc.Health().Status)
	assert.InDelta(t, 180.0, svc.Health().UptimeSeconds, 1e-9)
}

func TestRecommendForUser_ScoringErrorExcludesSeen(t *testing.T) {
	ctx := context.Background()
	p := newPredictor()
	p.failUser = 1
	svc := newTestService(t, testBundle(t, p, core.ModelTypeCollaborative), Options{})

	res, err := svc.RecommendForUser(ctx, 1, 3, []int{4})
	require.NoError(t, err)
	assert.Equal(t, core.Fallback, res.Degradation)
	assert.Equal(t, ReasonScoringError, res.Labels[core.LabelReason].Value)
	assert.Equal(t, []int{2, 0, 5}, res.IDs())
}
