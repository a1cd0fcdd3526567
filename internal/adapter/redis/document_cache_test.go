package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/memory"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts reads that reach the underlying store.
type countingStore struct {
	domain.DocumentStore
	lists atomic.Int32
	gets  atomic.Int32
}

func (s *countingStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	s.lists.Add(1)
	return s.DocumentStore.ListDocuments(ctx)
}

func (s *countingStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.gets.Add(1)
	return s.DocumentStore.GetDocument(ctx, id)
}

type cacheFixture struct {
	mr      *miniredis.Miniredis
	store   *countingStore
	cache   *DocumentCache
	metrics *metrics.CacheMetrics
}

func setupCache(t *testing.T) *cacheFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &countingStore{DocumentStore: memory.NewStore(clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))}
	m := metrics.NewCacheMetrics(prometheus.NewRegistry())

	return &cacheFixture{
		mr:      mr,
		store:   store,
		cache:   NewDocumentCache(store, rdb, time.Minute, m),
		metrics: m,
	}
}

func TestDocumentCache_GetReadsThrough(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	created, err := f.store.CreateDocument(ctx, "Notes", "hello")
	require.NoError(t, err)

	first, err := f.cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	second, err := f.cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.store.gets.Load())
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Title, second.Title)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
	assert.True(t, f.mr.Exists("document:"+created.ID))
	assert.Equal(t, time.Minute, f.mr.TTL("document:"+created.ID))

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Hits.WithLabelValues(kindDocument)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Misses.WithLabelValues(kindDocument)), 0)
}

func TestDocumentCache_GetNotFoundIsNotCached(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	for range 2 {
		_, err := f.cache.GetDocument(ctx, "missing")
		require.ErrorIs(t, err, domain.ErrDocumentNotFound)
	}

	assert.Equal(t, int32(2), f.store.gets.Load())
	assert.False(t, f.mr.Exists("document:missing"))
}

func TestDocumentCache_ListReadsThrough(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	_, err := f.store.CreateDocument(ctx, "A", "")
	require.NoError(t, err)

	first, err := f.cache.ListDocuments(ctx)
	require.NoError(t, err)
	second, err := f.cache.ListDocuments(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.store.lists.Load())
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestDocumentCache_CreateInvalidatesList(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	docs, err := f.cache.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	created, err := f.cache.CreateDocument(ctx, "Fresh", "")
	require.NoError(t, err)
	assert.False(t, f.mr.Exists(documentListKey))

	docs, err = f.cache.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, created.ID, docs[0].ID)
	assert.Equal(t, int32(2), f.store.lists.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Invalidations), 0)
}

func TestDocumentCache_UpdateRefreshesEntry(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	created, err := f.cache.CreateDocument(ctx, "Draft", "v1")
	require.NoError(t, err)
	_, err = f.cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)

	title := "Final"
	_, err = f.cache.UpdateDocument(ctx, created.ID, "v2", &title)
	require.NoError(t, err)

	got, err := f.cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, int32(0), f.store.gets.Load())
}

func TestDocumentCache_UpdateUnknownLeavesCacheAlone(t *testing.T) {
	f := setupCache(t)

	_, err := f.cache.UpdateDocument(context.Background(), "missing", "x", nil)
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.False(t, f.mr.Exists("document:missing"))
}

func TestDocumentCache_CorruptEntryFallsThrough(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	created, err := f.store.CreateDocument(ctx, "A", "body")
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("document:"+created.ID, "{not json"))

	got, err := f.cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("decode")), 0)
}

func TestDocumentCache_RedisDownDegradesToStore(t *testing.T) {
	f := setupCache(t)
	ctx := context.Background()

	created, err := f.store.CreateDocument(ctx, "A", "body")
	require.NoError(t, err)
	f.mr.Close()

	got, err := f.cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "body", got.Content)

	docs, err := f.cache.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = f.cache.UpdateDocument(ctx, created.ID, "after", nil)
	require.NoError(t, err)

	assert.Positive(t, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("get")))
	assert.Positive(t, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("set")))
}

func TestDocumentCache_PingUsesStore(t *testing.T) {
	f := setupCache(t)
	f.mr.Close()

	assert.NoError(t, f.cache.Ping(context.Background()))
}
