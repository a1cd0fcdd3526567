package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/memory"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	m := newRedisMetrics()
	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL, NewMetricsHook(m), NewCircuitBreakerHook(m))
	require.NoError(t, err)

	require.NoError(t, client.FlushAll(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNewClient_Connects(t *testing.T) {
	client := setupTestClient(t)

	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestDocumentCache_AgainstRealRedis(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	store := memory.NewStore(clockwork.NewRealClock())
	cache := NewDocumentCache(store, client, 30*time.Second, metrics.NewCacheMetrics(prometheus.NewRegistry()))

	created, err := cache.CreateDocument(ctx, "Shared", "hello")
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, documentKey(created.ID)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	got, err := cache.GetDocument(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	docs, err := cache.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	exists, err := client.Exists(ctx, documentListKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
