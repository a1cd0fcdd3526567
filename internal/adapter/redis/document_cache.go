package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	documentListKey = "documents:list"

	kindDocument = "document"
	kindList     = "list"
)

// DocumentCache is a read-through Redis cache in front of a DocumentStore.
// Redis failures never surface to callers: a broken cache behaves like an
// empty one and every call goes to the wrapped store.
type DocumentCache struct {
	store   domain.DocumentStore
	rdb     goredis.Cmdable
	ttl     time.Duration
	metrics *metrics.CacheMetrics
}

var _ domain.DocumentStore = (*DocumentCache)(nil)

func NewDocumentCache(store domain.DocumentStore, rdb goredis.Cmdable, ttl time.Duration, m *metrics.CacheMetrics) *DocumentCache {
	return &DocumentCache{store: store, rdb: rdb, ttl: ttl, metrics: m}
}

func (c *DocumentCache) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var cached []domain.Document
	if c.read(ctx, kindList, documentListKey, &cached) {
		return cached, nil
	}

	docs, err := c.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	c.write(ctx, documentListKey, docs)
	return docs, nil
}

// GetDocument caches hits only; an unknown id is asked of the store every time.
func (c *DocumentCache) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var cached domain.Document
	if c.read(ctx, kindDocument, documentKey(id), &cached) {
		return &cached, nil
	}

	doc, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	c.write(ctx, documentKey(id), doc)
	return doc, nil
}

func (c *DocumentCache) CreateDocument(ctx context.Context, title, content string) (*domain.Document, error) {
	doc, err := c.store.CreateDocument(ctx, title, content)
	if err != nil {
		return nil, err
	}

	c.write(ctx, documentKey(doc.ID), doc)
	c.invalidateList(ctx)
	return doc, nil
}

func (c *DocumentCache) UpdateDocument(ctx context.Context, id, content string, title *string) (*domain.Document, error) {
	doc, err := c.store.UpdateDocument(ctx, id, content, title)
	if err != nil {
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			// The write may have landed; drop our copy rather than serve a stale one.
			c.delete(ctx, documentKey(id))
		}
		return nil, err
	}

	c.write(ctx, documentKey(id), doc)
	c.invalidateList(ctx)
	return doc, nil
}

// Ping reports the health of the document store only. The cache is optional.
func (c *DocumentCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *DocumentCache) read(ctx context.Context, kind, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.metrics.Errors.WithLabelValues("get").Inc()
			slog.Warn("Redis document cache GET failed", "key", key, "error", err)
		}
		c.metrics.Misses.WithLabelValues(kind).Inc()
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.metrics.Errors.WithLabelValues("decode").Inc()
		c.metrics.Misses.WithLabelValues(kind).Inc()
		slog.Warn("Failed to unmarshal cached document", "key", key, "error", err)
		return false
	}

	c.metrics.Hits.WithLabelValues(kind).Inc()
	return true
}

func (c *DocumentCache) write(ctx context.Context, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		c.metrics.Errors.WithLabelValues("encode").Inc()
		slog.Warn("Failed to marshal document for Redis cache", "key", key, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.metrics.Errors.WithLabelValues("set").Inc()
		slog.Warn("Failed to populate Redis document cache", "key", key, "error", err)
	}
}

func (c *DocumentCache) invalidateList(ctx context.Context) {
	c.metrics.Invalidations.Inc()
	c.delete(ctx, documentListKey)
}

func (c *DocumentCache) delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.metrics.Errors.WithLabelValues("del").Inc()
		slog.Warn("Failed to invalidate Redis document cache", "key", key, "error", err)
	}
}

func documentKey(id string) string {
	return "document:" + id
}
