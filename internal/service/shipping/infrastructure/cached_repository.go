package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
)

const (
	snapshotKeyPrefix   = "shipping:snapshot:"
	snapshotLoadTimeout = 5 * time.Second
)

// SnapshotCache 是快照缓存需要的最小 KV 接口，由 internal/pkg/redis.Client 实现。
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedRowSource 在数据库之前加一层 Redis 缓存。
// 缓存出错时直接回源数据库；同一商品的并发未命中通过 singleflight 合并。
type CachedRowSource struct {
	next  RowSource
	cache SnapshotCache
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
}

func NewCachedRowSource(next RowSource, cache SnapshotCache, ttl time.Duration) *CachedRowSource {
	return &CachedRowSource{next: next, cache: cache, ttl: ttl, loadTimeout: snapshotLoadTimeout}
}

func snapshotKey(productID string) string {
	return snapshotKeyPrefix + productID
}

func (c *CachedRowSource) LoadSnapshotRows(ctx context.Context, productID string) (*SnapshotRows, error) {
	ctx, span := tracer.Start(ctx, "cache.LoadSnapshotRows")
	defer span.End()

	key := snapshotKey(productID)
	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		metrics.SnapshotCacheTotal.WithLabelValues("error").Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Snapshot cache read failed, falling back to database")
	} else if ok {
		var rows SnapshotRows
		if err := json.Unmarshal(data, &rows); err == nil {
			metrics.SnapshotCacheTotal.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &rows, nil
		}
		metrics.SnapshotCacheTotal.WithLabelValues("error").Inc()
		logger.Ctx(ctx).Warn().Str("key", key).Msg("Corrupted snapshot cache entry ignored")
	} else {
		metrics.SnapshotCacheTotal.WithLabelValues("miss").Inc()
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// 合并后的加载被多个调用方共享，不能跟随第一个调用方取消
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		rows, err := c.next.LoadSnapshotRows(lctx, productID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(rows); err == nil {
			if err := c.cache.Set(lctx, key, data, c.ttl); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Snapshot cache write failed")
			}
		}
		return rows, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SnapshotRows), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate 删除某个商品的快照缓存，实现 port.SnapshotInvalidator。
func (c *CachedRowSource) Invalidate(ctx context.Context, productID string) error {
	return c.cache.Delete(ctx, snapshotKey(productID))
}
