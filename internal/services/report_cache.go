package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/metrics"
)

// ReportCache memoizes generated reports in Redis. Every ledger write bumps
// the tenant's generation, which orphans all of that tenant's cached reports.
// It is an optimization only; a nil *ReportCache or a Redis failure behaves
// as a miss.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if client == nil {
		return nil
	}
	return &ReportCache{client: client, ttl: ttl}
}

func generationKey(tenantID string) string {
	return "ledger:gen:" + tenantID
}

func (c *ReportCache) reportKey(ctx context.Context, tenantID, report, params string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		gen = "0"
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:report:%s:%s:%s:%s", tenantID, gen, report, params), nil
}

// Get decodes a cached report into dest and reports whether it was found.
// The returned key pins the generation seen before the report is computed;
// Set stores under that key, so a report computed across a concurrent write
// lands in an already orphaned generation. The key is empty when nothing
// should be stored.
func (c *ReportCache) Get(ctx context.Context, tenantID, report, params string, dest any) (string, bool) {
	if c == nil {
		return "", false
	}
	key, err := c.reportKey(ctx, tenantID, report, params)
	if err != nil {
		metrics.ReportCacheTotal.WithLabelValues(report, "error").Inc()
		log.Printf("[CACHE] generation lookup failed: %v", err)
		return "", false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.ReportCacheTotal.WithLabelValues(report, "error").Inc()
			log.Printf("[CACHE] get %s failed: %v", key, err)
			return "", false
		}
		metrics.ReportCacheTotal.WithLabelValues(report, "miss").Inc()
		return key, false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.ReportCacheTotal.WithLabelValues(report, "error").Inc()
		log.Printf("[CACHE] decode %s failed: %v", key, err)
		return key, false
	}
	metrics.ReportCacheTotal.WithLabelValues(report, "hit").Inc()
	return key, true
}

// Set stores value under a key returned by Get.
func (c *ReportCache) Set(ctx context.Context, key string, value any) {
	if c == nil || key == "" {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[CACHE] encode %s failed: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("[CACHE] set %s failed: %v", key, err)
	}
}

// Invalidate orphans every cached report of the tenant.
func (c *ReportCache) Invalidate(ctx context.Context, tenantID string) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, generationKey(tenantID)).Err(); err != nil {
		log.Printf("[CACHE] invalidate tenant %s failed: %v", tenantID, err)
	}
}
