package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedReport struct {
	Total string `json:"total"`
}

func TestReportCache(t *testing.T) {
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewReportCache(client, time.Minute)

		data, _ := json.Marshal(cachedReport{Total: "10.00"})
		mock.ExpectGet("ledger:gen:tenant-a").SetVal("3")
		mock.ExpectGet("ledger:report:tenant-a:3:trial-balance:p").SetVal(string(data))

		var got cachedReport
		key, hit := cache.Get(ctx, "tenant-a", "trial-balance", "p", &got)
		assert.True(t, hit)
		assert.Equal(t, "ledger:report:tenant-a:3:trial-balance:p", key)
		assert.Equal(t, "10.00", got.Total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss on first generation", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewReportCache(client, time.Minute)

		mock.ExpectGet("ledger:gen:tenant-a").RedisNil()
		mock.ExpectGet("ledger:report:tenant-a:0:trial-balance:p").RedisNil()

		var got cachedReport
		key, hit := cache.Get(ctx, "tenant-a", "trial-balance", "p", &got)
		assert.False(t, hit)
		assert.Equal(t, "ledger:report:tenant-a:0:trial-balance:p", key)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure is a miss", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewReportCache(client, time.Minute)

		mock.ExpectGet("ledger:gen:tenant-a").SetErr(errors.New("connection refused"))

		var got cachedReport
		key, hit := cache.Get(ctx, "tenant-a", "trial-balance", "p", &got)
		assert.False(t, hit)
		assert.Empty(t, key)
		cache.Set(ctx, key, cachedReport{Total: "1"})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set under the generation seen on lookup", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewReportCache(client, time.Minute)

		data, _ := json.Marshal(cachedReport{Total: "5"})
		mock.ExpectGet("ledger:gen:tenant-a").SetVal("7")
		mock.ExpectGet("ledger:report:tenant-a:7:income-statement:q").RedisNil()
		mock.ExpectSet("ledger:report:tenant-a:7:income-statement:q", data, time.Minute).SetVal("OK")

		key, hit := cache.Get(ctx, "tenant-a", "income-statement", "q", &cachedReport{})
		require.False(t, hit)
		cache.Set(ctx, key, cachedReport{Total: "5"})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("write between lookup and set orphans the report", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewReportCache(client, time.Minute)

		stale, _ := json.Marshal(cachedReport{Total: "0"})
		mock.ExpectGet("ledger:gen:tenant-a").SetVal("7")
		mock.ExpectGet("ledger:report:tenant-a:7:trial-balance:p").RedisNil()
		mock.ExpectIncr("ledger:gen:tenant-a").SetVal(8)
		mock.ExpectSet("ledger:report:tenant-a:7:trial-balance:p", stale, time.Minute).SetVal("OK")
		mock.ExpectGet("ledger:gen:tenant-a").SetVal("8")
		mock.ExpectGet("ledger:report:tenant-a:8:trial-balance:p").RedisNil()

		key, hit := cache.Get(ctx, "tenant-a", "trial-balance", "p", &cachedReport{})
		require.False(t, hit)
		cache.Invalidate(ctx, "tenant-a")
		cache.Set(ctx, key, cachedReport{Total: "0"})

		var got cachedReport
		_, hit = cache.Get(ctx, "tenant-a", "trial-balance", "p", &got)
		assert.False(t, hit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidate bumps generation", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		cache := NewReportCache(client, time.Minute)

		mock.ExpectIncr("ledger:gen:tenant-a").SetVal(8)

		cache.Invalidate(ctx, "tenant-a")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil cache is inert", func(t *testing.T) {
		var cache *ReportCache
		assert.Nil(t, NewReportCache((*redis.Client)(nil), time.Minute))
		key, hit := cache.Get(ctx, "t", "r", "p", &cachedReport{})
		assert.False(t, hit)
		assert.Empty(t, key)
		cache.Set(ctx, "ledger:report:t:0:r:p", cachedReport{})
		cache.Invalidate(ctx, "t")
	})
}

func TestReportCacheRequiresClient(t *testing.T) {
	client, _ := redismock.NewClientMock()
	require.NotNil(t, NewReportCache(client, time.Minute))
}
