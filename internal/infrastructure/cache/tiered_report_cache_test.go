package cache

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUnreachableRedis returns a client whose every command fails immediately,
// standing in for a Redis outage.
func newUnreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       "127.0.0.1:1",
		MaxRetries: -1,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
}

func newDegradedTieredCache(t *testing.T, opts ...TieredReportCacheOption) *TieredReportCache {
	t.Helper()
	l1 := NewInMemoryReportCache()
	l2 := NewRedisReportCacheWithClient(newUnreachableRedis())
	cache := NewTieredReportCache(l1, l2, nil, opts...)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestTieredReportCache_ServesFromL1WhenRedisIsDown(t *testing.T) {
	cache := newDegradedTieredCache(t)

	ctx := context.Background()
	tenantID := uuid.New()
	propertyID := uuid.New()
	date := ledger.NewDate(2026, time.August, 25)
	report := testDailyReport(tenantID, propertyID, date, 3000)

	// The L2 write fails underneath; the caller must not see it
	require.NoError(t, cache.SetDaily(ctx, report, 0))

	got, err := cache.GetDaily(ctx, tenantID, propertyID, date)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3000), got.ClosingBalanceCents)

	stats := cache.GetCacheStats(ctx)
	assert.Equal(t, int64(1), stats.L1Hits)
	assert.GreaterOrEqual(t, stats.Degradations, int64(1))
}

func TestTieredReportCache_RedisOutageReadsAsMiss(t *testing.T) {
	cache := newDegradedTieredCache(t)

	ctx := context.Background()
	got, err := cache.GetDaily(ctx, uuid.New(), uuid.New(), ledger.NewDate(2026, time.August, 25))
	require.NoError(t, err, "a cache outage must never surface to the caller")
	assert.Nil(t, got)

	stats := cache.GetCacheStats(ctx)
	assert.Equal(t, int64(1), stats.L1Misses)
	assert.Equal(t, int64(1), stats.Degradations)
	assert.Zero(t, stats.L2Hits)
	assert.Zero(t, stats.L2Misses, "a failed tier read is a degradation, not a miss")
}

func TestTieredReportCache_MonthlyFollowsTheSameDegradedPath(t *testing.T) {
	cache := newDegradedTieredCache(t)

	ctx := context.Background()
	tenantID := uuid.New()
	propertyID := uuid.New()
	month := ledger.YearMonth{Year: 2026, Month: time.August}

	require.NoError(t, cache.SetMonthly(ctx, testMonthlyReport(tenantID, propertyID, month), 0))

	got, err := cache.GetMonthly(ctx, tenantID, propertyID, month)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9500), got.ClosingBalanceCents)

	require.NoError(t, cache.DeleteMonthly(ctx, tenantID, propertyID, month))
	got, err = cache.GetMonthly(ctx, tenantID, propertyID, month)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTieredReportCache_BreakerStopsHammeringARedisOutage(t *testing.T) {
	breaker := resilience.NewBreaker("report-cache", resilience.Config{
		FailureThreshold:  3,
		OpenDuration:      time.Minute,
		HalfOpenMaxProbes: 1,
		SuccessThreshold:  1,
	})
	cache := newDegradedTieredCache(t, WithTieredBreaker(breaker))

	ctx := context.Background()
	tenantID := uuid.New()
	propertyID := uuid.New()
	date := ledger.NewDate(2026, time.August, 25)

	for i := 0; i < 5; i++ {
		got, err := cache.GetDaily(ctx, tenantID, propertyID, date)
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	bstats := breaker.Stats()
	assert.Equal(t, "open", bstats.State)
	assert.Equal(t, int64(2), bstats.Rejected, "calls after the third failure should be rejected without dialing")
	assert.Equal(t, int64(5), cache.GetCacheStats(ctx).Degradations)
}

func TestTieredReportCache_EvictionMessagesDropL1Only(t *testing.T) {
	cache := newDegradedTieredCache(t)

	ctx := context.Background()
	tenantID := uuid.New()
	propertyID := uuid.New()
	date := ledger.NewDate(2026, time.August, 25)
	month := ledger.YearMonth{Year: 2026, Month: time.August}

	seed := func() {
		require.NoError(t, cache.SetDaily(ctx, testDailyReport(tenantID, propertyID, date, 3000), 0))
		require.NoError(t, cache.SetMonthly(ctx, testMonthlyReport(tenantID, propertyID, month), 0))
	}

	t.Run("daily eviction leaves the monthly entry", func(t *testing.T) {
		seed()
		cache.handleEvictionMessage(ledger.ReportCacheMessage{
			Action:     ledger.ReportCacheActionDailyEvicted,
			TenantID:   tenantID.String(),
			PropertyID: propertyID.String(),
			Date:       date.String(),
		})

		got, err := cache.GetDaily(ctx, tenantID, propertyID, date)
		require.NoError(t, err)
		assert.Nil(t, got)

		gotMonthly, err := cache.GetMonthly(ctx, tenantID, propertyID, month)
		require.NoError(t, err)
		assert.NotNil(t, gotMonthly)
	})

	t.Run("monthly eviction", func(t *testing.T) {
		seed()
		cache.handleEvictionMessage(ledger.ReportCacheMessage{
			Action:     ledger.ReportCacheActionMonthlyEvicted,
			TenantID:   tenantID.String(),
			PropertyID: propertyID.String(),
			Month:      month.String(),
		})

		gotMonthly, err := cache.GetMonthly(ctx, tenantID, propertyID, month)
		require.NoError(t, err)
		assert.Nil(t, gotMonthly)
	})

	t.Run("invalidate all clears both maps", func(t *testing.T) {
		seed()
		cache.handleEvictionMessage(ledger.ReportCacheMessage{
			Action: ledger.ReportCacheActionInvalidateAll,
		})

		daily, monthly := cache.l1.Count()
		assert.Equal(t, 0, daily)
		assert.Equal(t, 0, monthly)
	})

	t.Run("malformed message is ignored", func(t *testing.T) {
		seed()
		cache.handleEvictionMessage(ledger.ReportCacheMessage{
			Action:     ledger.ReportCacheActionDailyEvicted,
			TenantID:   "not-a-uuid",
			PropertyID: propertyID.String(),
			Date:       date.String(),
		})
		cache.handleEvictionMessage(ledger.ReportCacheMessage{
			Action:     ledger.ReportCacheActionDailyEvicted,
			TenantID:   tenantID.String(),
			PropertyID: propertyID.String(),
			Date:       "85-13-99",
		})

		got, err := cache.GetDaily(ctx, tenantID, propertyID, date)
		require.NoError(t, err)
		assert.NotNil(t, got, "a bad eviction message must not touch valid entries")
	})
}

func TestTieredReportCache_InvalidateL1TouchesOnlyTheNamedEntry(t *testing.T) {
	cache := newDegradedTieredCache(t)

	ctx := context.Background()
	tenantID := uuid.New()
	propertyID := uuid.New()
	day1 := ledger.NewDate(2026, time.August, 1)
	day2 := ledger.NewDate(2026, time.August, 2)

	require.NoError(t, cache.SetDaily(ctx, testDailyReport(tenantID, propertyID, day1, 3000), 0))
	require.NoError(t, cache.SetDaily(ctx, testDailyReport(tenantID, propertyID, day2, 7000), 0))

	require.NoError(t, cache.InvalidateL1Daily(ctx, tenantID, propertyID, day1))

	got, err := cache.GetDaily(ctx, tenantID, propertyID, day1)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = cache.GetDaily(ctx, tenantID, propertyID, day2)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTieredReportCache_GetCacheStats(t *testing.T) {
	cache := newDegradedTieredCache(t)

	ctx := context.Background()
	tenantID := uuid.New()
	propertyID := uuid.New()
	date := ledger.NewDate(2026, time.August, 25)
	month := ledger.YearMonth{Year: 2026, Month: time.August}

	require.NoError(t, cache.SetDaily(ctx, testDailyReport(tenantID, propertyID, date, 3000), 0))
	require.NoError(t, cache.SetMonthly(ctx, testMonthlyReport(tenantID, propertyID, month), 0))

	for i := 0; i < 2; i++ {
		_, err := cache.GetDaily(ctx, tenantID, propertyID, date)
		require.NoError(t, err)
	}
	_, err := cache.GetMonthly(ctx, tenantID, propertyID, ledger.YearMonth{Year: 2026, Month: time.July})
	require.NoError(t, err)

	stats := cache.GetCacheStats(ctx)
	assert.Equal(t, int64(2), stats.L1Hits)
	assert.Equal(t, int64(1), stats.L1Misses)
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.Equal(t, int64(0), stats.TotalMisses)
	assert.Equal(t, float64(1), stats.HitRatio)
	assert.Equal(t, int64(2), stats.CacheEntries)
	assert.Greater(t, stats.Degradations, int64(0))

	cache.ResetStats()
	stats = cache.GetCacheStats(ctx)
	assert.Zero(t, stats.TotalHits)
	assert.Zero(t, stats.Degradations)
}
