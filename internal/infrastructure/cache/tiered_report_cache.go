package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/resilience"
	"go.uber.org/zap"
)

// TieredReportCache layers the report caches:
// L1: local in-memory cache (fast, but local to instance)
// L2: Redis cache (slower, but shared across instances)
// L3: optional second Redis with a longer TTL, consulted after L2 misses
//
// Reads go L1 -> L2 -> L3 with hits populated back up; writes go to every
// tier and publish a Pub/Sub eviction so other instances drop their L1.
//
// A cache outage must never take reads down with it, so every Redis call
// runs through the circuit breaker and failures are absorbed: the caller
// sees a miss and the degradation counter, never the error. This is the
// one place where swallowing errors is the contract, not a bug.
type TieredReportCache struct {
	l1          *InMemoryReportCache
	l2          *RedisReportCache
	l3          *RedisReportCache // nil unless the L3 tier is configured
	invalidator *RedisReportCacheInvalidator
	breaker     *resilience.Breaker // nil means Redis calls run unguarded
	config      ledger.ReportCacheConfig
	logger      *zap.Logger

	// Stats for monitoring
	l1Hits       int64
	l1Misses     int64
	l2Hits       int64
	l2Misses     int64
	l3Hits       int64
	l3Misses     int64
	degradations int64
}

// TieredReportCacheOption is a functional option for configuring the cache
type TieredReportCacheOption func(*TieredReportCache)

// WithTieredConfig sets the cache configuration
func WithTieredConfig(config ledger.ReportCacheConfig) TieredReportCacheOption {
	return func(c *TieredReportCache) {
		c.config = config
	}
}

// WithTieredLogger sets the logger for the cache
func WithTieredLogger(logger *zap.Logger) TieredReportCacheOption {
	return func(c *TieredReportCache) {
		c.logger = logger
	}
}

// WithTieredL3 adds the optional L3 Redis tier
func WithTieredL3(l3 *RedisReportCache) TieredReportCacheOption {
	return func(c *TieredReportCache) {
		c.l3 = l3
	}
}

// WithTieredBreaker guards the Redis tiers with a circuit breaker
func WithTieredBreaker(breaker *resilience.Breaker) TieredReportCacheOption {
	return func(c *TieredReportCache) {
		c.breaker = breaker
	}
}

// NewTieredReportCache creates a new tiered report cache
func NewTieredReportCache(
	l1 *InMemoryReportCache,
	l2 *RedisReportCache,
	invalidator *RedisReportCacheInvalidator,
	opts ...TieredReportCacheOption,
) *TieredReportCache {
	cache := &TieredReportCache{
		l1:          l1,
		l2:          l2,
		invalidator: invalidator,
		config:      ledger.DefaultReportCacheConfig(),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// StartInvalidationSubscription starts listening for cache eviction messages
// published by other instances. This blocks and should run in a goroutine.
func (c *TieredReportCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}

	return c.invalidator.Subscribe(ctx, func(msg ledger.ReportCacheMessage) {
		c.handleEvictionMessage(msg)
	})
}

// handleEvictionMessage drops the named entry from L1 only. The publishing
// instance already rewrote the shared Redis tiers; touching them here would
// evict the fresh value.
func (c *TieredReportCache) handleEvictionMessage(msg ledger.ReportCacheMessage) {
	ctx := context.Background()

	switch msg.Action {
	case ledger.ReportCacheActionDailyEvicted:
		tenantID, propertyID, ok := c.parseIDs(msg)
		if !ok {
			return
		}
		date, err := ledger.ParseDate(msg.Date)
		if err != nil {
			c.logger.Error("Invalid date in cache eviction message",
				zap.String("date", msg.Date),
				zap.Error(err))
			return
		}
		_ = c.l1.DeleteDaily(ctx, tenantID, propertyID, date)
		c.logger.Debug("Evicted daily report from L1",
			zap.String("property_id", msg.PropertyID),
			zap.String("date", msg.Date))

	case ledger.ReportCacheActionMonthlyEvicted:
		tenantID, propertyID, ok := c.parseIDs(msg)
		if !ok {
			return
		}
		month, err := ledger.ParseYearMonth(msg.Month)
		if err != nil {
			c.logger.Error("Invalid month in cache eviction message",
				zap.String("month", msg.Month),
				zap.Error(err))
			return
		}
		_ = c.l1.DeleteMonthly(ctx, tenantID, propertyID, month)
		c.logger.Debug("Evicted monthly report from L1",
			zap.String("property_id", msg.PropertyID),
			zap.String("month", msg.Month))

	case ledger.ReportCacheActionInvalidateAll:
		_ = c.l1.InvalidateAll(ctx)
		c.logger.Info("Invalidated all L1 report cache")
	}
}

// parseIDs extracts the tenant and property IDs from an eviction message
func (c *TieredReportCache) parseIDs(msg ledger.ReportCacheMessage) (tenantID, propertyID uuid.UUID, ok bool) {
	tenantID, err := uuid.Parse(msg.TenantID)
	if err != nil {
		c.logger.Error("Invalid tenant ID in cache eviction message",
			zap.String("tenant_id", msg.TenantID),
			zap.Error(err))
		return uuid.Nil, uuid.Nil, false
	}
	propertyID, err = uuid.Parse(msg.PropertyID)
	if err != nil {
		c.logger.Error("Invalid property ID in cache eviction message",
			zap.String("property_id", msg.PropertyID),
			zap.Error(err))
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, propertyID, true
}

// guard runs a Redis tier call through the breaker when one is configured
func (c *TieredReportCache) guard(ctx context.Context, fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Do(ctx, fn)
}

// degrade records a swallowed tier failure. Rejections from an already-open
// breaker are logged quietly; one Warn per request while Redis is down would
// drown the log.
func (c *TieredReportCache) degrade(op string, err error) {
	atomic.AddInt64(&c.degradations, 1)
	if errors.Is(err, resilience.ErrOpen) {
		c.logger.Debug("Report cache degraded", zap.String("op", op), zap.Error(err))
		return
	}
	c.logger.Warn("Report cache degraded", zap.String("op", op), zap.Error(err))
}

// GetDaily retrieves a daily report, trying each tier in order. Tier
// failures count as misses; the error never reaches the caller.
func (c *TieredReportCache) GetDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	// Try L1 first
	report, _ := c.l1.GetDaily(ctx, tenantID, propertyID, date)
	if report != nil {
		atomic.AddInt64(&c.l1Hits, 1)
		return report, nil
	}
	atomic.AddInt64(&c.l1Misses, 1)

	// Try L2
	err := c.guard(ctx, func() error {
		var innerErr error
		report, innerErr = c.l2.GetDaily(ctx, tenantID, propertyID, date)
		return innerErr
	})
	if err != nil {
		c.degrade("l2.get_daily", err)
	} else if report != nil {
		atomic.AddInt64(&c.l2Hits, 1)
		_ = c.l1.SetDaily(ctx, report, c.config.L1TTL)
		return report, nil
	} else {
		atomic.AddInt64(&c.l2Misses, 1)
	}

	if c.l3 == nil {
		return nil, nil
	}

	// Try L3
	err = c.guard(ctx, func() error {
		var innerErr error
		report, innerErr = c.l3.GetDaily(ctx, tenantID, propertyID, date)
		return innerErr
	})
	if err != nil {
		c.degrade("l3.get_daily", err)
		return nil, nil
	}
	if report != nil {
		atomic.AddInt64(&c.l3Hits, 1)
		// Populate the faster tiers
		if err := c.guard(ctx, func() error { return c.l2.SetDaily(ctx, report, 0) }); err != nil {
			c.degrade("l2.set_daily", err)
		}
		_ = c.l1.SetDaily(ctx, report, c.config.L1TTL)
		return report, nil
	}
	atomic.AddInt64(&c.l3Misses, 1)

	return nil, nil
}

// SetDaily writes a daily report through every tier and tells other
// instances to drop theirs. Tier failures degrade instead of erroring; the
// TTL backstop bounds any staleness they cause.
func (c *TieredReportCache) SetDaily(ctx context.Context, report *ledger.DailyReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	if err := c.guard(ctx, func() error { return c.l2.SetDaily(ctx, report, ttl) }); err != nil {
		c.degrade("l2.set_daily", err)
	}
	if c.l3 != nil {
		// ttl 0 lets L3 apply its own, longer default
		if err := c.guard(ctx, func() error { return c.l3.SetDaily(ctx, report, 0) }); err != nil {
			c.degrade("l3.set_daily", err)
		}
	}
	_ = c.l1.SetDaily(ctx, report, c.config.L1TTL)

	if c.invalidator != nil {
		if err := c.invalidator.PublishDailyEvicted(ctx, report.TenantID, report.PropertyID, report.Date); err != nil {
			c.degrade("publish.daily_evicted", err)
		}
	}

	return nil
}

// DeleteDaily removes a daily report from every tier
func (c *TieredReportCache) DeleteDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) error {
	if err := c.guard(ctx, func() error { return c.l2.DeleteDaily(ctx, tenantID, propertyID, date) }); err != nil {
		c.degrade("l2.delete_daily", err)
	}
	if c.l3 != nil {
		if err := c.guard(ctx, func() error { return c.l3.DeleteDaily(ctx, tenantID, propertyID, date) }); err != nil {
			c.degrade("l3.delete_daily", err)
		}
	}
	_ = c.l1.DeleteDaily(ctx, tenantID, propertyID, date)

	if c.invalidator != nil {
		if err := c.invalidator.PublishDailyEvicted(ctx, tenantID, propertyID, date); err != nil {
			c.degrade("publish.daily_evicted", err)
		}
	}

	return nil
}

// GetMonthly retrieves a monthly report, trying each tier in order
func (c *TieredReportCache) GetMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) (*ledger.MonthlyReport, error) {
	// Try L1 first
	report, _ := c.l1.GetMonthly(ctx, tenantID, propertyID, month)
	if report != nil {
		atomic.AddInt64(&c.l1Hits, 1)
		return report, nil
	}
	atomic.AddInt64(&c.l1Misses, 1)

	// Try L2
	err := c.guard(ctx, func() error {
		var innerErr error
		report, innerErr = c.l2.GetMonthly(ctx, tenantID, propertyID, month)
		return innerErr
	})
	if err != nil {
		c.degrade("l2.get_monthly", err)
	} else if report != nil {
		atomic.AddInt64(&c.l2Hits, 1)
		_ = c.l1.SetMonthly(ctx, report, c.config.L1TTL)
		return report, nil
	} else {
		atomic.AddInt64(&c.l2Misses, 1)
	}

	if c.l3 == nil {
		return nil, nil
	}

	// Try L3
	err = c.guard(ctx, func() error {
		var innerErr error
		report, innerErr = c.l3.GetMonthly(ctx, tenantID, propertyID, month)
		return innerErr
	})
	if err != nil {
		c.degrade("l3.get_monthly", err)
		return nil, nil
	}
	if report != nil {
		atomic.AddInt64(&c.l3Hits, 1)
		// Populate the faster tiers
		if err := c.guard(ctx, func() error { return c.l2.SetMonthly(ctx, report, 0) }); err != nil {
			c.degrade("l2.set_monthly", err)
		}
		_ = c.l1.SetMonthly(ctx, report, c.config.L1TTL)
		return report, nil
	}
	atomic.AddInt64(&c.l3Misses, 1)

	return nil, nil
}

// SetMonthly writes a monthly report through every tier
func (c *TieredReportCache) SetMonthly(ctx context.Context, report *ledger.MonthlyReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	if err := c.guard(ctx, func() error { return c.l2.SetMonthly(ctx, report, ttl) }); err != nil {
		c.degrade("l2.set_monthly", err)
	}
	if c.l3 != nil {
		if err := c.guard(ctx, func() error { return c.l3.SetMonthly(ctx, report, 0) }); err != nil {
			c.degrade("l3.set_monthly", err)
		}
	}
	_ = c.l1.SetMonthly(ctx, report, c.config.L1TTL)

	if c.invalidator != nil {
		if err := c.invalidator.PublishMonthlyEvicted(ctx, report.TenantID, report.PropertyID, report.Month); err != nil {
			c.degrade("publish.monthly_evicted", err)
		}
	}

	return nil
}

// DeleteMonthly removes a monthly report from every tier
func (c *TieredReportCache) DeleteMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) error {
	if err := c.guard(ctx, func() error { return c.l2.DeleteMonthly(ctx, tenantID, propertyID, month) }); err != nil {
		c.degrade("l2.delete_monthly", err)
	}
	if c.l3 != nil {
		if err := c.guard(ctx, func() error { return c.l3.DeleteMonthly(ctx, tenantID, propertyID, month) }); err != nil {
			c.degrade("l3.delete_monthly", err)
		}
	}
	_ = c.l1.DeleteMonthly(ctx, tenantID, propertyID, month)

	if c.invalidator != nil {
		if err := c.invalidator.PublishMonthlyEvicted(ctx, tenantID, propertyID, month); err != nil {
			c.degrade("publish.monthly_evicted", err)
		}
	}

	return nil
}

// InvalidateAll removes every cached report from every tier
func (c *TieredReportCache) InvalidateAll(ctx context.Context) error {
	if err := c.guard(ctx, func() error { return c.l2.InvalidateAll(ctx) }); err != nil {
		c.degrade("l2.invalidate_all", err)
	}
	if c.l3 != nil {
		if err := c.guard(ctx, func() error { return c.l3.InvalidateAll(ctx) }); err != nil {
			c.degrade("l3.invalidate_all", err)
		}
	}
	_ = c.l1.InvalidateAll(ctx)

	if c.invalidator != nil {
		if err := c.invalidator.PublishInvalidateAll(ctx); err != nil {
			c.degrade("publish.invalidate_all", err)
		}
	}

	return nil
}

// InvalidateL1Daily removes a daily report from the local tier only
func (c *TieredReportCache) InvalidateL1Daily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) error {
	return c.l1.DeleteDaily(ctx, tenantID, propertyID, date)
}

// InvalidateL1Monthly removes a monthly report from the local tier only
func (c *TieredReportCache) InvalidateL1Monthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) error {
	return c.l1.DeleteMonthly(ctx, tenantID, propertyID, month)
}

// GetCacheStats returns statistics about cache hits, misses, and degradations
func (c *TieredReportCache) GetCacheStats(ctx context.Context) ledger.ReportCacheStats {
	l1Hits := atomic.LoadInt64(&c.l1Hits)
	l1Misses := atomic.LoadInt64(&c.l1Misses)
	l2Hits := atomic.LoadInt64(&c.l2Hits)
	l2Misses := atomic.LoadInt64(&c.l2Misses)
	l3Hits := atomic.LoadInt64(&c.l3Hits)
	l3Misses := atomic.LoadInt64(&c.l3Misses)

	totalHits := l1Hits + l2Hits + l3Hits
	// Only count misses at the final tier
	totalMisses := l2Misses
	if c.l3 != nil {
		totalMisses = l3Misses
	}

	var hitRatio float64
	totalRequests := totalHits + totalMisses
	if totalRequests > 0 {
		hitRatio = float64(totalHits) / float64(totalRequests)
	}

	dailyCount, monthlyCount := c.l1.Count()

	return ledger.ReportCacheStats{
		L1Hits:       l1Hits,
		L1Misses:     l1Misses,
		L2Hits:       l2Hits,
		L2Misses:     l2Misses,
		L3Hits:       l3Hits,
		L3Misses:     l3Misses,
		TotalHits:    totalHits,
		TotalMisses:  totalMisses,
		HitRatio:     hitRatio,
		CacheEntries: int64(dailyCount + monthlyCount),
		Degradations: atomic.LoadInt64(&c.degradations),
	}
}

// ResetStats resets the cache statistics
func (c *TieredReportCache) ResetStats() {
	atomic.StoreInt64(&c.l1Hits, 0)
	atomic.StoreInt64(&c.l1Misses, 0)
	atomic.StoreInt64(&c.l2Hits, 0)
	atomic.StoreInt64(&c.l2Misses, 0)
	atomic.StoreInt64(&c.l3Hits, 0)
	atomic.StoreInt64(&c.l3Misses, 0)
	atomic.StoreInt64(&c.degradations, 0)
	c.l1.ResetStats()
}

// Close releases any resources held by the cache tiers
func (c *TieredReportCache) Close() error {
	var lastErr error

	if c.invalidator != nil {
		if err := c.invalidator.Close(); err != nil {
			lastErr = err
		}
	}

	if c.l3 != nil {
		if err := c.l3.Close(); err != nil {
			lastErr = err
		}
	}

	if err := c.l2.Close(); err != nil {
		lastErr = err
	}

	if err := c.l1.Close(); err != nil {
		lastErr = err
	}

	return lastErr
}

// Ensure TieredReportCache implements both ReportCache and TieredReportCache
var _ ledger.ReportCache = (*TieredReportCache)(nil)
var _ ledger.TieredReportCache = (*TieredReportCache)(nil)
