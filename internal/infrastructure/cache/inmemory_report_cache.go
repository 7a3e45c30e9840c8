package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// Constants for in-memory cache configuration
const (
	defaultCleanupInterval = 30 * time.Second
)

// InMemoryReportCache implements ReportCache using in-process storage.
// It is designed to be used as the L1 tier in front of Redis.
type InMemoryReportCache struct {
	daily   sync.Map // map[string]*cacheEntry[ledger.DailyReport]
	monthly sync.Map // map[string]*cacheEntry[ledger.MonthlyReport]
	config  ledger.ReportCacheConfig
	logger  *zap.Logger
	stopCh  chan struct{} // Channel to stop the cleanup goroutine
	stopped int32         // Atomic flag to track if cache is stopped

	// Stats for monitoring
	hits   int64
	misses int64
}

// cacheEntry wraps a cached value with expiration time
type cacheEntry[T any] struct {
	value     *T
	expiresAt time.Time
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry[T]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryReportCacheOption is a functional option for configuring the cache
type InMemoryReportCacheOption func(*InMemoryReportCache)

// WithInMemoryConfig sets the cache configuration
func WithInMemoryConfig(config ledger.ReportCacheConfig) InMemoryReportCacheOption {
	return func(c *InMemoryReportCache) {
		c.config = config
	}
}

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryReportCacheOption {
	return func(c *InMemoryReportCache) {
		c.logger = logger
	}
}

// NewInMemoryReportCache creates a new in-memory report cache
func NewInMemoryReportCache(opts ...InMemoryReportCacheOption) *InMemoryReportCache {
	cache := &InMemoryReportCache{
		config: ledger.DefaultReportCacheConfig(),
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	// Start background cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// GetDaily retrieves a daily report from cache
func (c *InMemoryReportCache) GetDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	cacheKey := dailyReportKey(tenantID, propertyID, date)

	if value, ok := c.daily.Load(cacheKey); ok {
		entry := value.(*cacheEntry[ledger.DailyReport])
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			c.logger.Debug("L1 cache hit for daily report", zap.String("key", cacheKey))
			return entry.value, nil
		}
		// Expired, remove from cache
		c.daily.Delete(cacheKey)
	}

	atomic.AddInt64(&c.misses, 1)
	c.logger.Debug("L1 cache miss for daily report", zap.String("key", cacheKey))
	return nil, nil
}

// SetDaily stores a daily report in cache. When the cache is at its entry
// limit and a cleanup pass frees nothing, the insert is skipped; dropping a
// cacheable value is always safe here.
func (c *InMemoryReportCache) SetDaily(ctx context.Context, report *ledger.DailyReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	if ttl == 0 {
		ttl = c.config.L1TTL
	}

	cacheKey := dailyReportKey(report.TenantID, report.PropertyID, report.Date)
	if !c.hasCapacity(cacheKey, &c.daily) {
		c.logger.Debug("L1 cache full, skipping daily report insert", zap.String("key", cacheKey))
		return nil
	}

	entry := &cacheEntry[ledger.DailyReport]{
		value:     report,
		expiresAt: time.Now().Add(ttl),
	}

	c.daily.Store(cacheKey, entry)
	c.logger.Debug("Cached daily report in L1",
		zap.String("key", cacheKey),
		zap.Duration("ttl", ttl))
	return nil
}

// DeleteDaily removes a daily report from cache
func (c *InMemoryReportCache) DeleteDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) error {
	cacheKey := dailyReportKey(tenantID, propertyID, date)
	c.daily.Delete(cacheKey)
	c.logger.Debug("Deleted daily report from L1 cache", zap.String("key", cacheKey))
	return nil
}

// GetMonthly retrieves a monthly report from cache
func (c *InMemoryReportCache) GetMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) (*ledger.MonthlyReport, error) {
	cacheKey := monthlyReportKey(tenantID, propertyID, month)

	if value, ok := c.monthly.Load(cacheKey); ok {
		entry := value.(*cacheEntry[ledger.MonthlyReport])
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			c.logger.Debug("L1 cache hit for monthly report", zap.String("key", cacheKey))
			return entry.value, nil
		}
		// Expired, remove from cache
		c.monthly.Delete(cacheKey)
	}

	atomic.AddInt64(&c.misses, 1)
	c.logger.Debug("L1 cache miss for monthly report", zap.String("key", cacheKey))
	return nil, nil
}

// SetMonthly stores a monthly report in cache
func (c *InMemoryReportCache) SetMonthly(ctx context.Context, report *ledger.MonthlyReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	if ttl == 0 {
		ttl = c.config.L1TTL
	}

	cacheKey := monthlyReportKey(report.TenantID, report.PropertyID, report.Month)
	if !c.hasCapacity(cacheKey, &c.monthly) {
		c.logger.Debug("L1 cache full, skipping monthly report insert", zap.String("key", cacheKey))
		return nil
	}

	entry := &cacheEntry[ledger.MonthlyReport]{
		value:     report,
		expiresAt: time.Now().Add(ttl),
	}

	c.monthly.Store(cacheKey, entry)
	c.logger.Debug("Cached monthly report in L1",
		zap.String("key", cacheKey),
		zap.Duration("ttl", ttl))
	return nil
}

// DeleteMonthly removes a monthly report from cache
func (c *InMemoryReportCache) DeleteMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) error {
	cacheKey := monthlyReportKey(tenantID, propertyID, month)
	c.monthly.Delete(cacheKey)
	c.logger.Debug("Deleted monthly report from L1 cache", zap.String("key", cacheKey))
	return nil
}

// InvalidateAll removes all cached reports
func (c *InMemoryReportCache) InvalidateAll(ctx context.Context) error {
	c.daily.Range(func(key, _ any) bool {
		c.daily.Delete(key)
		return true
	})
	c.monthly.Range(func(key, _ any) bool {
		c.monthly.Delete(key)
		return true
	})

	c.logger.Info("Invalidated all L1 report cache")
	return nil
}

// Close releases any resources held by the cache
func (c *InMemoryReportCache) Close() error {
	// Only close once
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache statistics
func (c *InMemoryReportCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// ResetStats resets the cache statistics
func (c *InMemoryReportCache) ResetStats() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Count returns the number of entries in the cache
func (c *InMemoryReportCache) Count() (daily, monthly int) {
	c.daily.Range(func(_, _ any) bool {
		daily++
		return true
	})
	c.monthly.Range(func(_, _ any) bool {
		monthly++
		return true
	})
	return daily, monthly
}

// hasCapacity reports whether a new entry may be inserted. Overwriting an
// existing key never grows the cache, so it is always allowed. At the limit
// a synchronous cleanup pass runs first; only a still-full cache rejects.
func (c *InMemoryReportCache) hasCapacity(cacheKey string, m *sync.Map) bool {
	if c.config.L1MaxEntries <= 0 {
		return true
	}
	if _, exists := m.Load(cacheKey); exists {
		return true
	}
	daily, monthly := c.Count()
	if daily+monthly < c.config.L1MaxEntries {
		return true
	}
	c.doCleanup()
	daily, monthly = c.Count()
	return daily+monthly < c.config.L1MaxEntries
}

// cleanupExpired periodically removes expired entries from the cache
func (c *InMemoryReportCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("Panic in cache cleanup",
							zap.Any("panic", r))
					}
				}()
				c.doCleanup()
			}()
		}
	}
}

// doCleanup removes expired entries from both maps
func (c *InMemoryReportCache) doCleanup() {
	var dailyRemoved, monthlyRemoved int

	c.daily.Range(func(key, value any) bool {
		entry := value.(*cacheEntry[ledger.DailyReport])
		if entry.isExpired() {
			c.daily.Delete(key)
			dailyRemoved++
		}
		return true
	})

	c.monthly.Range(func(key, value any) bool {
		entry := value.(*cacheEntry[ledger.MonthlyReport])
		if entry.isExpired() {
			c.monthly.Delete(key)
			monthlyRemoved++
		}
		return true
	})

	if dailyRemoved > 0 || monthlyRemoved > 0 {
		c.logger.Debug("Cleaned up expired L1 cache entries",
			zap.Int("daily_removed", dailyRemoved),
			zap.Int("monthly_removed", monthlyRemoved))
	}
}

// Ensure InMemoryReportCache implements ReportCache
var _ ledger.ReportCache = (*InMemoryReportCache)(nil)
