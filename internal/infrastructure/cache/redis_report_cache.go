package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stayops/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// Constants for Redis cache configuration
const (
	defaultScanBatchSize = 100
)

// RedisReportCache implements ReportCache using Redis. One instance backs the
// shared L2 tier; a second instance pointed at another Redis with a longer
// TTL serves as the optional L3 tier.
type RedisReportCache struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	config     ledger.ReportCacheConfig
	logger     *zap.Logger
}

// RedisReportCacheOption is a functional option for configuring the cache
type RedisReportCacheOption func(*RedisReportCache)

// WithCacheConfig sets the cache configuration
func WithCacheConfig(config ledger.ReportCacheConfig) RedisReportCacheOption {
	return func(c *RedisReportCache) {
		c.config = config
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) RedisReportCacheOption {
	return func(c *RedisReportCache) {
		c.logger = logger
	}
}

// NewRedisReportCache creates a new Redis-backed report cache
func NewRedisReportCache(cfg RedisConfig, opts ...RedisReportCacheOption) (*RedisReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &RedisReportCache{
		client:     client,
		ownsClient: true, // We created this client, so we own it
		config:     ledger.DefaultReportCacheConfig(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// NewRedisReportCacheWithClient creates a cache with an existing Redis client
// Note: The caller retains ownership of the client and is responsible for closing it
func NewRedisReportCacheWithClient(client *redis.Client, opts ...RedisReportCacheOption) *RedisReportCache {
	cache := &RedisReportCache{
		client:     client,
		ownsClient: false, // Client is shared, don't close it
		config:     ledger.DefaultReportCacheConfig(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// GetDaily retrieves a daily report from cache
func (c *RedisReportCache) GetDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	cacheKey := dailyReportKey(tenantID, propertyID, date)

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		// Cache miss
		c.logger.Debug("Cache miss for daily report", zap.String("key", cacheKey))
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get daily report from cache",
			zap.String("key", cacheKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get daily report from cache: %w", err)
	}

	var report ledger.DailyReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Error("Failed to unmarshal daily report",
			zap.String("key", cacheKey),
			zap.Error(err))
		// Delete corrupted cache entry
		_ = c.client.Del(ctx, cacheKey)
		return nil, fmt.Errorf("failed to unmarshal daily report: %w", err)
	}

	c.logger.Debug("Cache hit for daily report", zap.String("key", cacheKey))
	return &report, nil
}

// SetDaily stores a daily report in cache
func (c *RedisReportCache) SetDaily(ctx context.Context, report *ledger.DailyReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	if ttl == 0 {
		ttl = c.config.DailyTTL
	}

	cacheKey := dailyReportKey(report.TenantID, report.PropertyID, report.Date)

	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("Failed to marshal daily report",
			zap.String("key", cacheKey),
			zap.Error(err))
		return fmt.Errorf("failed to marshal daily report: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set daily report in cache",
			zap.String("key", cacheKey),
			zap.Error(err))
		return fmt.Errorf("failed to set daily report in cache: %w", err)
	}

	c.logger.Debug("Cached daily report",
		zap.String("key", cacheKey),
		zap.Duration("ttl", ttl))
	return nil
}

// DeleteDaily removes a daily report from cache
func (c *RedisReportCache) DeleteDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) error {
	cacheKey := dailyReportKey(tenantID, propertyID, date)

	if err := c.client.Del(ctx, cacheKey).Err(); err != nil {
		c.logger.Error("Failed to delete daily report from cache",
			zap.String("key", cacheKey),
			zap.Error(err))
		return fmt.Errorf("failed to delete daily report from cache: %w", err)
	}

	c.logger.Debug("Deleted daily report from cache", zap.String("key", cacheKey))
	return nil
}

// GetMonthly retrieves a monthly report from cache
func (c *RedisReportCache) GetMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) (*ledger.MonthlyReport, error) {
	cacheKey := monthlyReportKey(tenantID, propertyID, month)

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == redis.Nil {
		// Cache miss
		c.logger.Debug("Cache miss for monthly report", zap.String("key", cacheKey))
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get monthly report from cache",
			zap.String("key", cacheKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get monthly report from cache: %w", err)
	}

	var report ledger.MonthlyReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.Error("Failed to unmarshal monthly report",
			zap.String("key", cacheKey),
			zap.Error(err))
		// Delete corrupted cache entry
		_ = c.client.Del(ctx, cacheKey)
		return nil, fmt.Errorf("failed to unmarshal monthly report: %w", err)
	}

	c.logger.Debug("Cache hit for monthly report", zap.String("key", cacheKey))
	return &report, nil
}

// SetMonthly stores a monthly report in cache
func (c *RedisReportCache) SetMonthly(ctx context.Context, report *ledger.MonthlyReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}

	if ttl == 0 {
		ttl = c.config.MonthlyTTL
	}

	cacheKey := monthlyReportKey(report.TenantID, report.PropertyID, report.Month)

	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("Failed to marshal monthly report",
			zap.String("key", cacheKey),
			zap.Error(err))
		return fmt.Errorf("failed to marshal monthly report: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set monthly report in cache",
			zap.String("key", cacheKey),
			zap.Error(err))
		return fmt.Errorf("failed to set monthly report in cache: %w", err)
	}

	c.logger.Debug("Cached monthly report",
		zap.String("key", cacheKey),
		zap.Duration("ttl", ttl))
	return nil
}

// DeleteMonthly removes a monthly report from cache
func (c *RedisReportCache) DeleteMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) error {
	cacheKey := monthlyReportKey(tenantID, propertyID, month)

	if err := c.client.Del(ctx, cacheKey).Err(); err != nil {
		c.logger.Error("Failed to delete monthly report from cache",
			zap.String("key", cacheKey),
			zap.Error(err))
		return fmt.Errorf("failed to delete monthly report from cache: %w", err)
	}

	c.logger.Debug("Deleted monthly report from cache", zap.String("key", cacheKey))
	return nil
}

// InvalidateAll removes all cached reports
func (c *RedisReportCache) InvalidateAll(ctx context.Context) error {
	// Use SCAN to find all report keys to avoid blocking Redis with KEYS command
	var cursor uint64
	var deletedCount int64

	for {
		var keys []string
		var err error
		keys, cursor, err = c.client.Scan(ctx, cursor, reportKeyScanPattern, defaultScanBatchSize).Result()
		if err != nil {
			c.logger.Error("Failed to scan report cache keys", zap.Error(err))
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Error("Failed to delete report cache keys", zap.Error(err))
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deletedCount += deleted
		}

		if cursor == 0 {
			break
		}
	}

	c.logger.Info("Invalidated all report cache",
		zap.Int64("deleted_count", deletedCount))
	return nil
}

// Close releases any resources held by the cache
func (c *RedisReportCache) Close() error {
	// Only close client if we own it
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisReportCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisReportCache implements ReportCache
var _ ledger.ReportCache = (*RedisReportCache)(nil)
