package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stayops/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// Constants for invalidator configuration
const (
	defaultCloseTimeout = 5 * time.Second
)

// RedisReportCacheInvalidator implements ReportCacheInvalidator using Redis
// Pub/Sub. Instances publish an eviction message after every report write so
// peers drop the stale entry from their local L1.
type RedisReportCacheInvalidator struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	channel    string
	logger     *zap.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

// RedisReportCacheInvalidatorOption is a functional option for configuring the invalidator
type RedisReportCacheInvalidatorOption func(*RedisReportCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisReportCacheInvalidatorOption {
	return func(i *RedisReportCacheInvalidator) {
		i.channel = channel
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisReportCacheInvalidatorOption {
	return func(i *RedisReportCacheInvalidator) {
		i.logger = logger
	}
}

// NewRedisReportCacheInvalidator creates a new Redis Pub/Sub cache invalidator
func NewRedisReportCacheInvalidator(cfg RedisConfig, opts ...RedisReportCacheInvalidatorOption) (*RedisReportCacheInvalidator, error) {
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

	invalidator := &RedisReportCacheInvalidator{
		client:     client,
		ownsClient: true, // We created this client, so we own it
		channel:    ledger.DefaultReportCacheConfig().PubSubChannel,
		logger:     zap.NewNop(),
		doneCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator, nil
}

// NewRedisReportCacheInvalidatorWithClient creates an invalidator with an existing Redis client
// Note: The caller retains ownership of the client and is responsible for closing it
func NewRedisReportCacheInvalidatorWithClient(client *redis.Client, opts ...RedisReportCacheInvalidatorOption) *RedisReportCacheInvalidator {
	invalidator := &RedisReportCacheInvalidator{
		client:     client,
		ownsClient: false, // Client is shared, don't close it
		channel:    ledger.DefaultReportCacheConfig().PubSubChannel,
		logger:     zap.NewNop(),
		doneCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(invalidator)
	}

	return invalidator
}

// Publish sends a cache eviction notification to all subscribers
func (i *RedisReportCacheInvalidator) Publish(ctx context.Context, msg ledger.ReportCacheMessage) error {
	// Set timestamp if not set
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		i.logger.Error("Failed to marshal cache eviction message",
			zap.String("action", string(msg.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish cache eviction message",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	i.logger.Debug("Published cache eviction message",
		zap.String("action", string(msg.Action)),
		zap.String("property_id", msg.PropertyID),
		zap.String("channel", i.channel))

	return nil
}

// Subscribe starts listening for cache eviction notifications
// The callback function is invoked for each received message
// This method should be called in a goroutine as it blocks
func (i *RedisReportCacheInvalidator) Subscribe(ctx context.Context, callback func(msg ledger.ReportCacheMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	i.mu.Unlock()

	// Create a cancellable context
	subCtx, cancel := context.WithCancel(ctx)
	i.mu.Lock()
	i.cancelFn = cancel
	i.mu.Unlock()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	_, err := pubsub.Receive(subCtx)
	if err != nil {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	i.logger.Info("Subscribed to report cache invalidation channel",
		zap.String("channel", i.channel))

	// Get the message channel
	ch := pubsub.Channel()

	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Report cache invalidation subscription stopped")
			i.mu.Lock()
			i.isRunning = false
			i.mu.Unlock()
			i.markDone()
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Report cache invalidation channel closed")
				i.mu.Lock()
				i.isRunning = false
				i.mu.Unlock()
				i.markDone()
				return nil
			}

			var evictionMsg ledger.ReportCacheMessage
			if err := json.Unmarshal([]byte(msg.Payload), &evictionMsg); err != nil {
				i.logger.Error("Failed to unmarshal cache eviction message",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}

			i.logger.Debug("Received cache eviction message",
				zap.String("action", string(evictionMsg.Action)),
				zap.String("property_id", evictionMsg.PropertyID))

			// Call the callback in a separate goroutine to prevent blocking
			go func(m ledger.ReportCacheMessage) {
				defer func() {
					if r := recover(); r != nil {
						i.logger.Error("Panic in cache eviction callback",
							zap.Any("panic", r))
					}
				}()
				callback(m)
			}(evictionMsg)
		}
	}
}

// markDone safely marks the invalidator as done
func (i *RedisReportCacheInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close releases any resources held by the invalidator
func (i *RedisReportCacheInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		// Wait for subscription to stop with timeout
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}

	// Only close client if we own it
	if i.ownsClient {
		return i.client.Close()
	}
	return nil
}

// PublishDailyEvicted publishes an eviction notification for one property-day
func (i *RedisReportCacheInvalidator) PublishDailyEvicted(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) error {
	return i.Publish(ctx, ledger.ReportCacheMessage{
		Action:     ledger.ReportCacheActionDailyEvicted,
		TenantID:   tenantID.String(),
		PropertyID: propertyID.String(),
		Date:       date.String(),
	})
}

// PublishMonthlyEvicted publishes an eviction notification for one property-month
func (i *RedisReportCacheInvalidator) PublishMonthlyEvicted(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) error {
	return i.Publish(ctx, ledger.ReportCacheMessage{
		Action:     ledger.ReportCacheActionMonthlyEvicted,
		TenantID:   tenantID.String(),
		PropertyID: propertyID.String(),
		Month:      month.String(),
	})
}

// PublishInvalidateAll publishes an invalidate-all notification
func (i *RedisReportCacheInvalidator) PublishInvalidateAll(ctx context.Context) error {
	return i.Publish(ctx, ledger.ReportCacheMessage{
		Action: ledger.ReportCacheActionInvalidateAll,
	})
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (i *RedisReportCacheInvalidator) GetClient() *redis.Client {
	return i.client
}

// Ensure RedisReportCacheInvalidator implements ReportCacheInvalidator
var _ ledger.ReportCacheInvalidator = (*RedisReportCacheInvalidator)(nil)
