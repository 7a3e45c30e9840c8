package queue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// CorrectionApplier applies one correction item. Implemented by the repair
// service; the consumer only sequences and records outcomes.
type CorrectionApplier interface {
	Apply(ctx context.Context, item *ledger.CorrectionItem) error
}

// ConsumerConfig holds correction consumer configuration
type ConsumerConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	MaxConcurrent int
	LockTimeout   time.Duration
}

// DefaultConsumerConfig returns default consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		BatchSize:     50,
		PollInterval:  10 * time.Second,
		MaxConcurrent: 4,
		LockTimeout:   5 * time.Minute,
	}
}

// Consumer drains the correction queue in the background. Claimed items are
// grouped by property and each group is applied oldest date first, so chain
// corrections for one property never run out of order while separate
// properties proceed in parallel.
type Consumer struct {
	config  ConsumerConfig
	queue   ledger.CorrectionQueue
	applier CorrectionApplier
	logger  *zap.Logger

	workerID  string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewConsumer creates a new correction queue consumer
func NewConsumer(config ConsumerConfig, q ledger.CorrectionQueue, applier CorrectionApplier, logger *zap.Logger) *Consumer {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Consumer{
		config:   config,
		queue:    q,
		applier:  applier,
		logger:   logger,
		workerID: fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
	}
}

// Start starts the background poll loop
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.pollLoop(ctx)

	c.logger.Info("Correction consumer started",
		zap.String("worker_id", c.workerID),
		zap.Int("batch_size", c.config.BatchSize),
		zap.Duration("poll_interval", c.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Correction consumer stopped gracefully")
		return nil
	case <-ctx.Done():
		c.logger.Warn("Correction consumer stop timed out")
		return ctx.Err()
	}
}

// GetStatus returns the consumer status for monitoring
func (c *Consumer) GetStatus() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"running":        c.isRunning,
		"worker_id":      c.workerID,
		"batch_size":     c.config.BatchSize,
		"poll_interval":  c.config.PollInterval.String(),
		"max_concurrent": c.config.MaxConcurrent,
	}
}

func (c *Consumer) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.DrainOnce(ctx); err != nil {
				c.logger.Error("Correction drain failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce reclaims stale locks, claims one batch and applies it. Returns
// the number of items that reached a terminal or retryable state. Exposed
// for the manual repair trigger and tests.
func (c *Consumer) DrainOnce(ctx context.Context) (int, error) {
	released, err := c.queue.ReclaimStale(ctx, c.config.LockTimeout)
	if err != nil {
		c.logger.Warn("Failed to reclaim stale corrections", zap.Error(err))
	} else if released > 0 {
		c.logger.Info("Reclaimed stale corrections", zap.Int64("count", released))
	}

	items, err := c.queue.ClaimBatch(ctx, c.workerID, c.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	groups := groupByProperty(items)

	sem := make(chan struct{}, c.config.MaxConcurrent)
	var wg sync.WaitGroup
	var processed int
	var processedMu sync.Mutex

	for _, group := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(group []*ledger.CorrectionItem) {
			defer wg.Done()
			defer func() { <-sem }()
			n := c.applyGroup(ctx, group)
			processedMu.Lock()
			processed += n
			processedMu.Unlock()
		}(group)
	}
	wg.Wait()

	return processed, nil
}

// applyGroup applies one property's corrections in claim order. On the
// first failure the rest of the group is released unattempted: later dates
// chain from the failed one and recomputing them now would read a stale
// closing.
func (c *Consumer) applyGroup(ctx context.Context, group []*ledger.CorrectionItem) int {
	processed := 0
	failed := false
	for _, item := range group {
		if failed {
			item.Release()
			if err := c.queue.Update(ctx, item); err != nil {
				c.logger.Error("Failed to release correction",
					zap.String("item_id", item.ID.String()),
					zap.Error(err))
			}
			continue
		}

		if err := c.applier.Apply(ctx, item); err != nil {
			item.MarkFailed(err.Error())
			failed = true
			if item.IsDead() {
				c.logger.Error("Correction exhausted retries",
					zap.String("item_id", item.ID.String()),
					zap.String("property_id", item.PropertyID.String()),
					zap.String("target_date", item.TargetDate.String()),
					zap.String("reason", string(item.Reason)),
					zap.String("last_error", item.LastError))
			} else {
				c.logger.Warn("Correction attempt failed",
					zap.String("item_id", item.ID.String()),
					zap.String("target_date", item.TargetDate.String()),
					zap.Int("attempts", item.Attempts),
					zap.Error(err))
			}
		} else {
			item.MarkDone()
		}

		if err := c.queue.Update(ctx, item); err != nil {
			c.logger.Error("Failed to persist correction outcome",
				zap.String("item_id", item.ID.String()),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed
}

// groupByProperty splits claimed items into per-property groups, keeping
// the claim order (oldest target date first) within each group
func groupByProperty(items []*ledger.CorrectionItem) [][]*ledger.CorrectionItem {
	type key struct {
		tenant   uuid.UUID
		property uuid.UUID
	}
	index := make(map[key]int)
	var groups [][]*ledger.CorrectionItem
	for _, item := range items {
		k := key{tenant: item.TenantID, property: item.PropertyID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}
