// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/resilience"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// LedgerMetrics provides business metrics for the cash ledger.
// It tracks transaction volume, balance recomputation, consistency findings,
// and the health gauges the status surface exposes (queue depth, cache hit
// ratio, breaker states, partition parity).
type LedgerMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	transactionTotal       *Counter
	transactionAmountTotal *Counter
	reviewTotal            *Counter
	recomputeTotal         *Counter
	validationIssueTotal   *Counter
	correctionTotal        *Counter

	// Histogram metrics
	recomputeDuration *Histogram

	// Gauge metrics (point-in-time values)
	queueDepth        *Gauge
	cacheHitRatio     *FloatGauge
	cacheEntries      *Gauge
	cacheDegradations *Gauge
	breakerState      *Gauge
	partitionParity   *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data providers for periodic collection
	queueProvider     QueueMetricsProvider
	cacheProvider     CacheMetricsProvider
	breakerProvider   BreakerStatsProvider
	partitionProvider PartitionMetricsProvider
}

// QueueMetricsProvider provides correction queue depth for periodic metrics
// collection. This interface allows the telemetry layer to query queue state
// without depending on the queue infrastructure directly.
type QueueMetricsProvider interface {
	// GetQueueDepthByStatus returns the number of correction items per status
	GetQueueDepthByStatus(ctx context.Context) (map[string]int64, error)
}

// CacheMetricsProvider exposes report cache counters for periodic collection.
// The tiered report cache implements this directly.
type CacheMetricsProvider interface {
	GetCacheStats(ctx context.Context) ledger.ReportCacheStats
}

// BreakerStatsProvider lists circuit breaker snapshots for periodic collection.
// The resilience registry implements this directly.
type BreakerStatsProvider interface {
	Stats() []resilience.Stats
}

// PartitionMetricsProvider reports the dual-write parity gap between the
// legacy and partitioned transaction tables.
type PartitionMetricsProvider interface {
	// GetPartitionParityGap returns legacy row count minus partitioned row
	// count for transactions dated on or after since. Zero means the two
	// layouts agree.
	GetPartitionParityGap(ctx context.Context, since time.Time) (int64, error)
}

// LedgerMetricsConfig holds configuration for ledger metrics.
// All providers are optional; collection skips the ones left nil.
type LedgerMetricsConfig struct {
	Meter             metric.Meter
	Logger            *zap.Logger
	CollectInterval   time.Duration // Default: 1 minute
	QueueProvider     QueueMetricsProvider
	CacheProvider     CacheMetricsProvider
	BreakerProvider   BreakerStatsProvider
	PartitionProvider PartitionMetricsProvider
}

// NewLedgerMetrics creates a new LedgerMetrics instance.
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{
		meter:             cfg.Meter,
		logger:            logger,
		stopChan:          make(chan struct{}),
		queueProvider:     cfg.QueueProvider,
		cacheProvider:     cfg.CacheProvider,
		breakerProvider:   cfg.BreakerProvider,
		partitionProvider: cfg.PartitionProvider,
	}

	// Initialize counter metrics
	var err error

	// Transaction metrics
	lm.transactionTotal, err = NewCounter(
		cfg.Meter,
		"stayops_cash_transaction_total",
		"Total number of cash ledger transactions recorded",
		"{transactions}",
	)
	if err != nil {
		return nil, err
	}

	lm.transactionAmountTotal, err = NewCounter(
		cfg.Meter,
		"stayops_cash_transaction_amount_total",
		"Total recorded transaction amount in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	lm.reviewTotal, err = NewCounter(
		cfg.Meter,
		"stayops_transaction_review_total",
		"Total number of review decisions on pending transactions",
		"{decisions}",
	)
	if err != nil {
		return nil, err
	}

	// Balance metrics
	lm.recomputeTotal, err = NewCounter(
		cfg.Meter,
		"stayops_balance_recompute_total",
		"Total number of daily balance recomputations",
		"{recomputes}",
	)
	if err != nil {
		return nil, err
	}

	lm.recomputeDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stayops_balance_recompute_duration_seconds",
		Description: "Daily balance recomputation duration",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	// Consistency metrics
	lm.validationIssueTotal, err = NewCounter(
		cfg.Meter,
		"stayops_validation_issue_total",
		"Total number of consistency issues found by validation runs",
		"{issues}",
	)
	if err != nil {
		return nil, err
	}

	lm.correctionTotal, err = NewCounter(
		cfg.Meter,
		"stayops_correction_processed_total",
		"Total number of correction queue items processed",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	// Health gauge metrics
	lm.queueDepth, err = NewGauge(
		cfg.Meter,
		"stayops_correction_queue_depth",
		"Current number of correction queue items per status",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	lm.cacheHitRatio, err = NewFloatGauge(
		cfg.Meter,
		"stayops_report_cache_hit_ratio",
		"Report cache hit ratio across tiers since process start",
		"1",
	)
	if err != nil {
		return nil, err
	}

	lm.cacheEntries, err = NewGauge(
		cfg.Meter,
		"stayops_report_cache_entries",
		"Current number of entries in the in-process report cache tier",
		"{entries}",
	)
	if err != nil {
		return nil, err
	}

	lm.cacheDegradations, err = NewGauge(
		cfg.Meter,
		"stayops_report_cache_degradations",
		"Cache tier errors swallowed as misses since process start",
		"{errors}",
	)
	if err != nil {
		return nil, err
	}

	lm.breakerState, err = NewGauge(
		cfg.Meter,
		"stayops_breaker_state",
		"Circuit breaker state (0 closed, 1 half-open, 2 open)",
		"{state}",
	)
	if err != nil {
		return nil, err
	}

	lm.partitionParity, err = NewGauge(
		cfg.Meter,
		"stayops_partition_parity_gap",
		"Legacy minus partitioned transaction row count for the current month",
		"{rows}",
	)
	if err != nil {
		return nil, err
	}

	return lm, nil
}

// =============================================================================
// Transaction Metrics
// =============================================================================

// ReviewStatus represents the outcome of a transaction review for metrics labeling.
type ReviewStatus string

const (
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// RecordTransaction records a cash transaction and its amount.
// This should be called from the application layer when a transaction is recorded.
func (lm *LedgerMetrics) RecordTransaction(ctx context.Context, tenantID uuid.UUID, kind, paymentMode string, amountCents int64) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrTransactionKind.String(kind),
		AttrPaymentMode.String(paymentMode),
	}
	lm.transactionTotal.Inc(ctx, attrs...)
	lm.transactionAmountTotal.Add(ctx, amountCents, attrs...)
}

// RecordReview records an approve or reject decision on a pending transaction.
func (lm *LedgerMetrics) RecordReview(ctx context.Context, tenantID uuid.UUID, status ReviewStatus) {
	lm.reviewTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrReviewStatus.String(string(status)),
	)
}

// =============================================================================
// Balance Metrics
// =============================================================================

// RecomputeResult represents the outcome of a recomputation for metrics labeling.
type RecomputeResult string

const (
	RecomputeResultSuccess RecomputeResult = "success"
	RecomputeResultFailed  RecomputeResult = "failed"
)

// RecordRecompute records a daily balance recomputation and its duration.
func (lm *LedgerMetrics) RecordRecompute(ctx context.Context, tenantID uuid.UUID, result RecomputeResult, duration time.Duration) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrResult.String(string(result)),
	}
	lm.recomputeTotal.Inc(ctx, attrs...)
	lm.recomputeDuration.RecordDuration(ctx, duration, attrs...)
}

// =============================================================================
// Consistency Metrics
// =============================================================================

// RecordValidationIssues records consistency findings of one type from a
// validation run. Zero counts are not recorded.
func (lm *LedgerMetrics) RecordValidationIssues(ctx context.Context, tenantID uuid.UUID, issueType string, count int64) {
	if count <= 0 {
		return
	}
	lm.validationIssueTotal.Add(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrIssueType.String(issueType),
	)
}

// CorrectionResult represents the terminal outcome of a correction item.
type CorrectionResult string

const (
	CorrectionResultDone   CorrectionResult = "done"
	CorrectionResultFailed CorrectionResult = "failed"
	CorrectionResultDead   CorrectionResult = "dead"
)

// RecordCorrectionProcessed records a correction queue item reaching an outcome.
// Failed items that will be retried count once per attempt.
func (lm *LedgerMetrics) RecordCorrectionProcessed(ctx context.Context, tenantID uuid.UUID, result CorrectionResult) {
	lm.correctionTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrResult.String(string(result)),
	)
}

// =============================================================================
// Health Gauges
// =============================================================================

// RecordQueueDepth records the current correction queue depth for one status.
// This is a gauge metric that should be updated periodically.
func (lm *LedgerMetrics) RecordQueueDepth(ctx context.Context, status string, depth int64) {
	lm.queueDepth.Record(ctx, depth,
		AttrQueueStatus.String(status),
	)
}

// RecordCacheStats records the report cache gauges from a stats snapshot.
func (lm *LedgerMetrics) RecordCacheStats(ctx context.Context, stats ledger.ReportCacheStats) {
	lm.cacheHitRatio.Record(ctx, stats.HitRatio)
	lm.cacheEntries.Record(ctx, stats.CacheEntries)
	lm.cacheDegradations.Record(ctx, stats.Degradations)
}

// RecordBreakerState records the current state of one circuit breaker.
func (lm *LedgerMetrics) RecordBreakerState(ctx context.Context, name, state string) {
	lm.breakerState.Record(ctx, breakerStateValue(state),
		AttrBreakerName.String(name),
	)
}

// RecordPartitionParityGap records the dual-write parity gap.
func (lm *LedgerMetrics) RecordPartitionParityGap(ctx context.Context, gap int64) {
	lm.partitionParity.Record(ctx, gap)
}

// breakerStateValue maps a breaker state name to its gauge value.
func breakerStateValue(state string) int64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of the health gauges.
// It collects every interval (default: 1 minute).
// This is non-blocking - use Stop() to stop collection.
func (lm *LedgerMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go lm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (lm *LedgerMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	lm.collectHealthGauges(ctx)

	for {
		select {
		case <-lm.stopChan:
			lm.logger.Info("Stopping periodic ledger metrics collection")
			return
		case <-ctx.Done():
			lm.logger.Info("Context cancelled, stopping periodic ledger metrics collection")
			return
		case <-ticker.C:
			lm.collectHealthGauges(ctx)
		}
	}
}

// collectHealthGauges reads every configured provider once and records gauges.
func (lm *LedgerMetrics) collectHealthGauges(ctx context.Context) {
	if lm.queueProvider != nil {
		depths, err := lm.queueProvider.GetQueueDepthByStatus(ctx)
		if err != nil {
			lm.logger.Warn("Failed to collect correction queue depth", zap.Error(err))
		} else {
			for status, depth := range depths {
				lm.RecordQueueDepth(ctx, status, depth)
			}
		}
	}

	if lm.cacheProvider != nil {
		lm.RecordCacheStats(ctx, lm.cacheProvider.GetCacheStats(ctx))
	}

	if lm.breakerProvider != nil {
		for _, s := range lm.breakerProvider.Stats() {
			lm.RecordBreakerState(ctx, s.Name, s.State)
		}
	}

	if lm.partitionProvider != nil {
		gap, err := lm.partitionProvider.GetPartitionParityGap(ctx, currentMonthStart(time.Now().UTC()))
		if err != nil {
			lm.logger.Warn("Failed to collect partition parity gap", zap.Error(err))
		} else {
			lm.RecordPartitionParityGap(ctx, gap)
		}
	}
}

// currentMonthStart returns midnight on the first day of t's month.
// Parity is checked over the current month only to keep the scan bounded;
// older rows stopped changing when their month closed.
func currentMonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Stop stops the periodic collection.
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
