// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// GormLedgerMetricsProvider implements QueueMetricsProvider and
// PartitionMetricsProvider using GORM. It queries the ledger tables directly
// for aggregated metrics.
type GormLedgerMetricsProvider struct {
	db *gorm.DB
}

// NewGormLedgerMetricsProvider creates a new GormLedgerMetricsProvider.
func NewGormLedgerMetricsProvider(db *gorm.DB) *GormLedgerMetricsProvider {
	return &GormLedgerMetricsProvider{db: db}
}

// GetQueueDepthByStatus returns the number of correction queue items per status.
func (p *GormLedgerMetricsProvider) GetQueueDepthByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("correction_queue_items").
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&results).Error

	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Count
	}

	return m, nil
}

// GetPartitionParityGap returns legacy minus partitioned transaction row count
// for rows dated on or after since. Dual-write keeps the two layouts in step,
// so any nonzero gap means one side missed writes.
func (p *GormLedgerMetricsProvider) GetPartitionParityGap(ctx context.Context, since time.Time) (int64, error) {
	var legacy, partitioned int64

	err := p.db.WithContext(ctx).
		Table("cash_transactions").
		Where("occurred_on >= ?", since).
		Count(&legacy).Error
	if err != nil {
		return 0, err
	}

	err = p.db.WithContext(ctx).
		Table("cash_transactions_p").
		Where("occurred_on >= ?", since).
		Count(&partitioned).Error
	if err != nil {
		return 0, err
	}

	return legacy - partitioned, nil
}
