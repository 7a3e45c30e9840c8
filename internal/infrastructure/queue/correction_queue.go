// Package queue implements the durable correction queue on PostgreSQL and
// the background consumer that drains it.
package queue

import (
	"context"
	"time"

	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCorrectionQueue implements ledger.CorrectionQueue on a database table.
// Claims take row locks with SKIP LOCKED on PostgreSQL so multiple consumers
// never double-claim; on other dialects the guarded status transition alone
// carries the claim, which is enough for the single-writer test setup.
type GormCorrectionQueue struct {
	db *gorm.DB
}

// NewGormCorrectionQueue creates a new GormCorrectionQueue
func NewGormCorrectionQueue(db *gorm.DB) *GormCorrectionQueue {
	return &GormCorrectionQueue{db: db}
}

// Enqueue persists correction items. An item is skipped when an unfinished
// item for the same (tenant, property, date) already exists, so repeated
// validation sweeps do not pile up duplicate work.
func (q *GormCorrectionQueue) Enqueue(ctx context.Context, items ...*ledger.CorrectionItem) error {
	if len(items) == 0 {
		return nil
	}
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		openStatuses := []ledger.CorrectionStatus{
			ledger.CorrectionStatusPending,
			ledger.CorrectionStatusProcessing,
			ledger.CorrectionStatusFailed,
		}
		for _, item := range items {
			var open int64
			if err := tx.Model(&models.CorrectionItemModel{}).
				Where("tenant_id = ? AND property_id = ? AND target_date = ? AND status IN ?",
					item.TenantID, item.PropertyID, item.TargetDate.UTC(), openStatuses).
				Count(&open).Error; err != nil {
				return err
			}
			if open > 0 {
				continue
			}
			if err := tx.Create(models.CorrectionItemModelFromDomain(item)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimBatch atomically claims up to limit due items for a worker, oldest
// target date first. Eligible items are PENDING, or FAILED with their
// backoff elapsed.
func (q *GormCorrectionQueue) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*ledger.CorrectionItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now()

	var claimed []*ledger.CorrectionItem
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.CorrectionItemModel
		sel := tx.
			Where("status IN ?", []ledger.CorrectionStatus{
				ledger.CorrectionStatusPending,
				ledger.CorrectionStatusFailed,
			}).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Order("target_date ASC, created_at ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			sel = sel.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := sel.Find(&candidates).Error; err != nil {
			return err
		}

		for i := range candidates {
			item := candidates[i].ToDomain()
			previousStatus := item.Status
			if err := item.MarkProcessing(workerID); err != nil {
				continue
			}
			result := tx.Model(&models.CorrectionItemModel{}).
				Where("id = ? AND status = ?", item.ID, previousStatus).
				Updates(map[string]interface{}{
					"status":     item.Status,
					"locked_by":  item.LockedBy,
					"locked_at":  item.LockedAt,
					"updated_at": item.UpdatedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			// Lost the row to another worker between select and update.
			if result.RowsAffected == 0 {
				continue
			}
			claimed = append(claimed, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Update persists status transitions of a claimed item
func (q *GormCorrectionQueue) Update(ctx context.Context, item *ledger.CorrectionItem) error {
	return q.db.WithContext(ctx).Save(models.CorrectionItemModelFromDomain(item)).Error
}

// ReclaimStale releases PROCESSING items whose lock is older than
// lockTimeout back to PENDING, covering worker crashes. Returns the number
// of items released.
func (q *GormCorrectionQueue) ReclaimStale(ctx context.Context, lockTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-lockTimeout)
	result := q.db.WithContext(ctx).
		Model(&models.CorrectionItemModel{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at <= ?",
			ledger.CorrectionStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     ledger.CorrectionStatusPending,
			"locked_by":  "",
			"locked_at":  nil,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// CountByStatus returns item counts per status
func (q *GormCorrectionQueue) CountByStatus(ctx context.Context) (map[ledger.CorrectionStatus]int64, error) {
	var rows []struct {
		Status ledger.CorrectionStatus
		Count  int64
	}
	if err := q.db.WithContext(ctx).
		Model(&models.CorrectionItemModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[ledger.CorrectionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// FindDead returns dead items with pagination, most recently failed first
func (q *GormCorrectionQueue) FindDead(ctx context.Context, page, pageSize int) ([]*ledger.CorrectionItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	query := q.db.WithContext(ctx).
		Model(&models.CorrectionItemModel{}).
		Where("status = ?", ledger.CorrectionStatusDead)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var itemModels []models.CorrectionItemModel
	if err := query.
		Order("updated_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&itemModels).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*ledger.CorrectionItem, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, total, nil
}

// DeleteDoneBefore purges completed items older than the cutoff. Returns the
// number of items deleted.
func (q *GormCorrectionQueue) DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error) {
	result := q.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", ledger.CorrectionStatusDone, before).
		Delete(&models.CorrectionItemModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormCorrectionQueue implements ledger.CorrectionQueue
var _ ledger.CorrectionQueue = (*GormCorrectionQueue)(nil)
