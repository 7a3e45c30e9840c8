package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CorrectionStatus represents the lifecycle state of a correction item
type CorrectionStatus string

const (
	CorrectionStatusPending    CorrectionStatus = "PENDING"
	CorrectionStatusProcessing CorrectionStatus = "PROCESSING"
	CorrectionStatusDone       CorrectionStatus = "DONE"
	CorrectionStatusFailed     CorrectionStatus = "FAILED"
	CorrectionStatusDead       CorrectionStatus = "DEAD"
)

// CorrectionReason records which validator finding produced the item
type CorrectionReason string

const (
	CorrectionReasonCascade CorrectionReason = "CASCADE_MISMATCH"
	CorrectionReasonMissing CorrectionReason = "MISSING_RECORD"
)

// Correction retry defaults
const (
	DefaultCorrectionMaxAttempts = 5
	DefaultCorrectionBackoff     = 30 * time.Second
)

// CorrectionItem is a durable unit of repair work: recompute one balance
// row, optionally forcing its opening to a corrected value. Items are
// applied oldest date first so chain corrections cascade forward in one
// pass, and application is idempotent so redelivery is harmless.
type CorrectionItem struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	PropertyID            uuid.UUID
	TargetDate            Date
	CorrectedOpeningCents *int64
	Reason                CorrectionReason
	Status                CorrectionStatus
	Attempts              int
	MaxAttempts           int
	LastError             string
	NextAttemptAt         *time.Time
	LockedBy              string
	LockedAt              *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewCorrectionItem creates a pending correction for one balance row.
// correctedOpening is nil for plain recomputes of missing rows.
func NewCorrectionItem(tenantID, propertyID uuid.UUID, targetDate Date, reason CorrectionReason, correctedOpening *int64) *CorrectionItem {
	now := time.Now()
	return &CorrectionItem{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		PropertyID:            propertyID,
		TargetDate:            targetDate,
		CorrectedOpeningCents: correctedOpening,
		Reason:                reason,
		Status:                CorrectionStatusPending,
		MaxAttempts:           DefaultCorrectionMaxAttempts,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// MarkProcessing marks the item as claimed by a worker
func (i *CorrectionItem) MarkProcessing(workerID string) error {
	if i.Status != CorrectionStatusPending && i.Status != CorrectionStatusFailed {
		return errors.New("can only claim pending or failed corrections")
	}
	now := time.Now()
	i.Status = CorrectionStatusProcessing
	i.LockedBy = workerID
	i.LockedAt = &now
	i.UpdatedAt = now
	return nil
}

// MarkDone marks the item as successfully applied
func (i *CorrectionItem) MarkDone() {
	now := time.Now()
	i.Status = CorrectionStatusDone
	i.LockedBy = ""
	i.LockedAt = nil
	i.UpdatedAt = now
}

// MarkFailed records a failed attempt. The item becomes retryable with
// exponential backoff until MaxAttempts is reached, then moves to DEAD.
// Dead items are never silently dropped; they surface in repair reports
// and queue statistics until an operator intervenes.
func (i *CorrectionItem) MarkFailed(errMsg string) {
	i.Attempts++
	i.LastError = errMsg
	i.LockedBy = ""
	i.LockedAt = nil
	i.UpdatedAt = time.Now()

	if i.Attempts >= i.MaxAttempts {
		i.Status = CorrectionStatusDead
		i.NextAttemptAt = nil
		return
	}
	i.Status = CorrectionStatusFailed
	backoff := DefaultCorrectionBackoff * time.Duration(1<<uint(i.Attempts-1))
	next := time.Now().Add(backoff)
	i.NextAttemptAt = &next
}

// Release returns a claimed item to PENDING without counting an attempt.
// Used when a worker claims an item but cannot apply it, for example when
// an earlier date in the same chain failed and applying this one would
// cascade from a stale closing.
func (i *CorrectionItem) Release() {
	i.Status = CorrectionStatusPending
	i.LockedBy = ""
	i.LockedAt = nil
	i.UpdatedAt = time.Now()
}

// IsDead returns true when retries are exhausted
func (i *CorrectionItem) IsDead() bool {
	return i.Status == CorrectionStatusDead
}

// CorrectionQueue is the durable queue the repair flow publishes to and the
// background consumer drains. Claiming is ordered by target date ascending
// so older corrections land before the rows that chain from them.
type CorrectionQueue interface {
	// Enqueue persists correction items
	Enqueue(ctx context.Context, items ...*CorrectionItem) error

	// ClaimBatch atomically claims up to limit due items for a worker,
	// oldest target date first
	ClaimBatch(ctx context.Context, workerID string, limit int) ([]*CorrectionItem, error)

	// Update persists status transitions of a claimed item
	Update(ctx context.Context, item *CorrectionItem) error

	// ReclaimStale releases PROCESSING items whose lock is older than
	// lockTimeout back to PENDING, covering worker crashes
	ReclaimStale(ctx context.Context, lockTimeout time.Duration) (int64, error)

	// CountByStatus returns item counts per status
	CountByStatus(ctx context.Context) (map[CorrectionStatus]int64, error)

	// FindDead returns dead items with pagination
	FindDead(ctx context.Context, page, pageSize int) ([]*CorrectionItem, int64, error)

	// DeleteDoneBefore purges completed items older than the cutoff
	DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error)
}
