package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
)

// CorrectionItemModel is the persistence model for queued ledger corrections.
// Consumers claim rows oldest target date first, so the hot query path is
// (status, target_date).
type CorrectionItemModel struct {
	ID                    uuid.UUID               `gorm:"type:uuid;primaryKey"`
	TenantID              uuid.UUID               `gorm:"type:uuid;not null;index"`
	PropertyID            uuid.UUID               `gorm:"type:uuid;not null"`
	TargetDate            time.Time               `gorm:"type:date;not null;index:idx_correction_status_date,priority:2"`
	CorrectedOpeningCents *int64
	Reason                ledger.CorrectionReason `gorm:"type:varchar(30);not null"`
	Status                ledger.CorrectionStatus `gorm:"type:varchar(12);not null;default:'PENDING';index:idx_correction_status_date,priority:1"`
	Attempts              int                     `gorm:"not null;default:0"`
	MaxAttempts           int                     `gorm:"not null;default:5"`
	LastError             string                  `gorm:"type:text"`
	NextAttemptAt         *time.Time              `gorm:"index"`
	LockedBy              string                  `gorm:"type:varchar(100)"`
	LockedAt              *time.Time
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CorrectionItemModel) TableName() string {
	return "correction_queue_items"
}

// ToDomain converts the persistence model to a domain CorrectionItem.
func (m *CorrectionItemModel) ToDomain() *ledger.CorrectionItem {
	return &ledger.CorrectionItem{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		PropertyID:            m.PropertyID,
		TargetDate:            ledger.DateOfTime(m.TargetDate.UTC()),
		CorrectedOpeningCents: m.CorrectedOpeningCents,
		Reason:                m.Reason,
		Status:                m.Status,
		Attempts:              m.Attempts,
		MaxAttempts:           m.MaxAttempts,
		LastError:             m.LastError,
		NextAttemptAt:         m.NextAttemptAt,
		LockedBy:              m.LockedBy,
		LockedAt:              m.LockedAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain CorrectionItem.
func (m *CorrectionItemModel) FromDomain(item *ledger.CorrectionItem) {
	m.ID = item.ID
	m.TenantID = item.TenantID
	m.PropertyID = item.PropertyID
	m.TargetDate = item.TargetDate.UTC()
	m.CorrectedOpeningCents = item.CorrectedOpeningCents
	m.Reason = item.Reason
	m.Status = item.Status
	m.Attempts = item.Attempts
	m.MaxAttempts = item.MaxAttempts
	m.LastError = item.LastError
	m.NextAttemptAt = item.NextAttemptAt
	m.LockedBy = item.LockedBy
	m.LockedAt = item.LockedAt
	m.CreatedAt = item.CreatedAt
	m.UpdatedAt = item.UpdatedAt
}

// CorrectionItemModelFromDomain creates a new persistence model from a domain CorrectionItem.
func CorrectionItemModelFromDomain(item *ledger.CorrectionItem) *CorrectionItemModel {
	m := &CorrectionItemModel{}
	m.FromDomain(item)
	return m
}
