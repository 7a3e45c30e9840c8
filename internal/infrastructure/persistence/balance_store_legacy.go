package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// LegacyBalanceStore implements ledger.BalanceRepository against the legacy
// single-table layout.
type LegacyBalanceStore struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewLegacyBalanceStore creates a new LegacyBalanceStore
func NewLegacyBalanceStore(db *gorm.DB) *LegacyBalanceStore {
	return &LegacyBalanceStore{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event persistence
func (s *LegacyBalanceStore) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	s.outboxSaver = saver
}

// FindByDate finds the balance row for a property on a single business date
func (s *LegacyBalanceStore) FindByDate(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyCashBalance, error) {
	var model models.DailyCashBalanceModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND property_id = ? AND balance_date = ?", tenantID, propertyID, date.UTC()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRange finds all balance rows in the inclusive date range, ordered by date ascending
func (s *LegacyBalanceStore) FindRange(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.DailyCashBalance, error) {
	var balanceModels []models.DailyCashBalanceModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND property_id = ? AND balance_date >= ? AND balance_date <= ?",
			tenantID, propertyID, from.UTC(), to.UTC()).
		Order("balance_date ASC").
		Find(&balanceModels).Error; err != nil {
		return nil, err
	}
	balances := make([]ledger.DailyCashBalance, len(balanceModels))
	for i, model := range balanceModels {
		balances[i] = *model.ToDomain()
	}
	return balances, nil
}

// Upsert creates or replaces the balance row for the aggregate's natural key.
// Pending domain events are persisted to the outbox in the same transaction
// and cleared from the aggregate after commit.
func (s *LegacyBalanceStore) Upsert(ctx context.Context, balance *ledger.DailyCashBalance) error {
	events := balance.GetDomainEvents()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DailyCashBalanceModel
		findErr := tx.
			Where("tenant_id = ? AND property_id = ? AND balance_date = ?",
				balance.TenantID, balance.PropertyID, balance.Date.UTC()).
			First(&existing).Error

		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			model := models.DailyCashBalanceModelFromDomain(balance)
			if err := tx.Create(model).Error; err != nil {
				return err
			}
		case findErr != nil:
			return findErr
		default:
			model := models.DailyCashBalanceModelFromDomain(balance)
			// Preserve the stored identity so the aggregate id stays stable
			// across recomputes even if the caller rebuilt the aggregate.
			model.ID = existing.ID
			model.CreatedAt = existing.CreatedAt
			model.Version = existing.Version + 1

			result := tx.Model(model).
				Where("id = ? AND version = ?", existing.ID, existing.Version).
				Save(model)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.NewDomainError("VERSION_CONFLICT", "Balance row has been modified by another writer")
			}
		}

		if s.outboxSaver != nil && len(events) > 0 {
			if err := s.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	balance.ClearDomainEvents()
	return nil
}

// ListDates lists the distinct dates that have a balance row in the range, ascending
func (s *LegacyBalanceStore) ListDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	var stored []time.Time
	if err := s.db.WithContext(ctx).
		Model(&models.DailyCashBalanceModel{}).
		Distinct("balance_date").
		Where("tenant_id = ? AND property_id = ? AND balance_date >= ? AND balance_date <= ?",
			tenantID, propertyID, from.UTC(), to.UTC()).
		Order("balance_date ASC").
		Pluck("balance_date", &stored).Error; err != nil {
		return nil, err
	}
	return datesFromTimes(stored), nil
}

// FindDuplicateDates finds dates with more than one balance row in the range.
// Only the legacy layout can hold duplicates; the partitioned layout enforces
// the natural key as its primary key.
func (s *LegacyBalanceStore) FindDuplicateDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	var stored []time.Time
	if err := s.db.WithContext(ctx).
		Model(&models.DailyCashBalanceModel{}).
		Select("balance_date").
		Where("tenant_id = ? AND property_id = ? AND balance_date >= ? AND balance_date <= ?",
			tenantID, propertyID, from.UTC(), to.UTC()).
		Group("balance_date").
		Having("COUNT(*) > 1").
		Order("balance_date ASC").
		Pluck("balance_date", &stored).Error; err != nil {
		return nil, err
	}
	return datesFromTimes(stored), nil
}

// datesFromTimes converts stored DATE column values back to business dates
func datesFromTimes(stored []time.Time) []ledger.Date {
	dates := make([]ledger.Date, len(stored))
	for i, t := range stored {
		dates[i] = ledger.DateOfTime(t.UTC())
	}
	return dates
}

// Ensure LegacyBalanceStore implements ledger.BalanceRepository
var _ ledger.BalanceRepository = (*LegacyBalanceStore)(nil)
