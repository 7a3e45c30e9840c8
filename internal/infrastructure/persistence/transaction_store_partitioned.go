package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// PartitionedTransactionStore implements ledger.TransactionRepository against
// the range-partitioned layout. The partition key occurred_on is part of the
// primary key, so point lookups by id alone must scan partitions; FindByID is
// still served efficiently because the tenant index carries occurred_on.
type PartitionedTransactionStore struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewPartitionedTransactionStore creates a new PartitionedTransactionStore
func NewPartitionedTransactionStore(db *gorm.DB) *PartitionedTransactionStore {
	return &PartitionedTransactionStore{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event persistence
func (s *PartitionedTransactionStore) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	s.outboxSaver = saver
}

// FindByID finds a transaction by ID within a tenant
func (s *PartitionedTransactionStore) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.CashTransaction, error) {
	var model models.CashTransactionPartitionedModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindForProperty finds transactions for a property with filtering
func (s *PartitionedTransactionStore) FindForProperty(ctx context.Context, tenantID, propertyID uuid.UUID, filter ledger.TransactionFilter) ([]ledger.CashTransaction, error) {
	var txnModels []models.CashTransactionPartitionedModel
	query := s.db.WithContext(ctx).Model(&models.CashTransactionPartitionedModel{}).
		Where("tenant_id = ? AND property_id = ?", tenantID, propertyID)
	query = s.applyFilter(query, filter)

	if err := query.Find(&txnModels).Error; err != nil {
		return nil, err
	}
	txns := make([]ledger.CashTransaction, len(txnModels))
	for i, model := range txnModels {
		txns[i] = *model.ToDomain()
	}
	return txns, nil
}

// Save creates or updates a transaction. Pending domain events are persisted
// to the outbox in the same transaction and cleared after commit.
func (s *PartitionedTransactionStore) Save(ctx context.Context, txn *ledger.CashTransaction) error {
	events := txn.GetDomainEvents()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := models.CashTransactionPartitionedModelFromDomain(txn)
		if err := tx.Save(model).Error; err != nil {
			return err
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

	txn.ClearDomainEvents()
	return nil
}

// SumApprovedByDate sums approved transaction amounts for one property and
// date, split by kind and payment mode, in a single grouped query. The date
// predicate pins the query to one partition.
func (s *PartitionedTransactionStore) SumApprovedByDate(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (ledger.TransactionSums, error) {
	var rows []struct {
		Kind        ledger.TransactionKind
		PaymentMode ledger.PaymentMode
		Total       int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.CashTransactionPartitionedModel{}).
		Select("kind, payment_mode, COALESCE(SUM(amount_cents), 0) as total").
		Where("tenant_id = ? AND property_id = ? AND occurred_on = ? AND status = ?",
			tenantID, propertyID, date.UTC(), ledger.TransactionStatusApproved).
		Group("kind, payment_mode").
		Scan(&rows).Error; err != nil {
		return ledger.TransactionSums{}, err
	}

	var sums ledger.TransactionSums
	for _, row := range rows {
		sums.Add(row.Kind, row.PaymentMode, row.Total)
	}
	return sums, nil
}

// ListApprovedDates returns the distinct dates in [from, to] that have at
// least one approved transaction
func (s *PartitionedTransactionStore) ListApprovedDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	var stored []time.Time
	if err := s.db.WithContext(ctx).
		Model(&models.CashTransactionPartitionedModel{}).
		Distinct("occurred_on").
		Where("tenant_id = ? AND property_id = ? AND occurred_on >= ? AND occurred_on <= ? AND status = ?",
			tenantID, propertyID, from.UTC(), to.UTC(), ledger.TransactionStatusApproved).
		Order("occurred_on ASC").
		Pluck("occurred_on", &stored).Error; err != nil {
		return nil, err
	}
	return datesFromTimes(stored), nil
}

// applyFilter applies filter conditions to query
func (s *PartitionedTransactionStore) applyFilter(query *gorm.DB, filter ledger.TransactionFilter) *gorm.DB {
	query = applyTransactionFilter(query, filter)

	sortField := ValidateSortField(filter.OrderBy, TransactionSortFields, "occurred_on")
	sortOrder := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", sortField, sortOrder))

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		offset := (filter.Page - 1) * filter.PageSize
		if offset > 0 {
			query = query.Offset(offset)
		}
	}

	return query
}

// Ensure PartitionedTransactionStore implements ledger.TransactionRepository
var _ ledger.TransactionRepository = (*PartitionedTransactionStore)(nil)
