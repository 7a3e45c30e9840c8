package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// TransactionFilter defines filtering options for transaction queries
type TransactionFilter struct {
	shared.Filter
	Kind        *TransactionKind
	PaymentMode *PaymentMode
	Status      *TransactionStatus
	FromDate    *Date
	ToDate      *Date
}

// BalanceRepository defines persistence for daily cash balance rows. The
// storage router implements it on top of the legacy and partitioned
// layouts; callers never see which physical layout served them.
type BalanceRepository interface {
	// FindByDate finds the balance row for one property and date
	FindByDate(ctx context.Context, tenantID, propertyID uuid.UUID, date Date) (*DailyCashBalance, error)

	// FindRange finds all balance rows in [from, to] ordered by date ascending
	FindRange(ctx context.Context, tenantID, propertyID uuid.UUID, from, to Date) ([]DailyCashBalance, error)

	// Upsert inserts or updates the row keyed by (tenant, property, date)
	// and saves the aggregate's pending events to the outbox in the same
	// transaction
	Upsert(ctx context.Context, balance *DailyCashBalance) error

	// ListDates returns the dates in [from, to] that have a balance row
	ListDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to Date) ([]Date, error)

	// FindDuplicateDates returns dates holding more than one row for the
	// same (tenant, property) key. A duplicate means the layout's
	// uniqueness guarantee was violated and is reported by the validator.
	FindDuplicateDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to Date) ([]Date, error)
}

// TransactionRepository defines persistence for cash transactions
type TransactionRepository interface {
	// FindByID finds a transaction by ID within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*CashTransaction, error)

	// FindForProperty finds transactions for a property with filtering
	FindForProperty(ctx context.Context, tenantID, propertyID uuid.UUID, filter TransactionFilter) ([]CashTransaction, error)

	// Save creates or updates a transaction and saves its pending events to
	// the outbox in the same transaction
	Save(ctx context.Context, txn *CashTransaction) error

	// SumApprovedByDate sums approved transaction amounts for one property
	// and date, split by kind and payment mode, in a single grouped query
	SumApprovedByDate(ctx context.Context, tenantID, propertyID uuid.UUID, date Date) (TransactionSums, error)

	// ListApprovedDates returns the distinct dates in [from, to] that have
	// at least one approved transaction
	ListApprovedDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to Date) ([]Date, error)
}
