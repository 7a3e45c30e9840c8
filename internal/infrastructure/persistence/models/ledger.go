package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
)

// DailyCashBalanceModel is the persistence model for the DailyCashBalance
// aggregate in the legacy single-table layout. Rows are keyed by a surrogate
// uuid; the natural (tenant, property, date) key carries only a lookup
// index, which is how historical duplicates were able to creep in. The
// partitioned layout closes that hole by making the natural key its primary
// key; until a deployment finishes migrating, the validator watches this
// table for duplicates.
type DailyCashBalanceModel struct {
	TenantAggregateModel
	PropertyID              uuid.UUID `gorm:"type:uuid;not null;index:idx_daily_balance_property_date,priority:1"`
	BalanceDate             time.Time `gorm:"type:date;not null;index:idx_daily_balance_property_date,priority:2"`
	OpeningBalanceCents     int64     `gorm:"not null;default:0"`
	CashReceivedCents       int64     `gorm:"not null;default:0"`
	BankReceivedCents       int64     `gorm:"not null;default:0"`
	CashExpensesCents       int64     `gorm:"not null;default:0"`
	BankExpensesCents       int64     `gorm:"not null;default:0"`
	ClosingBalanceCents     int64     `gorm:"not null;default:0"`
	CalculatedClosingCents  int64     `gorm:"not null;default:0"`
	BalanceDiscrepancyCents int64     `gorm:"not null;default:0"`
	OpeningAutoCalculated   bool      `gorm:"not null;default:true"`
	ClosingManuallySet      bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (DailyCashBalanceModel) TableName() string {
	return "daily_cash_balances"
}

// ToDomain converts the persistence model to a domain DailyCashBalance entity.
func (m *DailyCashBalanceModel) ToDomain() *ledger.DailyCashBalance {
	b := &ledger.DailyCashBalance{
		PropertyID:              m.PropertyID,
		Date:                    ledger.DateOfTime(m.BalanceDate.UTC()),
		OpeningBalanceCents:     m.OpeningBalanceCents,
		CashReceivedCents:       m.CashReceivedCents,
		BankReceivedCents:       m.BankReceivedCents,
		CashExpensesCents:       m.CashExpensesCents,
		BankExpensesCents:       m.BankExpensesCents,
		ClosingBalanceCents:     m.ClosingBalanceCents,
		CalculatedClosingCents:  m.CalculatedClosingCents,
		BalanceDiscrepancyCents: m.BalanceDiscrepancyCents,
		OpeningAutoCalculated:   m.OpeningAutoCalculated,
		ClosingManuallySet:      m.ClosingManuallySet,
	}
	m.PopulateTenantAggregateRoot(&b.TenantAggregateRoot)
	return b
}

// FromDomain populates the persistence model from a domain DailyCashBalance entity.
func (m *DailyCashBalanceModel) FromDomain(b *ledger.DailyCashBalance) {
	m.FromDomainTenantAggregateRoot(b.TenantAggregateRoot)
	m.PropertyID = b.PropertyID
	m.BalanceDate = b.Date.UTC()
	m.OpeningBalanceCents = b.OpeningBalanceCents
	m.CashReceivedCents = b.CashReceivedCents
	m.BankReceivedCents = b.BankReceivedCents
	m.CashExpensesCents = b.CashExpensesCents
	m.BankExpensesCents = b.BankExpensesCents
	m.ClosingBalanceCents = b.ClosingBalanceCents
	m.CalculatedClosingCents = b.CalculatedClosingCents
	m.BalanceDiscrepancyCents = b.BalanceDiscrepancyCents
	m.OpeningAutoCalculated = b.OpeningAutoCalculated
	m.ClosingManuallySet = b.ClosingManuallySet
}

// DailyCashBalanceModelFromDomain creates a new persistence model from a domain DailyCashBalance.
func DailyCashBalanceModelFromDomain(b *ledger.DailyCashBalance) *DailyCashBalanceModel {
	m := &DailyCashBalanceModel{}
	m.FromDomain(b)
	return m
}

// DailyCashBalancePartitionedModel is the persistence model for the
// DailyCashBalance aggregate in the hash-partitioned layout. The primary key
// is the natural (tenant, property, date) key because unique constraints on a
// partitioned table must include the partition key columns; the surrogate id
// is kept as a plain column so events keep a stable aggregate identity across
// layouts.
type DailyCashBalancePartitionedModel struct {
	TenantID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PropertyID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BalanceDate             time.Time  `gorm:"type:date;primaryKey"`
	ID                      uuid.UUID  `gorm:"type:uuid;not null"`
	Version                 int        `gorm:"not null;default:1"`
	CreatedBy               *uuid.UUID `gorm:"type:uuid"`
	OpeningBalanceCents     int64      `gorm:"not null;default:0"`
	CashReceivedCents       int64      `gorm:"not null;default:0"`
	BankReceivedCents       int64      `gorm:"not null;default:0"`
	CashExpensesCents       int64      `gorm:"not null;default:0"`
	BankExpensesCents       int64      `gorm:"not null;default:0"`
	ClosingBalanceCents     int64      `gorm:"not null;default:0"`
	CalculatedClosingCents  int64      `gorm:"not null;default:0"`
	BalanceDiscrepancyCents int64      `gorm:"not null;default:0"`
	OpeningAutoCalculated   bool       `gorm:"not null;default:true"`
	ClosingManuallySet      bool       `gorm:"not null;default:false"`
	CreatedAt               time.Time  `gorm:"not null"`
	UpdatedAt               time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DailyCashBalancePartitionedModel) TableName() string {
	return "daily_cash_balances_p"
}

// ToDomain converts the persistence model to a domain DailyCashBalance entity.
func (m *DailyCashBalancePartitionedModel) ToDomain() *ledger.DailyCashBalance {
	return &ledger.DailyCashBalance{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			TenantID:  m.TenantID,
			CreatedBy: m.CreatedBy,
		},
		PropertyID:              m.PropertyID,
		Date:                    ledger.DateOfTime(m.BalanceDate.UTC()),
		OpeningBalanceCents:     m.OpeningBalanceCents,
		CashReceivedCents:       m.CashReceivedCents,
		BankReceivedCents:       m.BankReceivedCents,
		CashExpensesCents:       m.CashExpensesCents,
		BankExpensesCents:       m.BankExpensesCents,
		ClosingBalanceCents:     m.ClosingBalanceCents,
		CalculatedClosingCents:  m.CalculatedClosingCents,
		BalanceDiscrepancyCents: m.BalanceDiscrepancyCents,
		OpeningAutoCalculated:   m.OpeningAutoCalculated,
		ClosingManuallySet:      m.ClosingManuallySet,
	}
}

// FromDomain populates the persistence model from a domain DailyCashBalance entity.
func (m *DailyCashBalancePartitionedModel) FromDomain(b *ledger.DailyCashBalance) {
	m.TenantID = b.TenantID
	m.PropertyID = b.PropertyID
	m.BalanceDate = b.Date.UTC()
	m.ID = b.GetID()
	m.Version = b.GetVersion()
	m.CreatedBy = b.CreatedBy
	m.OpeningBalanceCents = b.OpeningBalanceCents
	m.CashReceivedCents = b.CashReceivedCents
	m.BankReceivedCents = b.BankReceivedCents
	m.CashExpensesCents = b.CashExpensesCents
	m.BankExpensesCents = b.BankExpensesCents
	m.ClosingBalanceCents = b.ClosingBalanceCents
	m.CalculatedClosingCents = b.CalculatedClosingCents
	m.BalanceDiscrepancyCents = b.BalanceDiscrepancyCents
	m.OpeningAutoCalculated = b.OpeningAutoCalculated
	m.ClosingManuallySet = b.ClosingManuallySet
	m.CreatedAt = b.GetCreatedAt()
	m.UpdatedAt = b.GetUpdatedAt()
}

// DailyCashBalancePartitionedModelFromDomain creates a new persistence model from a domain DailyCashBalance.
func DailyCashBalancePartitionedModelFromDomain(b *ledger.DailyCashBalance) *DailyCashBalancePartitionedModel {
	m := &DailyCashBalancePartitionedModel{}
	m.FromDomain(b)
	return m
}

// CashTransactionModel is the persistence model for the CashTransaction
// aggregate in the legacy single-table layout.
type CashTransactionModel struct {
	TenantAggregateModel
	PropertyID      uuid.UUID                `gorm:"type:uuid;not null;index:idx_txn_property_date,priority:1"`
	Kind            ledger.TransactionKind   `gorm:"type:varchar(10);not null"`
	PaymentMode     ledger.PaymentMode       `gorm:"type:varchar(10);not null"`
	AmountCents     int64                    `gorm:"not null"`
	OccurredOn      time.Time                `gorm:"type:date;not null;index:idx_txn_property_date,priority:2"`
	Description     string                   `gorm:"type:varchar(500)"`
	Reference       string                   `gorm:"type:varchar(100)"`
	Status          ledger.TransactionStatus `gorm:"type:varchar(10);not null;default:'PENDING';index"`
	ApprovedBy      *uuid.UUID               `gorm:"type:uuid"`
	ApprovedAt      *time.Time
	RejectedBy      *uuid.UUID `gorm:"type:uuid"`
	RejectedAt      *time.Time
	RejectionReason string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (CashTransactionModel) TableName() string {
	return "cash_transactions"
}

// ToDomain converts the persistence model to a domain CashTransaction entity.
func (m *CashTransactionModel) ToDomain() *ledger.CashTransaction {
	t := &ledger.CashTransaction{
		PropertyID:      m.PropertyID,
		Kind:            m.Kind,
		PaymentMode:     m.PaymentMode,
		AmountCents:     m.AmountCents,
		OccurredOn:      ledger.DateOfTime(m.OccurredOn.UTC()),
		Description:     m.Description,
		Reference:       m.Reference,
		Status:          m.Status,
		ApprovedBy:      m.ApprovedBy,
		ApprovedAt:      m.ApprovedAt,
		RejectedBy:      m.RejectedBy,
		RejectedAt:      m.RejectedAt,
		RejectionReason: m.RejectionReason,
	}
	m.PopulateTenantAggregateRoot(&t.TenantAggregateRoot)
	return t
}

// FromDomain populates the persistence model from a domain CashTransaction entity.
func (m *CashTransactionModel) FromDomain(t *ledger.CashTransaction) {
	m.FromDomainTenantAggregateRoot(t.TenantAggregateRoot)
	m.PropertyID = t.PropertyID
	m.Kind = t.Kind
	m.PaymentMode = t.PaymentMode
	m.AmountCents = t.AmountCents
	m.OccurredOn = t.OccurredOn.UTC()
	m.Description = t.Description
	m.Reference = t.Reference
	m.Status = t.Status
	m.ApprovedBy = t.ApprovedBy
	m.ApprovedAt = t.ApprovedAt
	m.RejectedBy = t.RejectedBy
	m.RejectedAt = t.RejectedAt
	m.RejectionReason = t.RejectionReason
}

// CashTransactionModelFromDomain creates a new persistence model from a domain CashTransaction.
func CashTransactionModelFromDomain(t *ledger.CashTransaction) *CashTransactionModel {
	m := &CashTransactionModel{}
	m.FromDomain(t)
	return m
}

// CashTransactionPartitionedModel is the persistence model for the
// CashTransaction aggregate in the range-partitioned layout. Partitions are
// monthly over occurred_on, so occurred_on is part of the primary key.
type CashTransactionPartitionedModel struct {
	ID              uuid.UUID                `gorm:"type:uuid;primaryKey"`
	OccurredOn      time.Time                `gorm:"type:date;primaryKey;index:idx_txn_p_property_date,priority:3"`
	TenantID        uuid.UUID                `gorm:"type:uuid;not null;index:idx_txn_p_property_date,priority:1"`
	PropertyID      uuid.UUID                `gorm:"type:uuid;not null;index:idx_txn_p_property_date,priority:2"`
	Kind            ledger.TransactionKind   `gorm:"type:varchar(10);not null"`
	PaymentMode     ledger.PaymentMode       `gorm:"type:varchar(10);not null"`
	AmountCents     int64                    `gorm:"not null"`
	Description     string                   `gorm:"type:varchar(500)"`
	Reference       string                   `gorm:"type:varchar(100)"`
	Status          ledger.TransactionStatus `gorm:"type:varchar(10);not null;default:'PENDING'"`
	ApprovedBy      *uuid.UUID               `gorm:"type:uuid"`
	ApprovedAt      *time.Time
	RejectedBy      *uuid.UUID `gorm:"type:uuid"`
	RejectedAt      *time.Time
	RejectionReason string     `gorm:"type:varchar(500)"`
	Version         int        `gorm:"not null;default:1"`
	CreatedBy       *uuid.UUID `gorm:"type:uuid"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CashTransactionPartitionedModel) TableName() string {
	return "cash_transactions_p"
}

// ToDomain converts the persistence model to a domain CashTransaction entity.
func (m *CashTransactionPartitionedModel) ToDomain() *ledger.CashTransaction {
	return &ledger.CashTransaction{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			TenantID:  m.TenantID,
			CreatedBy: m.CreatedBy,
		},
		PropertyID:      m.PropertyID,
		Kind:            m.Kind,
		PaymentMode:     m.PaymentMode,
		AmountCents:     m.AmountCents,
		OccurredOn:      ledger.DateOfTime(m.OccurredOn.UTC()),
		Description:     m.Description,
		Reference:       m.Reference,
		Status:          m.Status,
		ApprovedBy:      m.ApprovedBy,
		ApprovedAt:      m.ApprovedAt,
		RejectedBy:      m.RejectedBy,
		RejectedAt:      m.RejectedAt,
		RejectionReason: m.RejectionReason,
	}
}

// FromDomain populates the persistence model from a domain CashTransaction entity.
func (m *CashTransactionPartitionedModel) FromDomain(t *ledger.CashTransaction) {
	m.ID = t.GetID()
	m.OccurredOn = t.OccurredOn.UTC()
	m.TenantID = t.TenantID
	m.PropertyID = t.PropertyID
	m.Kind = t.Kind
	m.PaymentMode = t.PaymentMode
	m.AmountCents = t.AmountCents
	m.Description = t.Description
	m.Reference = t.Reference
	m.Status = t.Status
	m.ApprovedBy = t.ApprovedBy
	m.ApprovedAt = t.ApprovedAt
	m.RejectedBy = t.RejectedBy
	m.RejectedAt = t.RejectedAt
	m.RejectionReason = t.RejectionReason
	m.Version = t.GetVersion()
	m.CreatedBy = t.CreatedBy
	m.CreatedAt = t.GetCreatedAt()
	m.UpdatedAt = t.GetUpdatedAt()
}

// CashTransactionPartitionedModelFromDomain creates a new persistence model from a domain CashTransaction.
func CashTransactionPartitionedModelFromDomain(t *ledger.CashTransaction) *CashTransactionPartitionedModel {
	m := &CashTransactionPartitionedModel{}
	m.FromDomain(t)
	return m
}
