package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// TransactionKind classifies a cash transaction as money in or money out
type TransactionKind string

const (
	TransactionKindRevenue TransactionKind = "REVENUE"
	TransactionKindExpense TransactionKind = "EXPENSE"
)

// IsValid checks if the transaction kind is valid
func (k TransactionKind) IsValid() bool {
	return k == TransactionKindRevenue || k == TransactionKindExpense
}

// PaymentMode is the settlement channel of a transaction. Only CASH amounts
// flow into the cash closing balance; BANK amounts are aggregated for
// reporting but never change the drawer.
type PaymentMode string

const (
	PaymentModeCash PaymentMode = "CASH"
	PaymentModeBank PaymentMode = "BANK"
)

// IsValid checks if the payment mode is valid
func (m PaymentMode) IsValid() bool {
	return m == PaymentModeCash || m == PaymentModeBank
}

// TransactionStatus represents the approval state of a transaction
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusApproved TransactionStatus = "APPROVED"
	TransactionStatusRejected TransactionStatus = "REJECTED"
)

// CashTransaction is a single revenue or expense entry recorded against a
// property on a business date. Transactions are created PENDING and only
// count toward ledger balances once approved. Approved and rejected
// transactions are immutable.
type CashTransaction struct {
	shared.TenantAggregateRoot
	PropertyID      uuid.UUID
	Kind            TransactionKind
	PaymentMode     PaymentMode
	AmountCents     int64
	OccurredOn      Date
	Description     string
	Reference       string
	Status          TransactionStatus
	ApprovedBy      *uuid.UUID
	ApprovedAt      *time.Time
	RejectedBy      *uuid.UUID
	RejectedAt      *time.Time
	RejectionReason string
}

// NewCashTransaction creates a new pending cash transaction
func NewCashTransaction(tenantID, propertyID uuid.UUID, kind TransactionKind, mode PaymentMode, amountCents int64, occurredOn Date, description string) (*CashTransaction, error) {
	if propertyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROPERTY", "Property ID is required")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_KIND", "Transaction kind must be REVENUE or EXPENSE")
	}
	if !mode.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_MODE", "Payment mode must be CASH or BANK")
	}
	if amountCents <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Transaction amount must be positive")
	}
	if occurredOn.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Transaction date is required")
	}

	txn := &CashTransaction{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		PropertyID:          propertyID,
		Kind:                kind,
		PaymentMode:         mode,
		AmountCents:         amountCents,
		OccurredOn:          occurredOn,
		Description:         description,
		Status:              TransactionStatusPending,
	}
	txn.AddDomainEvent(NewCashTransactionRecordedEvent(txn))
	return txn, nil
}

// Approve marks the transaction as approved so it enters the day's ledger
func (t *CashTransaction) Approve(approverID uuid.UUID) error {
	if t.Status != TransactionStatusPending {
		return shared.NewDomainError("INVALID_STATUS", "Only pending transactions can be approved")
	}
	now := time.Now()
	t.Status = TransactionStatusApproved
	t.ApprovedBy = &approverID
	t.ApprovedAt = &now
	t.UpdatedAt = now
	t.AddDomainEvent(NewCashTransactionApprovedEvent(t))
	return nil
}

// Reject marks the transaction as rejected with a reason
func (t *CashTransaction) Reject(rejecterID uuid.UUID, reason string) error {
	if t.Status != TransactionStatusPending {
		return shared.NewDomainError("INVALID_STATUS", "Only pending transactions can be rejected")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Rejection reason is required")
	}
	now := time.Now()
	t.Status = TransactionStatusRejected
	t.RejectedBy = &rejecterID
	t.RejectedAt = &now
	t.RejectionReason = reason
	t.UpdatedAt = now
	t.AddDomainEvent(NewCashTransactionRejectedEvent(t))
	return nil
}

// IsApproved returns true if the transaction has been approved
func (t *CashTransaction) IsApproved() bool {
	return t.Status == TransactionStatusApproved
}

// TransactionSums holds the per-day approved transaction aggregates split
// by kind and payment mode, as produced by a single grouped query
type TransactionSums struct {
	CashReceivedCents int64
	BankReceivedCents int64
	CashExpensesCents int64
	BankExpensesCents int64
}

// Add accumulates a single transaction into the sums
func (s *TransactionSums) Add(kind TransactionKind, mode PaymentMode, amountCents int64) {
	switch {
	case kind == TransactionKindRevenue && mode == PaymentModeCash:
		s.CashReceivedCents += amountCents
	case kind == TransactionKindRevenue && mode == PaymentModeBank:
		s.BankReceivedCents += amountCents
	case kind == TransactionKindExpense && mode == PaymentModeCash:
		s.CashExpensesCents += amountCents
	case kind == TransactionKindExpense && mode == PaymentModeBank:
		s.BankExpensesCents += amountCents
	}
}
