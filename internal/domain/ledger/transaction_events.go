package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// CashTransactionRecordedEvent is raised when a new transaction is recorded
type CashTransactionRecordedEvent struct {
	shared.BaseDomainEvent
	TransactionID uuid.UUID       `json:"transaction_id"`
	PropertyID    uuid.UUID       `json:"property_id"`
	Kind          TransactionKind `json:"kind"`
	PaymentMode   PaymentMode     `json:"payment_mode"`
	AmountCents   int64           `json:"amount_cents"`
	OccurredOn    Date            `json:"occurred_on"`
}

// EventType returns the event type name
func (e *CashTransactionRecordedEvent) EventType() string {
	return "CashTransactionRecorded"
}

// NewCashTransactionRecordedEvent creates a new CashTransactionRecordedEvent
func NewCashTransactionRecordedEvent(txn *CashTransaction) *CashTransactionRecordedEvent {
	return &CashTransactionRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CashTransactionRecorded", "CashTransaction", txn.ID, txn.TenantID),
		TransactionID:   txn.ID,
		PropertyID:      txn.PropertyID,
		Kind:            txn.Kind,
		PaymentMode:     txn.PaymentMode,
		AmountCents:     txn.AmountCents,
		OccurredOn:      txn.OccurredOn,
	}
}

// CashTransactionApprovedEvent is raised when a transaction is approved.
// The recompute handler reacts to it, so delivery has to survive process
// crashes; it is always written through the transactional outbox.
type CashTransactionApprovedEvent struct {
	shared.BaseDomainEvent
	TransactionID uuid.UUID       `json:"transaction_id"`
	PropertyID    uuid.UUID       `json:"property_id"`
	Kind          TransactionKind `json:"kind"`
	PaymentMode   PaymentMode     `json:"payment_mode"`
	AmountCents   int64           `json:"amount_cents"`
	OccurredOn    Date            `json:"occurred_on"`
	ApprovedBy    uuid.UUID       `json:"approved_by"`
	ApprovedAt    time.Time       `json:"approved_at"`
}

// EventType returns the event type name
func (e *CashTransactionApprovedEvent) EventType() string {
	return "CashTransactionApproved"
}

// NewCashTransactionApprovedEvent creates a new CashTransactionApprovedEvent
func NewCashTransactionApprovedEvent(txn *CashTransaction) *CashTransactionApprovedEvent {
	approvedAt := time.Now()
	if txn.ApprovedAt != nil {
		approvedAt = *txn.ApprovedAt
	}
	var approvedBy uuid.UUID
	if txn.ApprovedBy != nil {
		approvedBy = *txn.ApprovedBy
	}
	return &CashTransactionApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CashTransactionApproved", "CashTransaction", txn.ID, txn.TenantID),
		TransactionID:   txn.ID,
		PropertyID:      txn.PropertyID,
		Kind:            txn.Kind,
		PaymentMode:     txn.PaymentMode,
		AmountCents:     txn.AmountCents,
		OccurredOn:      txn.OccurredOn,
		ApprovedBy:      approvedBy,
		ApprovedAt:      approvedAt,
	}
}

// CashTransactionRejectedEvent is raised when a transaction is rejected
type CashTransactionRejectedEvent struct {
	shared.BaseDomainEvent
	TransactionID   uuid.UUID `json:"transaction_id"`
	PropertyID      uuid.UUID `json:"property_id"`
	OccurredOn      Date      `json:"occurred_on"`
	RejectedBy      uuid.UUID `json:"rejected_by"`
	RejectedAt      time.Time `json:"rejected_at"`
	RejectionReason string    `json:"rejection_reason"`
}

// EventType returns the event type name
func (e *CashTransactionRejectedEvent) EventType() string {
	return "CashTransactionRejected"
}

// NewCashTransactionRejectedEvent creates a new CashTransactionRejectedEvent
func NewCashTransactionRejectedEvent(txn *CashTransaction) *CashTransactionRejectedEvent {
	rejectedAt := time.Now()
	if txn.RejectedAt != nil {
		rejectedAt = *txn.RejectedAt
	}
	var rejectedBy uuid.UUID
	if txn.RejectedBy != nil {
		rejectedBy = *txn.RejectedBy
	}
	return &CashTransactionRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CashTransactionRejected", "CashTransaction", txn.ID, txn.TenantID),
		TransactionID:   txn.ID,
		PropertyID:      txn.PropertyID,
		OccurredOn:      txn.OccurredOn,
		RejectedBy:      rejectedBy,
		RejectedAt:      rejectedAt,
		RejectionReason: txn.RejectionReason,
	}
}
