package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// DailyCashBalance is the ledger row for one property on one business date.
// All amounts are integer cents. The chain property links consecutive rows:
// each day's opening equals the prior day's closing balance of record.
//
// ClosingBalanceCents is the balance of record. It normally equals
// CalculatedClosingCents (opening + cash received - cash expenses) but an
// operator who counted the drawer can override it; recomputation then keeps
// the override and tracks the gap in BalanceDiscrepancyCents. Bank-mode
// amounts are aggregated for reporting but never move the cash closing.
type DailyCashBalance struct {
	shared.TenantAggregateRoot
	PropertyID              uuid.UUID
	Date                    Date
	OpeningBalanceCents     int64
	CashReceivedCents       int64
	BankReceivedCents       int64
	CashExpensesCents       int64
	BankExpensesCents       int64
	ClosingBalanceCents     int64
	CalculatedClosingCents  int64
	BalanceDiscrepancyCents int64
	OpeningAutoCalculated   bool
	ClosingManuallySet      bool
}

// NewDailyCashBalance creates an empty balance row for the given day
func NewDailyCashBalance(tenantID, propertyID uuid.UUID, date Date) (*DailyCashBalance, error) {
	if propertyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROPERTY", "Property ID is required")
	}
	if date.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Balance date is required")
	}
	return &DailyCashBalance{
		TenantAggregateRoot:   shared.NewTenantAggregateRoot(tenantID),
		PropertyID:            propertyID,
		Date:                  date,
		OpeningAutoCalculated: true,
	}, nil
}

// ApplyRecomputation replaces the day's aggregates with freshly summed
// values and rederives the closing balance. openingAuto records whether the
// opening came from the chain (prior day's closing, or zero for a first
// tracked day) rather than an operator override.
func (b *DailyCashBalance) ApplyRecomputation(openingCents int64, openingAuto bool, sums TransactionSums) {
	b.OpeningBalanceCents = openingCents
	b.OpeningAutoCalculated = openingAuto
	b.CashReceivedCents = sums.CashReceivedCents
	b.BankReceivedCents = sums.BankReceivedCents
	b.CashExpensesCents = sums.CashExpensesCents
	b.BankExpensesCents = sums.BankExpensesCents
	b.CalculatedClosingCents = openingCents + sums.CashReceivedCents - sums.CashExpensesCents
	if !b.ClosingManuallySet {
		b.ClosingBalanceCents = b.CalculatedClosingCents
	}
	b.BalanceDiscrepancyCents = b.ClosingBalanceCents - b.CalculatedClosingCents
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewDailyBalanceRecomputedEvent(b))
}

// OverrideOpening pins the opening balance to an operator-supplied value.
// Subsequent recomputations keep it instead of chaining from the prior day.
func (b *DailyCashBalance) OverrideOpening(openingCents int64) {
	b.OpeningBalanceCents = openingCents
	b.OpeningAutoCalculated = false
	b.CalculatedClosingCents = openingCents + b.CashReceivedCents - b.CashExpensesCents
	if !b.ClosingManuallySet {
		b.ClosingBalanceCents = b.CalculatedClosingCents
	}
	b.BalanceDiscrepancyCents = b.ClosingBalanceCents - b.CalculatedClosingCents
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewDailyBalanceRecomputedEvent(b))
}

// OverrideClosing records an operator-counted closing balance. The
// calculated value is retained alongside so the discrepancy stays visible.
func (b *DailyCashBalance) OverrideClosing(closingCents int64, by uuid.UUID) {
	b.ClosingBalanceCents = closingCents
	b.ClosingManuallySet = true
	b.BalanceDiscrepancyCents = b.ClosingBalanceCents - b.CalculatedClosingCents
	b.UpdatedAt = time.Now()
	b.AddDomainEvent(NewDailyBalanceClosingOverriddenEvent(b, by))
}

// HasDiscrepancy reports whether the recorded closing deviates from the
// calculated one by more than toleranceCents
func (b *DailyCashBalance) HasDiscrepancy(toleranceCents int64) bool {
	d := b.BalanceDiscrepancyCents
	if d < 0 {
		d = -d
	}
	return d > toleranceCents
}

// ChainsFrom reports whether b's opening matches prev's closing balance of
// record. prev must be the row for the immediately preceding date.
func (b *DailyCashBalance) ChainsFrom(prev *DailyCashBalance) bool {
	return b.OpeningBalanceCents == prev.ClosingBalanceCents
}
