package ledger

import (
	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// DailyBalanceRecomputedEvent is raised whenever a balance row is recomputed
// or its opening is corrected. AffectedDates carries the recomputed day and
// the following day, because the next day's cached opening derives from this
// day's closing; cache invalidation walks that list.
type DailyBalanceRecomputedEvent struct {
	shared.BaseDomainEvent
	PropertyID              uuid.UUID `json:"property_id"`
	Date                    Date      `json:"date"`
	AffectedDates           []Date    `json:"affected_dates"`
	OpeningBalanceCents     int64     `json:"opening_balance_cents"`
	ClosingBalanceCents     int64     `json:"closing_balance_cents"`
	CalculatedClosingCents  int64     `json:"calculated_closing_cents"`
	BalanceDiscrepancyCents int64     `json:"balance_discrepancy_cents"`
}

// EventType returns the event type name
func (e *DailyBalanceRecomputedEvent) EventType() string {
	return "DailyBalanceRecomputed"
}

// NewDailyBalanceRecomputedEvent creates a new DailyBalanceRecomputedEvent
func NewDailyBalanceRecomputedEvent(balance *DailyCashBalance) *DailyBalanceRecomputedEvent {
	return &DailyBalanceRecomputedEvent{
		BaseDomainEvent:         shared.NewBaseDomainEvent("DailyBalanceRecomputed", "DailyCashBalance", balance.ID, balance.TenantID),
		PropertyID:              balance.PropertyID,
		Date:                    balance.Date,
		AffectedDates:           []Date{balance.Date, balance.Date.Next()},
		OpeningBalanceCents:     balance.OpeningBalanceCents,
		ClosingBalanceCents:     balance.ClosingBalanceCents,
		CalculatedClosingCents:  balance.CalculatedClosingCents,
		BalanceDiscrepancyCents: balance.BalanceDiscrepancyCents,
	}
}

// DailyBalanceClosingOverriddenEvent is raised when an operator records a
// counted closing balance that replaces the calculated one
type DailyBalanceClosingOverriddenEvent struct {
	shared.BaseDomainEvent
	PropertyID              uuid.UUID `json:"property_id"`
	Date                    Date      `json:"date"`
	AffectedDates           []Date    `json:"affected_dates"`
	ClosingBalanceCents     int64     `json:"closing_balance_cents"`
	CalculatedClosingCents  int64     `json:"calculated_closing_cents"`
	BalanceDiscrepancyCents int64     `json:"balance_discrepancy_cents"`
	OverriddenBy            uuid.UUID `json:"overridden_by"`
}

// EventType returns the event type name
func (e *DailyBalanceClosingOverriddenEvent) EventType() string {
	return "DailyBalanceClosingOverridden"
}

// NewDailyBalanceClosingOverriddenEvent creates a new DailyBalanceClosingOverriddenEvent
func NewDailyBalanceClosingOverriddenEvent(balance *DailyCashBalance, by uuid.UUID) *DailyBalanceClosingOverriddenEvent {
	return &DailyBalanceClosingOverriddenEvent{
		BaseDomainEvent:         shared.NewBaseDomainEvent("DailyBalanceClosingOverridden", "DailyCashBalance", balance.ID, balance.TenantID),
		PropertyID:              balance.PropertyID,
		Date:                    balance.Date,
		AffectedDates:           []Date{balance.Date, balance.Date.Next()},
		ClosingBalanceCents:     balance.ClosingBalanceCents,
		CalculatedClosingCents:  balance.CalculatedClosingCents,
		BalanceDiscrepancyCents: balance.BalanceDiscrepancyCents,
		OverriddenBy:            by,
	}
}
