package event

import (
	"github.com/stayops/backend/internal/domain/ledger"
)

// RegisterAllEvents registers all domain event types with the serializer
// This is required for the OutboxProcessor to deserialize events from the outbox table
func RegisterAllEvents(serializer *EventSerializer) {
	// Cash transaction events
	serializer.Register("CashTransactionRecorded", &ledger.CashTransactionRecordedEvent{})
	serializer.Register("CashTransactionApproved", &ledger.CashTransactionApprovedEvent{})
	serializer.Register("CashTransactionRejected", &ledger.CashTransactionRejectedEvent{})

	// Daily balance events. Both carry AffectedDates covering the day and the
	// day after, because a day's closing feeds the next day's opening.
	serializer.Register("DailyBalanceRecomputed", &ledger.DailyBalanceRecomputedEvent{})
	serializer.Register("DailyBalanceClosingOverridden", &ledger.DailyBalanceClosingOverriddenEvent{})
}
