package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RecomputeOnApprovalHandler recomputes the balance for an approved
// transaction's business date. The approval flow already recomputes
// synchronously; this outbox-driven handler is the at-least-once safety net
// for approvals whose synchronous recompute failed or whose process died in
// between. It runs wrapped in the idempotent handler, and recomputation
// itself converges, so redelivery is harmless.
type RecomputeOnApprovalHandler struct {
	calculator *CalculatorService
	logger     *zap.Logger
}

// NewRecomputeOnApprovalHandler creates a new RecomputeOnApprovalHandler
func NewRecomputeOnApprovalHandler(calculator *CalculatorService, logger *zap.Logger) *RecomputeOnApprovalHandler {
	return &RecomputeOnApprovalHandler{
		calculator: calculator,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler processes
func (h *RecomputeOnApprovalHandler) EventTypes() []string {
	return []string{"CashTransactionApproved"}
}

// Handle processes a CashTransactionApproved event
func (h *RecomputeOnApprovalHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*ledger.CashTransactionApprovedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T for CashTransactionApproved", event)
	}

	_, err := h.calculator.Recompute(ctx, e.TenantID(), e.PropertyID, e.OccurredOn)
	if err != nil {
		// Domain rejections are deterministic and will not heal on
		// redelivery; only infrastructure errors are worth a retry.
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			h.logger.Warn("Skipping recompute for approved transaction",
				zap.String("transaction_id", e.TransactionID.String()),
				zap.String("property_id", e.PropertyID.String()),
				zap.String("date", e.OccurredOn.String()),
				zap.String("code", domainErr.Code))
			return nil
		}
		return fmt.Errorf("recomputing balance for approved transaction %s: %w", e.TransactionID, err)
	}

	h.logger.Debug("Recomputed balance for approved transaction",
		zap.String("transaction_id", e.TransactionID.String()),
		zap.String("property_id", e.PropertyID.String()),
		zap.String("date", e.OccurredOn.String()))
	return nil
}

// Ensure RecomputeOnApprovalHandler implements shared.EventHandler
var _ shared.EventHandler = (*RecomputeOnApprovalHandler)(nil)
