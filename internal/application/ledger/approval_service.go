package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrRecomputeDeferred reports that an approval was committed but the
// synchronous balance recompute failed. The approved event already sits in
// the outbox, so the recompute handler retries it in the background; callers
// can treat the decision as final and the balance as eventually consistent.
var ErrRecomputeDeferred = shared.NewDomainError("RECOMPUTE_DEFERRED", "Transaction decision committed; balance recomputation will be retried in the background")

// ApprovalService decides pending transactions. Approval commits the status
// change and the approved event in one transaction, then recomputes the
// day's balance synchronously so the common path reflects the approval
// immediately. A failed recompute never rolls the approval back.
type ApprovalService struct {
	txnRepo    ledger.TransactionRepository
	calculator *CalculatorService
	logger     *zap.Logger
	metrics    *telemetry.LedgerMetrics
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	txnRepo ledger.TransactionRepository,
	calculator *CalculatorService,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		txnRepo:    txnRepo,
		calculator: calculator,
		logger:     logger,
	}
}

// SetMetrics sets the metrics collector. Useful when telemetry is not
// available at construction time.
func (s *ApprovalService) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// Approve marks a pending transaction approved and recomputes the balance
// for its business date. When the recompute fails the transaction is
// returned together with ErrRecomputeDeferred: the approval is committed
// and the outbox-driven handler recomputes again.
func (s *ApprovalService) Approve(ctx context.Context, tenantID, transactionID, approverID uuid.UUID) (*ledger.CashTransaction, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cash_transaction", "approve")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTransactionID, transactionID.String())

	txn, err := s.txnRepo.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	if err := txn.Approve(approverID); err != nil {
		return nil, err
	}
	if err := s.txnRepo.Save(ctx, txn); err != nil {
		s.logger.Error("Failed to save approved transaction",
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordReview(ctx, tenantID, telemetry.ReviewStatusApproved)
	}

	s.logger.Info("Approved cash transaction",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("property_id", txn.PropertyID.String()),
		zap.String("date", txn.OccurredOn.String()),
		zap.Int64("amount_cents", txn.AmountCents))

	if _, err := s.calculator.Recompute(ctx, tenantID, txn.PropertyID, txn.OccurredOn); err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Recompute after approval failed; the outbox handler will retry it",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("property_id", txn.PropertyID.String()),
			zap.String("date", txn.OccurredOn.String()),
			zap.Error(err))
		return txn, ErrRecomputeDeferred
	}
	return txn, nil
}

// Reject marks a pending transaction rejected. Rejected transactions never
// enter a balance, so no recompute follows.
func (s *ApprovalService) Reject(ctx context.Context, tenantID, transactionID, rejecterID uuid.UUID, reason string) (*ledger.CashTransaction, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cash_transaction", "reject")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTransactionID, transactionID.String())

	txn, err := s.txnRepo.FindByID(ctx, tenantID, transactionID)
	if err != nil {
		return nil, err
	}
	if err := txn.Reject(rejecterID, reason); err != nil {
		return nil, err
	}
	if err := s.txnRepo.Save(ctx, txn); err != nil {
		s.logger.Error("Failed to save rejected transaction",
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err))
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordReview(ctx, tenantID, telemetry.ReviewStatusRejected)
	}

	s.logger.Info("Rejected cash transaction",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("property_id", txn.PropertyID.String()),
		zap.String("reason", reason))
	return txn, nil
}
