package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/property"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RecordTransactionRequest carries the fields of a new cash transaction
type RecordTransactionRequest struct {
	PropertyID  uuid.UUID              `json:"property_id" binding:"required"`
	Kind        ledger.TransactionKind `json:"kind" binding:"required"`
	PaymentMode ledger.PaymentMode     `json:"payment_mode" binding:"required"`
	AmountCents int64                  `json:"amount_cents" binding:"required,gt=0"`
	OccurredOn  ledger.Date            `json:"occurred_on" binding:"required"`
	Description string                 `json:"description"`
	Reference   string                 `json:"reference"`
}

// TransactionService records and queries cash transactions. New transactions
// are PENDING and do not move any balance until approved.
type TransactionService struct {
	txnRepo      ledger.TransactionRepository
	propertyRepo property.Repository
	calendar     *ledger.Calendar
	logger       *zap.Logger
	metrics      *telemetry.LedgerMetrics
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(
	txnRepo ledger.TransactionRepository,
	propertyRepo property.Repository,
	calendar *ledger.Calendar,
	logger *zap.Logger,
) *TransactionService {
	return &TransactionService{
		txnRepo:      txnRepo,
		propertyRepo: propertyRepo,
		calendar:     calendar,
		logger:       logger,
	}
}

// SetMetrics sets the metrics collector. Useful when telemetry is not
// available at construction time.
func (s *TransactionService) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// Record creates a pending cash transaction. Future business dates are
// rejected up front so the approval flow never has to recompute a day that
// has not happened yet.
func (s *TransactionService) Record(ctx context.Context, tenantID uuid.UUID, req RecordTransactionRequest) (*ledger.CashTransaction, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cash_transaction", "record")
	defer span.End()

	if req.OccurredOn.After(s.calendar.Today()) {
		return nil, shared.NewDomainError("FUTURE_DATE", "Cannot record a transaction for a future business date")
	}

	exists, err := s.propertyRepo.ExistsForTenant(ctx, tenantID, req.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("checking property %s: %w", req.PropertyID, err)
	}
	if !exists {
		return nil, shared.NewDomainError("PROPERTY_NOT_FOUND", "Property does not exist or is inactive")
	}

	txn, err := ledger.NewCashTransaction(tenantID, req.PropertyID, req.Kind, req.PaymentMode, req.AmountCents, req.OccurredOn, req.Description)
	if err != nil {
		return nil, err
	}
	txn.Reference = req.Reference

	if err := s.txnRepo.Save(ctx, txn); err != nil {
		s.logger.Error("Failed to save cash transaction",
			zap.String("property_id", req.PropertyID.String()),
			zap.String("date", req.OccurredOn.String()),
			zap.Error(err))
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransactionID, txn.ID.String(),
		telemetry.SpanAttrTransactionKind, string(txn.Kind),
		telemetry.SpanAttrPaymentMode, string(txn.PaymentMode),
		telemetry.SpanAttrAmountCents, txn.AmountCents,
	)
	if s.metrics != nil {
		s.metrics.RecordTransaction(ctx, tenantID, string(txn.Kind), string(txn.PaymentMode), txn.AmountCents)
	}

	s.logger.Info("Recorded cash transaction",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("property_id", txn.PropertyID.String()),
		zap.String("kind", string(txn.Kind)),
		zap.String("payment_mode", string(txn.PaymentMode)),
		zap.Int64("amount_cents", txn.AmountCents),
		zap.String("date", txn.OccurredOn.String()))

	return txn, nil
}

// Get finds a transaction by ID within a tenant
func (s *TransactionService) Get(ctx context.Context, tenantID, transactionID uuid.UUID) (*ledger.CashTransaction, error) {
	return s.txnRepo.FindByID(ctx, tenantID, transactionID)
}

// List returns a property's transactions with filtering
func (s *TransactionService) List(ctx context.Context, tenantID, propertyID uuid.UUID, filter ledger.TransactionFilter) ([]ledger.CashTransaction, error) {
	return s.txnRepo.FindForProperty(ctx, tenantID, propertyID, filter)
}
