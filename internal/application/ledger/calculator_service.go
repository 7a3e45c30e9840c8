package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/property"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CalculatorService recomputes daily cash balance rows from approved
// transactions. Recomputation is the only path that writes the aggregate
// fields: it rereads the day's approved sums, chains the opening from the
// prior day's closing, and upserts the row together with its domain events
// in one transaction. Running it twice with unchanged inputs produces an
// identical row, which is what makes redelivery and repair safe.
type CalculatorService struct {
	balanceRepo  ledger.BalanceRepository
	txnRepo      ledger.TransactionRepository
	propertyRepo property.Repository
	calendar     *ledger.Calendar
	logger       *zap.Logger
	metrics      *telemetry.LedgerMetrics
}

// NewCalculatorService creates a new CalculatorService
func NewCalculatorService(
	balanceRepo ledger.BalanceRepository,
	txnRepo ledger.TransactionRepository,
	propertyRepo property.Repository,
	calendar *ledger.Calendar,
	logger *zap.Logger,
) *CalculatorService {
	return &CalculatorService{
		balanceRepo:  balanceRepo,
		txnRepo:      txnRepo,
		propertyRepo: propertyRepo,
		calendar:     calendar,
		logger:       logger,
	}
}

// SetMetrics sets the metrics collector. Useful when telemetry is not
// available at construction time.
func (s *CalculatorService) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// Recompute rebuilds the balance row for one property and business date.
// The opening balance chains from the prior day's closing; a manually set
// opening is retained only when no prior-day row exists, and a manually set
// closing is always retained with the gap recorded as the discrepancy.
func (s *CalculatorService) Recompute(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyCashBalance, error) {
	return s.recompute(ctx, tenantID, propertyID, date, nil)
}

// RecomputeWithOpening rebuilds the row with the opening forced to the given
// value. This is the repair entry point: the forced value restores the chain,
// so the row is marked auto-calculated and later recomputations chain past it
// normally.
func (s *CalculatorService) RecomputeWithOpening(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date, openingCents int64) (*ledger.DailyCashBalance, error) {
	return s.recompute(ctx, tenantID, propertyID, date, &openingCents)
}

func (s *CalculatorService) recompute(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date, forcedOpening *int64) (*ledger.DailyCashBalance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "daily_balance", "recompute")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPropertyID, propertyID.String(),
		telemetry.SpanAttrBalanceDate, date.String(),
	)

	start := time.Now()
	balance, err := s.doRecompute(ctx, tenantID, propertyID, date, forcedOpening)
	if err != nil {
		telemetry.RecordError(span, err)
		if s.metrics != nil {
			s.metrics.RecordRecompute(ctx, tenantID, telemetry.RecomputeResultFailed, time.Since(start))
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordRecompute(ctx, tenantID, telemetry.RecomputeResultSuccess, time.Since(start))
	}
	return balance, nil
}

func (s *CalculatorService) doRecompute(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date, forcedOpening *int64) (*ledger.DailyCashBalance, error) {
	if date.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Balance date is required")
	}
	if date.After(s.calendar.Today()) {
		return nil, shared.NewDomainError("FUTURE_DATE", "Cannot recompute a balance for a future business date")
	}

	exists, err := s.propertyRepo.ExistsForTenant(ctx, tenantID, propertyID)
	if err != nil {
		return nil, fmt.Errorf("checking property %s: %w", propertyID, err)
	}
	if !exists {
		return nil, shared.NewDomainError("PROPERTY_NOT_FOUND", "Property does not exist or is inactive")
	}

	sums, err := s.txnRepo.SumApprovedByDate(ctx, tenantID, propertyID, date)
	if err != nil {
		s.logger.Error("Failed to sum approved transactions",
			zap.String("property_id", propertyID.String()),
			zap.String("date", date.String()),
			zap.Error(err))
		return nil, err
	}

	existing, err := s.balanceRepo.FindByDate(ctx, tenantID, propertyID, date)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	opening, openingAuto, err := s.resolveOpening(ctx, tenantID, propertyID, date, existing, forcedOpening)
	if err != nil {
		return nil, err
	}

	balance := existing
	if balance == nil {
		balance, err = ledger.NewDailyCashBalance(tenantID, propertyID, date)
		if err != nil {
			return nil, err
		}
	}
	balance.ApplyRecomputation(opening, openingAuto, sums)

	if err := s.balanceRepo.Upsert(ctx, balance); err != nil {
		s.logger.Error("Failed to upsert recomputed balance",
			zap.String("property_id", propertyID.String()),
			zap.String("date", date.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Debug("Recomputed daily balance",
		zap.String("property_id", propertyID.String()),
		zap.String("date", date.String()),
		zap.Int64("opening_cents", balance.OpeningBalanceCents),
		zap.Int64("closing_cents", balance.ClosingBalanceCents),
		zap.Int64("discrepancy_cents", balance.BalanceDiscrepancyCents))

	return balance, nil
}

// resolveOpening picks the day's opening balance. A prior-day row always
// wins: its closing is the chained opening. Without one, an existing manual
// opening is kept as the deliberate start of a new chain, and a first
// tracked day opens at zero.
func (s *CalculatorService) resolveOpening(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date, existing *ledger.DailyCashBalance, forcedOpening *int64) (int64, bool, error) {
	if forcedOpening != nil {
		return *forcedOpening, true, nil
	}

	prev, err := s.balanceRepo.FindByDate(ctx, tenantID, propertyID, date.Prev())
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return 0, false, err
	}
	if prev != nil {
		return prev.ClosingBalanceCents, true, nil
	}
	if existing != nil && !existing.OpeningAutoCalculated {
		return existing.OpeningBalanceCents, false, nil
	}
	return 0, true, nil
}

// OverrideOpening pins a row's opening balance to an operator-supplied value
// and rederives its closing from the current aggregates. The row is
// materialized by a recompute when it does not exist yet. An overridden
// opening starts a new chain: the validator treats it as a deliberate
// boundary and later recomputations keep it while no prior-day row exists.
func (s *CalculatorService) OverrideOpening(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date, openingCents int64) (*ledger.DailyCashBalance, error) {
	balance, err := s.loadOrRecompute(ctx, tenantID, propertyID, date)
	if err != nil {
		return nil, err
	}

	balance.OverrideOpening(openingCents)
	if err := s.balanceRepo.Upsert(ctx, balance); err != nil {
		s.logger.Error("Failed to save opening override",
			zap.String("property_id", propertyID.String()),
			zap.String("date", date.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Opening balance overridden",
		zap.String("property_id", propertyID.String()),
		zap.String("date", date.String()),
		zap.Int64("opening_cents", openingCents))
	return balance, nil
}

// OverrideClosing records an operator-counted closing balance. The
// calculated closing is kept alongside and the difference is recorded as the
// discrepancy; later recomputations retain the counted value.
func (s *CalculatorService) OverrideClosing(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date, closingCents int64, by uuid.UUID) (*ledger.DailyCashBalance, error) {
	balance, err := s.loadOrRecompute(ctx, tenantID, propertyID, date)
	if err != nil {
		return nil, err
	}

	balance.OverrideClosing(closingCents, by)
	if err := s.balanceRepo.Upsert(ctx, balance); err != nil {
		s.logger.Error("Failed to save closing override",
			zap.String("property_id", propertyID.String()),
			zap.String("date", date.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Closing balance overridden",
		zap.String("property_id", propertyID.String()),
		zap.String("date", date.String()),
		zap.Int64("closing_cents", closingCents),
		zap.Int64("discrepancy_cents", balance.BalanceDiscrepancyCents))
	return balance, nil
}

func (s *CalculatorService) loadOrRecompute(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyCashBalance, error) {
	balance, err := s.balanceRepo.FindByDate(ctx, tenantID, propertyID, date)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}
	// Recompute validates the date and property and creates the row.
	return s.Recompute(ctx, tenantID, propertyID, date)
}
