package ledger

import (
	"context"
	"errors"

	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RepairApplier applies one queued correction. It always prefers the
// current stored closing of the prior day over the value captured at
// enqueue time: by the time a correction runs, earlier corrections in the
// same chain may already have moved that closing. The queued value only
// serves when no prior row exists. Applying is a recompute, so running the
// same item twice converges on the same row.
type RepairApplier struct {
	calculator  *CalculatorService
	balanceRepo ledger.BalanceRepository
	logger      *zap.Logger
}

// NewRepairApplier creates a new RepairApplier
func NewRepairApplier(
	calculator *CalculatorService,
	balanceRepo ledger.BalanceRepository,
	logger *zap.Logger,
) *RepairApplier {
	return &RepairApplier{
		calculator:  calculator,
		balanceRepo: balanceRepo,
		logger:      logger,
	}
}

// Apply recomputes the correction's target row
func (a *RepairApplier) Apply(ctx context.Context, item *ledger.CorrectionItem) error {
	prev, err := a.balanceRepo.FindByDate(ctx, item.TenantID, item.PropertyID, item.TargetDate.Prev())
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	switch {
	case prev != nil:
		_, err = a.calculator.RecomputeWithOpening(ctx, item.TenantID, item.PropertyID, item.TargetDate, prev.ClosingBalanceCents)
	case item.CorrectedOpeningCents != nil:
		a.logger.Debug("No prior-day row; applying queued opening",
			zap.String("item_id", item.ID.String()),
			zap.String("target_date", item.TargetDate.String()),
			zap.Int64("opening_cents", *item.CorrectedOpeningCents))
		_, err = a.calculator.RecomputeWithOpening(ctx, item.TenantID, item.PropertyID, item.TargetDate, *item.CorrectedOpeningCents)
	default:
		_, err = a.calculator.Recompute(ctx, item.TenantID, item.PropertyID, item.TargetDate)
	}
	return err
}
