package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/scheduler"
	"github.com/stayops/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RepairService turns validator findings into queued corrections. Cascade
// mismatches become corrections that force the broken day's opening back to
// the prior closing; missing rows become plain recomputes. Corrections are
// queued oldest date first so a broken chain heals front to back, and the
// discrepancy and duplicate findings are reported but never auto-repaired:
// a counted drawer and a duplicated key both need an operator.
type RepairService struct {
	validation *ValidationService
	queue      ledger.CorrectionQueue
	logger     *zap.Logger
}

// NewRepairService creates a new RepairService
func NewRepairService(
	validation *ValidationService,
	queue ledger.CorrectionQueue,
	logger *zap.Logger,
) *RepairService {
	return &RepairService{
		validation: validation,
		queue:      queue,
		logger:     logger,
	}
}

// Repair validates the range and enqueues corrections for what it finds.
// With dryRun the planned corrections are reported and nothing is written.
// The report always carries the queue's current DEAD count so exhausted
// corrections stay visible until someone deals with them.
func (s *RepairService) Repair(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date, dryRun bool) (*ledger.RepairReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "repair")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPropertyID, propertyID.String(),
		telemetry.SpanAttrDryRun, dryRun,
	)

	validation, err := s.validation.Validate(ctx, tenantID, propertyID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	planned := planCorrections(validation)
	deadCount := s.deadCount(ctx)

	if dryRun || len(planned) == 0 {
		return ledger.NewRepairReport(validation, dryRun, planned, 0, deadCount), nil
	}

	items := make([]*ledger.CorrectionItem, 0, len(planned))
	for _, p := range planned {
		items = append(items, ledger.NewCorrectionItem(tenantID, propertyID, p.TargetDate, p.Reason, p.CorrectedOpeningCents))
	}
	if err := s.queue.Enqueue(ctx, items...); err != nil {
		s.logger.Error("Failed to enqueue corrections",
			zap.String("property_id", propertyID.String()),
			zap.Int("count", len(items)),
			zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Queued ledger corrections",
		zap.String("property_id", propertyID.String()),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("enqueued", len(items)),
		zap.Int64("dead_items", deadCount))

	return ledger.NewRepairReport(validation, false, planned, len(items), deadCount), nil
}

// SweepProperty is the scheduled entry point: validate and repair one
// property's trailing window in a single pass.
func (s *RepairService) SweepProperty(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) (scheduler.SweepSummary, error) {
	report, err := s.Repair(ctx, tenantID, propertyID, from, to, false)
	if err != nil {
		return scheduler.SweepSummary{}, err
	}
	return scheduler.SweepSummary{
		IssuesFound:   len(report.Validation.Issues),
		RepairsQueued: report.Enqueued,
	}, nil
}

func (s *RepairService) deadCount(ctx context.Context) int64 {
	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn("Failed to count correction queue statuses", zap.Error(err))
		return 0
	}
	return counts[ledger.CorrectionStatusDead]
}

// planCorrections maps validator findings to corrections. The cascade
// finding's expected value is the prior day's closing, which is exactly the
// opening the correction forces.
func planCorrections(report *ledger.ValidationReport) []ledger.PlannedCorrection {
	planned := make([]ledger.PlannedCorrection, 0)
	for _, issue := range report.Issues {
		switch issue.Type {
		case ledger.IssueCascadeMismatch:
			var corrected *int64
			if issue.ExpectedCents != nil {
				v := *issue.ExpectedCents
				corrected = &v
			}
			planned = append(planned, ledger.PlannedCorrection{
				TargetDate:            issue.Date,
				Reason:                ledger.CorrectionReasonCascade,
				CorrectedOpeningCents: corrected,
			})
		case ledger.IssueMissingRecord:
			planned = append(planned, ledger.PlannedCorrection{
				TargetDate: issue.Date,
				Reason:     ledger.CorrectionReasonMissing,
			})
		}
	}
	sort.Slice(planned, func(i, j int) bool { return planned[i].TargetDate.Before(planned[j].TargetDate) })
	return planned
}

var _ scheduler.ValidationSweeper = (*RepairService)(nil)
