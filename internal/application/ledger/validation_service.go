package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/property"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stayops/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ValidationSummary aggregates the most recent validation runs for the
// status surface. Counts cover the last run per property.
type ValidationSummary struct {
	LastRunAt         time.Time                `json:"last_run_at"`
	PropertiesChecked int                      `json:"properties_checked"`
	CheckedRows       int                      `json:"checked_rows"`
	TotalIssues       int                      `json:"total_issues"`
	IssuesByType      map[ledger.IssueType]int `json:"issues_by_type"`
}

// ValidationService runs the read-only consistency checks over one
// property's date range. It loads the range once and hands everything to
// the pure chain validator; a run that finds issues still succeeds, the
// issues are the result.
type ValidationService struct {
	balanceRepo  ledger.BalanceRepository
	txnRepo      ledger.TransactionRepository
	propertyRepo property.Repository
	validator    *ledger.ChainValidator
	logger       *zap.Logger
	metrics      *telemetry.LedgerMetrics

	mu          sync.RWMutex
	lastReports map[uuid.UUID]*ledger.ValidationReport
}

// NewValidationService creates a new ValidationService
func NewValidationService(
	balanceRepo ledger.BalanceRepository,
	txnRepo ledger.TransactionRepository,
	propertyRepo property.Repository,
	validator *ledger.ChainValidator,
	logger *zap.Logger,
) *ValidationService {
	return &ValidationService{
		balanceRepo:  balanceRepo,
		txnRepo:      txnRepo,
		propertyRepo: propertyRepo,
		validator:    validator,
		logger:       logger,
		lastReports:  make(map[uuid.UUID]*ledger.ValidationReport),
	}
}

// SetMetrics sets the metrics collector. Useful when telemetry is not
// available at construction time.
func (s *ValidationService) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// Validate checks one property's ledger over [from, to] and reports every
// finding: chain breaks, out-of-tolerance discrepancies, missing rows and
// duplicate rows. It never writes anything.
func (s *ValidationService) Validate(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) (*ledger.ValidationReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "validate")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPropertyID, propertyID.String())

	if from.IsZero() || to.IsZero() {
		return nil, shared.NewDomainError("INVALID_RANGE", "Validation range is required")
	}
	if from.After(to) {
		return nil, shared.NewDomainError("INVALID_RANGE", "Range start must not be after range end")
	}

	exists, err := s.propertyRepo.ExistsForTenant(ctx, tenantID, propertyID)
	if err != nil {
		return nil, fmt.Errorf("checking property %s: %w", propertyID, err)
	}
	if !exists {
		return nil, shared.NewDomainError("PROPERTY_NOT_FOUND", "Property does not exist or is inactive")
	}

	balances, err := s.balanceRepo.FindRange(ctx, tenantID, propertyID, from, to)
	if err != nil {
		s.logger.Error("Failed to load balance range for validation",
			zap.String("property_id", propertyID.String()),
			zap.Error(err))
		return nil, err
	}
	approvedDates, err := s.txnRepo.ListApprovedDates(ctx, tenantID, propertyID, from, to)
	if err != nil {
		return nil, err
	}
	duplicateDates, err := s.balanceRepo.FindDuplicateDates(ctx, tenantID, propertyID, from, to)
	if err != nil {
		return nil, err
	}

	issues := s.validator.Check(balances, approvedDates, duplicateDates)
	report := ledger.NewValidationReport(tenantID, propertyID, from, to, len(balances), issues)

	telemetry.SetAttribute(span, telemetry.SpanAttrIssueCount, len(report.Issues))
	if s.metrics != nil {
		for issueType, count := range report.CountsByType {
			s.metrics.RecordValidationIssues(ctx, tenantID, string(issueType), int64(count))
		}
	}

	s.mu.Lock()
	s.lastReports[propertyID] = report
	s.mu.Unlock()

	if report.HasIssues() {
		s.logger.Warn("Ledger validation found issues",
			zap.String("property_id", propertyID.String()),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Int("checked_rows", report.CheckedRows),
			zap.Int("cascade_mismatches", report.Count(ledger.IssueCascadeMismatch)),
			zap.Int("discrepancies", report.Count(ledger.IssueDiscrepancy)),
			zap.Int("missing_records", report.Count(ledger.IssueMissingRecord)),
			zap.Int("duplicate_records", report.Count(ledger.IssueDuplicateRecord)))
	} else {
		s.logger.Debug("Ledger validation clean",
			zap.String("property_id", propertyID.String()),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Int("checked_rows", report.CheckedRows))
	}

	return report, nil
}

// LastSummary aggregates the most recent report per validated property.
// The status surface reads it; an empty summary means no run happened yet.
func (s *ValidationService) LastSummary() ValidationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := ValidationSummary{
		IssuesByType: make(map[ledger.IssueType]int),
	}
	for _, report := range s.lastReports {
		summary.PropertiesChecked++
		summary.CheckedRows += report.CheckedRows
		summary.TotalIssues += len(report.Issues)
		for issueType, count := range report.CountsByType {
			summary.IssuesByType[issueType] += count
		}
		if report.GeneratedAt.After(summary.LastRunAt) {
			summary.LastRunAt = report.GeneratedAt
		}
	}
	return summary
}
