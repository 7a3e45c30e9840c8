package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/property"
	"github.com/stayops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReportService serves the daily and monthly read models, cache first. A
// missing balance row is reported as absence; reports never trigger a
// recompute, that is the approval and repair flows' job. Cache failures
// degrade to direct store reads.
type ReportService struct {
	balanceRepo  ledger.BalanceRepository
	propertyRepo property.Repository
	cache        ledger.ReportCache
	logger       *zap.Logger
}

// NewReportService creates a new ReportService. cache may be nil, which
// disables caching entirely.
func NewReportService(
	balanceRepo ledger.BalanceRepository,
	propertyRepo property.Repository,
	cache ledger.ReportCache,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		balanceRepo:  balanceRepo,
		propertyRepo: propertyRepo,
		cache:        cache,
		logger:       logger,
	}
}

// DailyReport returns the read model for one property-day
func (s *ReportService) DailyReport(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	if s.cache != nil {
		cached, err := s.cache.GetDaily(ctx, tenantID, propertyID, date)
		if err != nil {
			s.logger.Warn("Daily report cache read failed; reading from store",
				zap.String("property_id", propertyID.String()),
				zap.String("date", date.String()),
				zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	report, err := s.buildDaily(ctx, tenantID, propertyID, date)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDaily(ctx, report, 0); err != nil {
			s.logger.Warn("Failed to cache daily report",
				zap.String("property_id", propertyID.String()),
				zap.String("date", date.String()),
				zap.Error(err))
		}
	}
	return report, nil
}

// RefreshDaily rebuilds one daily report from the store and replaces the
// cached entry unconditionally. The write-through invalidation path uses it
// so a hot date never serves a stale entry between eviction and the next
// read.
func (s *ReportService) RefreshDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	report, err := s.buildDaily(ctx, tenantID, propertyID, date)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetDaily(ctx, report, 0); err != nil {
			s.logger.Warn("Failed to refresh cached daily report",
				zap.String("property_id", propertyID.String()),
				zap.String("date", date.String()),
				zap.Error(err))
		}
	}
	return report, nil
}

// MonthlyReport returns the month rollup for one property
func (s *ReportService) MonthlyReport(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) (*ledger.MonthlyReport, error) {
	if s.cache != nil {
		cached, err := s.cache.GetMonthly(ctx, tenantID, propertyID, month)
		if err != nil {
			s.logger.Warn("Monthly report cache read failed; reading from store",
				zap.String("property_id", propertyID.String()),
				zap.String("month", month.String()),
				zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	report, err := s.buildMonthly(ctx, tenantID, propertyID, month)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetMonthly(ctx, report, 0); err != nil {
			s.logger.Warn("Failed to cache monthly report",
				zap.String("property_id", propertyID.String()),
				zap.String("month", month.String()),
				zap.Error(err))
		}
	}
	return report, nil
}

func (s *ReportService) buildDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	if err := s.checkProperty(ctx, tenantID, propertyID); err != nil {
		return nil, err
	}

	balance, err := s.balanceRepo.FindByDate(ctx, tenantID, propertyID, date)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return renderDailyReport(tenantID, propertyID, date, balance), nil
}

func (s *ReportService) buildMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) (*ledger.MonthlyReport, error) {
	if err := s.checkProperty(ctx, tenantID, propertyID); err != nil {
		return nil, err
	}

	rows, err := s.balanceRepo.FindRange(ctx, tenantID, propertyID, month.First(), month.Last())
	if err != nil {
		return nil, err
	}
	return renderMonthlyReport(tenantID, propertyID, month, rows), nil
}

func (s *ReportService) checkProperty(ctx context.Context, tenantID, propertyID uuid.UUID) error {
	exists, err := s.propertyRepo.ExistsForTenant(ctx, tenantID, propertyID)
	if err != nil {
		return fmt.Errorf("checking property %s: %w", propertyID, err)
	}
	if !exists {
		return shared.NewDomainError("PROPERTY_NOT_FOUND", "Property does not exist or is inactive")
	}
	return nil
}

// renderDailyReport builds the daily read model. balance may be nil; the
// report then states the absence with zero amounts.
func renderDailyReport(tenantID, propertyID uuid.UUID, date ledger.Date, balance *ledger.DailyCashBalance) *ledger.DailyReport {
	report := &ledger.DailyReport{
		TenantID:    tenantID,
		PropertyID:  propertyID,
		Date:        date,
		GeneratedAt: time.Now(),
	}
	if balance != nil {
		report.HasRecord = true
		report.OpeningBalanceCents = balance.OpeningBalanceCents
		report.CashReceivedCents = balance.CashReceivedCents
		report.BankReceivedCents = balance.BankReceivedCents
		report.CashExpensesCents = balance.CashExpensesCents
		report.BankExpensesCents = balance.BankExpensesCents
		report.ClosingBalanceCents = balance.ClosingBalanceCents
		report.CalculatedClosingCents = balance.CalculatedClosingCents
		report.BalanceDiscrepancyCents = balance.BalanceDiscrepancyCents
		report.OpeningAutoCalculated = balance.OpeningAutoCalculated
		report.ClosingManuallySet = balance.ClosingManuallySet
	}

	report.OpeningBalance = centsToDecimal(report.OpeningBalanceCents)
	report.CashReceived = centsToDecimal(report.CashReceivedCents)
	report.BankReceived = centsToDecimal(report.BankReceivedCents)
	report.CashExpenses = centsToDecimal(report.CashExpensesCents)
	report.BankExpenses = centsToDecimal(report.BankExpensesCents)
	report.ClosingBalance = centsToDecimal(report.ClosingBalanceCents)
	report.CalculatedClosing = centsToDecimal(report.CalculatedClosingCents)
	report.BalanceDiscrepancy = centsToDecimal(report.BalanceDiscrepancyCents)
	return report
}

// renderMonthlyReport folds the month's daily rows into the rollup. rows
// must be ordered by date ascending, which FindRange guarantees.
func renderMonthlyReport(tenantID, propertyID uuid.UUID, month ledger.YearMonth, rows []ledger.DailyCashBalance) *ledger.MonthlyReport {
	report := &ledger.MonthlyReport{
		TenantID:    tenantID,
		PropertyID:  propertyID,
		Month:       month,
		GeneratedAt: time.Now(),
	}

	for i := range rows {
		row := &rows[i]
		report.DaysWithRecords++
		report.CashReceivedCents += row.CashReceivedCents
		report.BankReceivedCents += row.BankReceivedCents
		report.CashExpensesCents += row.CashExpensesCents
		report.BankExpensesCents += row.BankExpensesCents
		if row.BalanceDiscrepancyCents != 0 {
			report.DaysWithDiscrepancy++
		}
	}
	if len(rows) > 0 {
		report.OpeningBalanceCents = rows[0].OpeningBalanceCents
		report.ClosingBalanceCents = rows[len(rows)-1].ClosingBalanceCents
	}
	report.NetCashMovementCents = report.CashReceivedCents - report.CashExpensesCents

	report.OpeningBalance = centsToDecimal(report.OpeningBalanceCents)
	report.CashReceived = centsToDecimal(report.CashReceivedCents)
	report.BankReceived = centsToDecimal(report.BankReceivedCents)
	report.CashExpenses = centsToDecimal(report.CashExpensesCents)
	report.BankExpenses = centsToDecimal(report.BankExpensesCents)
	report.ClosingBalance = centsToDecimal(report.ClosingBalanceCents)
	report.NetCashMovement = centsToDecimal(report.NetCashMovementCents)
	return report
}

func centsToDecimal(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
