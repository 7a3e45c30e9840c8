package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newValidation(balances *fakeBalanceRepo, txns *fakeTxnRepo, props *fakePropertyRepo, toleranceCents int64) *ValidationService {
	return NewValidationService(balances, txns, props, ledger.NewChainValidator(toleranceCents), zap.NewNop())
}

func putComputedRow(t *testing.T, balances *fakeBalanceRepo, tenantID, propertyID uuid.UUID, date ledger.Date, opening int64, sums ledger.TransactionSums) *ledger.DailyCashBalance {
	t.Helper()
	row, err := ledger.NewDailyCashBalance(tenantID, propertyID, date)
	require.NoError(t, err)
	row.ApplyRecomputation(opening, true, sums)
	balances.put(row)
	return row
}

func TestValidationService_CleanRange(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()
	txns := newFakeTxnRepo()

	putComputedRow(t, balances, tenantID, propertyID, d("2024-03-10"), 0, ledger.TransactionSums{CashReceivedCents: 5000, CashExpensesCents: 2000})
	putComputedRow(t, balances, tenantID, propertyID, d("2024-03-11"), 3000, ledger.TransactionSums{CashReceivedCents: 7000, CashExpensesCents: 3000})
	txns.approvedDates = []ledger.Date{d("2024-03-10"), d("2024-03-11")}

	svc := newValidation(balances, txns, newFakePropertyRepo(propertyID), 0)
	report, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)

	assert.False(t, report.HasIssues())
	assert.Equal(t, 2, report.CheckedRows)
}

func TestValidationService_DetectsCascadeMismatch(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()

	putComputedRow(t, balances, tenantID, propertyID, d("2024-03-10"), 0, ledger.TransactionSums{CashReceivedCents: 5000, CashExpensesCents: 2000})
	// Opening 2000 against a prior closing of 3000.
	putComputedRow(t, balances, tenantID, propertyID, d("2024-03-11"), 2000, ledger.TransactionSums{CashReceivedCents: 7000, CashExpensesCents: 3000})

	svc := newValidation(balances, newFakeTxnRepo(), newFakePropertyRepo(propertyID), 0)
	report, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)

	require.Equal(t, 1, report.Count(ledger.IssueCascadeMismatch))
	var issue ledger.Issue
	for _, i := range report.Issues {
		if i.Type == ledger.IssueCascadeMismatch {
			issue = i
		}
	}
	assert.Equal(t, d("2024-03-11"), issue.Date)
	require.NotNil(t, issue.ExpectedCents)
	assert.Equal(t, int64(3000), *issue.ExpectedCents)
	require.NotNil(t, issue.ActualCents)
	assert.Equal(t, int64(2000), *issue.ActualCents)
}

func TestValidationService_ManualOpeningIsNotAMismatch(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()

	putComputedRow(t, balances, tenantID, propertyID, d("2024-03-10"), 0, ledger.TransactionSums{CashReceivedCents: 5000, CashExpensesCents: 2000})
	manual, err := ledger.NewDailyCashBalance(tenantID, propertyID, d("2024-03-11"))
	require.NoError(t, err)
	manual.ApplyRecomputation(0, true, ledger.TransactionSums{CashReceivedCents: 7000, CashExpensesCents: 3000})
	manual.OverrideOpening(50000)
	balances.put(manual)

	svc := newValidation(balances, newFakeTxnRepo(), newFakePropertyRepo(propertyID), 0)
	report, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Count(ledger.IssueCascadeMismatch))
}

func TestValidationService_DetectsMissingRecord(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()
	txns := newFakeTxnRepo()
	txns.approvedDates = []ledger.Date{d("2024-03-10"), d("2024-03-12")}

	putComputedRow(t, balances, tenantID, propertyID, d("2024-03-10"), 0, ledger.TransactionSums{CashReceivedCents: 5000})

	svc := newValidation(balances, txns, newFakePropertyRepo(propertyID), 0)
	report, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)

	require.Equal(t, 1, report.Count(ledger.IssueMissingRecord))
	for _, issue := range report.Issues {
		if issue.Type == ledger.IssueMissingRecord {
			assert.Equal(t, d("2024-03-12"), issue.Date)
		}
	}
}

func TestValidationService_DetectsDiscrepancyBeyondTolerance(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()

	row := putComputedRow(t, balances, tenantID, propertyID, d("2024-03-10"), 0, ledger.TransactionSums{CashReceivedCents: 5000, CashExpensesCents: 2000})
	row.OverrideClosing(3500, uuid.New())
	balances.put(row)

	svc := newValidation(balances, newFakeTxnRepo(), newFakePropertyRepo(propertyID), 100)
	report, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(ledger.IssueDiscrepancy))

	// Within tolerance the same gap is fine.
	svcTolerant := newValidation(balances, newFakeTxnRepo(), newFakePropertyRepo(propertyID), 500)
	report, err = svcTolerant.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count(ledger.IssueDiscrepancy))
}

func TestValidationService_ReportsDuplicates(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()
	balances.duplicates = []ledger.Date{d("2024-03-11")}

	svc := newValidation(balances, newFakeTxnRepo(), newFakePropertyRepo(propertyID), 0)
	report, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Count(ledger.IssueDuplicateRecord))
}

func TestValidationService_RejectsInvalidRange(t *testing.T) {
	propertyID := uuid.New()
	svc := newValidation(newFakeBalanceRepo(), newFakeTxnRepo(), newFakePropertyRepo(propertyID), 0)

	_, err := svc.Validate(context.Background(), uuid.New(), propertyID, d("2024-03-14"), d("2024-03-01"))

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_RANGE", domainErr.Code)
}

func TestValidationService_RejectsUnknownProperty(t *testing.T) {
	svc := newValidation(newFakeBalanceRepo(), newFakeTxnRepo(), newFakePropertyRepo(), 0)

	_, err := svc.Validate(context.Background(), uuid.New(), uuid.New(), d("2024-03-01"), d("2024-03-14"))

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "PROPERTY_NOT_FOUND", domainErr.Code)
}

func TestValidationService_LastSummary(t *testing.T) {
	tenantID := uuid.New()
	propertyID := uuid.New()
	balances := newFakeBalanceRepo()
	txns := newFakeTxnRepo()
	txns.approvedDates = []ledger.Date{d("2024-03-12")}

	svc := newValidation(balances, txns, newFakePropertyRepo(propertyID), 0)

	summary := svc.LastSummary()
	assert.Zero(t, summary.PropertiesChecked)

	_, err := svc.Validate(context.Background(), tenantID, propertyID, d("2024-03-01"), d("2024-03-14"))
	require.NoError(t, err)

	summary = svc.LastSummary()
	assert.Equal(t, 1, summary.PropertiesChecked)
	assert.Equal(t, 1, summary.TotalIssues)
	assert.Equal(t, 1, summary.IssuesByType[ledger.IssueMissingRecord])
	assert.False(t, summary.LastRunAt.IsZero())
}
