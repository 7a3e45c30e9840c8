package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// IssueType classifies a consistency finding
type IssueType string

const (
	// IssueCascadeMismatch: a day's opening does not equal the prior day's
	// closing balance of record
	IssueCascadeMismatch IssueType = "CASCADE_MISMATCH"
	// IssueDiscrepancy: recorded closing deviates from the calculated one
	// beyond the configured tolerance
	IssueDiscrepancy IssueType = "DISCREPANCY"
	// IssueMissingRecord: a date has approved transactions but no balance row
	IssueMissingRecord IssueType = "MISSING_RECORD"
	// IssueDuplicateRecord: more than one row exists for one (property, date)
	IssueDuplicateRecord IssueType = "DUPLICATE_RECORD"
)

// Issue is a single consistency finding. Findings are data, not errors:
// a validation run that discovers issues still succeeds.
type Issue struct {
	Type          IssueType `json:"type"`
	Date          Date      `json:"date"`
	ExpectedCents *int64    `json:"expected_cents,omitempty"`
	ActualCents   *int64    `json:"actual_cents,omitempty"`
	Detail        string    `json:"detail"`
}

// ValidationReport is the outcome of one consistency check over a date range
type ValidationReport struct {
	TenantID     uuid.UUID         `json:"tenant_id"`
	PropertyID   uuid.UUID         `json:"property_id"`
	From         Date              `json:"from"`
	To           Date              `json:"to"`
	CheckedRows  int               `json:"checked_rows"`
	Issues       []Issue           `json:"issues"`
	CountsByType map[IssueType]int `json:"counts_by_type"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// HasIssues reports whether any finding was recorded
func (r *ValidationReport) HasIssues() bool {
	return len(r.Issues) > 0
}

// Count returns the number of findings of one type
func (r *ValidationReport) Count(t IssueType) int {
	return r.CountsByType[t]
}

// ChainValidator performs the pure consistency checks over loaded ledger
// data. It never touches storage; the application service loads the range
// once and hands everything in, which keeps the rules trivially testable.
type ChainValidator struct {
	ToleranceCents int64
}

// NewChainValidator creates a validator with the given discrepancy tolerance
func NewChainValidator(toleranceCents int64) *ChainValidator {
	return &ChainValidator{ToleranceCents: toleranceCents}
}

// Check inspects the balance rows of one property plus the dates that carry
// approved transactions and the dates holding duplicate rows. balances may
// arrive in any order; duplicateDates comes from the repository's defensive
// key scan.
func (v *ChainValidator) Check(balances []DailyCashBalance, approvedDates []Date, duplicateDates []Date) []Issue {
	rows := make([]DailyCashBalance, len(balances))
	copy(rows, balances)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	var issues []Issue

	for i := range rows {
		row := &rows[i]

		if row.HasDiscrepancy(v.ToleranceCents) {
			expected := row.CalculatedClosingCents
			actual := row.ClosingBalanceCents
			issues = append(issues, Issue{
				Type:          IssueDiscrepancy,
				Date:          row.Date,
				ExpectedCents: &expected,
				ActualCents:   &actual,
				Detail:        fmt.Sprintf("closing %d deviates from calculated %d by %d cents", actual, expected, row.BalanceDiscrepancyCents),
			})
		}

		if i == 0 {
			continue
		}
		prev := &rows[i-1]
		// Chain checks apply only to consecutive dates; a gap day with no
		// row restarts the chain. Manually set openings are deliberate
		// boundaries, not corruption.
		if row.Date != prev.Date.Next() || !row.OpeningAutoCalculated {
			continue
		}
		if !row.ChainsFrom(prev) {
			expected := prev.ClosingBalanceCents
			actual := row.OpeningBalanceCents
			issues = append(issues, Issue{
				Type:          IssueCascadeMismatch,
				Date:          row.Date,
				ExpectedCents: &expected,
				ActualCents:   &actual,
				Detail:        fmt.Sprintf("opening %d does not equal prior day closing %d", actual, expected),
			})
		}
	}

	known := make(map[Date]bool, len(rows))
	for i := range rows {
		known[rows[i].Date] = true
	}
	missing := make([]Date, 0)
	for _, d := range approvedDates {
		if !known[d] {
			missing = append(missing, d)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })
	for _, d := range missing {
		issues = append(issues, Issue{
			Type:   IssueMissingRecord,
			Date:   d,
			Detail: "approved transactions exist but no balance row was found",
		})
	}

	for _, d := range duplicateDates {
		issues = append(issues, Issue{
			Type:   IssueDuplicateRecord,
			Date:   d,
			Detail: "multiple balance rows share one property and date",
		})
	}

	return issues
}

// NewValidationReport assembles a report from the issues of one run
func NewValidationReport(tenantID, propertyID uuid.UUID, from, to Date, checkedRows int, issues []Issue) *ValidationReport {
	counts := make(map[IssueType]int)
	for _, issue := range issues {
		counts[issue.Type]++
	}
	if issues == nil {
		issues = []Issue{}
	}
	return &ValidationReport{
		TenantID:     tenantID,
		PropertyID:   propertyID,
		From:         from,
		To:           to,
		CheckedRows:  checkedRows,
		Issues:       issues,
		CountsByType: counts,
		GeneratedAt:  time.Now(),
	}
}
