package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// ErrCorrectionsExhausted is reported when queued corrections have used up
// their retry budget and require manual review
var ErrCorrectionsExhausted = shared.NewDomainError("REPAIR_RETRIES_EXHAUSTED", "One or more corrections exhausted their retries and require manual review")

// PlannedCorrection describes one correction the repair flow decided on.
// In dry-run mode the plan is returned without enqueueing anything.
type PlannedCorrection struct {
	TargetDate            Date             `json:"target_date"`
	Reason                CorrectionReason `json:"reason"`
	CorrectedOpeningCents *int64           `json:"corrected_opening_cents,omitempty"`
}

// RepairReport is the outcome of one repair run
type RepairReport struct {
	TenantID    uuid.UUID           `json:"tenant_id"`
	PropertyID  uuid.UUID           `json:"property_id"`
	From        Date                `json:"from"`
	To          Date                `json:"to"`
	DryRun      bool                `json:"dry_run"`
	Validation  *ValidationReport   `json:"validation"`
	Planned     []PlannedCorrection `json:"planned"`
	Enqueued    int                 `json:"enqueued"`
	DeadCount   int64               `json:"dead_count"`
	Error       string              `json:"error,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// NewRepairReport assembles a repair report. A non-zero dead count names
// ErrCorrectionsExhausted so exhausted retries are never silent.
func NewRepairReport(validation *ValidationReport, dryRun bool, planned []PlannedCorrection, enqueued int, deadCount int64) *RepairReport {
	if planned == nil {
		planned = []PlannedCorrection{}
	}
	report := &RepairReport{
		TenantID:    validation.TenantID,
		PropertyID:  validation.PropertyID,
		From:        validation.From,
		To:          validation.To,
		DryRun:      dryRun,
		Validation:  validation,
		Planned:     planned,
		Enqueued:    enqueued,
		DeadCount:   deadCount,
		GeneratedAt: time.Now(),
	}
	if deadCount > 0 {
		report.Error = ErrCorrectionsExhausted.Error()
	}
	return report
}
