package cache

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
)

// Report cache keys embed the business-calendar date or month verbatim so an
// operator inspecting Redis can read a key without decoding anything. All
// report keys share one prefix so InvalidateAll can SCAN them as a group.
const (
	reportKeyPrefix      = "ledger:report:"
	reportKeyScanPattern = reportKeyPrefix + "*"
)

// dailyReportKey builds the cache key for one property-day.
func dailyReportKey(tenantID, propertyID uuid.UUID, date ledger.Date) string {
	return fmt.Sprintf("%sdaily:%s:%s:%s", reportKeyPrefix, tenantID, propertyID, date)
}

// monthlyReportKey builds the cache key for one property-month.
func monthlyReportKey(tenantID, propertyID uuid.UUID, month ledger.YearMonth) string {
	return fmt.Sprintf("%smonthly:%s:%s:%s", reportKeyPrefix, tenantID, propertyID, month)
}
