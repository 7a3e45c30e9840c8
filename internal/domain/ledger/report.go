package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DailyReport is the read model served for one property-day. It is what the
// cache tiers store and what the HTTP layer returns, so it carries both the
// integer cents of record and pre-rendered decimal display values.
type DailyReport struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	PropertyID uuid.UUID `json:"property_id"`
	Date       Date      `json:"date"`

	// HasRecord is false when no balance row exists for the date; the
	// remaining amounts are then zero. Reports state absence rather than
	// recomputing on the fly.
	HasRecord bool `json:"has_record"`

	OpeningBalanceCents     int64 `json:"opening_balance_cents"`
	CashReceivedCents       int64 `json:"cash_received_cents"`
	BankReceivedCents       int64 `json:"bank_received_cents"`
	CashExpensesCents       int64 `json:"cash_expenses_cents"`
	BankExpensesCents       int64 `json:"bank_expenses_cents"`
	ClosingBalanceCents     int64 `json:"closing_balance_cents"`
	CalculatedClosingCents  int64 `json:"calculated_closing_cents"`
	BalanceDiscrepancyCents int64 `json:"balance_discrepancy_cents"`

	OpeningAutoCalculated bool `json:"opening_auto_calculated"`
	ClosingManuallySet    bool `json:"closing_manually_set"`

	OpeningBalance     string `json:"opening_balance"`
	CashReceived       string `json:"cash_received"`
	BankReceived       string `json:"bank_received"`
	CashExpenses       string `json:"cash_expenses"`
	BankExpenses       string `json:"bank_expenses"`
	ClosingBalance     string `json:"closing_balance"`
	CalculatedClosing  string `json:"calculated_closing"`
	BalanceDiscrepancy string `json:"balance_discrepancy"`

	GeneratedAt time.Time `json:"generated_at"`
}

// MonthlyReport is the month rollup for one property: sums of the daily
// aggregates, with opening taken from the first recorded day and closing from
// the last
type MonthlyReport struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	PropertyID uuid.UUID `json:"property_id"`
	Month      YearMonth `json:"month"`

	DaysWithRecords     int `json:"days_with_records"`
	DaysWithDiscrepancy int `json:"days_with_discrepancy"`

	OpeningBalanceCents  int64 `json:"opening_balance_cents"`
	CashReceivedCents    int64 `json:"cash_received_cents"`
	BankReceivedCents    int64 `json:"bank_received_cents"`
	CashExpensesCents    int64 `json:"cash_expenses_cents"`
	BankExpensesCents    int64 `json:"bank_expenses_cents"`
	ClosingBalanceCents  int64 `json:"closing_balance_cents"`
	NetCashMovementCents int64 `json:"net_cash_movement_cents"`

	OpeningBalance  string `json:"opening_balance"`
	CashReceived    string `json:"cash_received"`
	BankReceived    string `json:"bank_received"`
	CashExpenses    string `json:"cash_expenses"`
	BankExpenses    string `json:"bank_expenses"`
	ClosingBalance  string `json:"closing_balance"`
	NetCashMovement string `json:"net_cash_movement"`

	GeneratedAt time.Time `json:"generated_at"`
}

// ReportCache defines caching for ledger reports. Implementations return
// nil, nil on a miss. The tiered implementation additionally guarantees that
// callers never see an infrastructure error: a broken tier degrades to a
// miss on reads and a dropped write.
type ReportCache interface {
	// GetDaily retrieves a cached daily report. Returns nil, nil on a miss.
	GetDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date Date) (*DailyReport, error)

	// SetDaily stores a daily report. A ttl of 0 uses the configured default.
	SetDaily(ctx context.Context, report *DailyReport, ttl time.Duration) error

	// DeleteDaily evicts a daily report
	DeleteDaily(ctx context.Context, tenantID, propertyID uuid.UUID, date Date) error

	// GetMonthly retrieves a cached monthly report. Returns nil, nil on a miss.
	GetMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month YearMonth) (*MonthlyReport, error)

	// SetMonthly stores a monthly report. A ttl of 0 uses the configured default.
	SetMonthly(ctx context.Context, report *MonthlyReport, ttl time.Duration) error

	// DeleteMonthly evicts a monthly report
	DeleteMonthly(ctx context.Context, tenantID, propertyID uuid.UUID, month YearMonth) error

	// InvalidateAll clears every cached report
	InvalidateAll(ctx context.Context) error

	// Close releases any resources held by the cache
	Close() error
}

// TieredReportCache composes the cache tiers and exposes per-tier statistics
// and local-only eviction, which the pub/sub invalidation path uses.
type TieredReportCache interface {
	ReportCache

	// InvalidateL1Daily evicts a daily report from the local tier only
	InvalidateL1Daily(ctx context.Context, tenantID, propertyID uuid.UUID, date Date) error

	// InvalidateL1Monthly evicts a monthly report from the local tier only
	InvalidateL1Monthly(ctx context.Context, tenantID, propertyID uuid.UUID, month YearMonth) error

	// GetCacheStats returns hit/miss statistics across tiers
	GetCacheStats(ctx context.Context) ReportCacheStats
}

// ReportCacheStats holds cache performance counters for the status surface.
// Degradations counts tier errors that were swallowed (the caller saw a miss
// instead); a climbing value with an open cache breaker is expected.
type ReportCacheStats struct {
	L1Hits       int64   `json:"l1_hits"`
	L1Misses     int64   `json:"l1_misses"`
	L2Hits       int64   `json:"l2_hits"`
	L2Misses     int64   `json:"l2_misses"`
	L3Hits       int64   `json:"l3_hits"`
	L3Misses     int64   `json:"l3_misses"`
	TotalHits    int64   `json:"total_hits"`
	TotalMisses  int64   `json:"total_misses"`
	HitRatio     float64 `json:"hit_ratio"`
	CacheEntries int64   `json:"cache_entries"`
	Degradations int64   `json:"degradations"`
}

// ReportCacheAction is the type of a cross-instance invalidation message
type ReportCacheAction string

const (
	// ReportCacheActionDailyEvicted notifies that a daily report changed
	ReportCacheActionDailyEvicted ReportCacheAction = "daily_evicted"
	// ReportCacheActionMonthlyEvicted notifies that a monthly report changed
	ReportCacheActionMonthlyEvicted ReportCacheAction = "monthly_evicted"
	// ReportCacheActionInvalidateAll notifies that all local caches must clear
	ReportCacheActionInvalidateAll ReportCacheAction = "invalidate_all"
)

// ReportCacheMessage is the pub/sub payload that keeps the local tiers of
// other instances in sync. IDs and dates travel as strings.
type ReportCacheMessage struct {
	Action     ReportCacheAction `json:"action"`
	TenantID   string            `json:"tenant_id,omitempty"`
	PropertyID string            `json:"property_id,omitempty"`
	Date       string            `json:"date,omitempty"`
	Month      string            `json:"month,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// ReportCacheInvalidator publishes and receives cross-instance cache
// invalidation messages
type ReportCacheInvalidator interface {
	// Publish sends an invalidation message to all subscribers
	Publish(ctx context.Context, msg ReportCacheMessage) error

	// Subscribe blocks, invoking callback for each received message.
	// Call it in a goroutine.
	Subscribe(ctx context.Context, callback func(msg ReportCacheMessage)) error

	// Close releases any resources held by the invalidator
	Close() error
}

// ReportCacheConfig holds report cache tuning
type ReportCacheConfig struct {
	// DailyTTL is the shared-tier time-to-live for daily reports
	DailyTTL time.Duration
	// MonthlyTTL is the shared-tier time-to-live for monthly reports
	MonthlyTTL time.Duration
	// L1TTL is the local-tier time-to-live
	L1TTL time.Duration
	// L1MaxEntries caps the local tier; inserts beyond the cap are dropped
	L1MaxEntries int
	// PubSubChannel is the redis channel for cross-instance invalidation
	PubSubChannel string
}

// DefaultReportCacheConfig returns the default report cache configuration
func DefaultReportCacheConfig() ReportCacheConfig {
	return ReportCacheConfig{
		DailyTTL:      15 * time.Minute,
		MonthlyTTL:    time.Hour,
		L1TTL:         30 * time.Second,
		L1MaxEntries:  10000,
		PubSubChannel: "ledger:report_cache:updates",
	}
}
