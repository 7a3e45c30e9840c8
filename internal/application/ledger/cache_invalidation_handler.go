package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CacheInvalidationConfig tunes the invalidation handler
type CacheInvalidationConfig struct {
	// Defensive widens eviction to the day before the recomputed one.
	// Strictly the prior day cannot change, but evicting it is cheap and
	// covers cached entries rendered mid-repair.
	Defensive bool
	// WriteThrough re-renders and caches the recomputed day instead of
	// leaving a cold slot behind
	WriteThrough bool
}

// CacheInvalidationHandler evicts cached reports when a balance changes.
// It walks the event's affected dates, the recomputed day and the next,
// because the next day's cached opening derives from this day's closing.
// Monthly keys for every touched month are evicted too, covering the
// month-boundary case where the next day falls in the following month.
//
// Eviction failures are logged and dropped rather than retried: the cache
// tiers swallow their own errors, entries expire by TTL anyway, and a
// poisoned retry loop would hold up every event behind this one.
type CacheInvalidationHandler struct {
	cache   ledger.ReportCache
	reports *ReportService
	config  CacheInvalidationConfig
	logger  *zap.Logger
}

// NewCacheInvalidationHandler creates a new CacheInvalidationHandler.
// reports is only needed when config.WriteThrough is set.
func NewCacheInvalidationHandler(
	cache ledger.ReportCache,
	reports *ReportService,
	config CacheInvalidationConfig,
	logger *zap.Logger,
) *CacheInvalidationHandler {
	return &CacheInvalidationHandler{
		cache:   cache,
		reports: reports,
		config:  config,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler processes
func (h *CacheInvalidationHandler) EventTypes() []string {
	return []string{"DailyBalanceRecomputed", "DailyBalanceClosingOverridden"}
}

// Handle processes a balance change event
func (h *CacheInvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var propertyID uuid.UUID
	var date ledger.Date
	var affected []ledger.Date

	switch e := event.(type) {
	case *ledger.DailyBalanceRecomputedEvent:
		propertyID, date, affected = e.PropertyID, e.Date, e.AffectedDates
	case *ledger.DailyBalanceClosingOverriddenEvent:
		propertyID, date, affected = e.PropertyID, e.Date, e.AffectedDates
	default:
		return fmt.Errorf("unexpected event type %T for balance cache invalidation", event)
	}
	tenantID := event.TenantID()

	dates := affected
	if len(dates) == 0 {
		dates = []ledger.Date{date, date.Next()}
	}
	if h.config.Defensive {
		dates = append([]ledger.Date{date.Prev()}, dates...)
	}

	months := make(map[ledger.YearMonth]struct{}, 2)
	for _, d := range dates {
		if err := h.cache.DeleteDaily(ctx, tenantID, propertyID, d); err != nil {
			h.logger.Warn("Failed to evict daily report",
				zap.String("property_id", propertyID.String()),
				zap.String("date", d.String()),
				zap.Error(err))
		}
		months[d.MonthOf()] = struct{}{}
	}
	for month := range months {
		if err := h.cache.DeleteMonthly(ctx, tenantID, propertyID, month); err != nil {
			h.logger.Warn("Failed to evict monthly report",
				zap.String("property_id", propertyID.String()),
				zap.String("month", month.String()),
				zap.Error(err))
		}
	}

	if h.config.WriteThrough && h.reports != nil {
		if _, err := h.reports.RefreshDaily(ctx, tenantID, propertyID, date); err != nil {
			h.logger.Warn("Write-through refresh failed",
				zap.String("property_id", propertyID.String()),
				zap.String("date", date.String()),
				zap.Error(err))
		}
	}

	h.logger.Debug("Invalidated cached reports",
		zap.String("property_id", propertyID.String()),
		zap.String("date", date.String()),
		zap.Int("daily_keys", len(dates)),
		zap.Int("monthly_keys", len(months)))
	return nil
}

// Ensure CacheInvalidationHandler implements shared.EventHandler
var _ shared.EventHandler = (*CacheInvalidationHandler)(nil)
