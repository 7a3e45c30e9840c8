package persistence

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// RouteMode selects which physical layouts the storage routers touch.
type RouteMode string

const (
	// RouteModeLegacy serves everything from the legacy single tables.
	RouteModeLegacy RouteMode = "legacy"
	// RouteModePartitioned serves everything from the partitioned tables.
	RouteModePartitioned RouteMode = "partitioned"
	// RouteModeDual writes to both layouts and reads from the partitioned
	// one. Used while migrating; the partitioned layout is the write of
	// record and the legacy mirror is best effort.
	RouteModeDual RouteMode = "dual"
)

// ReadsPartitioned reports whether reads are served by the partitioned layout
func (m RouteMode) ReadsPartitioned() bool {
	return m == RouteModePartitioned || m == RouteModeDual
}

// MirrorsLegacy reports whether writes are mirrored to the legacy layout
func (m RouteMode) MirrorsLegacy() bool {
	return m == RouteModeDual
}

// RouterStats is a point-in-time snapshot of router counters. Mirror
// failures mean the legacy copy has drifted and the next validation sweep
// should be watched.
type RouterStats struct {
	Mode              string `json:"mode"`
	PartitionedReads  int64  `json:"partitioned_reads"`
	PartitionedWrites int64  `json:"partitioned_writes"`
	LegacyReads       int64  `json:"legacy_reads"`
	LegacyWrites      int64  `json:"legacy_writes"`
	MirrorFailures    int64  `json:"mirror_failures"`
}

// routerCounters holds the atomic counters shared by both router types
type routerCounters struct {
	partitionedReads  atomic.Int64
	partitionedWrites atomic.Int64
	legacyReads       atomic.Int64
	legacyWrites      atomic.Int64
	mirrorFailures    atomic.Int64
}

func (c *routerCounters) snapshot(mode RouteMode) RouterStats {
	return RouterStats{
		Mode:              string(mode),
		PartitionedReads:  c.partitionedReads.Load(),
		PartitionedWrites: c.partitionedWrites.Load(),
		LegacyReads:       c.legacyReads.Load(),
		LegacyWrites:      c.legacyWrites.Load(),
		MirrorFailures:    c.mirrorFailures.Load(),
	}
}

// BalanceStoreRouter routes balance reads and writes between the legacy and
// partitioned layouts according to the configured mode. It is the single
// decision point for layout selection; nothing above it knows which tables
// served a request.
//
// In dual mode the partitioned store is written first and persists the
// aggregate's pending events; by the time the legacy mirror write runs the
// events are already cleared, so the outbox sees each event exactly once.
type BalanceStoreRouter struct {
	mode        RouteMode
	partitioned ledger.BalanceRepository
	legacy      ledger.BalanceRepository
	counters    routerCounters
}

// NewBalanceStoreRouter creates a router over the two balance layouts.
// Stores that the mode never touches may be nil.
func NewBalanceStoreRouter(mode RouteMode, partitioned, legacy ledger.BalanceRepository) *BalanceStoreRouter {
	return &BalanceStoreRouter{
		mode:        mode,
		partitioned: partitioned,
		legacy:      legacy,
	}
}

// Stats returns a snapshot of the router counters
func (r *BalanceStoreRouter) Stats() RouterStats {
	return r.counters.snapshot(r.mode)
}

func (r *BalanceStoreRouter) reader() ledger.BalanceRepository {
	if r.mode.ReadsPartitioned() {
		r.counters.partitionedReads.Add(1)
		return r.partitioned
	}
	r.counters.legacyReads.Add(1)
	return r.legacy
}

// FindByDate finds the balance row for one property and date
func (r *BalanceStoreRouter) FindByDate(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyCashBalance, error) {
	return r.reader().FindByDate(ctx, tenantID, propertyID, date)
}

// FindRange finds all balance rows in [from, to] ordered by date ascending
func (r *BalanceStoreRouter) FindRange(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.DailyCashBalance, error) {
	return r.reader().FindRange(ctx, tenantID, propertyID, from, to)
}

// Upsert writes the balance row through the active layouts. The write of
// record must succeed; a failed legacy mirror write is logged and counted
// but never fails the call.
func (r *BalanceStoreRouter) Upsert(ctx context.Context, balance *ledger.DailyCashBalance) error {
	if r.mode == RouteModeLegacy {
		r.counters.legacyWrites.Add(1)
		return r.legacy.Upsert(ctx, balance)
	}

	r.counters.partitionedWrites.Add(1)
	if err := r.partitioned.Upsert(ctx, balance); err != nil {
		return err
	}

	if r.mode.MirrorsLegacy() {
		r.counters.legacyWrites.Add(1)
		if err := r.legacy.Upsert(ctx, balance); err != nil {
			r.counters.mirrorFailures.Add(1)
			logger.L(ctx).Warn("legacy balance mirror write failed",
				zap.String("property_id", balance.PropertyID.String()),
				zap.String("balance_date", balance.Date.String()),
				zap.Error(err))
		}
	}
	return nil
}

// ListDates returns the dates in [from, to] that have a balance row
func (r *BalanceStoreRouter) ListDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	return r.reader().ListDates(ctx, tenantID, propertyID, from, to)
}

// FindDuplicateDates reports duplicate balance rows. In dual mode this is
// the one read that consults both layouts: the partitioned primary key
// cannot hold duplicates, so the legacy tables are where migration-era
// duplicates live and hiding them would blind the validator.
func (r *BalanceStoreRouter) FindDuplicateDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	if r.mode == RouteModeDual {
		partitionedDates, err := r.partitioned.FindDuplicateDates(ctx, tenantID, propertyID, from, to)
		if err != nil {
			return nil, err
		}
		legacyDates, err := r.legacy.FindDuplicateDates(ctx, tenantID, propertyID, from, to)
		if err != nil {
			return nil, err
		}
		return mergeDates(partitionedDates, legacyDates), nil
	}
	return r.reader().FindDuplicateDates(ctx, tenantID, propertyID, from, to)
}

// mergeDates merges two date slices, removing duplicates and sorting ascending
func mergeDates(a, b []ledger.Date) []ledger.Date {
	seen := make(map[ledger.Date]struct{}, len(a)+len(b))
	merged := make([]ledger.Date, 0, len(a)+len(b))
	for _, d := range a {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			merged = append(merged, d)
		}
	}
	for _, d := range b {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			merged = append(merged, d)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
	return merged
}

// TransactionStoreRouter routes transaction reads and writes between the
// legacy and partitioned layouts. Same routing rules as the balance router.
type TransactionStoreRouter struct {
	mode        RouteMode
	partitioned ledger.TransactionRepository
	legacy      ledger.TransactionRepository
	counters    routerCounters
}

// NewTransactionStoreRouter creates a router over the two transaction layouts.
// Stores that the mode never touches may be nil.
func NewTransactionStoreRouter(mode RouteMode, partitioned, legacy ledger.TransactionRepository) *TransactionStoreRouter {
	return &TransactionStoreRouter{
		mode:        mode,
		partitioned: partitioned,
		legacy:      legacy,
	}
}

// Stats returns a snapshot of the router counters
func (r *TransactionStoreRouter) Stats() RouterStats {
	return r.counters.snapshot(r.mode)
}

func (r *TransactionStoreRouter) reader() ledger.TransactionRepository {
	if r.mode.ReadsPartitioned() {
		r.counters.partitionedReads.Add(1)
		return r.partitioned
	}
	r.counters.legacyReads.Add(1)
	return r.legacy
}

// FindByID finds a transaction by ID within a tenant
func (r *TransactionStoreRouter) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.CashTransaction, error) {
	return r.reader().FindByID(ctx, tenantID, id)
}

// FindForProperty finds transactions for a property with filtering
func (r *TransactionStoreRouter) FindForProperty(ctx context.Context, tenantID, propertyID uuid.UUID, filter ledger.TransactionFilter) ([]ledger.CashTransaction, error) {
	return r.reader().FindForProperty(ctx, tenantID, propertyID, filter)
}

// Save writes the transaction through the active layouts. The write of
// record must succeed; a failed legacy mirror write is logged and counted
// but never fails the call.
func (r *TransactionStoreRouter) Save(ctx context.Context, txn *ledger.CashTransaction) error {
	if r.mode == RouteModeLegacy {
		r.counters.legacyWrites.Add(1)
		return r.legacy.Save(ctx, txn)
	}

	r.counters.partitionedWrites.Add(1)
	if err := r.partitioned.Save(ctx, txn); err != nil {
		return err
	}

	if r.mode.MirrorsLegacy() {
		r.counters.legacyWrites.Add(1)
		if err := r.legacy.Save(ctx, txn); err != nil {
			r.counters.mirrorFailures.Add(1)
			logger.L(ctx).Warn("legacy transaction mirror write failed",
				zap.String("transaction_id", txn.GetID().String()),
				zap.String("occurred_on", txn.OccurredOn.String()),
				zap.Error(err))
		}
	}
	return nil
}

// SumApprovedByDate sums approved transaction amounts for one property and date
func (r *TransactionStoreRouter) SumApprovedByDate(ctx context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (ledger.TransactionSums, error) {
	return r.reader().SumApprovedByDate(ctx, tenantID, propertyID, date)
}

// ListApprovedDates returns the distinct dates in [from, to] with at least
// one approved transaction
func (r *TransactionStoreRouter) ListApprovedDates(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	return r.reader().ListApprovedDates(ctx, tenantID, propertyID, from, to)
}

// Ensure the routers implement the repository interfaces
var (
	_ ledger.BalanceRepository     = (*BalanceStoreRouter)(nil)
	_ ledger.TransactionRepository = (*TransactionStoreRouter)(nil)
)
