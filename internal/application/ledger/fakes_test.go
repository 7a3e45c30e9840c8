package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/domain/property"
	"github.com/stayops/backend/internal/domain/shared"
)

// testNow pins "today" to 2024-03-15 for every service test
var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func testCalendar() *ledger.Calendar {
	cal, err := ledger.NewCalendarAt("UTC", func() time.Time { return testNow })
	if err != nil {
		panic(err)
	}
	return cal
}

func d(s string) ledger.Date {
	date, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return date
}

type balanceKey struct {
	tenant   uuid.UUID
	property uuid.UUID
	date     ledger.Date
}

type fakeBalanceRepo struct {
	mu         sync.Mutex
	rows       map[balanceKey]ledger.DailyCashBalance
	duplicates []ledger.Date
	findErr    error
	upsertErr  error
	upserts    int
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{rows: make(map[balanceKey]ledger.DailyCashBalance)}
}

func (f *fakeBalanceRepo) put(b *ledger.DailyCashBalance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[balanceKey{b.TenantID, b.PropertyID, b.Date}] = *b
}

func (f *fakeBalanceRepo) get(tenantID, propertyID uuid.UUID, date ledger.Date) *ledger.DailyCashBalance {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[balanceKey{tenantID, propertyID, date}]
	if !ok {
		return nil
	}
	copied := row
	return &copied
}

func (f *fakeBalanceRepo) FindByDate(_ context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyCashBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	row, ok := f.rows[balanceKey{tenantID, propertyID, date}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := row
	return &copied, nil
}

func (f *fakeBalanceRepo) FindRange(_ context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.DailyCashBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []ledger.DailyCashBalance
	for key, row := range f.rows {
		if key.tenant != tenantID || key.property != propertyID {
			continue
		}
		if key.date.Before(from) || key.date.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeBalanceRepo) Upsert(_ context.Context, balance *ledger.DailyCashBalance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.rows[balanceKey{balance.TenantID, balance.PropertyID, balance.Date}] = *balance
	return nil
}

func (f *fakeBalanceRepo) ListDates(_ context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dates []ledger.Date
	for key := range f.rows {
		if key.tenant != tenantID || key.property != propertyID {
			continue
		}
		if key.date.Before(from) || key.date.After(to) {
			continue
		}
		dates = append(dates, key.date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (f *fakeBalanceRepo) FindDuplicateDates(_ context.Context, _, _ uuid.UUID, _, _ ledger.Date) ([]ledger.Date, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duplicates, nil
}

type fakeTxnRepo struct {
	mu            sync.Mutex
	txns          map[uuid.UUID]ledger.CashTransaction
	sums          map[ledger.Date]ledger.TransactionSums
	approvedDates []ledger.Date
	sumErr        error
	saveErr       error
	saves         int
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{
		txns: make(map[uuid.UUID]ledger.CashTransaction),
		sums: make(map[ledger.Date]ledger.TransactionSums),
	}
}

func (f *fakeTxnRepo) put(txn *ledger.CashTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns[txn.ID] = *txn
}

func (f *fakeTxnRepo) get(id uuid.UUID) *ledger.CashTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok {
		return nil
	}
	copied := txn
	return &copied
}

func (f *fakeTxnRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*ledger.CashTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[id]
	if !ok || txn.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := txn
	return &copied, nil
}

func (f *fakeTxnRepo) FindForProperty(_ context.Context, tenantID, propertyID uuid.UUID, _ ledger.TransactionFilter) ([]ledger.CashTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.CashTransaction
	for _, txn := range f.txns {
		if txn.TenantID == tenantID && txn.PropertyID == propertyID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeTxnRepo) Save(_ context.Context, txn *ledger.CashTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.txns[txn.ID] = *txn
	return nil
}

func (f *fakeTxnRepo) SumApprovedByDate(_ context.Context, _, _ uuid.UUID, date ledger.Date) (ledger.TransactionSums, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sumErr != nil {
		return ledger.TransactionSums{}, f.sumErr
	}
	return f.sums[date], nil
}

func (f *fakeTxnRepo) ListApprovedDates(_ context.Context, _, _ uuid.UUID, from, to ledger.Date) ([]ledger.Date, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dates []ledger.Date
	for _, date := range f.approvedDates {
		if !date.Before(from) && !date.After(to) {
			dates = append(dates, date)
		}
	}
	return dates, nil
}

type fakePropertyRepo struct {
	mu        sync.Mutex
	existing  map[uuid.UUID]bool
	existsErr error
	active    []property.Property
}

func newFakePropertyRepo(ids ...uuid.UUID) *fakePropertyRepo {
	existing := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		existing[id] = true
	}
	return &fakePropertyRepo{existing: existing}
}

func (f *fakePropertyRepo) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*property.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.existing[id] {
		return nil, shared.ErrNotFound
	}
	p, err := property.NewProperty(tenantID, "Test Property", "TP-1")
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

func (f *fakePropertyRepo) ExistsForTenant(_ context.Context, _, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[id], nil
}

func (f *fakePropertyRepo) ListActive(_ context.Context) ([]property.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakePropertyRepo) Save(_ context.Context, _ *property.Property) error {
	return nil
}

type fakeCorrectionQueue struct {
	mu         sync.Mutex
	enqueued   []*ledger.CorrectionItem
	counts     map[ledger.CorrectionStatus]int64
	enqueueErr error
	countErr   error
	deleteN    int64
	deleteErr  error
	cutoffs    []time.Time
}

func newFakeCorrectionQueue() *fakeCorrectionQueue {
	return &fakeCorrectionQueue{counts: make(map[ledger.CorrectionStatus]int64)}
}

func (f *fakeCorrectionQueue) Enqueue(_ context.Context, items ...*ledger.CorrectionItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, items...)
	return nil
}

func (f *fakeCorrectionQueue) ClaimBatch(_ context.Context, _ string, _ int) ([]*ledger.CorrectionItem, error) {
	return nil, nil
}

func (f *fakeCorrectionQueue) Update(_ context.Context, _ *ledger.CorrectionItem) error {
	return nil
}

func (f *fakeCorrectionQueue) ReclaimStale(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeCorrectionQueue) CountByStatus(_ context.Context) (map[ledger.CorrectionStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return nil, f.countErr
	}
	counts := make(map[ledger.CorrectionStatus]int64, len(f.counts))
	for status, n := range f.counts {
		counts[status] = n
	}
	return counts, nil
}

func (f *fakeCorrectionQueue) FindDead(_ context.Context, _, _ int) ([]*ledger.CorrectionItem, int64, error) {
	return nil, 0, nil
}

func (f *fakeCorrectionQueue) DeleteDoneBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.cutoffs = append(f.cutoffs, before)
	return f.deleteN, nil
}

type fakeReportCache struct {
	mu             sync.Mutex
	daily          map[balanceKey]*ledger.DailyReport
	monthly        map[string]*ledger.MonthlyReport
	getErr         error
	setErr         error
	deleteErr      error
	setDailyCalls  int
	deletedDaily   []ledger.Date
	deletedMonthly []ledger.YearMonth
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{
		daily:   make(map[balanceKey]*ledger.DailyReport),
		monthly: make(map[string]*ledger.MonthlyReport),
	}
}

func (f *fakeReportCache) monthlyKey(tenantID, propertyID uuid.UUID, month ledger.YearMonth) string {
	return tenantID.String() + "|" + propertyID.String() + "|" + month.String()
}

func (f *fakeReportCache) GetDaily(_ context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) (*ledger.DailyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.daily[balanceKey{tenantID, propertyID, date}], nil
}

func (f *fakeReportCache) SetDaily(_ context.Context, report *ledger.DailyReport, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.setDailyCalls++
	f.daily[balanceKey{report.TenantID, report.PropertyID, report.Date}] = report
	return nil
}

func (f *fakeReportCache) DeleteDaily(_ context.Context, tenantID, propertyID uuid.UUID, date ledger.Date) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedDaily = append(f.deletedDaily, date)
	delete(f.daily, balanceKey{tenantID, propertyID, date})
	return nil
}

func (f *fakeReportCache) GetMonthly(_ context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) (*ledger.MonthlyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.monthly[f.monthlyKey(tenantID, propertyID, month)], nil
}

func (f *fakeReportCache) SetMonthly(_ context.Context, report *ledger.MonthlyReport, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.monthly[f.monthlyKey(report.TenantID, report.PropertyID, report.Month)] = report
	return nil
}

func (f *fakeReportCache) DeleteMonthly(_ context.Context, tenantID, propertyID uuid.UUID, month ledger.YearMonth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedMonthly = append(f.deletedMonthly, month)
	delete(f.monthly, f.monthlyKey(tenantID, propertyID, month))
	return nil
}

func (f *fakeReportCache) InvalidateAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily = make(map[balanceKey]*ledger.DailyReport)
	f.monthly = make(map[string]*ledger.MonthlyReport)
	return nil
}

func (f *fakeReportCache) Close() error { return nil }
