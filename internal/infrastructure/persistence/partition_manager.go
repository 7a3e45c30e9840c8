package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/config"
	"github.com/stayops/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	transactionsParentTable = "cash_transactions_p"
	balancesParentTable     = "daily_cash_balances_p"
)

// PartitionManager creates and retires the physical partitions behind the
// partitioned layout. Transactions are range-partitioned by occurred_on into
// one child per calendar month; balances are hash-partitioned over the
// (tenant_id, property_id) pair into a fixed set of children created once.
//
// All DDL is PostgreSQL-only. On any other dialect the manager reports
// itself unsupported and every operation is a no-op, which keeps the sqlite
// test setup and single-layout deployments working.
type PartitionManager struct {
	db  *gorm.DB
	cfg config.StorageConfig
}

// NewPartitionManager creates a new PartitionManager
func NewPartitionManager(db *gorm.DB, cfg config.StorageConfig) *PartitionManager {
	return &PartitionManager{db: db, cfg: cfg}
}

// Supported reports whether the connected database can run partition DDL
func (m *PartitionManager) Supported() bool {
	return m.db.Dialector.Name() == "postgres"
}

// EnsureHashPartitions creates the fixed hash partitions for the balance
// table. Safe to run repeatedly.
func (m *PartitionManager) EnsureHashPartitions(ctx context.Context) error {
	if !m.Supported() {
		return nil
	}
	for remainder := 0; remainder < m.cfg.HashPartitions; remainder++ {
		ddl := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s_h%d PARTITION OF %s FOR VALUES WITH (MODULUS %d, REMAINDER %d)",
			balancesParentTable, remainder, balancesParentTable, m.cfg.HashPartitions, remainder,
		)
		if err := m.db.WithContext(ctx).Exec(ddl).Error; err != nil {
			return fmt.Errorf("create hash partition %d: %w", remainder, err)
		}
	}
	return nil
}

// EnsureMonthlyPartitions creates the monthly transaction partitions for the
// given month and the configured number of months ahead. Safe to run
// repeatedly; existing partitions are left alone.
func (m *PartitionManager) EnsureMonthlyPartitions(ctx context.Context, current ledger.YearMonth) ([]string, error) {
	if !m.Supported() {
		return nil, nil
	}

	var created []string
	month := current
	for i := 0; i <= m.cfg.MonthsAhead; i++ {
		name := monthlyPartitionName(month)
		from := month.First()
		to := month.Next().First()
		ddl := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
			name, transactionsParentTable, from.String(), to.String(),
		)
		if err := m.db.WithContext(ctx).Exec(ddl).Error; err != nil {
			return created, fmt.Errorf("create monthly partition %s: %w", name, err)
		}
		created = append(created, name)
		month = month.Next()
	}

	if m.cfg.DefaultPartition {
		ddl := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s_default PARTITION OF %s DEFAULT",
			transactionsParentTable, transactionsParentTable,
		)
		if err := m.db.WithContext(ctx).Exec(ddl).Error; err != nil {
			return created, fmt.Errorf("create default partition: %w", err)
		}
	}

	logger.L(ctx).Info("ensured monthly transaction partitions",
		zap.Strings("partitions", created))
	return created, nil
}

// CleanupExpired detaches and drops monthly transaction partitions older
// than the retention window. A partition is expired when its month lies
// RetentionMonths or more whole months before the current month, so with a
// 24 month retention the current month plus the 23 before it always survive.
// Returns the names of the dropped partitions.
func (m *PartitionManager) CleanupExpired(ctx context.Context, current ledger.YearMonth) ([]string, error) {
	if !m.Supported() {
		return nil, nil
	}

	names, err := m.listChildren(ctx, transactionsParentTable)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, name := range names {
		month, ok := parseMonthlyPartitionName(name)
		if !ok {
			continue
		}
		if monthsApart(current, month) < m.cfg.RetentionMonths {
			continue
		}

		// Detach first so a failed drop leaves a standalone table rather
		// than a half-removed partition.
		detach := fmt.Sprintf("ALTER TABLE %s DETACH PARTITION %s", transactionsParentTable, name)
		if err := m.db.WithContext(ctx).Exec(detach).Error; err != nil {
			return dropped, fmt.Errorf("detach partition %s: %w", name, err)
		}
		drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", name)
		if err := m.db.WithContext(ctx).Exec(drop).Error; err != nil {
			return dropped, fmt.Errorf("drop partition %s: %w", name, err)
		}
		dropped = append(dropped, name)
		logger.L(ctx).Info("dropped expired transaction partition",
			zap.String("partition", name),
			zap.String("month", month.String()))
	}
	return dropped, nil
}

// PartitionCheck reports whether the partitions needed right now exist
type PartitionCheck struct {
	TransactionPartitions int      `json:"transaction_partitions"`
	BalancePartitions     int      `json:"balance_partitions"`
	CurrentMonthExists    bool     `json:"current_month_exists"`
	NextMonthExists       bool     `json:"next_month_exists"`
	Missing               []string `json:"missing,omitempty"`
}

// CheckCurrentMonth verifies that the partitions for the current and next
// month exist and counts the children of both parents. Writes into a missing
// partition fail outright unless a default partition catches them, so this
// check runs on a tight schedule.
func (m *PartitionManager) CheckCurrentMonth(ctx context.Context, current ledger.YearMonth) (PartitionCheck, error) {
	check := PartitionCheck{}
	if !m.Supported() {
		return check, nil
	}

	txnNames, err := m.listChildren(ctx, transactionsParentTable)
	if err != nil {
		return check, err
	}
	balanceNames, err := m.listChildren(ctx, balancesParentTable)
	if err != nil {
		return check, err
	}

	check.TransactionPartitions = len(txnNames)
	check.BalancePartitions = len(balanceNames)

	existing := make(map[string]struct{}, len(txnNames))
	for _, name := range txnNames {
		existing[name] = struct{}{}
	}

	currentName := monthlyPartitionName(current)
	nextName := monthlyPartitionName(current.Next())
	_, check.CurrentMonthExists = existing[currentName]
	_, check.NextMonthExists = existing[nextName]
	if !check.CurrentMonthExists {
		check.Missing = append(check.Missing, currentName)
	}
	if !check.NextMonthExists {
		check.Missing = append(check.Missing, nextName)
	}

	if m.cfg.HashPartitions > 0 && len(balanceNames) < m.cfg.HashPartitions {
		check.Missing = append(check.Missing,
			fmt.Sprintf("%s (have %d of %d hash partitions)", balancesParentTable, len(balanceNames), m.cfg.HashPartitions))
	}
	return check, nil
}

// listChildren returns the child partition names of a parent table
func (m *PartitionManager) listChildren(ctx context.Context, parent string) ([]string, error) {
	var names []string
	err := m.db.WithContext(ctx).Raw(
		`SELECT c.relname FROM pg_inherits i
		 JOIN pg_class c ON c.oid = i.inhrelid
		 JOIN pg_class p ON p.oid = i.inhparent
		 WHERE p.relname = ? ORDER BY c.relname`, parent,
	).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", parent, err)
	}
	return names, nil
}

// monthlyPartitionName builds the child table name for a month,
// e.g. cash_transactions_p_2026_08
func monthlyPartitionName(month ledger.YearMonth) string {
	return fmt.Sprintf("%s_%04d_%02d", transactionsParentTable, month.Year, int(month.Month))
}

// parseMonthlyPartitionName recovers the month from a child table name.
// Returns false for the default partition and anything else that does not
// follow the monthly naming scheme.
func parseMonthlyPartitionName(name string) (ledger.YearMonth, bool) {
	suffix, ok := strings.CutPrefix(name, transactionsParentTable+"_")
	if !ok {
		return ledger.YearMonth{}, false
	}
	var year, monthNum int
	if _, err := fmt.Sscanf(suffix, "%4d_%2d", &year, &monthNum); err != nil {
		return ledger.YearMonth{}, false
	}
	if monthNum < 1 || monthNum > 12 {
		return ledger.YearMonth{}, false
	}
	return ledger.YearMonth{Year: year, Month: time.Month(monthNum)}, true
}

// monthsApart returns how many whole months a lies after b
func monthsApart(a, b ledger.YearMonth) int {
	return (a.Year-b.Year)*12 + int(a.Month) - int(b.Month)
}
