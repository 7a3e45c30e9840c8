package monitoring

import (
	"context"
	"time"

	ledgerapp "github.com/stayops/backend/internal/application/ledger"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/persistence"
	"github.com/stayops/backend/internal/infrastructure/resilience"
	"github.com/stayops/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// RouterStatsSource exposes a store router's counters
type RouterStatsSource interface {
	Stats() persistence.RouterStats
}

// CacheStatsSource exposes the tiered report cache counters
type CacheStatsSource interface {
	GetCacheStats(ctx context.Context) ledger.ReportCacheStats
}

// ParitySource measures the row-count gap between the legacy and partitioned
// transaction layouts
type ParitySource interface {
	GetPartitionParityGap(ctx context.Context, since time.Time) (int64, error)
}

// JobHistorySource reads recent maintenance job records
type JobHistorySource interface {
	FindRecent(ctx context.Context, limit int) ([]*scheduler.LedgerJobRecord, error)
}

// CronStatusSource reports the maintenance cron's run times
type CronStatusSource interface {
	GetLastRunAt() *time.Time
	GetNextRunAt() *time.Time
}

// ValidationSummarySource reports aggregated findings of the latest
// validation runs
type ValidationSummarySource interface {
	LastSummary() ledgerapp.ValidationSummary
}

// MaintenanceStatus is the scheduler section of the system status
type MaintenanceStatus struct {
	LastRunAt  *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time        `json:"next_run_at,omitempty"`
	RecentJobs []JobRecordStatus `json:"recent_jobs,omitempty"`
}

// JobRecordStatus is one maintenance job execution in the status payload
type JobRecordStatus struct {
	JobType     string     `json:"job_type"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SystemStatus is the operational snapshot served by the status endpoint.
// Sections for components that are not wired, or whose collection failed,
// are omitted; failures are additionally named in Degraded.
type SystemStatus struct {
	GeneratedAt        time.Time                    `json:"generated_at"`
	BalanceRouter      *persistence.RouterStats     `json:"balance_router,omitempty"`
	TransactionRouter  *persistence.RouterStats     `json:"transaction_router,omitempty"`
	PartitionParityGap *int64                       `json:"partition_parity_gap,omitempty"`
	Cache              *ledger.ReportCacheStats     `json:"cache,omitempty"`
	Breakers           []resilience.Stats           `json:"breakers,omitempty"`
	CorrectionQueue    map[string]int64             `json:"correction_queue,omitempty"`
	DeadCorrections    int64                        `json:"dead_corrections"`
	Maintenance        *MaintenanceStatus           `json:"maintenance,omitempty"`
	Validation         *ledgerapp.ValidationSummary `json:"validation,omitempty"`
	Degraded           []string                     `json:"degraded,omitempty"`
}

// recentJobLimit bounds the job history section
const recentJobLimit = 20

// StatusService assembles the operational status of the ledger service. It
// is strictly read-only and every source is optional: the endpoint has to
// answer, partially if need be, exactly when parts of the system are in
// trouble.
type StatusService struct {
	calendar *ledger.Calendar
	logger   *zap.Logger

	balanceRouter     RouterStatsSource
	transactionRouter RouterStatsSource
	cacheStats        CacheStatsSource
	breakers          *resilience.Registry
	queue             ledger.CorrectionQueue
	parity            ParitySource
	jobs              JobHistorySource
	cron              CronStatusSource
	validation        ValidationSummarySource
}

// NewStatusService creates a new StatusService
func NewStatusService(calendar *ledger.Calendar, logger *zap.Logger) *StatusService {
	return &StatusService{
		calendar: calendar,
		logger:   logger,
	}
}

// SetRouters sets the balance and transaction store routers
func (s *StatusService) SetRouters(balances, transactions RouterStatsSource) {
	s.balanceRouter = balances
	s.transactionRouter = transactions
}

// SetCacheStats sets the report cache stats source
func (s *StatusService) SetCacheStats(source CacheStatsSource) {
	s.cacheStats = source
}

// SetBreakerRegistry sets the circuit breaker registry
func (s *StatusService) SetBreakerRegistry(registry *resilience.Registry) {
	s.breakers = registry
}

// SetCorrectionQueue sets the correction queue
func (s *StatusService) SetCorrectionQueue(queue ledger.CorrectionQueue) {
	s.queue = queue
}

// SetParitySource sets the partition parity source
func (s *StatusService) SetParitySource(source ParitySource) {
	s.parity = source
}

// SetJobHistory sets the maintenance job history source
func (s *StatusService) SetJobHistory(source JobHistorySource) {
	s.jobs = source
}

// SetCronStatus sets the maintenance cron status source
func (s *StatusService) SetCronStatus(source CronStatusSource) {
	s.cron = source
}

// SetValidationSummary sets the validation summary source
func (s *StatusService) SetValidationSummary(source ValidationSummarySource) {
	s.validation = source
}

// Status collects the current snapshot. Collection failures degrade the
// affected section instead of failing the call.
func (s *StatusService) Status(ctx context.Context) *SystemStatus {
	status := &SystemStatus{GeneratedAt: time.Now()}

	if s.balanceRouter != nil {
		stats := s.balanceRouter.Stats()
		status.BalanceRouter = &stats
	}
	if s.transactionRouter != nil {
		stats := s.transactionRouter.Stats()
		status.TransactionRouter = &stats
	}
	if s.cacheStats != nil {
		stats := s.cacheStats.GetCacheStats(ctx)
		status.Cache = &stats
	}
	if s.breakers != nil {
		status.Breakers = s.breakers.Stats()
	}

	if s.queue != nil {
		counts, err := s.queue.CountByStatus(ctx)
		if err != nil {
			s.degrade(status, "correction_queue", err)
		} else {
			status.CorrectionQueue = make(map[string]int64, len(counts))
			for st, n := range counts {
				status.CorrectionQueue[string(st)] = n
			}
			status.DeadCorrections = counts[ledger.CorrectionStatusDead]
		}
	}

	if s.parity != nil {
		since := s.calendar.CurrentMonth().First().In(s.calendar.Location())
		gap, err := s.parity.GetPartitionParityGap(ctx, since)
		if err != nil {
			s.degrade(status, "partition_parity", err)
		} else {
			status.PartitionParityGap = &gap
		}
	}

	if s.cron != nil || s.jobs != nil {
		status.Maintenance = s.collectMaintenance(ctx, status)
	}

	if s.validation != nil {
		summary := s.validation.LastSummary()
		status.Validation = &summary
	}

	return status
}

func (s *StatusService) collectMaintenance(ctx context.Context, status *SystemStatus) *MaintenanceStatus {
	maintenance := &MaintenanceStatus{}
	if s.cron != nil {
		maintenance.LastRunAt = s.cron.GetLastRunAt()
		maintenance.NextRunAt = s.cron.GetNextRunAt()
	}
	if s.jobs != nil {
		records, err := s.jobs.FindRecent(ctx, recentJobLimit)
		if err != nil {
			s.degrade(status, "job_history", err)
		} else {
			maintenance.RecentJobs = make([]JobRecordStatus, 0, len(records))
			for _, record := range records {
				maintenance.RecentJobs = append(maintenance.RecentJobs, JobRecordStatus{
					JobType:     record.JobType,
					Status:      record.Status,
					Error:       record.Error,
					StartedAt:   record.StartedAt,
					CompletedAt: record.CompletedAt,
				})
			}
		}
	}
	return maintenance
}

func (s *StatusService) degrade(status *SystemStatus, component string, err error) {
	s.logger.Warn("Status section unavailable",
		zap.String("component", component),
		zap.Error(err))
	status.Degraded = append(status.Degraded, component)
}
