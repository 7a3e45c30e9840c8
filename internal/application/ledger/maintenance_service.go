package ledger

import (
	"context"
	"time"

	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stayops/backend/internal/infrastructure/persistence"
	"github.com/stayops/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// PartitionService drives the partition manager on the business calendar.
// On deployments without the partitioned layout every operation is a logged
// no-op, so the maintenance jobs stay schedulable everywhere.
type PartitionService struct {
	manager  *persistence.PartitionManager
	calendar *ledger.Calendar
	logger   *zap.Logger
}

// NewPartitionService creates a new PartitionService
func NewPartitionService(manager *persistence.PartitionManager, calendar *ledger.Calendar, logger *zap.Logger) *PartitionService {
	return &PartitionService{
		manager:  manager,
		calendar: calendar,
		logger:   logger,
	}
}

// EnsureUpcoming creates the hash children and the monthly transaction
// children ahead of the current business month
func (s *PartitionService) EnsureUpcoming(ctx context.Context) ([]string, error) {
	if !s.manager.Supported() {
		s.logger.Debug("Partition ensure skipped: partitioned layout disabled")
		return nil, nil
	}
	if err := s.manager.EnsureHashPartitions(ctx); err != nil {
		return nil, err
	}
	return s.manager.EnsureMonthlyPartitions(ctx, s.calendar.CurrentMonth())
}

// CleanupExpired drops monthly children past the retention horizon
func (s *PartitionService) CleanupExpired(ctx context.Context) ([]string, error) {
	if !s.manager.Supported() {
		return nil, nil
	}
	return s.manager.CleanupExpired(ctx, s.calendar.CurrentMonth())
}

// EnsureCurrentMonth probes for the current and next month's children and
// creates whatever is missing. Runs far more often than the monthly ensure
// job; the probe is cheap and a missing child fails every write.
func (s *PartitionService) EnsureCurrentMonth(ctx context.Context) ([]string, error) {
	if !s.manager.Supported() {
		return nil, nil
	}
	check, err := s.manager.CheckCurrentMonth(ctx, s.calendar.CurrentMonth())
	if err != nil {
		return nil, err
	}
	if check.CurrentMonthExists && check.NextMonthExists {
		return nil, nil
	}
	s.logger.Warn("Missing month partitions detected",
		zap.Strings("missing", check.Missing))
	return s.manager.EnsureMonthlyPartitions(ctx, s.calendar.CurrentMonth())
}

// QueueJanitorService purges completed correction items past retention.
// Dead items are deliberately out of scope: they stay until an operator
// resolves them.
type QueueJanitorService struct {
	queue     ledger.CorrectionQueue
	retention time.Duration
	logger    *zap.Logger
}

// NewQueueJanitorService creates a new QueueJanitorService. A non-positive
// retention falls back to seven days.
func NewQueueJanitorService(queue ledger.CorrectionQueue, retention time.Duration, logger *zap.Logger) *QueueJanitorService {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &QueueJanitorService{
		queue:     queue,
		retention: retention,
		logger:    logger,
	}
}

// PurgeCompleted deletes DONE items older than retention
func (s *QueueJanitorService) PurgeCompleted(ctx context.Context) (int64, error) {
	purged, err := s.queue.DeleteDoneBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("Purged completed corrections", zap.Int64("count", purged))
	}
	return purged, nil
}

// Ensure the maintenance services satisfy the scheduler contracts
var (
	_ scheduler.PartitionMaintainer = (*PartitionService)(nil)
	_ scheduler.QueueJanitor        = (*QueueJanitorService)(nil)
)
