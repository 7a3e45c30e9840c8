package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// SweepSummary reports what a validation sweep found and queued
type SweepSummary struct {
	IssuesFound   int
	RepairsQueued int
}

// ValidationSweeper validates a property's trailing date window and queues
// repairs for what it finds
type ValidationSweeper interface {
	SweepProperty(ctx context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) (SweepSummary, error)
}

// PartitionMaintainer manages the partitioned layout's physical tables.
// Implementations derive the current month themselves.
type PartitionMaintainer interface {
	// EnsureUpcoming creates the next months' partitions ahead of time
	EnsureUpcoming(ctx context.Context) ([]string, error)
	// CleanupExpired drops partitions past the retention horizon
	CleanupExpired(ctx context.Context) ([]string, error)
	// EnsureCurrentMonth verifies current and next month partitions exist,
	// creating any that are missing
	EnsureCurrentMonth(ctx context.Context) ([]string, error)
}

// QueueJanitor purges completed correction queue items past retention
type QueueJanitor interface {
	PurgeCompleted(ctx context.Context) (int64, error)
}

// MaintenanceExecutor dispatches maintenance jobs to the ledger services
type MaintenanceExecutor struct {
	sweeper    ValidationSweeper
	partitions PartitionMaintainer
	janitor    QueueJanitor
	logger     *zap.Logger
}

// NewMaintenanceExecutor creates a new maintenance executor
func NewMaintenanceExecutor(
	sweeper ValidationSweeper,
	partitions PartitionMaintainer,
	janitor QueueJanitor,
	logger *zap.Logger,
) *MaintenanceExecutor {
	return &MaintenanceExecutor{
		sweeper:    sweeper,
		partitions: partitions,
		janitor:    janitor,
		logger:     logger,
	}
}

// Execute runs a single maintenance job
func (e *MaintenanceExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.JobType {
	case JobTypeValidationSweep:
		return e.executeSweep(ctx, job)
	case JobTypePartitionEnsure:
		created, err := e.partitions.EnsureUpcoming(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("Partition ensure completed",
			zap.String("job_id", job.ID.String()),
			zap.Strings("created", created),
		)
		return nil
	case JobTypePartitionCleanup:
		dropped, err := e.partitions.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("Partition cleanup completed",
			zap.String("job_id", job.ID.String()),
			zap.Strings("dropped", dropped),
		)
		return nil
	case JobTypeCurrentMonthCheck:
		created, err := e.partitions.EnsureCurrentMonth(ctx)
		if err != nil {
			return err
		}
		if len(created) > 0 {
			// A gap mid-month means the scheduled ensure run failed or
			// never happened.
			e.logger.Warn("Current-month check created missing partitions",
				zap.String("job_id", job.ID.String()),
				zap.Strings("created", created),
			)
		}
		return nil
	case JobTypeQueueCleanup:
		purged, err := e.janitor.PurgeCompleted(ctx)
		if err != nil {
			return err
		}
		e.logger.Info("Correction queue cleanup completed",
			zap.String("job_id", job.ID.String()),
			zap.Int64("purged", purged),
		)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidJobType, job.JobType)
	}
}

// executeSweep validates and repairs a single property's window
func (e *MaintenanceExecutor) executeSweep(ctx context.Context, job *Job) error {
	if job.TenantID == nil || job.PropertyID == nil {
		return ErrMissingJobScope
	}

	from := ledger.DateOfTime(job.WindowStart)
	to := ledger.DateOfTime(job.WindowEnd)

	summary, err := e.sweeper.SweepProperty(ctx, *job.TenantID, *job.PropertyID, from, to)
	if err != nil {
		return err
	}

	e.logger.Info("Validation sweep completed",
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("property_id", job.PropertyID.String()),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("issues_found", summary.IssuesFound),
		zap.Int("repairs_queued", summary.RepairsQueued),
	)
	return nil
}

// Ensure MaintenanceExecutor implements JobExecutor
var _ JobExecutor = (*MaintenanceExecutor)(nil)
