package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/property"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cronTickerInterval is the interval at which the cron scheduler checks for execution
const cronTickerInterval = 1 * time.Minute

// MaintenanceCronConfig holds configuration for the cron-based maintenance scheduler
type MaintenanceCronConfig struct {
	// Enabled indicates if the cron scheduler is enabled
	Enabled bool
	// CronHour is the hour (0-23) to run the daily maintenance
	CronHour int
	// CronMinute is the minute (0-59) to run the daily maintenance
	CronMinute int
	// DailyCronSchedule is the cron expression (parsed to extract hour/minute)
	DailyCronSchedule string
	// ValidationWindowDays is the trailing window each sweep validates
	ValidationWindowDays int
	// PartitionEnsureDay is the day of month partition ensure/cleanup run
	PartitionEnsureDay int
	// PartitionCheckEvery is the interval of the current-month fast check
	PartitionCheckEvery time.Duration
	// JobTimeout is the maximum time a single maintenance job can run
	JobTimeout time.Duration
	// MaxConcurrentJobs is the maximum number of concurrent maintenance jobs
	MaxConcurrentJobs int
	// RetryAttempts is the number of retry attempts for failed jobs
	RetryAttempts int
	// RetryDelay is the delay between retries
	RetryDelay time.Duration
}

// DefaultMaintenanceCronConfig returns default cron scheduler configuration
// Defaults to running at 2:30 AM daily
func DefaultMaintenanceCronConfig() MaintenanceCronConfig {
	return MaintenanceCronConfig{
		Enabled:              true,
		CronHour:             2,
		CronMinute:           30,
		DailyCronSchedule:    "30 2 * * *",
		ValidationWindowDays: 7,
		PartitionEnsureDay:   25,
		PartitionCheckEvery:  time.Hour,
		JobTimeout:           30 * time.Minute,
		MaxConcurrentJobs:    3,
		RetryAttempts:        3,
		RetryDelay:           5 * time.Minute,
	}
}

// ParseCronSchedule parses a cron expression "minute hour * * *" to extract hour and minute
// Returns defaults (2:30) if parsing fails or expression is empty
func ParseCronSchedule(cronExpr string) (hour, minute int, err error) {
	// Default values
	hour = 2
	minute = 30

	if cronExpr == "" {
		return hour, minute, nil
	}

	// Use strings.Fields for simple whitespace splitting
	parts := strings.Fields(cronExpr)

	if len(parts) < 2 {
		return hour, minute, nil
	}

	// Parse minute
	if parts[0] != "*" {
		if val, parseErr := parseIntOrDefault(parts[0], 30); parseErr == nil {
			minute = val
		}
	}

	// Parse hour
	if parts[1] != "*" {
		if val, parseErr := parseIntOrDefault(parts[1], 2); parseErr == nil {
			hour = val
		}
	}

	// Validate ranges
	if minute < 0 || minute > 59 {
		return 2, 30, fmt.Errorf("minute must be 0-59, got %d", minute)
	}
	if hour < 0 || hour > 23 {
		return 2, 30, fmt.Errorf("hour must be 0-23, got %d", hour)
	}

	return hour, minute, nil
}

// parseIntOrDefault parses an int string or returns default
func parseIntOrDefault(s string, defaultVal int) (int, error) {
	if s == "" || s == "*" {
		return defaultVal, nil
	}
	var val int
	for _, c := range s {
		if c < '0' || c > '9' {
			return defaultVal, ErrInvalidConfig
		}
		val = val*10 + int(c-'0')
	}
	return val, nil
}

// LedgerJobRecord represents a record of a maintenance job execution
type LedgerJobRecord struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    *uuid.UUID `gorm:"column:tenant_id;type:uuid"`
	PropertyID  *uuid.UUID `gorm:"column:property_id;type:uuid"`
	JobType     string     `gorm:"column:job_type;size:50;not null"`
	Status      string     `gorm:"column:last_run_status;size:20"`
	Error       string     `gorm:"column:last_error;type:text"`
	StartedAt   *time.Time `gorm:"column:last_run_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	NextRunAt   *time.Time `gorm:"column:next_run_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (LedgerJobRecord) TableName() string {
	return "ledger_job_records"
}

// LedgerJobRepository handles persistence of maintenance job records
type LedgerJobRepository struct {
	db *gorm.DB
}

// NewLedgerJobRepository creates a new LedgerJobRepository
func NewLedgerJobRepository(db *gorm.DB) *LedgerJobRepository {
	return &LedgerJobRepository{db: db}
}

// RecordJobStart records the start of a job execution. The record shares the
// job's ID so the worker pool can report the terminal outcome against it.
func (r *LedgerJobRepository) RecordJobStart(ctx context.Context, jobID uuid.UUID, tenantID, propertyID *uuid.UUID, jobType string) error {
	now := time.Now()
	record := &LedgerJobRecord{
		ID:         jobID,
		TenantID:   tenantID,
		PropertyID: propertyID,
		JobType:    jobType,
		Status:     string(JobStatusRunning),
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// RecordJobComplete records the terminal outcome of a job
func (r *LedgerJobRepository) RecordJobComplete(ctx context.Context, jobID uuid.UUID, success bool, errMsg string) error {
	now := time.Now()
	status := string(JobStatusSuccess)
	if !success {
		status = string(JobStatusFailed)
	}
	return r.db.WithContext(ctx).
		Model(&LedgerJobRecord{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"last_run_status": status,
			"last_error":      errMsg,
			"completed_at":    now,
			"updated_at":      now,
		}).Error
}

// GetLastJobStatus gets the most recent record for a job type
func (r *LedgerJobRepository) GetLastJobStatus(ctx context.Context, jobType string) (*LedgerJobRecord, error) {
	var record LedgerJobRecord
	if err := r.db.WithContext(ctx).
		Where("job_type = ?", jobType).
		Order("last_run_at DESC").
		First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindRecent returns the most recent job records across all types
func (r *LedgerJobRepository) FindRecent(ctx context.Context, limit int) ([]*LedgerJobRecord, error) {
	var records []*LedgerJobRecord
	err := r.db.WithContext(ctx).
		Order("last_run_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Ensure LedgerJobRepository can record worker pool outcomes
var _ JobRecorder = (*LedgerJobRepository)(nil)

// MaintenanceCron implements cron-based scheduling for ledger maintenance:
// the daily validation sweep over every active property, monthly partition
// ensure/cleanup on the configured day, the current-month partition fast
// check, and correction queue cleanup.
type MaintenanceCron struct {
	config       MaintenanceCronConfig
	executor     JobExecutor
	propertyRepo property.Repository
	jobRepo      *LedgerJobRepository
	logger       *zap.Logger
	scheduler    *Scheduler

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Last execution tracking
	lastRunAt            *time.Time
	nextRunAt            *time.Time
	lastPartitionCheckAt *time.Time
}

// NewMaintenanceCron creates a new cron-based maintenance scheduler
func NewMaintenanceCron(
	config MaintenanceCronConfig,
	executor JobExecutor,
	propertyRepo property.Repository,
	jobRepo *LedgerJobRepository,
	logger *zap.Logger,
) *MaintenanceCron {
	schedulerConfig := SchedulerConfig{
		Enabled:           config.Enabled,
		MaxConcurrentJobs: config.MaxConcurrentJobs,
		JobTimeout:        config.JobTimeout,
		RetryAttempts:     config.RetryAttempts,
		RetryDelay:        config.RetryDelay,
	}
	scheduler := NewScheduler(schedulerConfig, executor, logger)
	if jobRepo != nil {
		scheduler.SetJobRecorder(jobRepo)
	}

	return &MaintenanceCron{
		config:       config,
		executor:     executor,
		propertyRepo: propertyRepo,
		jobRepo:      jobRepo,
		logger:       logger,
		scheduler:    scheduler,
	}
}

// Start starts the cron scheduler
func (s *MaintenanceCron) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	// Start the underlying job scheduler
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Calculate next run time
	s.calculateNextRunTime()

	// Start the cron ticker
	s.wg.Add(1)
	go s.cronLoop(ctx)

	s.logger.Info("Maintenance cron started",
		zap.Int("cron_hour", s.config.CronHour),
		zap.Int("cron_minute", s.config.CronMinute),
		zap.Int("validation_window_days", s.config.ValidationWindowDays),
		zap.Int("partition_ensure_day", s.config.PartitionEnsureDay),
		zap.Timep("next_run_at", s.nextRunAt),
	)

	return nil
}

// Stop stops the cron scheduler
func (s *MaintenanceCron) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	// Cancel the cron loop
	if s.cancel != nil {
		s.cancel()
	}

	// Wait for cron loop to finish
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Now stop the underlying scheduler
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn("Error stopping underlying scheduler", zap.Error(err))
		}
		s.logger.Info("Maintenance cron stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Maintenance cron stop timed out")
		return ctx.Err()
	}
}

// cronLoop runs the main cron loop
func (s *MaintenanceCron) cronLoop(ctx context.Context) {
	defer s.wg.Done()

	// Use a ticker that checks every minute for cron execution
	ticker := time.NewTicker(cronTickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.shouldRun(now) {
				s.runDailyMaintenance(ctx, now)
				s.calculateNextRunTime()
			}
			s.maybeRunPartitionCheck(ctx, now)
		}
	}
}

// shouldRun checks if the daily maintenance should run at the given time
func (s *MaintenanceCron) shouldRun(now time.Time) bool {
	return now.Hour() == s.config.CronHour && now.Minute() == s.config.CronMinute
}

// calculateNextRunTime calculates the next run time
func (s *MaintenanceCron) calculateNextRunTime() {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.CronHour, s.config.CronMinute, 0, 0, now.Location())

	// If we've already passed today's run time, schedule for tomorrow
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()
}

// runDailyMaintenance schedules the daily sweep for every active property,
// the queue cleanup, and on the configured day of month the partition
// ensure and cleanup jobs.
func (s *MaintenanceCron) runDailyMaintenance(ctx context.Context, now time.Time) {
	s.logger.Info("Starting daily ledger maintenance")

	s.mu.Lock()
	s.lastRunAt = &now
	s.mu.Unlock()

	s.runValidationSweep(ctx, now)

	s.submitRecorded(ctx, NewJob(JobTypeQueueCleanup, nil, nil, time.Time{}, time.Time{}, s.config.RetryAttempts))

	if now.Day() == s.config.PartitionEnsureDay {
		s.submitRecorded(ctx, NewJob(JobTypePartitionEnsure, nil, nil, time.Time{}, time.Time{}, s.config.RetryAttempts))
		s.submitRecorded(ctx, NewJob(JobTypePartitionCleanup, nil, nil, time.Time{}, time.Time{}, s.config.RetryAttempts))
	}
}

// runValidationSweep schedules a sweep job per active property covering the
// trailing validation window ending yesterday.
func (s *MaintenanceCron) runValidationSweep(ctx context.Context, now time.Time) {
	properties, err := s.propertyRepo.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active properties for validation sweep", zap.Error(err))
		return
	}

	windowStart, windowEnd := s.sweepWindow(now)

	s.logger.Info("Scheduling validation sweeps",
		zap.Int("property_count", len(properties)),
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd),
	)

	for i := range properties {
		tenantID := properties[i].TenantID
		propertyID := properties[i].ID
		job := NewJob(JobTypeValidationSweep, &tenantID, &propertyID, windowStart, windowEnd, s.config.RetryAttempts)
		s.submitRecorded(ctx, job)
	}
}

// sweepWindow returns the trailing validation window ending yesterday
func (s *MaintenanceCron) sweepWindow(now time.Time) (time.Time, time.Time) {
	days := s.config.ValidationWindowDays
	if days <= 0 {
		days = 7
	}
	yesterday := now.AddDate(0, 0, -1)
	windowEnd := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 23, 59, 59, 999999999, now.Location())
	first := yesterday.AddDate(0, 0, -(days - 1))
	windowStart := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, now.Location())
	return windowStart, windowEnd
}

// maybeRunPartitionCheck submits the current-month fast check when its
// interval has elapsed.
func (s *MaintenanceCron) maybeRunPartitionCheck(ctx context.Context, now time.Time) {
	if s.config.PartitionCheckEvery <= 0 {
		return
	}

	s.mu.Lock()
	due := s.lastPartitionCheckAt == nil || now.Sub(*s.lastPartitionCheckAt) >= s.config.PartitionCheckEvery
	if due {
		s.lastPartitionCheckAt = &now
	}
	s.mu.Unlock()

	if !due {
		return
	}

	s.submitRecorded(ctx, NewJob(JobTypeCurrentMonthCheck, nil, nil, time.Time{}, time.Time{}, s.config.RetryAttempts))
}

// submitRecorded records the job start and submits it to the worker pool
func (s *MaintenanceCron) submitRecorded(ctx context.Context, job *Job) {
	if s.jobRepo != nil {
		if err := s.jobRepo.RecordJobStart(ctx, job.ID, job.TenantID, job.PropertyID, string(job.JobType)); err != nil {
			s.logger.Warn("Failed to record job start",
				zap.String("job_id", job.ID.String()),
				zap.String("job_type", string(job.JobType)),
				zap.Error(err),
			)
		}
	}

	if err := s.scheduler.SubmitJob(job); err != nil {
		s.logger.Error("Failed to submit maintenance job",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.JobType)),
			zap.Error(err),
		)
		if s.jobRepo != nil {
			_ = s.jobRepo.RecordJobComplete(ctx, job.ID, false, err.Error())
		}
		return
	}

	s.logger.Debug("Scheduled maintenance job",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.JobType)),
	)
}

// TriggerManualRun triggers a manual run of the daily maintenance
// Note: Uses background context to avoid premature cancellation when HTTP request completes
func (s *MaintenanceCron) TriggerManualRun(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	// Use background context to prevent premature cancellation when HTTP request completes
	go s.runDailyMaintenance(context.Background(), time.Now())
	return nil
}

// TriggerPropertySweep triggers a validation sweep for a specific property
func (s *MaintenanceCron) TriggerPropertySweep(ctx context.Context, tenantID, propertyID uuid.UUID, windowStart, windowEnd time.Time) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	job := NewJob(JobTypeValidationSweep, &tenantID, &propertyID, windowStart, windowEnd, s.config.RetryAttempts)
	s.submitRecorded(ctx, job)
	return nil
}

// GetStatus returns the current status of the cron scheduler
func (s *MaintenanceCron) GetStatus() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"enabled":                s.config.Enabled,
		"is_running":             s.isRunning,
		"cron_hour":              s.config.CronHour,
		"cron_minute":            s.config.CronMinute,
		"cron_schedule":          "Daily",
		"validation_window_days": s.config.ValidationWindowDays,
		"partition_ensure_day":   s.config.PartitionEnsureDay,
		"last_run_at":            s.lastRunAt,
		"next_run_at":            s.nextRunAt,
		"job_types":              AllJobTypes(),
	}
}

// GetNextRunAt returns when the next scheduled run will occur
func (s *MaintenanceCron) GetNextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}

// GetLastRunAt returns when the last run occurred
func (s *MaintenanceCron) GetLastRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}
