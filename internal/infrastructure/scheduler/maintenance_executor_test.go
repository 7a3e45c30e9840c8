package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/backend/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	gotTenant   uuid.UUID
	gotProperty uuid.UUID
	gotFrom     ledger.Date
	gotTo       ledger.Date
	summary     SweepSummary
	err         error
}

func (s *fakeSweeper) SweepProperty(_ context.Context, tenantID, propertyID uuid.UUID, from, to ledger.Date) (SweepSummary, error) {
	s.gotTenant = tenantID
	s.gotProperty = propertyID
	s.gotFrom = from
	s.gotTo = to
	return s.summary, s.err
}

type fakePartitions struct {
	ensured bool
	cleaned bool
	checked bool
	created []string
	err     error
}

func (p *fakePartitions) EnsureUpcoming(_ context.Context) ([]string, error) {
	p.ensured = true
	return p.created, p.err
}

func (p *fakePartitions) CleanupExpired(_ context.Context) ([]string, error) {
	p.cleaned = true
	return p.created, p.err
}

func (p *fakePartitions) EnsureCurrentMonth(_ context.Context) ([]string, error) {
	p.checked = true
	return p.created, p.err
}

type fakeJanitor struct {
	called bool
	purged int64
	err    error
}

func (j *fakeJanitor) PurgeCompleted(_ context.Context) (int64, error) {
	j.called = true
	return j.purged, j.err
}

func newTestExecutor(sweeper *fakeSweeper, partitions *fakePartitions, janitor *fakeJanitor) *MaintenanceExecutor {
	return NewMaintenanceExecutor(sweeper, partitions, janitor, zap.NewNop())
}

func TestMaintenanceExecutor_DispatchesSweep(t *testing.T) {
	sweeper := &fakeSweeper{summary: SweepSummary{IssuesFound: 2, RepairsQueued: 2}}
	executor := newTestExecutor(sweeper, &fakePartitions{}, &fakeJanitor{})

	tenantID := uuid.New()
	propertyID := uuid.New()
	windowStart := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 3, 9, 23, 59, 59, 0, time.UTC)
	job := NewJob(JobTypeValidationSweep, &tenantID, &propertyID, windowStart, windowEnd, 0)

	err := executor.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, tenantID, sweeper.gotTenant)
	assert.Equal(t, propertyID, sweeper.gotProperty)
	assert.Equal(t, ledger.NewDate(2026, time.March, 3), sweeper.gotFrom)
	assert.Equal(t, ledger.NewDate(2026, time.March, 9), sweeper.gotTo)
}

func TestMaintenanceExecutor_SweepRequiresScope(t *testing.T) {
	executor := newTestExecutor(&fakeSweeper{}, &fakePartitions{}, &fakeJanitor{})

	tenantID := uuid.New()
	tests := []struct {
		name string
		job  *Job
	}{
		{
			name: "missing both",
			job:  NewJob(JobTypeValidationSweep, nil, nil, time.Now(), time.Now(), 0),
		},
		{
			name: "missing property",
			job:  NewJob(JobTypeValidationSweep, &tenantID, nil, time.Now(), time.Now(), 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executor.Execute(context.Background(), tt.job)
			assert.ErrorIs(t, err, ErrMissingJobScope)
		})
	}
}

func TestMaintenanceExecutor_SweepErrorPropagates(t *testing.T) {
	sweepErr := errors.New("store unavailable")
	sweeper := &fakeSweeper{err: sweepErr}
	executor := newTestExecutor(sweeper, &fakePartitions{}, &fakeJanitor{})

	tenantID := uuid.New()
	propertyID := uuid.New()
	job := NewJob(JobTypeValidationSweep, &tenantID, &propertyID, time.Now(), time.Now(), 0)

	err := executor.Execute(context.Background(), job)

	assert.ErrorIs(t, err, sweepErr)
}

func TestMaintenanceExecutor_PartitionJobs(t *testing.T) {
	tests := []struct {
		name    string
		jobType JobType
		check   func(p *fakePartitions) bool
	}{
		{
			name:    "ensure",
			jobType: JobTypePartitionEnsure,
			check:   func(p *fakePartitions) bool { return p.ensured },
		},
		{
			name:    "cleanup",
			jobType: JobTypePartitionCleanup,
			check:   func(p *fakePartitions) bool { return p.cleaned },
		},
		{
			name:    "current month check",
			jobType: JobTypeCurrentMonthCheck,
			check:   func(p *fakePartitions) bool { return p.checked },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partitions := &fakePartitions{created: []string{"cash_transactions_p_2026_04"}}
			executor := newTestExecutor(&fakeSweeper{}, partitions, &fakeJanitor{})

			job := NewJob(tt.jobType, nil, nil, time.Time{}, time.Time{}, 0)
			err := executor.Execute(context.Background(), job)

			require.NoError(t, err)
			assert.True(t, tt.check(partitions))
		})
	}
}

func TestMaintenanceExecutor_PartitionErrorPropagates(t *testing.T) {
	partErr := errors.New("create partition failed")
	partitions := &fakePartitions{err: partErr}
	executor := newTestExecutor(&fakeSweeper{}, partitions, &fakeJanitor{})

	job := NewJob(JobTypePartitionEnsure, nil, nil, time.Time{}, time.Time{}, 0)
	err := executor.Execute(context.Background(), job)

	assert.ErrorIs(t, err, partErr)
}

func TestMaintenanceExecutor_QueueCleanup(t *testing.T) {
	janitor := &fakeJanitor{purged: 12}
	executor := newTestExecutor(&fakeSweeper{}, &fakePartitions{}, janitor)

	job := NewJob(JobTypeQueueCleanup, nil, nil, time.Time{}, time.Time{}, 0)
	err := executor.Execute(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, janitor.called)
}

func TestMaintenanceExecutor_UnknownJobType(t *testing.T) {
	executor := newTestExecutor(&fakeSweeper{}, &fakePartitions{}, &fakeJanitor{})

	job := NewJob(JobType("REINDEX_EVERYTHING"), nil, nil, time.Time{}, time.Time{}, 0)
	err := executor.Execute(context.Background(), job)

	assert.ErrorIs(t, err, ErrInvalidJobType)
}
