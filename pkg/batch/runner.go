package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/conversion"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	// DefaultLockKey guards against two runs converting the same population
	DefaultLockKey = "fern:conversion"

	// DefaultLockTTL bounds how long a crashed run can block the next one
	DefaultLockTTL = 6 * time.Hour
)

// ErrRunInProgress is returned when another run holds the conversion lock
var ErrRunInProgress = errors.New("a conversion run is already in progress")

// RunStore persists run history
type RunStore interface {
	Create(ctx context.Context, run *models.ConversionRun) error
	Complete(ctx context.Context, id uuid.UUID, summary *models.ConversionSummary) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

// Lock is a held distributed lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires the run lock. Acquire returns ErrRunInProgress when the lock is taken.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RunEvents announces finished runs
type RunEvents interface {
	PublishRunCompleted(ctx context.Context, evt models.RunCompletedEvent) error
}

// RunRequest are the caller supplied options of a run
type RunRequest struct {
	Partitions int  `json:"partitions" validate:"min=0,max=256"`
	FullReload bool `json:"full_reload"`
}

// RunnerConfig holds runner settings
type RunnerConfig struct {
	LockKey string
	LockTTL time.Duration
}

// Runner wraps the executor with locking, run history and completion events
type Runner struct {
	executor *Executor
	runs     RunStore
	locker   Locker
	events   RunEvents
	logger   ectologger.Logger
	config   RunnerConfig
	active   atomic.Bool
}

// NewRunner creates a new runner. locker and events may be nil.
func NewRunner(executor *Executor, runs RunStore, locker Locker, events RunEvents, logger ectologger.Logger, config RunnerConfig) *Runner {
	if config.LockKey == "" {
		config.LockKey = DefaultLockKey
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	return &Runner{
		executor: executor,
		runs:     runs,
		locker:   locker,
		events:   events,
		logger:   logger,
		config:   config,
	}
}

// Start begins a run in the background and returns it as soon as it is recorded
func (r *Runner) Start(ctx context.Context, req RunRequest) (*models.ConversionRun, error) {
	run, release, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	started := *run
	go func() {
		bg := context.WithoutCancel(ctx)
		defer release(bg)
		_ = r.execute(bg, run, req)
	}()
	return &started, nil
}

// Run executes a run to completion and returns it with its merged summary
func (r *Runner) Run(ctx context.Context, req RunRequest) (*models.ConversionRun, error) {
	run, release, err := r.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	if err := r.execute(ctx, run, req); err != nil {
		return run, err
	}
	return run, nil
}

func (r *Runner) begin(ctx context.Context, req RunRequest) (*models.ConversionRun, func(context.Context), error) {
	if !r.active.CompareAndSwap(false, true) {
		return nil, nil, ErrRunInProgress
	}

	var lock Lock
	if r.locker != nil {
		var err error
		lock, err = r.locker.Acquire(ctx, r.config.LockKey, r.config.LockTTL)
		if err != nil {
			r.active.Store(false)
			if errors.Is(err, ErrRunInProgress) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("failed to acquire conversion lock: %w", err)
		}
	}

	release := func(ctx context.Context) {
		if lock != nil {
			if err := lock.Release(ctx); err != nil {
				r.logger.WithContext(ctx).WithError(err).Warn("failed to release conversion lock")
			}
		}
		r.active.Store(false)
	}

	partitions := req.Partitions
	if partitions <= 0 {
		partitions = r.executor.config.Partitions
	}
	run := &models.ConversionRun{
		ID:         uuid.New(),
		Status:     models.RunStatusRunning,
		Partitions: partitions,
		FullReload: req.FullReload,
		StartedAt:  time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		release(ctx)
		return nil, nil, fmt.Errorf("failed to record conversion run: %w", err)
	}
	return run, release, nil
}

func (r *Runner) execute(ctx context.Context, run *models.ConversionRun, req RunRequest) error {
	logger := r.logger.WithContext(ctx).WithField("run_id", run.ID.String())
	logger.WithFields(map[string]any{
		"partitions":  run.Partitions,
		"full_reload": run.FullReload,
	}).Info("conversion run started")

	summary, err := r.executor.Execute(ctx, run.Partitions, conversion.RunOptions{
		RunID:      run.ID.String(),
		FullReload: req.FullReload,
	})
	now := time.Now().UTC()
	run.CompletedAt = &now

	if err != nil {
		reason := err.Error()
		run.Status = models.RunStatusFailed
		run.ErrorMessage = &reason
		if ferr := r.runs.Fail(ctx, run.ID, reason); ferr != nil {
			logger.WithError(ferr).Error("failed to record failed run")
		}
		metrics.RecordRun(string(models.RunStatusFailed))
		logger.WithError(err).Error("conversion run failed")
		r.publish(ctx, run, models.NewConversionSummary())
		return err
	}

	run.Status = models.RunStatusCompleted
	run.Summary = summary
	run.TotalRecords = int(summary.ReadCount)
	if err := r.runs.Complete(ctx, run.ID, summary); err != nil {
		// a run left in running would block the next one
		err = fmt.Errorf("failed to record completed run: %w", err)
		reason := err.Error()
		run.Status = models.RunStatusFailed
		run.ErrorMessage = &reason
		if ferr := r.runs.Fail(ctx, run.ID, reason); ferr != nil {
			logger.WithError(ferr).Error("failed to record failed run")
		}
		metrics.RecordRun(string(models.RunStatusFailed))
		logger.WithError(err).Error("conversion run failed")
		r.publish(ctx, run, summary)
		return err
	}
	metrics.RecordRun(string(models.RunStatusCompleted))
	logger.WithFields(map[string]any{
		"read":      summary.ReadCount,
		"processed": summary.ProcessedCount,
		"added":     summary.AddedCount,
		"updated":   summary.UpdatedCount,
		"errored":   summary.ErroredCount,
	}).Infof("conversion run completed with %d errors", summary.ErroredCount)

	r.publish(ctx, run, summary)
	return nil
}

func (r *Runner) publish(ctx context.Context, run *models.ConversionRun, summary *models.ConversionSummary) {
	if r.events == nil {
		return
	}
	evt := models.RunCompletedEvent{
		RunID:          run.ID.String(),
		Status:         string(run.Status),
		ReadCount:      summary.ReadCount,
		ProcessedCount: summary.ProcessedCount,
		AddedCount:     summary.AddedCount,
		UpdatedCount:   summary.UpdatedCount,
		ErroredCount:   summary.ErroredCount,
		Timestamp:      time.Now().UTC(),
	}
	if err := r.events.PublishRunCompleted(ctx, evt); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("failed to publish run completed event")
	}
}

// Running reports whether this instance is executing a run
func (r *Runner) Running() bool {
	return r.active.Load()
}
