package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/conversion/conversiontest"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeRuns struct {
	mu        sync.Mutex
	created   []models.ConversionRun
	completed map[uuid.UUID]*models.ConversionSummary
	failed    map[uuid.UUID]string
	// completeErr makes Complete fail
	completeErr error
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{completed: map[uuid.UUID]*models.ConversionSummary{}, failed: map[uuid.UUID]string{}}
}

func (f *fakeRuns) Create(_ context.Context, run *models.ConversionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRuns) Complete(_ context.Context, id uuid.UUID, summary *models.ConversionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[id] = summary
	return nil
}

func (f *fakeRuns) Fail(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeRuns) summary(id uuid.UUID) (*models.ConversionSummary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.completed[id]
	return s, ok
}

type fakeLock struct {
	locker *fakeLocker
}

func (l *fakeLock) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	l.locker.held = false
	l.locker.released++
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (f *fakeLocker) Acquire(_ context.Context, _ string, _ time.Duration) (Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil, ErrRunInProgress
	}
	f.held = true
	return &fakeLock{locker: f}, nil
}

type failingCount struct {
	*conversiontest.Source
}

func (failingCount) Count(_ context.Context) (int, error) {
	return 0, conversiontest.ErrInjected
}

func TestRunner_Run(t *testing.T) {
	runs := newFakeRuns()
	locker := &fakeLocker{}
	events := &conversiontest.Events{}
	executor := NewExecutor(conversiontest.NewSource(records(5)...), &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 2})
	runner := NewRunner(executor, runs, locker, events, getTestLogger(), RunnerConfig{})

	run, err := runner.Run(context.Background(), RunRequest{FullReload: true})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Partitions)
	assert.True(t, run.FullReload)
	assert.Equal(t, 5, run.TotalRecords)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Summary)
	assert.Equal(t, int64(5), run.Summary.AddedCount)

	require.Len(t, runs.created, 1)
	assert.Equal(t, models.RunStatusRunning, runs.created[0].Status)
	_, ok := runs.summary(run.ID)
	assert.True(t, ok)

	require.Len(t, events.Completed, 1)
	assert.Equal(t, run.ID.String(), events.Completed[0].RunID)
	assert.Equal(t, "completed", events.Completed[0].Status)
	assert.Equal(t, int64(5), events.Completed[0].ProcessedCount)

	assert.Equal(t, 1, locker.released)
	assert.False(t, runner.Running())
}

func TestRunner_PlanningFailureFailsRun(t *testing.T) {
	runs := newFakeRuns()
	source := failingCount{conversiontest.NewSource()}
	executor := NewExecutor(source, &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 2})
	runner := NewRunner(executor, runs, nil, nil, getTestLogger(), RunnerConfig{})

	run, err := runner.Run(context.Background(), RunRequest{Partitions: 3})
	require.Error(t, err)

	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 3, run.Partitions)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, runs.failed[run.ID], "failed to count legacy records")
	assert.False(t, runner.Running())
}

func TestRunner_CompletePersistenceFailureFailsRun(t *testing.T) {
	runs := newFakeRuns()
	runs.completeErr = conversiontest.ErrInjected
	events := &conversiontest.Events{}
	executor := NewExecutor(conversiontest.NewSource(records(3)...), &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 1})
	runner := NewRunner(executor, runs, nil, events, getTestLogger(), RunnerConfig{})

	run, err := runner.Run(context.Background(), RunRequest{})
	require.ErrorIs(t, err, conversiontest.ErrInjected)

	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, runs.failed[run.ID], "failed to record completed run")
	_, ok := runs.summary(run.ID)
	assert.False(t, ok)
	require.Len(t, events.Completed, 1)
	assert.Equal(t, "failed", events.Completed[0].Status)
	assert.Equal(t, int64(3), events.Completed[0].ReadCount)
	assert.False(t, runner.Running())
}

func TestRunner_LockHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{held: true}
	executor := NewExecutor(conversiontest.NewSource(), &fakeConverter{}, nil, getTestLogger(), Config{})
	runner := NewRunner(executor, newFakeRuns(), locker, nil, getTestLogger(), RunnerConfig{})

	_, err := runner.Run(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.False(t, runner.Running())
}

func TestRunner_StartRunsInBackground(t *testing.T) {
	runs := newFakeRuns()
	locker := &fakeLocker{}
	executor := NewExecutor(conversiontest.NewSource(records(3)...), &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 1})
	runner := NewRunner(executor, runs, locker, nil, getTestLogger(), RunnerConfig{})

	run, err := runner.Start(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	require.Eventually(t, func() bool {
		_, ok := runs.summary(run.ID)
		return ok && !runner.Running()
	}, 5*time.Second, 10*time.Millisecond)

	summary, _ := runs.summary(run.ID)
	assert.Equal(t, int64(3), summary.ProcessedCount)
}
