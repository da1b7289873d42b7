package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/services/checkout"
)

type countingJob struct {
	name  string
	runs  int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zap.NewNop(), time.Second)

	require.NoError(t, s.AddJob("@every 10m", &countingJob{name: "a"}))
	require.NoError(t, s.AddJob("0 3 * * *", &countingJob{name: "b"}))
	assert.Error(t, s.AddJob("every ten minutes", &countingJob{name: "c"}))

	assert.Equal(t, []string{"a", "b"}, s.Jobs())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(zap.NewNop(), time.Second)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zap.NewNop(), time.Second)

	ok := &countingJob{name: "ok"}
	require.NoError(t, s.RunNow(ok))
	assert.Equal(t, int32(1), ok.runs)

	failing := &countingJob{name: "failing", err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(failing), "boom")
}

func TestScheduler_TimeoutBoundsRun(t *testing.T) {
	s := New(zap.NewNop(), 20*time.Millisecond)
	job := &countingJob{name: "slow", block: make(chan struct{})}

	err := s.RunNow(job)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := New(zap.NewNop(), 0)
	job := &countingJob{name: "slow", block: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- s.RunNow(job) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled")
	}
}

type stubReconciler struct {
	calls int
	err   error
}

func (r *stubReconciler) ReconcilePending(context.Context) (*checkout.ReconcileResult, error) {
	r.calls++
	return &checkout.ReconcileResult{}, r.err
}

type stubCleaner struct {
	retention time.Duration
	removed   int64
	err       error
}

func (c *stubCleaner) CleanupOldAttempts(_ context.Context, retention time.Duration) (int64, error) {
	c.retention = retention
	return c.removed, c.err
}

func TestJobs(t *testing.T) {
	ctx := context.Background()

	reconciler := &stubReconciler{}
	reconcile := NewReconcileJob(reconciler)
	assert.Equal(t, "payment_reconcile", reconcile.Name())
	require.NoError(t, reconcile.Run(ctx))
	assert.Equal(t, 1, reconciler.calls)

	reconciler.err = errors.New("db down")
	assert.Error(t, reconcile.Run(ctx))

	cleaner := &stubCleaner{removed: 12}
	cleanup := NewLoginCleanupJob(cleaner, 30*24*time.Hour, zap.NewNop())
	assert.Equal(t, "login_attempt_cleanup", cleanup.Name())
	require.NoError(t, cleanup.Run(ctx))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)
}
