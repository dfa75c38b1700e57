package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

type stubBackfiller struct {
	calls   atomic.Int32
	updated int
	err     error
	release chan struct{}
	started chan struct{}
}

func (s *stubBackfiller) UpdateAllHashes(ctx context.Context) (int, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.updated, s.err
}

func TestHashBackfillJobRun(t *testing.T) {
	backfiller := &stubBackfiller{updated: 3}
	job := NewHashBackfillJob(backfiller, time.Hour)

	updated, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, updated)
	assert.Equal(t, int32(1), backfiller.calls.Load())
}

func TestHashBackfillJobRunPropagatesErrors(t *testing.T) {
	backfiller := &stubBackfiller{err: errors.New("store down")}
	job := NewHashBackfillJob(backfiller, time.Hour)

	updated, err := job.Run(context.Background())
	assert.EqualError(t, err, "store down")
	assert.Equal(t, 0, updated)
}

func TestHashBackfillJobRejectsOverlappingRuns(t *testing.T) {
	backfiller := &stubBackfiller{
		updated: 1,
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	job := NewHashBackfillJob(backfiller, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()
	<-backfiller.started

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.ErrorCategoryResource, shared.CategoryOf(err))

	close(backfiller.release)
	require.NoError(t, <-done)

	// The lock is released once the first run finishes
	backfiller.started = nil
	_, err = job.Run(context.Background())
	assert.NoError(t, err)
}

func TestHashBackfillJobAppliesTimeout(t *testing.T) {
	backfiller := &stubBackfiller{release: make(chan struct{})}
	job := NewHashBackfillJob(backfiller, time.Hour)
	job.Timeout = 20 * time.Millisecond

	_, err := job.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHashBackfillJobStartRunsImmediatelyAndOnSchedule(t *testing.T) {
	backfiller := &stubBackfiller{}
	job := NewHashBackfillJob(backfiller, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.Start(ctx)

	assert.Eventually(t, func() bool {
		return backfiller.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHashBackfillJobStartOnceWithoutInterval(t *testing.T) {
	backfiller := &stubBackfiller{}
	job := NewHashBackfillJob(backfiller, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.Start(ctx)

	assert.Eventually(t, func() bool {
		return backfiller.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), backfiller.calls.Load())
}
