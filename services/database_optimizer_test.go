package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

func newTestDatabaseOptimizer() *DatabaseOptimizer {
	return NewDatabaseOptimizer(shared.DatabaseConfig{
		MaxRetries:         3,
		RetryBaseDelay:     time.Millisecond,
		RetryMaxDelay:      5 * time.Millisecond,
		SlowQueryThreshold: time.Second,
	})
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	optimizer := newTestDatabaseOptimizer()

	attempts := 0
	err := optimizer.ExecuteWithRetry(context.Background(), "FindActive", func() error {
		attempts++
		if attempts < 3 {
			return &pq.Error{Code: "08006"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	metrics := optimizer.Metrics().GetSnapshot()
	assert.Equal(t, int64(3), metrics.TotalQueries)
	assert.Equal(t, int64(1), metrics.SuccessfulQueries)
	assert.Equal(t, int64(2), metrics.RetryAttempts)
}

func TestExecuteWithRetryStopsOnPermanentErrors(t *testing.T) {
	optimizer := newTestDatabaseOptimizer()
	permanent := &pq.Error{Code: "42703", Message: "column does not exist"}

	attempts := 0
	err := optimizer.ExecuteWithRetry(context.Background(), "FindActive", func() error {
		attempts++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestExecuteWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	optimizer := newTestDatabaseOptimizer()

	attempts := 0
	err := optimizer.ExecuteWithRetry(context.Background(), "FindActive", func() error {
		attempts++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 retries")
	assert.Equal(t, 4, attempts)
}

func TestExecuteWithRetryHonorsCancellation(t *testing.T) {
	optimizer := NewDatabaseOptimizer(shared.DatabaseConfig{
		MaxRetries:         5,
		RetryBaseDelay:     time.Hour,
		RetryMaxDelay:      time.Hour,
		SlowQueryThreshold: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := optimizer.ExecuteWithRetry(ctx, "FindActive", func() error {
		return errors.New("connection reset")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	optimizer := NewDatabaseOptimizer(shared.DatabaseConfig{
		MaxRetries:     5,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  time.Second,
	})

	assert.Equal(t, 100*time.Millisecond, optimizer.backoffDelay(1))
	assert.Equal(t, 200*time.Millisecond, optimizer.backoffDelay(2))
	assert.Equal(t, 400*time.Millisecond, optimizer.backoffDelay(3))
	assert.Equal(t, time.Second, optimizer.backoffDelay(5))
}
