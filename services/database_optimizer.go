package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

// RetryConfig holds retry configuration for database operations
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DatabaseOptimizer runs store queries with exponential backoff and records
// each attempt in DatabaseMetrics.
type DatabaseOptimizer struct {
	retryConfig        RetryConfig
	slowQueryThreshold time.Duration
	metrics            *shared.DatabaseMetrics
	logger             *logrus.Entry
}

// NewDatabaseOptimizer creates an optimizer from the database section of the configuration
func NewDatabaseOptimizer(config shared.DatabaseConfig) *DatabaseOptimizer {
	return &DatabaseOptimizer{
		retryConfig: RetryConfig{
			MaxRetries:    config.MaxRetries,
			BaseDelay:     config.RetryBaseDelay,
			MaxDelay:      config.RetryMaxDelay,
			BackoffFactor: 2.0,
		},
		slowQueryThreshold: config.SlowQueryThreshold,
		metrics:            shared.NewDatabaseMetrics(),
		logger:             logrus.WithField("component", "DatabaseOptimizer"),
	}
}

// Metrics returns the query metrics collected so far
func (opt *DatabaseOptimizer) Metrics() *shared.DatabaseMetrics {
	return opt.metrics
}

// ExecuteWithRetry executes a database operation with exponential backoff retry.
// Only errors classified by shared.IsRetryableError are retried.
func (opt *DatabaseOptimizer) ExecuteWithRetry(ctx context.Context, operationName string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= opt.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := opt.backoffDelay(attempt)
			opt.metrics.RecordRetryAttempt()

			opt.logger.WithFields(logrus.Fields{
				"operation": operationName,
				"attempt":   attempt,
				"delay":     delay,
				"error":     lastErr,
			}).Warn("Retrying database operation")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		startTime := time.Now()
		err := operation()
		duration := time.Since(startTime)

		isSlow := duration > opt.slowQueryThreshold
		opt.metrics.RecordQuery(err == nil, duration, isSlow)
		if isSlow {
			opt.logger.WithFields(logrus.Fields{
				"operation": operationName,
				"duration":  duration,
				"attempt":   attempt,
			}).Warn("Slow database query detected")
		}

		if err == nil {
			if attempt > 0 {
				opt.logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempt":   attempt,
					"duration":  duration,
				}).Info("Database operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || !shared.IsRetryableError(err) {
			return err
		}
	}

	opt.logger.WithFields(logrus.Fields{
		"operation":   operationName,
		"max_retries": opt.retryConfig.MaxRetries,
		"final_error": lastErr,
	}).Error("Database operation failed after all retries")

	return fmt.Errorf("database operation failed after %d retries: %w", opt.retryConfig.MaxRetries, lastErr)
}

func (opt *DatabaseOptimizer) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(opt.retryConfig.BaseDelay) *
		math.Pow(opt.retryConfig.BackoffFactor, float64(attempt-1)))
	if delay > opt.retryConfig.MaxDelay {
		delay = opt.retryConfig.MaxDelay
	}
	return delay
}
