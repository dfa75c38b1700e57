package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

// HashBackfiller computes missing content hashes and reports how many were written
type HashBackfiller interface {
	UpdateAllHashes(ctx context.Context) (int, error)
}

// HashBackfillJob periodically fills in content hashes for legacy scenarios.
// Only one run executes at a time; overlapping triggers are rejected.
type HashBackfillJob struct {
	Backfiller HashBackfiller
	Interval   time.Duration
	Timeout    time.Duration

	running sync.Mutex
	logger  *logrus.Entry
}

func NewHashBackfillJob(backfiller HashBackfiller, interval time.Duration) *HashBackfillJob {
	return &HashBackfillJob{
		Backfiller: backfiller,
		Interval:   interval,
		Timeout:    30 * time.Minute,
		logger:     logrus.WithField("component", "HashBackfillJob"),
	}
}

// Start runs the job immediately and then on every interval until ctx is done.
// A zero interval runs once at startup only.
func (j *HashBackfillJob) Start(ctx context.Context) {
	if j.Interval > 0 {
		j.logger.WithField("interval", j.Interval).Info("Starting hash backfill job")
	} else {
		j.logger.Info("Hash backfill schedule disabled, running once at startup")
	}

	go func() {
		j.runLogged(ctx)

		if j.Interval <= 0 {
			return
		}

		ticker := time.NewTicker(j.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Info("Hash backfill job stopped")
				return
			case <-ticker.C:
				j.runLogged(ctx)
			}
		}
	}()
}

// Run executes one backfill pass. It returns a resource error when another
// pass is already in progress.
func (j *HashBackfillJob) Run(ctx context.Context) (int, error) {
	if !j.running.TryLock() {
		return 0, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeServiceUnavailable,
			"hash backfill already running", "HashBackfillJob", "Run", true, nil)
	}
	defer j.running.Unlock()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	j.logger.Info("Running hash backfill job")

	updated, err := j.Backfiller.UpdateAllHashes(ctx)
	if err != nil {
		return 0, err
	}

	j.logger.WithFields(logrus.Fields{
		"updated":  updated,
		"duration": time.Since(startTime),
	}).Info("Hash backfill job completed")

	return updated, nil
}

func (j *HashBackfillJob) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.WithError(err).Error("Hash backfill job failed")
	}
}
