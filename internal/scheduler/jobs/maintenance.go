package jobs

import (
	"context"

	"github.com/wonny/helios/internal/factorcache"
	"github.com/wonny/helios/pkg/logger"
)

// CacheSweepJob removes expired and unreadable factor cache entries
type CacheSweepJob struct {
	cache  *factorcache.Cache
	logger *logger.Logger
}

// NewCacheSweepJob creates a new cache sweep job
func NewCacheSweepJob(cache *factorcache.Cache, log *logger.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		cache:  cache,
		logger: log,
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

// Schedule returns the cron schedule (every day at 3 AM)
func (j *CacheSweepJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run executes the cache sweep
func (j *CacheSweepJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled factor cache sweep")

	count, err := j.cache.Sweep()
	if err != nil {
		return err
	}

	if count > 0 {
		j.logger.WithField("removed", count).Info("Factor cache sweep completed")
	}

	return nil
}
