package vectorstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Janitor periodically purges expired points from the collection.
// Search already filters by expires_at, so the janitor only reclaims
// storage; a missed run never serves stale entries.
type Janitor struct {
	client   *Client
	interval time.Duration
	logger   *logrus.Logger
	runs     int64
	failures int64
}

// NewJanitor creates a janitor sweeping at the given interval.
func NewJanitor(client *Client, interval time.Duration, logger *logrus.Logger) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Janitor{
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.WithField("interval", j.interval).Info("Vector store janitor started")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Vector store janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	atomic.AddInt64(&j.runs, 1)

	sweepCtx, cancel := context.WithTimeout(ctx, j.interval)
	defer cancel()

	if err := j.client.DeleteExpired(sweepCtx); err != nil {
		atomic.AddInt64(&j.failures, 1)
		j.logger.WithError(err).Warn("Janitor sweep failed")
	}
}

// Runs reports how many sweeps have started.
func (j *Janitor) Runs() int64 {
	return atomic.LoadInt64(&j.runs)
}

// Failures reports how many sweeps errored.
func (j *Janitor) Failures() int64 {
	return atomic.LoadInt64(&j.failures)
}
