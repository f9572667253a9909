// Package jobs holds the gateway's periodic background work.
//
// quota_reset.go implements QuotaResetJob, which zeroes daily and monthly usage
// counters once their reset time has passed. The reset is a single UPDATE, so several
// replicas running the job at once only repeat a no-op.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQuotaResetInterval is used when no positive interval is configured
const DefaultQuotaResetInterval = time.Hour

// QuotaResetter is implemented by *repositories.QuotaRepository
type QuotaResetter interface {
	ResetExpired(ctx context.Context, now time.Time) (int64, error)
}

// QuotaResetJob periodically resets expired quota counters
type QuotaResetJob struct {
	quotas   QuotaResetter
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewQuotaResetJob creates a QuotaResetJob. A non-positive interval means
// DefaultQuotaResetInterval.
func NewQuotaResetJob(quotas QuotaResetter, interval time.Duration) *QuotaResetJob {
	if interval <= 0 {
		interval = DefaultQuotaResetInterval
	}
	return &QuotaResetJob{
		quotas:   quotas,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default().With("job", "quota_reset"),
		stopChan: make(chan struct{}),
	}
}

// Start runs a reset immediately and then on every tick until ctx is cancelled or
// Stop is called. It blocks; run it in its own goroutine.
func (j *QuotaResetJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("quota reset job started", "interval", j.interval)

	j.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			j.logger.Info("quota reset job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("quota reset job context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (j *QuotaResetJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// RunOnce resets every expired quota and returns how many were reset
func (j *QuotaResetJob) RunOnce(ctx context.Context) int64 {
	n, err := j.quotas.ResetExpired(ctx, j.now().UTC())
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to reset expired quotas", "error", err)
		return 0
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "reset expired quotas", "count", n)
	}
	return n
}
