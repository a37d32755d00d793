// Package janitor runs the background sweep that prunes expired context
// snapshots on a cron schedule.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/forgemcp/gateway/internal/retry"
)

// Pruner is the persistence surface the janitor depends on.
type Pruner interface {
	PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error)
}

// Janitor wraps a cron.Cron instance running a single recurring snapshot
// sweep.
type Janitor struct {
	cron   *cron.Cron
	pruner Pruner
	maxAge time.Duration
	log    *slog.Logger
}

// New constructs a Janitor that, once Start is called, prunes snapshots
// older than maxAge on schedule (a standard five-field cron expression, or
// one of cron's "@hourly"/"@daily" descriptors).
func New(pruner Pruner, schedule string, maxAge time.Duration, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		cron:   cron.New(),
		pruner: pruner,
		maxAge: maxAge,
		log:    logger.With("component", "janitor"),
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins running the scheduled sweep in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// sweep retries a transient store failure (e.g. a momentarily locked
// database) a few times on a short exponential backoff before giving up
// until the next scheduled run.
func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.maxAge)
	n, result := retry.DoWithValue(ctx, retry.Exponential(3, 200*time.Millisecond, 5*time.Second), func() (int64, error) {
		return j.pruner.PruneSnapshots(ctx, cutoff)
	})
	if result.Err != nil {
		j.log.Error("snapshot sweep failed", "error", result.Err, "attempts", result.Attempts)
		return
	}
	if n > 0 {
		j.log.Info("pruned expired context snapshots", "count", n, "cutoff", cutoff, "attempts", result.Attempts)
	}
}
