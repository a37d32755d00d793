package janitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	calls   atomic.Int64
	pruned  int64
}

func (f *fakePruner) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	f.calls.Add(1)
	return f.pruned, nil
}

func TestJanitorRunsOnSchedule(t *testing.T) {
	pruner := &fakePruner{pruned: 3}
	j, err := New(pruner, "@every 50ms", time.Hour, nil)
	require.NoError(t, err)

	j.Start()
	defer j.Stop()

	require.Eventually(t, func() bool {
		return pruner.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	_, err := New(&fakePruner{}, "not a schedule", time.Hour, nil)
	require.Error(t, err)
}
