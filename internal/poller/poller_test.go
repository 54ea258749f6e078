package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPollerRunsOnCadence(t *testing.T) {
	var runs int32
	p := NewPoller(20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, zap.NewNop())

	require.NoError(t, p.Start())
	defer p.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestPollerStartIsIdempotent(t *testing.T) {
	p := NewPoller(time.Hour, func(context.Context) error { return nil }, zap.NewNop())
	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	p.Stop()
	p.Stop()
}

func TestPollerSuspendSkipsRuns(t *testing.T) {
	var runs int32
	p := NewPoller(20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, zap.NewNop())

	p.Suspend()
	require.NoError(t, p.Start())
	defer p.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&runs), "suspended runs are skipped, not queued")

	p.Resume()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestPollerStopBeforeStart(t *testing.T) {
	p := NewPoller(time.Hour, func(context.Context) error { return nil }, zap.NewNop())
	p.Stop()
}
