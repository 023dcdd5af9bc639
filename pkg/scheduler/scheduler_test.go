package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timoknapp/contest-dashboard/pkg/models"
)

type countingRefresher struct{ calls int32 }

func (r *countingRefresher) Refresh(ctx context.Context) ([]models.Contest, models.Availability) {
	atomic.AddInt32(&r.calls, 1)
	return []models.Contest{{Id: 1}}, models.AvailabilityFresh
}

type countingSweeper struct {
	calls   int32
	maxIdle time.Duration
}

func (s *countingSweeper) Sweep(maxIdle time.Duration) int {
	atomic.AddInt32(&s.calls, 1)
	s.maxIdle = maxIdle
	return 0
}

func TestNewRegistersJobs(t *testing.T) {
	cfg := Config{WarmupEnabled: true, WarmupCron: "*/5 * * * *", SweepCron: "@hourly", SessionMaxIdle: time.Hour}
	s, err := New(cfg, &countingRefresher{}, &countingSweeper{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	cfg.WarmupEnabled = false
	s, err = New(cfg, &countingRefresher{}, &countingSweeper{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
}

func TestNewRejectsBadCronExpression(t *testing.T) {
	_, err := New(Config{WarmupEnabled: true, WarmupCron: "nope", SweepCron: "@hourly"}, &countingRefresher{}, &countingSweeper{})
	assert.Error(t, err)
}

func TestJobsDelegate(t *testing.T) {
	ref := &countingRefresher{}
	sw := &countingSweeper{}
	s, err := New(Config{WarmupEnabled: true, WarmupCron: "@every 1h", SweepCron: "@every 1h", SessionMaxIdle: 3 * time.Hour}, ref, sw)
	require.NoError(t, err)

	s.Warmup()
	s.Sweep()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ref.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sw.calls))
	assert.Equal(t, 3*time.Hour, sw.maxIdle)
}

func TestStartStop(t *testing.T) {
	ref := &countingRefresher{}
	s, err := New(Config{WarmupEnabled: true, WarmupCron: "@every 1s", SweepCron: "@hourly", SessionMaxIdle: time.Hour}, ref, &countingSweeper{})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&ref.calls) >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
