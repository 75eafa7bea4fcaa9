package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/enrich/internal/logger"
	"github.com/deusflow/enrich/internal/metrics"
)

func quiet() *slog.Logger { return logger.Discard() }

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("every tuesday-ish", time.UTC, func(context.Context) error { return nil }, nil, quiet())
	assert.Error(t, err)

	_, err = New("@hourly", time.UTC, nil, nil, quiet())
	assert.Error(t, err)
}

func TestStartStopAreIdempotent(t *testing.T) {
	s, err := New("@hourly", time.UTC, func(context.Context) error { return nil }, nil, quiet())
	require.NoError(t, err)

	assert.False(t, s.Running())
	s.Start(context.Background())
	s.Start(context.Background())
	assert.True(t, s.Running())
	assert.False(t, s.Status().NextRun.IsZero())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	s.Start(context.Background())
	assert.True(t, s.Running())
	s.Stop()
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var runs atomic.Int32
	m := metrics.New()

	s, err := New("@hourly", time.UTC, func(context.Context) error {
		runs.Add(1)
		close(entered)
		<-release
		return nil
	}, m, quiet())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.tick()
		close(done)
	}()
	<-entered

	assert.True(t, s.Busy())
	s.tick()
	assert.ErrorIs(t, s.Trigger(context.Background()), ErrBusy)
	assert.ErrorIs(t, s.RunNow(context.Background()), ErrBusy)

	close(release)
	<-done

	assert.EqualValues(t, 1, runs.Load())
	assert.EqualValues(t, 1, s.Status().Skipped)
	assert.EqualValues(t, 1, m.TicksSkipped)
	assert.False(t, s.Busy())
}

func TestStopDoesNotInterruptInFlightTick(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var finished atomic.Bool

	s, err := New("@hourly", time.UTC, func(ctx context.Context) error {
		close(entered)
		<-release
		finished.Store(ctx.Err() == nil)
		return nil
	}, nil, quiet())
	require.NoError(t, err)
	s.Start(context.Background())

	require.NoError(t, s.Trigger(context.Background()))
	<-entered
	s.Stop()
	close(release)

	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
}

func TestRunNowRecordsErrorsAndPanics(t *testing.T) {
	calls := 0
	s, err := New("@hourly", time.UTC, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("feeds unreachable")
		}
		panic("nil map")
	}, nil, quiet())
	require.NoError(t, err)

	err = s.RunNow(context.Background())
	assert.EqualError(t, err, "feeds unreachable")
	assert.Equal(t, "feeds unreachable", s.Status().LastError)

	require.NotPanics(t, func() { err = s.RunNow(context.Background()) })
	assert.ErrorContains(t, err, "panicked")
	assert.EqualValues(t, 2, s.Status().Ticks)
	assert.False(t, s.Busy())
}

func TestCronFiresTicks(t *testing.T) {
	var runs atomic.Int32
	s, err := New("@every 1s", time.UTC, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil, quiet())
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
}
