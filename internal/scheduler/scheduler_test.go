package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/pkg/metrics"
)

type fakeCycle struct {
	runs    atomic.Int64
	failFor int64 // first N runs fail
	err     error
}

func (f *fakeCycle) Run(ctx context.Context) error {
	n := f.runs.Add(1)
	if f.err != nil && (f.failFor == 0 || n <= f.failFor) {
		return f.err
	}
	return nil
}

type fakeClock struct {
	open bool
}

func (c *fakeClock) IsOpen() bool        { return c.open }
func (c *fakeClock) NextOpen() time.Time { return time.Now().Add(time.Hour) }

func newTestScheduler(t *testing.T, cycle CycleRunner, clock *fakeClock, opts Options) *Scheduler {
	t.Helper()
	log := zerolog.Nop()
	em := events.NewManager(log)
	rec := metrics.New(prometheus.NewRegistry())
	return New(cycle, clock, opts, em, rec, log)
}

func TestClampIntervalBounds(t *testing.T) {
	assert.Equal(t, 5*time.Minute, clampInterval(time.Second))
	assert.Equal(t, 5*time.Minute, clampInterval(5*time.Minute))
	assert.Equal(t, 30*time.Minute, clampInterval(30*time.Minute))
	assert.Equal(t, 240*time.Minute, clampInterval(10*time.Hour))
}

func TestRetriesExhaustAttempts(t *testing.T) {
	cycle := &fakeCycle{err: errors.New("feed down")}
	s := newTestScheduler(t, cycle, &fakeClock{open: true}, Options{
		Interval:      5 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		CycleTimeout:  time.Second,
	})

	err := s.runCycleWithRetries(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(3), cycle.runs.Load())
}

func TestRetriesStopOnFirstSuccess(t *testing.T) {
	cycle := &fakeCycle{err: errors.New("transient"), failFor: 2}
	s := newTestScheduler(t, cycle, &fakeClock{open: true}, Options{
		Interval:      5 * time.Minute,
		RetryAttempts: 5,
		RetryDelay:    time.Millisecond,
		CycleTimeout:  time.Second,
	})

	err := s.runCycleWithRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), cycle.runs.Load())
}

func TestRetriesAbortOnCanceledContext(t *testing.T) {
	cycle := &fakeCycle{err: context.Canceled}
	s := newTestScheduler(t, cycle, &fakeClock{open: true}, Options{
		Interval:      5 * time.Minute,
		RetryAttempts: 4,
		RetryDelay:    time.Millisecond,
		CycleTimeout:  time.Second,
	})

	err := s.runCycleWithRetries(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), cycle.runs.Load())
}

func TestBreakerOpensOnceRetriesAreExhausted(t *testing.T) {
	cycle := &fakeCycle{err: errors.New("broker unreachable")}
	s := newTestScheduler(t, cycle, &fakeClock{open: true}, Options{
		Interval:      5 * time.Minute,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		CycleTimeout:  time.Second,
	})

	// One Execute runs the full retry budget; exhausting it opens the
	// breaker immediately, not after further fully-retried failures.
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.runCycleWithRetries(context.Background())
	})
	require.Error(t, err)
	assert.Equal(t, int64(2), cycle.runs.Load())
	assert.Equal(t, "open", s.Status().BreakerState)

	// An open breaker rejects without invoking the cycle at all.
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.runCycleWithRetries(context.Background())
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int64(2), cycle.runs.Load())
}

func TestOpenBreakerSuppressesCycleAnnouncements(t *testing.T) {
	cycle := &fakeCycle{err: errors.New("feed down")}
	log := zerolog.Nop()
	em := events.NewManager(log)
	rec := metrics.New(prometheus.NewRegistry())
	s := New(cycle, &fakeClock{open: true}, Options{
		Interval:      5 * time.Minute,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		CycleTimeout:  time.Second,
		PollPeriod:    10 * time.Millisecond,
	}, em, rec, log)

	ch, unsub := em.Subscribe()
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// First pass fails and opens the breaker; kick past the interval sleep
	// so the loop reaches the cooldown polling path.
	time.Sleep(50 * time.Millisecond)
	s.Kick()
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(1), cycle.runs.Load())
	assert.Equal(t, "open", s.Status().BreakerState)

	started := 0
	for {
		select {
		case ev := <-ch:
			if ev.Type == events.CycleStarted {
				started++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, started)
}

func TestClosedMarketNeverRunsCycle(t *testing.T) {
	cycle := &fakeCycle{}
	s := newTestScheduler(t, cycle, &fakeClock{open: false}, Options{
		Interval:        5 * time.Minute,
		RetryAttempts:   1,
		RetryDelay:      time.Millisecond,
		CycleTimeout:    time.Second,
		MarketHoursOnly: true,
		PollPeriod:      10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(0), cycle.runs.Load())
	assert.Equal(t, StateWaitingForMarketOpen, s.Status().State)

	cancel()
	s.Stop()
	assert.Equal(t, StateStopped, s.Status().State)
}

func TestKickCoalesces(t *testing.T) {
	cycle := &fakeCycle{}
	s := newTestScheduler(t, cycle, &fakeClock{open: true}, Options{
		Interval:      5 * time.Minute,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		CycleTimeout:  time.Second,
	})

	s.Kick()
	s.Kick()
	s.Kick()
	assert.Len(t, s.kick, 1)
}

func TestStopIsIdempotent(t *testing.T) {
	cycle := &fakeCycle{}
	s := newTestScheduler(t, cycle, &fakeClock{open: false}, Options{
		Interval:        5 * time.Minute,
		RetryAttempts:   1,
		RetryDelay:      time.Millisecond,
		CycleTimeout:    time.Second,
		MarketHoursOnly: true,
		PollPeriod:      10 * time.Millisecond,
	})

	s.Start(context.Background())
	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.Status().State)
}
