// Package scheduler drives autonomous trading cycles.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/meridianfund/meridian/internal/config"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle                 State = "IDLE"
	StateWaitingForMarketOpen State = "WAITING_FOR_MARKET_OPEN"
	StateRunningCycle         State = "RUNNING_CYCLE"
	StateSleeping             State = "SLEEPING"
	StateStopped              State = "STOPPED"
)

// maxRetryBackoff caps the exponential backoff between retry attempts.
const maxRetryBackoff = 5 * time.Minute

// CycleRunner runs one full trading cycle.
type CycleRunner interface {
	Run(ctx context.Context) error
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CyclesCompleted     int64     `json:"cycles_completed"`
	LastCycleAt         time.Time `json:"last_cycle_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	NextRunAt           time.Time `json:"next_run_at,omitempty"`
	BreakerState        string    `json:"breaker_state"`
}

// Scheduler runs trading cycles on a fixed interval while the market is
// open, retries failed cycles with exponential backoff, and trips a circuit
// breaker after repeated consecutive failures so a persistently broken
// dependency gets a long cooldown instead of a hammering retry loop.
type Scheduler struct {
	cycle    CycleRunner
	clock    domain.MarketClock
	interval time.Duration

	retryAttempts int
	retryDelay    time.Duration
	cycleTimeout  time.Duration

	marketHoursOnly bool
	pollPeriod      time.Duration

	breaker  *gobreaker.CircuitBreaker
	cron     *cron.Cron
	events   *events.Manager
	recorder *metrics.Recorder
	log      zerolog.Logger

	kick   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu                  sync.RWMutex
	state               State
	consecutiveFailures int
	cyclesCompleted     int64
	lastCycleAt         time.Time
	lastErr             error
	nextRunAt           time.Time
	stopped             bool
}

// Options configures a Scheduler.
type Options struct {
	Interval        time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	CycleTimeout    time.Duration
	MarketHoursOnly bool
	PollPeriod      time.Duration
	Location        *time.Location
}

// New creates a scheduler. The interval is clamped to the allowed range so a
// misconfigured value can slow trading down but never turn it into a
// tight loop or a dead schedule.
func New(cycle CycleRunner, clock domain.MarketClock, opts Options, em *events.Manager, recorder *metrics.Recorder, log zerolog.Logger) *Scheduler {
	interval := clampInterval(opts.Interval)

	s := &Scheduler{
		cycle:           cycle,
		clock:           clock,
		interval:        interval,
		retryAttempts:   opts.RetryAttempts,
		retryDelay:      opts.RetryDelay,
		cycleTimeout:    opts.CycleTimeout,
		marketHoursOnly: opts.MarketHoursOnly,
		pollPeriod:      opts.PollPeriod,
		events:          em,
		recorder:        recorder,
		log:             log.With().Str("service", "scheduler").Logger(),
		kick:            make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		state:           StateIdle,
	}
	if s.retryAttempts < 1 {
		s.retryAttempts = 1
	}
	if s.pollPeriod <= 0 {
		s.pollPeriod = time.Minute
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "trading_cycle",
		MaxRequests: 1,
		// Cooldown runs twice the trading interval before a probe cycle.
		Timeout: 2 * interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// One Execute is a fully-retried cycle: a single failure here
			// already means retryAttempts consecutive cycle failures.
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			s.log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cycle breaker state changed")
			if to == gobreaker.StateOpen {
				s.events.Emit(events.CircuitOpened, "scheduler", map[string]interface{}{
					"cooldown_seconds": (2 * interval).Seconds(),
				})
			}
		},
	})

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s.cron = cron.New(cron.WithLocation(loc))
	// Kick a cycle one minute after the opening bell on weekdays so the
	// first pass of the day does not wait out a sleep that started
	// before the open.
	if _, err := s.cron.AddFunc("31 9 * * 1-5", s.Kick); err != nil {
		s.log.Error().Err(err).Msg("Failed to register market-open kicker")
	}

	return s
}

func clampInterval(d time.Duration) time.Duration {
	min := time.Duration(config.MinTradingIntervalMinutes) * time.Minute
	max := time.Duration(config.MaxTradingIntervalMinutes) * time.Minute
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// Start launches the scheduling loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	s.log.Info().
		Dur("interval", s.interval).
		Bool("market_hours_only", s.marketHoursOnly).
		Msg("Scheduler started")
}

// Stop halts the loop and blocks until it has fully wound down. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
	s.setState(StateStopped)
	s.log.Info().Msg("Scheduler stopped")
}

// Kick requests an immediate cycle, skipping the current sleep. Kicks
// coalesce; at most one is pending.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:               s.state,
		ConsecutiveFailures: s.consecutiveFailures,
		CyclesCompleted:     s.cyclesCompleted,
		LastCycleAt:         s.lastCycleAt,
		NextRunAt:           s.nextRunAt,
		BreakerState:        s.breaker.State().String(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if s.marketHoursOnly && !s.clock.IsOpen() {
			s.setState(StateWaitingForMarketOpen)
			s.setNextRun(s.clock.NextOpen())
			if !s.pause(ctx, s.pollPeriod) {
				return
			}
			continue
		}

		if s.breaker.State() == gobreaker.StateOpen {
			// Cooldown in progress. Poll for the breaker to close without
			// announcing cycles that cannot run.
			s.setState(StateSleeping)
			s.setNextRun(time.Now().Add(s.pollPeriod))
			if !s.pause(ctx, s.pollPeriod) {
				return
			}
			continue
		}

		s.setState(StateRunningCycle)
		s.events.Emit(events.CycleStarted, "scheduler", nil)
		start := time.Now()

		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.runCycleWithRetries(ctx)
		})

		elapsed := time.Since(start)
		s.recordOutcome(err, elapsed)

		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Dur("elapsed", elapsed).Msg("Trading cycle failed")
		}

		s.setState(StateSleeping)
		sleepFor := s.interval
		if errors.Is(err, gobreaker.ErrOpenState) {
			// The breaker manages its own cooldown; poll it instead of
			// sleeping a whole trading interval past its recovery.
			sleepFor = s.pollPeriod
		}
		s.setNextRun(time.Now().Add(sleepFor))
		if !s.pause(ctx, sleepFor) {
			return
		}
	}
}

// runCycleWithRetries runs one cycle, retrying transient failures with
// exponential backoff. Attempt n waits retryDelay * 2^(n-1), capped.
func (s *Scheduler) runCycleWithRetries(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
		err := s.cycle.Run(cctx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}

		if attempt < s.retryAttempts {
			backoff := s.retryDelay << (attempt - 1)
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Cycle attempt failed, backing off")
			if !s.pause(ctx, backoff) {
				return err
			}
		}
	}
	return lastErr
}

func (s *Scheduler) recordOutcome(err error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCycleAt = time.Now()
	s.lastErr = err
	if err == nil {
		s.consecutiveFailures = 0
		s.cyclesCompleted++
		s.recorder.RecordCycle("success", elapsed.Seconds())
		s.events.Emit(events.CycleCompleted, "scheduler", map[string]interface{}{
			"elapsed_seconds": elapsed.Seconds(),
		})
		return
	}

	if !errors.Is(err, gobreaker.ErrOpenState) {
		s.consecutiveFailures++
		s.recorder.RecordCycle("failure", elapsed.Seconds())
		s.events.Emit(events.CycleFailed, "scheduler", map[string]interface{}{
			"error":                err.Error(),
			"consecutive_failures": s.consecutiveFailures,
		})
	}
}

// pause sleeps for d but wakes early on a kick, stop, or context
// cancellation. It reports false when the scheduler should exit.
func (s *Scheduler) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.kick:
		s.log.Info().Msg("Sleep interrupted by kick")
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()

	if changed {
		s.events.Emit(events.SchedulerState, "scheduler", map[string]interface{}{
			"state": string(st),
		})
		s.log.Debug().Str("state", string(st)).Msg("Scheduler state changed")
	}
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRunAt = t
	s.mu.Unlock()
}
