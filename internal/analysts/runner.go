package analysts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// RunResult is the outcome of fanning one ticker out to every analyst.
type RunResult struct {
	Ticker  string
	Signals []domain.Signal
	// Missing lists analysts that failed or timed out. The aggregator
	// treats each missing analyst as an absent opinion.
	Missing []string
}

// AllFailed reports whether no analyst produced a signal.
func (r RunResult) AllFailed() bool {
	return len(r.Signals) == 0
}

// Runner fans a ticker out to a set of analysts concurrently. Each analyst
// gets its own timeout so one slow data source cannot stall the cycle, and a
// failing analyst only shrinks the signal set rather than failing the run.
type Runner struct {
	analysts []Analyst
	timeout  time.Duration
	recorder *metrics.Recorder
	log      zerolog.Logger
}

// NewRunner creates a runner over the given analysts. timeout bounds each
// individual analyst evaluation.
func NewRunner(analysts []Analyst, timeout time.Duration, recorder *metrics.Recorder, log zerolog.Logger) *Runner {
	return &Runner{
		analysts: analysts,
		timeout:  timeout,
		recorder: recorder,
		log:      log.With().Str("component", "analyst_runner").Logger(),
	}
}

// ExpectedCount returns how many analysts participate in each run.
func (r *Runner) ExpectedCount() int {
	return len(r.analysts)
}

// Run evaluates the ticker with every analyst in parallel and collects
// whatever signals come back before the deadline. The returned result is
// never nil; callers check AllFailed for the degenerate case.
func (r *Runner) Run(ctx context.Context, ticker, endDate string) *RunResult {
	type outcome struct {
		analyst string
		signal  *domain.Signal
		err     error
	}

	results := make(chan outcome, len(r.analysts))
	var wg sync.WaitGroup

	for _, a := range r.analysts {
		wg.Add(1)
		go func(a Analyst) {
			defer wg.Done()

			actx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			sig, err := a.Evaluate(actx, ticker, endDate)
			if err != nil && errors.Is(err, context.DeadlineExceeded) {
				err = &domain.AnalystTimeoutError{Analyst: a.Name(), Ticker: ticker}
			}
			results <- outcome{analyst: a.Name(), signal: sig, err: err}
		}(a)
	}

	wg.Wait()
	close(results)

	res := &RunResult{Ticker: ticker}
	for out := range results {
		if out.err != nil {
			r.log.Warn().
				Err(out.err).
				Str("ticker", ticker).
				Str("analyst", out.analyst).
				Msg("Analyst failed, continuing without its signal")
			r.recorder.RecordAnalystFailure(out.analyst)
			res.Missing = append(res.Missing, out.analyst)
			continue
		}
		if out.signal == nil {
			r.recorder.RecordAnalystFailure(out.analyst)
			res.Missing = append(res.Missing, out.analyst)
			continue
		}
		res.Signals = append(res.Signals, *out.signal)
	}

	if res.AllFailed() {
		r.log.Error().Str("ticker", ticker).Msg("All analysts failed for ticker")
	}

	return res
}
