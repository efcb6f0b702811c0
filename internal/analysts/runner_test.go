package analysts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// fakeAnalyst returns a canned signal, an error, or blocks past the deadline.
type fakeAnalyst struct {
	name   string
	signal *domain.Signal
	err    error
	block  bool
}

func (f *fakeAnalyst) Name() string { return f.name }

func (f *fakeAnalyst) Evaluate(ctx context.Context, ticker, _ string) (*domain.Signal, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	s := *f.signal
	s.Ticker = ticker
	return &s, nil
}

func newTestRunner(t *testing.T, timeout time.Duration, as ...Analyst) *Runner {
	t.Helper()
	rec := metrics.New(prometheus.NewRegistry())
	return NewRunner(as, timeout, rec, zerolog.Nop())
}

func bullish(name string, conf float64) *fakeAnalyst {
	return &fakeAnalyst{
		name:   name,
		signal: &domain.Signal{Analyst: name, Direction: domain.DirectionBullish, Confidence: conf},
	}
}

func TestRunCollectsAllSignals(t *testing.T) {
	r := newTestRunner(t, time.Second, bullish("a", 90), bullish("b", 80))

	res := r.Run(context.Background(), "AAPL", "2026-08-28")
	assert.Len(t, res.Signals, 2)
	assert.Empty(t, res.Missing)
	assert.False(t, res.AllFailed())
}

func TestRunToleratesPartialFailure(t *testing.T) {
	failing := &fakeAnalyst{name: "b", err: errors.New("feed down")}
	r := newTestRunner(t, time.Second, bullish("a", 90), failing)

	res := r.Run(context.Background(), "AAPL", "2026-08-28")
	assert.Len(t, res.Signals, 1)
	assert.Equal(t, []string{"b"}, res.Missing)
	assert.False(t, res.AllFailed())
}

func TestRunTimesOutSlowAnalyst(t *testing.T) {
	slow := &fakeAnalyst{name: "slow", block: true}
	r := newTestRunner(t, 50*time.Millisecond, bullish("fast", 70), slow)

	start := time.Now()
	res := r.Run(context.Background(), "AAPL", "2026-08-28")

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, res.Signals, 1)
	assert.Equal(t, []string{"slow"}, res.Missing)
}

func TestRunAllFailed(t *testing.T) {
	r := newTestRunner(t, time.Second,
		&fakeAnalyst{name: "a", err: errors.New("down")},
		&fakeAnalyst{name: "b", err: errors.New("down")},
	)

	res := r.Run(context.Background(), "AAPL", "2026-08-28")
	assert.True(t, res.AllFailed())
	assert.Len(t, res.Missing, 2)
}

func TestRegistrySelectUnknownAnalyst(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(bullish("technical", 50))

	_, err := reg.Select([]string{"technical", "astrology"})
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegistrySelectEmptyReturnsAll(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(bullish("a", 50))
	reg.Register(bullish("b", 50))

	all, err := reg.Select(nil)
	assert.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}
