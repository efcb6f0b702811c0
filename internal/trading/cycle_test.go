package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/analysts"
	"github.com/meridianfund/meridian/internal/decision"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/internal/oracle"
	"github.com/meridianfund/meridian/internal/risk"
	"github.com/meridianfund/meridian/internal/signals"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// staticDataClient serves a fixed close price and nothing else.
type staticDataClient struct {
	price float64
}

func (c *staticDataClient) GetPrices(_ context.Context, _, _, endDate string) ([]domain.Price, error) {
	return []domain.Price{{Time: endDate, Close: c.price}}, nil
}

func (c *staticDataClient) GetFinancialMetrics(_ context.Context, ticker, _ string, _ int) ([]domain.FinancialMetrics, error) {
	return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "financial-metrics", Err: errors.New("unavailable")}
}

func (c *staticDataClient) GetInsiderTrades(_ context.Context, ticker, _ string, _ int) ([]domain.InsiderTrade, error) {
	return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "insider-trades", Err: errors.New("unavailable")}
}

func (c *staticDataClient) GetCompanyNews(_ context.Context, ticker, _ string, _ int) ([]domain.CompanyNews, error) {
	return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "news", Err: errors.New("unavailable")}
}

type erroringAnalyst struct {
	name string
}

func (a erroringAnalyst) Name() string { return a.name }

func (a erroringAnalyst) Evaluate(_ context.Context, _, _ string) (*domain.Signal, error) {
	return nil, errors.New("feed down")
}

func TestCycleHoldsWhenEveryAnalystFails(t *testing.T) {
	f := newFixture(t, 100000, &fakeBroker{price: 150})
	log := zerolog.Nop()
	rec := metrics.New(prometheus.NewRegistry())

	runner := analysts.NewRunner(
		[]analysts.Analyst{erroringAnalyst{"alpha"}, erroringAnalyst{"beta"}},
		time.Second, rec, log,
	)
	aggregator := signals.NewAggregator(runner.ExpectedCount(), log)
	riskMgr, err := risk.NewManager(25000, 1000000, 0.20, log)
	require.NoError(t, err)
	engine := decision.NewEngine(oracle.NewRuleOracle(30, log), []string{"AAPL"}, rec, log)

	cycle := NewCycle(
		[]string{"AAPL"}, &staticDataClient{price: 150},
		runner, aggregator, riskMgr, engine,
		f.executor, f.book, events.NewManager(log), log,
	)

	// A roster with no surviving signals settles on HOLD; the cycle
	// succeeds and the ledger stays untouched.
	require.NoError(t, cycle.Run(context.Background()))
	assert.Zero(t, f.broker.calls)
	assert.InDelta(t, 100000, f.book.Cash(), 0.001)

	journaled, err := f.trades.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, journaled)
}
