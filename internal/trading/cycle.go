package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/analysts"
	"github.com/meridianfund/meridian/internal/decision"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/internal/risk"
	"github.com/meridianfund/meridian/internal/signals"
)

const priceLookbackDays = 7

// Cycle runs one full pass of the pipeline over the trading universe:
// analysts fan out per ticker, signals aggregate to a consensus, risk caps
// the consensus, the decision engine finalizes an action and the executor
// carries it to the ledger.
type Cycle struct {
	tickers    []string
	data       domain.DataClient
	runner     *analysts.Runner
	aggregator *signals.Aggregator
	risk       *risk.Manager
	engine     *decision.Engine
	executor   *Executor
	portfolio  *portfolio.Portfolio
	events     *events.Manager
	log        zerolog.Logger
}

// NewCycle wires the pipeline stages for the given universe.
func NewCycle(
	tickers []string,
	data domain.DataClient,
	runner *analysts.Runner,
	aggregator *signals.Aggregator,
	riskMgr *risk.Manager,
	engine *decision.Engine,
	executor *Executor,
	p *portfolio.Portfolio,
	em *events.Manager,
	log zerolog.Logger,
) *Cycle {
	return &Cycle{
		tickers:    tickers,
		data:       data,
		runner:     runner,
		aggregator: aggregator,
		risk:       riskMgr,
		engine:     engine,
		executor:   executor,
		portfolio:  p,
		events:     em,
		log:        log.With().Str("service", "trading_cycle").Logger(),
	}
}

// Run executes one trading cycle. Per-ticker failures are tolerated and
// logged; the cycle as a whole fails only when every ticker failed, so one
// bad data feed cannot halt the rest of the book.
func (c *Cycle) Run(ctx context.Context) error {
	today := time.Now().UTC().Format("2006-01-02")

	prices, err := c.latestPrices(ctx, today)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	failed := 0
	for _, ticker := range c.tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runTicker(ctx, ticker, today, prices); err != nil {
			c.log.Error().Err(err).Str("ticker", ticker).Msg("Ticker cycle failed")
			failed++
		}
	}

	if failed == len(c.tickers) {
		return fmt.Errorf("all %d tickers failed", failed)
	}
	return nil
}

func (c *Cycle) runTicker(ctx context.Context, ticker, today string, prices map[string]float64) error {
	price, ok := prices[ticker]
	if !ok || price <= 0 {
		return &domain.DataFetchError{Ticker: ticker, Endpoint: "prices", Err: fmt.Errorf("no current price")}
	}

	result := c.runner.Run(ctx, ticker, today)
	if result.AllFailed() {
		// A fully-missing roster aggregates to a flagged neutral signal
		// and lands on HOLD downstream.
		c.log.Warn().Str("ticker", ticker).Msg("All analysts failed")
	}

	agg := c.aggregator.Aggregate(ticker, result.Signals, result.Missing)
	c.events.Emit(events.SignalsReady, "trading_cycle", map[string]interface{}{
		"ticker":     ticker,
		"direction":  string(agg.Direction),
		"confidence": agg.Confidence,
		"missing":    len(agg.MissingAnalysts),
	})

	totalValue := c.portfolio.TotalValue(prices)
	var positionValue float64
	pos := c.portfolio.Position(ticker)
	var posVal domain.Position
	if pos != nil {
		posVal = *pos
		positionValue = pos.MarketValue(price)
	}

	assessment := c.risk.Assess(ticker, totalValue, positionValue)

	d, err := c.engine.Decide(ctx, domain.OracleContext{
		Ticker:        ticker,
		Signal:        agg,
		Risk:          assessment,
		Position:      posVal,
		AvailableCash: c.portfolio.Cash(),
		Price:         price,
	})
	if err != nil {
		return err
	}

	c.events.Emit(events.DecisionMade, "trading_cycle", map[string]interface{}{
		"ticker":   d.Ticker,
		"action":   string(d.Action),
		"quantity": d.Quantity,
	})

	_, err = c.executor.Execute(ctx, d)
	return err
}

// latestPrices fetches the most recent close for every ticker in one pass so
// valuation and sizing inside the cycle share a consistent snapshot.
func (c *Cycle) latestPrices(ctx context.Context, today string) (map[string]float64, error) {
	start := time.Now().UTC().AddDate(0, 0, -priceLookbackDays).Format("2006-01-02")

	prices := make(map[string]float64, len(c.tickers))
	var firstErr error
	for _, ticker := range c.tickers {
		bars, err := c.data.GetPrices(ctx, ticker, start, today)
		if err != nil || len(bars) == 0 {
			if firstErr == nil && err != nil {
				firstErr = err
			}
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("No recent price")
			continue
		}
		prices[ticker] = bars[len(bars)-1].Close
	}

	if len(prices) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("no prices for any ticker")
	}
	return prices, nil
}
