// Backtest replays the analyst pipeline over a historical window and prints
// a performance summary as JSON. It shares configuration with the server
// but never touches databases or brokers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridianfund/meridian/internal/analysts"
	"github.com/meridianfund/meridian/internal/backtest"
	"github.com/meridianfund/meridian/internal/config"
	"github.com/meridianfund/meridian/internal/decision"
	"github.com/meridianfund/meridian/internal/marketdata"
	"github.com/meridianfund/meridian/internal/oracle"
	"github.com/meridianfund/meridian/internal/risk"
	"github.com/meridianfund/meridian/internal/signals"
	"github.com/meridianfund/meridian/pkg/logger"
	"github.com/meridianfund/meridian/pkg/metrics"
)

func main() {
	var (
		startDate = flag.String("start", "", "window start (YYYY-MM-DD)")
		endDate   = flag.String("end", time.Now().UTC().Format("2006-01-02"), "window end (YYYY-MM-DD)")
		cash      = flag.Float64("cash", 0, "starting cash (default: INITIAL_CASH)")
		minConf   = flag.Float64("min-confidence", 30, "consensus confidence floor for the rule policy")
	)
	flag.Parse()

	if err := run(*startDate, *endDate, *cash, *minConf); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
}

func run(startDate, endDate string, cash, minConf float64) error {
	if startDate == "" {
		return fmt.Errorf("missing -start")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cash <= 0 {
		cash = cfg.InitialCash
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	dataClient := marketdata.NewClient(
		cfg.MarketDataBaseURL,
		cfg.MarketDataAPIKey,
		filepath.Join(cfg.DataDir, "cache"),
		log,
	)

	// A private registry keeps backtest metrics out of any scrape target.
	recorder := metrics.New(prometheus.NewRegistry())

	registry := analysts.DefaultRegistry(dataClient, log)
	selected, err := registry.Select(cfg.SelectedAnalysts)
	if err != nil {
		return err
	}
	runner := analysts.NewRunner(selected, cfg.AnalystTimeout, recorder, log)
	aggregator := signals.NewAggregator(runner.ExpectedCount(), log)

	riskManager, err := risk.NewManager(cfg.MaxPositionSize, cfg.MaxPortfolioValue, cfg.PerTickerExposureCap, log)
	if err != nil {
		return err
	}

	policy := oracle.NewRuleOracle(minConf, log)
	engine := decision.NewEngine(policy, cfg.Tickers, recorder, log)

	bt := backtest.NewEngine(cfg.Tickers, dataClient, runner, aggregator, riskManager, engine, log)

	result, err := bt.Run(context.Background(), startDate, endDate, cash)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
