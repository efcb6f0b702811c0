// Meridian runs an autonomous multi-analyst trading loop with an HTTP API
// for observation. Configuration comes from the environment (a .env file is
// honored); an invalid configuration aborts startup before any cycle runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/analysts"
	"github.com/meridianfund/meridian/internal/broker"
	"github.com/meridianfund/meridian/internal/config"
	"github.com/meridianfund/meridian/internal/database"
	"github.com/meridianfund/meridian/internal/decision"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/internal/marketdata"
	"github.com/meridianfund/meridian/internal/markethours"
	"github.com/meridianfund/meridian/internal/oracle"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/internal/reliability"
	"github.com/meridianfund/meridian/internal/risk"
	"github.com/meridianfund/meridian/internal/scheduler"
	"github.com/meridianfund/meridian/internal/server"
	"github.com/meridianfund/meridian/internal/signals"
	"github.com/meridianfund/meridian/internal/trading"
	"github.com/meridianfund/meridian/pkg/logger"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// ruleOracleMinConfidence is the noise floor for the built-in decision
// policy when no external decision service is configured.
const ruleOracleMinConfidence = 30.0

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "meridian: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Configuration first. A *domain.ConfigError here means the deployment
	// is wrong and nothing below should start.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().
		Strs("tickers", cfg.Tickers).
		Str("mode", string(cfg.TradingMode)).
		Dur("interval", cfg.TradingInterval).
		Msg("Starting Meridian")

	// Databases. The trade journal gets the durable ledger profile; the
	// portfolio state database favors throughput.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer ledgerDB.Close()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		return fmt.Errorf("open portfolio database: %w", err)
	}
	defer portfolioDB.Close()

	databases := map[string]*database.DB{
		"ledger":    ledgerDB,
		"portfolio": portfolioDB,
	}

	// Shared infrastructure.
	eventManager := events.NewManager(log)
	recorder := metrics.New(nil)

	clock, err := markethours.NewClock("America/New_York")
	if err != nil {
		return fmt.Errorf("load market timezone: %w", err)
	}

	dataClient := marketdata.NewClient(
		cfg.MarketDataBaseURL,
		cfg.MarketDataAPIKey,
		filepath.Join(cfg.DataDir, "cache"),
		log,
	)

	// Analyst pipeline.
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

	var decisionOracle domain.Oracle
	if cfg.OracleBaseURL != "" {
		decisionOracle = oracle.NewClient(cfg.OracleBaseURL, cfg.OracleAPIKey, log)
	} else {
		decisionOracle = oracle.NewRuleOracle(ruleOracleMinConfidence, log)
	}
	engine := decision.NewEngine(decisionOracle, cfg.Tickers, recorder, log)

	// Ledger.
	book := portfolio.New(cfg.InitialCash)
	portfolioRepo, err := portfolio.NewRepository(portfolioDB, log)
	if err != nil {
		return err
	}
	tradeRepo, err := trading.NewTradeRepository(ledgerDB, log)
	if err != nil {
		return err
	}

	restored, err := portfolioRepo.Load(book)
	if err != nil {
		return fmt.Errorf("restore ledger state: %w", err)
	}
	if !restored {
		log.Info().Float64("initial_cash", cfg.InitialCash).Msg("Starting with fresh ledger")
	}

	quote := latestCloseQuote(dataClient)

	var brokerClient domain.BrokerClient
	if cfg.TradingMode == domain.ModeLive {
		live := broker.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, cfg.BrokerAPISecret, log)
		if err := reconcileWithBroker(book, live, log); err != nil {
			return fmt.Errorf("reconcile with broker: %w", err)
		}
		brokerClient = live
	} else {
		brokerClient = broker.NewPaperBroker(broker.PriceSource(quote), log)
	}

	executor := trading.NewExecutor(book, portfolioRepo, tradeRepo, brokerClient, cfg.TradingMode, eventManager, recorder, log)
	cycle := trading.NewCycle(cfg.Tickers, dataClient, runner, aggregator, riskManager, engine, executor, book, eventManager, log)

	// Autonomous loop.
	sched := scheduler.New(cycle, clock, scheduler.Options{
		Interval:        cfg.TradingInterval,
		RetryAttempts:   cfg.RetryAttempts,
		RetryDelay:      cfg.RetryDelay,
		CycleTimeout:    cfg.CycleTimeout,
		MarketHoursOnly: cfg.MarketHoursOnly,
		PollPeriod:      cfg.MarketPollPeriod,
		Location:        clock.Location(),
	}, eventManager, recorder, log)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(rootCtx)

	// Nightly maintenance runs while the market is closed. The backup leg
	// only activates when a bucket is configured.
	maintenanceCron, err := startMaintenance(rootCtx, cfg, databases, clock, log)
	if err != nil {
		return err
	}
	if maintenanceCron != nil {
		defer maintenanceCron.Stop()
	}

	httpServer := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Portfolio:  book,
		Trades:     tradeRepo,
		Scheduler:  sched,
		Events:     eventManager,
		Clock:      clock,
		Databases:  databases,
		PriceQuote: server.PriceFunc(quote),
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	// Block until a shutdown signal or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}

	if err := portfolioRepo.Save(book); err != nil {
		log.Error().Err(err).Msg("Failed to persist ledger state on shutdown")
	}

	log.Info().Msg("Meridian stopped")
	return nil
}

// latestCloseQuote adapts the market data client into a single-price lookup
// using the most recent daily close.
func latestCloseQuote(data domain.DataClient) func(ctx context.Context, ticker string) (float64, error) {
	return func(ctx context.Context, ticker string) (float64, error) {
		end := time.Now().UTC()
		start := end.AddDate(0, 0, -7)
		bars, err := data.GetPrices(ctx, ticker, start.Format("2006-01-02"), end.Format("2006-01-02"))
		if err != nil {
			return 0, err
		}
		if len(bars) == 0 {
			return 0, errors.New("no recent bars")
		}
		return bars[len(bars)-1].Close, nil
	}
}

// reconcileWithBroker replaces local state with the broker's view. In live
// mode the broker account is the source of truth at startup.
func reconcileWithBroker(book *portfolio.Portfolio, client domain.BrokerClient, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cash, err := client.GetCash(ctx)
	if err != nil {
		return err
	}
	positions, err := client.GetPositions(ctx)
	if err != nil {
		return err
	}

	book.Restore(cash, book.RealizedPnL(), positions)
	log.Info().
		Float64("cash", cash).
		Int("positions", len(positions)).
		Msg("Ledger reconciled with broker account")
	return nil
}

// startMaintenance registers the nightly maintenance job at 02:00 exchange
// time, safely outside regular trading hours.
func startMaintenance(ctx context.Context, cfg *config.Config, databases map[string]*database.DB, clock *markethours.Clock, log zerolog.Logger) (*cron.Cron, error) {
	var backups *reliability.BackupService
	if cfg.BackupBucket != "" {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:    cfg.BackupBucket,
			Endpoint:  cfg.BackupEndpoint,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("create backup client: %w", err)
		}
		backups = reliability.NewBackupService(store, databases, cfg.DataDir, log)
	}

	job := reliability.NewNightlyMaintenance(databases, backups, cfg.DataDir, cfg.BackupRetention, log)

	c := cron.New(cron.WithLocation(clock.Location()))
	_, err := c.AddFunc("0 2 * * *", func() {
		jctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		if err := job.Run(jctx); err != nil {
			log.Error().Err(err).Msg("Nightly maintenance failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule maintenance: %w", err)
	}
	c.Start()
	return c, nil
}
