package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// Executor carries finalized decisions through to the ledger.
//
// The ordering invariant is fill-before-ledger: the portfolio mutates only
// after the broker confirms a fill, and the journal entry lands in the same
// step. A failed or unconfirmed order leaves the ledger untouched. In paper
// mode the simulated broker confirms instantly, so both modes share one path.
type Executor struct {
	portfolio *portfolio.Portfolio
	repo      *portfolio.Repository
	trades    *TradeRepository
	broker    domain.BrokerClient
	mode      domain.TradingMode
	events    *events.Manager
	recorder  *metrics.Recorder
	log       zerolog.Logger
}

// NewExecutor creates a trading executor.
func NewExecutor(
	p *portfolio.Portfolio,
	repo *portfolio.Repository,
	trades *TradeRepository,
	broker domain.BrokerClient,
	mode domain.TradingMode,
	em *events.Manager,
	recorder *metrics.Recorder,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		portfolio: p,
		repo:      repo,
		trades:    trades,
		broker:    broker,
		mode:      mode,
		events:    em,
		recorder:  recorder,
		log:       log.With().Str("service", "trading_executor").Logger(),
	}
}

// Execute carries out one decision. HOLD is a no-op. The returned trade is
// nil when nothing was executed.
func (e *Executor) Execute(ctx context.Context, d *domain.Decision) (*domain.Trade, error) {
	if d.Action == domain.ActionHold || d.Quantity <= 0 {
		return nil, nil
	}

	ack, err := e.broker.SubmitOrder(ctx, d.Ticker, d.Action, d.Quantity)
	if err != nil {
		e.log.Error().
			Err(err).
			Str("ticker", d.Ticker).
			Str("action", string(d.Action)).
			Msg("Order failed, ledger unchanged")
		return nil, err
	}

	if err := e.applyFill(ack); err != nil {
		// The broker filled but the ledger refused the mutation. This is a
		// reconciliation problem, not something to retry blindly.
		e.log.Error().
			Err(err).
			Str("order_id", ack.OrderID).
			Msg("Fill could not be applied to ledger")
		return nil, &domain.OrderError{Ticker: d.Ticker, Side: d.Action, Err: err}
	}

	trade := &domain.Trade{
		OrderID:    ack.OrderID,
		Ticker:     ack.Ticker,
		Side:       ack.Side,
		Quantity:   ack.FilledQty,
		Price:      ack.FilledPrice,
		Mode:       string(e.mode),
		ExecutedAt: time.Now().UTC(),
	}

	if _, err := e.trades.Record(trade); err != nil {
		e.log.Error().Err(err).Str("order_id", trade.OrderID).Msg("Failed to journal trade")
		return nil, &domain.OrderError{Ticker: d.Ticker, Side: d.Action, Err: err}
	}
	if err := e.repo.Save(e.portfolio); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist ledger state")
		return nil, err
	}

	e.recorder.RecordTrade(string(trade.Side), string(e.mode))
	e.events.Emit(events.TradeExecuted, "trading_executor", map[string]interface{}{
		"ticker":   trade.Ticker,
		"side":     string(trade.Side),
		"quantity": trade.Quantity,
		"price":    trade.Price,
		"order_id": trade.OrderID,
	})

	e.log.Info().
		Str("ticker", trade.Ticker).
		Str("side", string(trade.Side)).
		Float64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Float64("cash_after", e.portfolio.Cash()).
		Msg("Trade executed")

	return trade, nil
}

func (e *Executor) applyFill(ack *domain.OrderAck) error {
	switch ack.Side {
	case domain.ActionBuy:
		return e.portfolio.ApplyBuy(ack.Ticker, ack.FilledQty, ack.FilledPrice)
	case domain.ActionSell:
		return e.portfolio.ApplySell(ack.Ticker, ack.FilledQty, ack.FilledPrice)
	default:
		return &domain.OrderError{Ticker: ack.Ticker, Side: ack.Side, Err: errUnknownSide}
	}
}

// Replay rebuilds the ledger from the journal, starting from initial cash.
// Used to verify or reconstruct state after corruption of the state tables.
func Replay(trades []domain.Trade, initialCash float64) (*portfolio.Portfolio, error) {
	p := portfolio.New(initialCash)
	for _, t := range trades {
		var err error
		switch t.Side {
		case domain.ActionBuy:
			err = p.ApplyBuy(t.Ticker, t.Quantity, t.Price)
		case domain.ActionSell:
			err = p.ApplySell(t.Ticker, t.Quantity, t.Price)
		}
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}
