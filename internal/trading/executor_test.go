package trading

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/database"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/events"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// fakeBroker fills at a fixed price or fails.
type fakeBroker struct {
	price   float64
	err     error
	orderID string
	calls   int
}

func (f *fakeBroker) SubmitOrder(_ context.Context, ticker string, side domain.Action, quantity float64) (*domain.OrderAck, error) {
	f.calls++
	if f.err != nil {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: f.err}
	}
	id := f.orderID
	if id == "" {
		id = "order-1"
	}
	return &domain.OrderAck{
		OrderID:     id,
		Ticker:      ticker,
		Side:        side,
		FilledQty:   quantity,
		FilledPrice: f.price,
	}, nil
}

func (f *fakeBroker) GetPositions(_ context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeBroker) GetCash(_ context.Context) (float64, error)               { return 0, nil }

type executorFixture struct {
	executor *Executor
	book     *portfolio.Portfolio
	trades   *TradeRepository
	broker   *fakeBroker
}

func newFixture(t *testing.T, cash float64, b *fakeBroker) *executorFixture {
	t.Helper()

	dir := t.TempDir()
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { ledgerDB.Close() })

	stateDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { stateDB.Close() })

	book := portfolio.New(cash)
	repo, err := portfolio.NewRepository(stateDB, zerolog.Nop())
	require.NoError(t, err)
	trades, err := NewTradeRepository(ledgerDB, zerolog.Nop())
	require.NoError(t, err)

	exec := NewExecutor(
		book, repo, trades, b, domain.ModePaper,
		events.NewManager(zerolog.Nop()),
		metrics.New(prometheus.NewRegistry()),
		zerolog.Nop(),
	)
	return &executorFixture{executor: exec, book: book, trades: trades, broker: b}
}

func TestExecuteBuyMutatesLedgerAfterFill(t *testing.T) {
	f := newFixture(t, 100000, &fakeBroker{price: 150})

	trade, err := f.executor.Execute(context.Background(), &domain.Decision{
		Ticker: "AAPL", Action: domain.ActionBuy, Quantity: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.InDelta(t, 100000-15000, f.book.Cash(), 0.001)
	pos := f.book.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 100, pos.Quantity, 0.001)

	journaled, err := f.trades.Recent(10)
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, domain.ActionBuy, journaled[0].Side)
	assert.Equal(t, "paper", journaled[0].Mode)
}

func TestExecuteHoldIsNoOp(t *testing.T) {
	f := newFixture(t, 100000, &fakeBroker{price: 150})

	trade, err := f.executor.Execute(context.Background(), &domain.Decision{
		Ticker: "AAPL", Action: domain.ActionHold,
	})
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Zero(t, f.broker.calls)
	assert.InDelta(t, 100000, f.book.Cash(), 0.001)
}

func TestExecuteOrderFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, 100000, &fakeBroker{err: errors.New("broker rejected")})

	_, err := f.executor.Execute(context.Background(), &domain.Decision{
		Ticker: "AAPL", Action: domain.ActionBuy, Quantity: 100,
	})
	require.Error(t, err)
	var orderErr *domain.OrderError
	assert.ErrorAs(t, err, &orderErr)

	assert.InDelta(t, 100000, f.book.Cash(), 0.001)
	assert.Nil(t, f.book.Position("AAPL"))
	journaled, err := f.trades.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, journaled)
}

func TestExecuteSellCreditsCash(t *testing.T) {
	f := newFixture(t, 100000, &fakeBroker{price: 150, orderID: "buy-1"})

	_, err := f.executor.Execute(context.Background(), &domain.Decision{
		Ticker: "AAPL", Action: domain.ActionBuy, Quantity: 100,
	})
	require.NoError(t, err)

	f.broker.orderID = "sell-1"
	trade, err := f.executor.Execute(context.Background(), &domain.Decision{
		Ticker: "AAPL", Action: domain.ActionSell, Quantity: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.InDelta(t, 100000, f.book.Cash(), 0.001)
	assert.Nil(t, f.book.Position("AAPL"))
}

func TestTradeJournalIsIdempotentByOrderID(t *testing.T) {
	f := newFixture(t, 100000, &fakeBroker{price: 150})

	trade := &domain.Trade{
		OrderID: "dup-1", Ticker: "AAPL", Side: domain.ActionBuy,
		Quantity: 10, Price: 150, Mode: "paper",
	}
	inserted, err := f.trades.Record(trade)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = f.trades.Record(trade)
	require.NoError(t, err)
	assert.False(t, inserted)

	journaled, err := f.trades.Recent(10)
	require.NoError(t, err)
	assert.Len(t, journaled, 1)
}

func TestReplayReconstructsLedgerFromJournal(t *testing.T) {
	trades := []domain.Trade{
		{Ticker: "AAPL", Side: domain.ActionBuy, Quantity: 100, Price: 100},
		{Ticker: "AAPL", Side: domain.ActionBuy, Quantity: 100, Price: 200},
		{Ticker: "AAPL", Side: domain.ActionSell, Quantity: 50, Price: 250},
	}

	book, err := Replay(trades, 100000)
	require.NoError(t, err)

	assert.InDelta(t, 100000-10000-20000+12500, book.Cash(), 0.001)
	pos := book.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 150, pos.Quantity, 0.001)
	assert.InDelta(t, 150, pos.AverageCost, 0.001)
	assert.InDelta(t, 50*(250-150), book.RealizedPnL(), 0.001)
}
