package broker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// PriceSource returns the current price for a ticker. The paper broker
// fills at this price with no slippage.
type PriceSource func(ctx context.Context, ticker string) (float64, error)

// PaperBroker simulates instant fills at the quoted price. It carries no
// account state of its own; the local ledger is authoritative in paper mode.
type PaperBroker struct {
	price    PriceSource
	orderSeq atomic.Int64
	log      zerolog.Logger
}

var _ domain.BrokerClient = (*PaperBroker)(nil)

// NewPaperBroker creates a paper broker filling at prices from the source.
func NewPaperBroker(price PriceSource, log zerolog.Logger) *PaperBroker {
	return &PaperBroker{
		price: price,
		log:   log.With().Str("client", "paper_broker").Logger(),
	}
}

// SubmitOrder implements domain.BrokerClient with an immediate simulated fill.
func (b *PaperBroker) SubmitOrder(ctx context.Context, ticker string, side domain.Action, quantity float64) (*domain.OrderAck, error) {
	if side != domain.ActionBuy && side != domain.ActionSell {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: fmt.Errorf("unsupported side %q", side)}
	}
	if quantity <= 0 {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: fmt.Errorf("non-positive quantity %.2f", quantity)}
	}

	price, err := b.price(ctx, ticker)
	if err != nil {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: err}
	}
	if price <= 0 {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: fmt.Errorf("no usable price")}
	}

	id := fmt.Sprintf("paper-%d", b.orderSeq.Add(1))
	b.log.Debug().
		Str("ticker", ticker).
		Str("order_id", id).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("Paper fill")

	return &domain.OrderAck{
		OrderID:     id,
		Ticker:      ticker,
		Side:        side,
		FilledQty:   quantity,
		FilledPrice: price,
	}, nil
}

// GetPositions implements domain.BrokerClient. The paper broker holds no
// state, so it reports empty and the ledger stands alone.
func (b *PaperBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	return nil, nil
}

// GetCash implements domain.BrokerClient.
func (b *PaperBroker) GetCash(_ context.Context) (float64, error) {
	return 0, nil
}
