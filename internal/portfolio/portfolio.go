// Package portfolio holds the in-memory ledger of cash and positions.
package portfolio

import (
	"fmt"
	"sync"

	"github.com/meridianfund/meridian/internal/domain"
)

// Portfolio is the authoritative in-memory ledger. A single trading cycle
// writes at a time; reads may come from any goroutine (HTTP handlers,
// event emitters), so all access is guarded.
//
// Invariant: cash never goes negative and no position goes short.
type Portfolio struct {
	mu          sync.RWMutex
	cash        float64
	realizedPnL float64
	positions   map[string]*domain.Position
}

// New creates a portfolio seeded with initial cash.
func New(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
	}
}

// Cash returns the available cash.
func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// RealizedPnL returns the cumulative realized profit and loss.
func (p *Portfolio) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// Position returns a copy of the position for ticker, or nil when flat.
func (p *Portfolio) Position(ticker string) *domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[ticker]
	if !ok {
		return nil
	}
	cp := *pos
	return &cp
}

// Positions returns a copy of all open positions.
func (p *Portfolio) Positions() []domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out
}

// TotalValue returns cash plus the market value of every position using the
// supplied prices. Positions without a price are valued at average cost.
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := p.cash
	for ticker, pos := range p.positions {
		price, ok := prices[ticker]
		if !ok {
			price = pos.AverageCost
		}
		total += pos.MarketValue(price)
	}
	return total
}

// ApplyBuy debits cash and grows the position, recomputing average cost.
func (p *Portfolio) ApplyBuy(ticker string, quantity, price float64) error {
	if quantity <= 0 || price <= 0 {
		return fmt.Errorf("apply buy %s: invalid quantity %.2f or price %.2f", ticker, quantity, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := quantity * price
	if cost > p.cash {
		return fmt.Errorf("apply buy %s: cost %.2f exceeds cash %.2f", ticker, cost, p.cash)
	}

	pos, ok := p.positions[ticker]
	if !ok {
		pos = &domain.Position{Ticker: ticker}
		p.positions[ticker] = pos
	}

	newQty := pos.Quantity + quantity
	pos.AverageCost = (pos.AverageCost*pos.Quantity + cost) / newQty
	pos.Quantity = newQty
	p.cash -= cost

	return nil
}

// ApplySell credits cash, shrinks the position and books realized PnL
// against average cost. A flat position is removed.
func (p *Portfolio) ApplySell(ticker string, quantity, price float64) error {
	if quantity <= 0 || price <= 0 {
		return fmt.Errorf("apply sell %s: invalid quantity %.2f or price %.2f", ticker, quantity, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticker]
	if !ok || pos.Quantity < quantity {
		held := 0.0
		if ok {
			held = pos.Quantity
		}
		return fmt.Errorf("apply sell %s: quantity %.2f exceeds holding %.2f", ticker, quantity, held)
	}

	proceeds := quantity * price
	p.cash += proceeds
	p.realizedPnL += proceeds - quantity*pos.AverageCost

	pos.Quantity -= quantity
	if pos.Quantity <= 1e-9 {
		delete(p.positions, ticker)
	}

	return nil
}

// Restore replaces the ledger state wholesale. Used when loading persisted
// state at startup; not safe to call while trading.
func (p *Portfolio) Restore(cash, realizedPnL float64, positions []domain.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = cash
	p.realizedPnL = realizedPnL
	p.positions = make(map[string]*domain.Position, len(positions))
	for i := range positions {
		pos := positions[i]
		p.positions[pos.Ticker] = &pos
	}
}
