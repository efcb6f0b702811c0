// Package trading executes decisions and keeps the trade journal.
package trading

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/database"
	"github.com/meridianfund/meridian/internal/domain"
)

var errUnknownSide = errors.New("unknown order side")

// TradeRepository is the append-only trade journal. Every confirmed fill is
// recorded here before anything else observes it, keyed by broker order ID
// so a crash-and-retry cannot double-book a fill.
type TradeRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewTradeRepository creates the repository and ensures its schema exists.
func NewTradeRepository(db *database.DB, log zerolog.Logger) (*TradeRepository, error) {
	r := &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trades").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate trades schema: %w", err)
	}
	return r, nil
}

func (r *TradeRepository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL UNIQUE,
			ticker TEXT NOT NULL,
			side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
			quantity REAL NOT NULL CHECK (quantity > 0),
			price REAL NOT NULL CHECK (price > 0),
			mode TEXT NOT NULL CHECK (mode IN ('paper', 'live')),
			executed_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker);
		CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
	`)
	return err
}

// Record appends a trade. Recording the same order ID twice is a no-op and
// reports false, so replays after a crash are harmless.
func (r *TradeRepository) Record(t *domain.Trade) (bool, error) {
	res, err := r.db.Exec(`
		INSERT OR IGNORE INTO trades (order_id, ticker, side, quantity, price, mode, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.OrderID, t.Ticker, string(t.Side), t.Quantity, t.Price, t.Mode, t.ExecutedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("record trade %s: %w", t.OrderID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record trade %s: %w", t.OrderID, err)
	}
	if rows == 0 {
		r.log.Warn().Str("order_id", t.OrderID).Msg("Trade already journaled, skipping")
		return false, nil
	}

	id, err := res.LastInsertId()
	if err == nil {
		t.ID = id
	}
	return true, nil
}

// Recent returns the most recent trades, newest first.
func (r *TradeRepository) Recent(limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, order_id, ticker, side, quantity, price, mode, executed_at, created_at
		FROM trades ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ForTicker returns all trades for one ticker, oldest first.
func (r *TradeRepository) ForTicker(ticker string) ([]domain.Trade, error) {
	rows, err := r.db.Query(`
		SELECT id, order_id, ticker, side, quantity, price, mode, executed_at, created_at
		FROM trades WHERE ticker = ? ORDER BY id ASC
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", ticker, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// All returns the full journal, oldest first. Used for replay.
func (r *TradeRepository) All() ([]domain.Trade, error) {
	rows, err := r.db.Query(`
		SELECT id, order_id, ticker, side, quantity, price, mode, executed_at, created_at
		FROM trades ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows rowScanner) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, executedAt, createdAt string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Ticker, &side, &t.Quantity, &t.Price, &t.Mode, &executedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = domain.Action(side)
		if ts, err := time.Parse(time.RFC3339, executedAt); err == nil {
			t.ExecutedAt = ts
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			t.CreatedAt = ts
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
