package portfolio

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/database"
	"github.com/meridianfund/meridian/internal/domain"
)

// Repository persists ledger state so a restart resumes where the last run
// left off instead of re-seeding from initial cash.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates the repository and ensures its schema exists.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate portfolio schema: %w", err)
	}
	return r, nil
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			cash REAL NOT NULL,
			realized_pnl REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS positions (
			ticker TEXT PRIMARY KEY,
			quantity REAL NOT NULL CHECK (quantity > 0),
			average_cost REAL NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

// Save writes the full ledger state in one transaction.
func (r *Repository) Save(p *Portfolio) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO ledger_state (id, cash, realized_pnl, updated_at)
			VALUES (1, ?, ?, datetime('now'))
			ON CONFLICT(id) DO UPDATE SET
				cash = excluded.cash,
				realized_pnl = excluded.realized_pnl,
				updated_at = excluded.updated_at
		`, p.Cash(), p.RealizedPnL())
		if err != nil {
			return fmt.Errorf("save ledger state: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM positions`); err != nil {
			return fmt.Errorf("clear positions: %w", err)
		}
		for _, pos := range p.Positions() {
			_, err := tx.Exec(`
				INSERT INTO positions (ticker, quantity, average_cost, updated_at)
				VALUES (?, ?, ?, datetime('now'))
			`, pos.Ticker, pos.Quantity, pos.AverageCost)
			if err != nil {
				return fmt.Errorf("save position %s: %w", pos.Ticker, err)
			}
		}
		return nil
	})
}

// Load restores persisted state into p. When no state exists yet the
// portfolio keeps its seeded values and Load reports false.
func (r *Repository) Load(p *Portfolio) (bool, error) {
	var cash, realized float64
	err := r.db.QueryRow(`SELECT cash, realized_pnl FROM ledger_state WHERE id = 1`).
		Scan(&cash, &realized)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load ledger state: %w", err)
	}

	rows, err := r.db.Query(`SELECT ticker, quantity, average_cost FROM positions`)
	if err != nil {
		return false, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		if err := rows.Scan(&pos.Ticker, &pos.Quantity, &pos.AverageCost); err != nil {
			return false, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate positions: %w", err)
	}

	p.Restore(cash, realized, positions)
	r.log.Info().
		Float64("cash", cash).
		Int("positions", len(positions)).
		Msg("Ledger state restored")
	return true, nil
}
