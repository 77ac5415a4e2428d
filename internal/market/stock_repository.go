// Package market contains the repositories over the market database.
// Each repository owns one table (or a small family of tables) and exposes
// the reads and idempotent upserts the engines need. Writers serialize on
// the engine; all upserts are keyed on the table's primary key.
package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// StockRepository manages the stock universe table.
type StockRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStockRepository creates a new stock repository.
func NewStockRepository(db *sql.DB, log zerolog.Logger) *StockRepository {
	return &StockRepository{
		db:  db,
		log: log.With().Str("component", "stock_repo").Logger(),
	}
}

// UpsertBatch inserts or updates stocks in a single transaction.
// Stocks are never deleted; a refresh only adds and updates.
func (r *StockRepository) UpsertBatch(stocks []domain.Stock) error {
	if len(stocks) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT INTO stocks (code, name, exchange, industry, raw_code, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now', 'localtime'))
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			exchange = excluded.exchange,
			industry = COALESCE(NULLIF(excluded.industry, ''), stocks.industry),
			raw_code = excluded.raw_code,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range stocks {
		if _, err := stmt.Exec(s.Code, s.Name, string(s.Exchange), s.Industry, s.RawCode); err != nil {
			return fmt.Errorf("failed to upsert stock %s: %w", s.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(stocks)).Msg("Upserted stocks")
	return nil
}

// Get fetches a single stock by code. Returns nil if not found.
func (r *StockRepository) Get(code string) (*domain.Stock, error) {
	var s domain.Stock
	var industry sql.NullString
	err := r.db.QueryRow(`
		SELECT code, name, exchange, industry, raw_code
		FROM stocks WHERE code = ?
	`, code).Scan(&s.Code, &s.Name, &s.Exchange, &industry, &s.RawCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", code, err)
	}
	s.Industry = industry.String
	return &s, nil
}

// All returns the whole universe ordered by code.
func (r *StockRepository) All() ([]domain.Stock, error) {
	rows, err := r.db.Query(`
		SELECT code, name, exchange, industry, raw_code
		FROM stocks ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []domain.Stock
	for rows.Next() {
		var s domain.Stock
		var industry sql.NullString
		if err := rows.Scan(&s.Code, &s.Name, &s.Exchange, &industry, &s.RawCode); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		s.Industry = industry.String
		stocks = append(stocks, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}
	return stocks, nil
}

// Count returns the universe size.
func (r *StockRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM stocks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stocks: %w", err)
	}
	return count, nil
}
