package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// KlineRepository manages daily OHLCV bars.
type KlineRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewKlineRepository creates a new kline repository.
func NewKlineRepository(db *sql.DB, log zerolog.Logger) *KlineRepository {
	return &KlineRepository{
		db:  db,
		log: log.With().Str("component", "kline_repo").Logger(),
	}
}

// UpsertBatch inserts or replaces candles in a single transaction.
// Re-upserting the same rows leaves the table unchanged.
func (r *KlineRepository) UpsertBatch(candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO klines (code, date, open, high, low, close, volume, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(c.Code, c.Date, c.Open, c.High, c.Low, c.Close, c.Volume, c.Amount); err != nil {
			return fmt.Errorf("failed to upsert kline %s/%s: %w", c.Code, c.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(candles)).Msg("Upserted klines")
	return nil
}

// RecentByCode fetches the most recent candles for a stock, oldest first,
// capped at limit. The factor engine works on ascending series.
func (r *KlineRepository) RecentByCode(code string, limit int) ([]domain.Candle, error) {
	rows, err := r.db.Query(`
		SELECT code, date, open, high, low, close, volume, amount
		FROM (
			SELECT code, date, open, high, low, close, volume, amount
			FROM klines WHERE code = ?
			ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines for %s: %w", code, err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Code, &c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan kline: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating klines: %w", err)
	}
	return candles, nil
}

// CountByDate returns the number of candle rows for one date. Used by the
// ingestion engine to decide whether a date is already complete.
func (r *KlineRepository) CountByDate(date string) (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM klines WHERE date = ?", date).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count klines for %s: %w", date, err)
	}
	return count, nil
}

// MaxDate returns the latest candle date, or "" when the table is empty.
func (r *KlineRepository) MaxDate() (string, error) {
	var date sql.NullString
	if err := r.db.QueryRow("SELECT MAX(date) FROM klines").Scan(&date); err != nil {
		return "", fmt.Errorf("failed to get max kline date: %w", err)
	}
	return date.String, nil
}

// CodesWithHistory returns the codes that have at least minBars candles on
// or after the given date. This is the universe-eligibility scan.
func (r *KlineRepository) CodesWithHistory(sinceDate string, minBars int) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT code FROM klines
		WHERE date >= ?
		GROUP BY code HAVING COUNT(*) >= ?
		ORDER BY code
	`, sinceDate, minBars)
	if err != nil {
		return nil, fmt.Errorf("failed to query codes with history: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating codes: %w", err)
	}
	return codes, nil
}

// DistinctCodesSince returns how many distinct codes have candles since a date.
func (r *KlineRepository) DistinctCodesSince(date string) (int, error) {
	var count int
	if err := r.db.QueryRow(
		"SELECT COUNT(DISTINCT code) FROM klines WHERE date >= ?", date,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct kline codes: %w", err)
	}
	return count, nil
}

// CountSince returns total and invalid row counts since a date.
// A row is invalid when any of open/high/low/close/volume is non-positive.
func (r *KlineRepository) CountSince(date string) (total int, invalid int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN open <= 0 OR high <= 0 OR low <= 0 OR close <= 0 OR volume <= 0
		                         THEN 1 ELSE 0 END), 0)
		FROM klines WHERE date >= ?
	`, date).Scan(&total, &invalid)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count klines since %s: %w", date, err)
	}
	return total, invalid, nil
}

// CountAccurateSince returns how many rows since a date pass the full OHLCV
// accuracy check: all positive and high >= max(open, close, low).
func (r *KlineRepository) CountAccurateSince(date string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM klines
		WHERE date >= ?
		  AND open > 0 AND high > 0 AND low > 0 AND close > 0 AND volume > 0
		  AND high >= open AND high >= close AND high >= low
	`, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accurate klines: %w", err)
	}
	return count, nil
}

// DateRangeSince returns the min and max candle dates on or after a date.
func (r *KlineRepository) DateRangeSince(date string) (minDate, maxDate string, err error) {
	var lo, hi sql.NullString
	err = r.db.QueryRow(
		"SELECT MIN(date), MAX(date) FROM klines WHERE date >= ?", date,
	).Scan(&lo, &hi)
	if err != nil {
		return "", "", fmt.Errorf("failed to get kline date range: %w", err)
	}
	return lo.String, hi.String, nil
}

// HasRow reports whether a (code, date) candle exists.
func (r *KlineRepository) HasRow(code, date string) (bool, error) {
	var count int
	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM klines WHERE code = ? AND date = ?", code, date,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check kline %s/%s: %w", code, date, err)
	}
	return count > 0, nil
}

// AmountByCodeDate returns the traded amount for a (code, date), or 0.
func (r *KlineRepository) AmountByCodeDate(code, date string) (float64, error) {
	var amount float64
	err := r.db.QueryRow(
		"SELECT amount FROM klines WHERE code = ? AND date = ?", code, date,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get kline amount: %w", err)
	}
	return amount, nil
}
