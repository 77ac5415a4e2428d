package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// IndicatorRepository persists per-stock indicator snapshots for selected
// stocks, giving the presentation layer its read surface.
type IndicatorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewIndicatorRepository creates a new indicator repository.
func NewIndicatorRepository(db *sql.DB, log zerolog.Logger) *IndicatorRepository {
	return &IndicatorRepository{
		db:  db,
		log: log.With().Str("component", "indicator_repo").Logger(),
	}
}

// UpsertBatch inserts or replaces indicator rows in one transaction.
func (r *IndicatorRepository) UpsertBatch(rows []domain.TechnicalIndicator) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO technical_indicators
		(code, date, ma5, ma10, ma20, rsi, macd, macd_signal, macd_hist)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range rows {
		_, err := stmt.Exec(t.Code, t.Date,
			nullFloat(t.MA5), nullFloat(t.MA10), nullFloat(t.MA20),
			nullFloat(t.RSI), nullFloat(t.MACD), nullFloat(t.MACDSignal), nullFloat(t.MACDHist))
		if err != nil {
			return fmt.Errorf("failed to upsert indicator %s/%s: %w", t.Code, t.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(rows)).Msg("Upserted technical indicators")
	return nil
}

// Get fetches one (code, date) indicator row, or nil.
func (r *IndicatorRepository) Get(code, date string) (*domain.TechnicalIndicator, error) {
	var t domain.TechnicalIndicator
	var f [7]sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT code, date, ma5, ma10, ma20, rsi, macd, macd_signal, macd_hist
		FROM technical_indicators WHERE code = ? AND date = ?
	`, code, date).Scan(&t.Code, &t.Date, &f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6])
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get indicator %s/%s: %w", code, date, err)
	}
	dst := []**float64{&t.MA5, &t.MA10, &t.MA20, &t.RSI, &t.MACD, &t.MACDSignal, &t.MACDHist}
	for i := range f {
		if f[i].Valid {
			v := f[i].Float64
			*dst[i] = &v
		}
	}
	return &t, nil
}
