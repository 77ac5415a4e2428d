package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// FundFlowRepository manages per-stock daily money-flow rows.
type FundFlowRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewFundFlowRepository creates a new fund-flow repository.
func NewFundFlowRepository(db *sql.DB, log zerolog.Logger) *FundFlowRepository {
	return &FundFlowRepository{
		db:  db,
		log: log.With().Str("component", "fund_flow_repo").Logger(),
	}
}

// UpsertBatch inserts or replaces fund-flow rows in a single transaction.
func (r *FundFlowRepository) UpsertBatch(flows []domain.FundFlow) error {
	if len(flows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO fund_flow
		(code, date, main_fund_flow, retail_fund_flow, institutional_flow, large_order_ratio)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range flows {
		if _, err := stmt.Exec(f.Code, f.Date, f.MainFundFlow, f.RetailFundFlow, f.InstitutionalFlow, f.LargeOrderRatio); err != nil {
			return fmt.Errorf("failed to upsert fund_flow %s/%s: %w", f.Code, f.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(flows)).Msg("Upserted fund flows")
	return nil
}

// Latest fetches the most recent fund-flow row for a code, or nil.
func (r *FundFlowRepository) Latest(code string) (*domain.FundFlow, error) {
	var f domain.FundFlow
	err := r.db.QueryRow(`
		SELECT code, date, main_fund_flow, retail_fund_flow, institutional_flow, large_order_ratio
		FROM fund_flow WHERE code = ?
		ORDER BY date DESC LIMIT 1
	`, code).Scan(&f.Code, &f.Date, &f.MainFundFlow, &f.RetailFundFlow, &f.InstitutionalFlow, &f.LargeOrderRatio)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest fund_flow for %s: %w", code, err)
	}
	return &f, nil
}

// CountByDate returns the number of fund-flow rows for one date.
func (r *FundFlowRepository) CountByDate(date string) (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM fund_flow WHERE date = ?", date).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count fund_flow for %s: %w", date, err)
	}
	return count, nil
}

// DistinctCodesSince returns how many distinct codes have flow rows since a date.
func (r *FundFlowRepository) DistinctCodesSince(date string) (int, error) {
	var count int
	if err := r.db.QueryRow(
		"SELECT COUNT(DISTINCT code) FROM fund_flow WHERE date >= ?", date,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct fund_flow codes: %w", err)
	}
	return count, nil
}

// CountSince returns total and invalid row counts since a date.
// A flow row is invalid when all three flow fields are exactly zero.
func (r *FundFlowRepository) CountSince(date string) (total int, invalid int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN main_fund_flow = 0 AND retail_fund_flow = 0 AND institutional_flow = 0
		                         THEN 1 ELSE 0 END), 0)
		FROM fund_flow WHERE date >= ?
	`, date).Scan(&total, &invalid)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count fund_flow since %s: %w", date, err)
	}
	return total, invalid, nil
}

// DateRangeSince returns the min and max flow dates on or after a date.
func (r *FundFlowRepository) DateRangeSince(date string) (minDate, maxDate string, err error) {
	var lo, hi sql.NullString
	err = r.db.QueryRow(
		"SELECT MIN(date), MAX(date) FROM fund_flow WHERE date >= ?", date,
	).Scan(&lo, &hi)
	if err != nil {
		return "", "", fmt.Errorf("failed to get fund_flow date range: %w", err)
	}
	return lo.String, hi.String, nil
}

// CodesWithBothSince returns how many distinct codes have both a candle and
// a flow row since a date. Feeds the consistency metric; orphaned flow rows
// (no matching candle) are excluded by the join.
func (r *FundFlowRepository) CodesWithBothSince(date string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(DISTINCT f.code)
		FROM fund_flow f
		JOIN klines k ON k.code = f.code AND k.date = f.date
		WHERE f.date >= ?
	`, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count codes with candle and flow: %w", err)
	}
	return count, nil
}

// CountMagnitudeConsistentSince returns (checked, consistent) counts for flow
// rows joined to same-day candles: consistent when the aggregate flow
// magnitude is within [0.2x, 2x] of the candle amount.
func (r *FundFlowRepository) CountMagnitudeConsistentSince(date string) (checked int, consistent int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN ABS(f.main_fund_flow) + ABS(f.retail_fund_flow) + ABS(f.institutional_flow)
		                              BETWEEN 0.2 * k.amount AND 2.0 * k.amount
		                         THEN 1 ELSE 0 END), 0)
		FROM fund_flow f
		JOIN klines k ON k.code = f.code AND k.date = f.date
		WHERE f.date >= ? AND k.amount > 0
	`, date).Scan(&checked, &consistent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check flow magnitude consistency: %w", err)
	}
	return checked, consistent, nil
}

// MoneyFlowRepository manages market-wide and per-sector money-flow rows.
type MoneyFlowRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMoneyFlowRepository creates a new money-flow repository.
func NewMoneyFlowRepository(db *sql.DB, log zerolog.Logger) *MoneyFlowRepository {
	return &MoneyFlowRepository{
		db:  db,
		log: log.With().Str("component", "moneyflow_repo").Logger(),
	}
}

// UpsertMarket inserts or replaces one market money-flow row.
func (r *MoneyFlowRepository) UpsertMarket(m domain.MarketMoneyFlow) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO market_moneyflow
		(date, sh_index, sh_pct_change, sz_index, sz_pct_change,
		 xl_amount, xl_rate, lg_amount, lg_rate, md_amount, md_rate,
		 sm_amount, sm_rate, net_amount, net_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Date, m.ShIndex, m.ShPctChange, m.SzIndex, m.SzPctChange,
		m.ExtraLarge.Amount, m.ExtraLarge.Rate, m.Large.Amount, m.Large.Rate,
		m.Mid.Amount, m.Mid.Rate, m.Small.Amount, m.Small.Rate,
		m.Net.Amount, m.Net.Rate)
	if err != nil {
		return fmt.Errorf("failed to upsert market_moneyflow %s: %w", m.Date, err)
	}
	return nil
}

// GetMarket fetches one market money-flow row, or nil.
func (r *MoneyFlowRepository) GetMarket(date string) (*domain.MarketMoneyFlow, error) {
	var m domain.MarketMoneyFlow
	err := r.db.QueryRow(`
		SELECT date, sh_index, sh_pct_change, sz_index, sz_pct_change,
		       xl_amount, xl_rate, lg_amount, lg_rate, md_amount, md_rate,
		       sm_amount, sm_rate, net_amount, net_rate
		FROM market_moneyflow WHERE date = ?
	`, date).Scan(&m.Date, &m.ShIndex, &m.ShPctChange, &m.SzIndex, &m.SzPctChange,
		&m.ExtraLarge.Amount, &m.ExtraLarge.Rate, &m.Large.Amount, &m.Large.Rate,
		&m.Mid.Amount, &m.Mid.Rate, &m.Small.Amount, &m.Small.Rate,
		&m.Net.Amount, &m.Net.Rate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market_moneyflow %s: %w", date, err)
	}
	return &m, nil
}

// UpsertSectorBatch inserts or replaces sector money-flow rows in one transaction.
func (r *MoneyFlowRepository) UpsertSectorBatch(rows []domain.SectorMoneyFlow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO sector_moneyflow
		(date, sector_code, sector_name, pct_change, close, rank,
		 xl_amount, xl_rate, lg_amount, lg_rate, md_amount, md_rate,
		 sm_amount, sm_rate, net_amount, net_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range rows {
		_, err := stmt.Exec(s.Date, s.SectorCode, s.SectorName, s.PctChange, s.Close, s.Rank,
			s.ExtraLarge.Amount, s.ExtraLarge.Rate, s.Large.Amount, s.Large.Rate,
			s.Mid.Amount, s.Mid.Rate, s.Small.Amount, s.Small.Rate,
			s.Net.Amount, s.Net.Rate)
		if err != nil {
			return fmt.Errorf("failed to upsert sector_moneyflow %s/%s: %w", s.Date, s.SectorCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(rows)).Msg("Upserted sector money flows")
	return nil
}

// SectorStats summarizes a sector's recent change and latest main-fund flow.
type SectorStats struct {
	Change5d float64 // Cumulative pct_change over the last 5 rows
	MainFlow float64 // Latest extra-large + large net amount, yuan
}

// SectorStatsByName aggregates recent flow rows for a sector by display name.
// Returns nil when the sector has no rows.
func (r *MoneyFlowRepository) SectorStatsByName(name string) (*SectorStats, error) {
	rows, err := r.db.Query(`
		SELECT pct_change, xl_amount, lg_amount
		FROM sector_moneyflow WHERE sector_name = ?
		ORDER BY date DESC LIMIT 5
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query sector stats for %s: %w", name, err)
	}
	defer rows.Close()

	var stats SectorStats
	n := 0
	for rows.Next() {
		var pct, xl, lg float64
		if err := rows.Scan(&pct, &xl, &lg); err != nil {
			return nil, fmt.Errorf("failed to scan sector stats: %w", err)
		}
		stats.Change5d += pct
		if n == 0 {
			stats.MainFlow = xl + lg
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sector stats: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return &stats, nil
}
