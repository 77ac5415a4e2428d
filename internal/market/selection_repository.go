package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// SelectionRepository manages advanced_selection_history. The selection
// runner is its only writer.
type SelectionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSelectionRepository creates a new selection repository.
func NewSelectionRepository(db *sql.DB, log zerolog.Logger) *SelectionRepository {
	return &SelectionRepository{
		db:  db,
		log: log.With().Str("component", "selection_repo").Logger(),
	}
}

// InsertBatch writes one run's selections in a single transaction.
func (r *SelectionRepository) InsertBatch(runID, date string, stocks []domain.ScoredStock) error {
	if len(stocks) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO advanced_selection_history
		(run_id, strategy_id, code, name, industry, date, composite_score,
		 momentum_score, trend_quality_score, sector_score, fundamental_score,
		 valuation_score, quality_score, growth_score, volume_score,
		 sentiment_score, risk_score, selection_reason, risk_level,
		 holding_period, target_price, stop_loss_price, buy_point, sell_point)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range stocks {
		_, err := stmt.Exec(runID, s.StrategyID, s.Code, s.Name, s.Industry, date,
			s.CompositeScore,
			s.MomentumScore, s.TrendQualityScore, s.SectorScore, s.FundamentalScore,
			s.ValuationScore, s.QualityScore, s.GrowthScore, s.VolumeScore,
			s.SentimentScore, s.RiskScore, s.SelectionReason, string(s.RiskLevel),
			string(s.HoldingPeriod), s.TargetPrice, s.StopLossPrice, s.BuyPoint, s.SellPoint)
		if err != nil {
			return fmt.Errorf("failed to insert selection %s: %w", s.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Info().Str("run_id", runID).Int("count", len(stocks)).Msg("Wrote selection history")
	return nil
}

// ListByStrategy returns the latest selections for a strategy, ordered by
// created_at then composite_score descending.
func (r *SelectionRepository) ListByStrategy(strategyID, limit int) ([]domain.ScoredStock, error) {
	rows, err := r.db.Query(`
		SELECT run_id, strategy_id, code, name, COALESCE(industry, ''), composite_score,
		       momentum_score, trend_quality_score, sector_score, fundamental_score,
		       valuation_score, quality_score, growth_score, volume_score,
		       sentiment_score, risk_score, COALESCE(selection_reason, ''), risk_level,
		       holding_period, target_price, stop_loss_price, buy_point, sell_point, created_at
		FROM advanced_selection_history
		WHERE strategy_id = ?
		ORDER BY created_at DESC, composite_score DESC
		LIMIT ?
	`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query selection history: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredStock
	for rows.Next() {
		var s domain.ScoredStock
		var riskLevel, holdingPeriod string
		err := rows.Scan(&s.RunID, &s.StrategyID, &s.Code, &s.Name, &s.Industry, &s.CompositeScore,
			&s.MomentumScore, &s.TrendQualityScore, &s.SectorScore, &s.FundamentalScore,
			&s.ValuationScore, &s.QualityScore, &s.GrowthScore, &s.VolumeScore,
			&s.SentimentScore, &s.RiskScore, &s.SelectionReason, &riskLevel,
			&holdingPeriod, &s.TargetPrice, &s.StopLossPrice, &s.BuyPoint, &s.SellPoint, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selection row: %w", err)
		}
		s.RiskLevel = domain.RiskLevel(riskLevel)
		s.HoldingPeriod = domain.HoldingPeriod(holdingPeriod)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating selection history: %w", err)
	}
	return out, nil
}

// ListByRun returns one run's selections ordered by composite_score descending.
func (r *SelectionRepository) ListByRun(runID string) ([]domain.ScoredStock, error) {
	rows, err := r.db.Query(`
		SELECT run_id, strategy_id, code, name, COALESCE(industry, ''), composite_score, created_at
		FROM advanced_selection_history
		WHERE run_id = ?
		ORDER BY composite_score DESC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run selections: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredStock
	for rows.Next() {
		var s domain.ScoredStock
		if err := rows.Scan(&s.RunID, &s.StrategyID, &s.Code, &s.Name, &s.Industry, &s.CompositeScore, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run selection: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run selections: %w", err)
	}
	return out, nil
}

// DeleteRun removes all rows of one run. Used for per-batch cleanup.
func (r *SelectionRepository) DeleteRun(runID string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM advanced_selection_history WHERE run_id = ?", runID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		r.log.Info().Str("run_id", runID).Int64("rows_deleted", deleted).Msg("Deleted selection run")
	}
	return deleted, nil
}

// CountByRun returns the number of rows written under a run.
func (r *SelectionRepository) CountByRun(runID string) (int, error) {
	var count int
	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM advanced_selection_history WHERE run_id = ?", runID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count run selections: %w", err)
	}
	return count, nil
}
