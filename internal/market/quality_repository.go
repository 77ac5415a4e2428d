package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// QualityRepository persists data-quality metrics and alerts.
// The quality monitor is its only writer.
type QualityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewQualityRepository creates a new quality repository.
func NewQualityRepository(db *sql.DB, log zerolog.Logger) *QualityRepository {
	return &QualityRepository{
		db:  db,
		log: log.With().Str("component", "quality_repo").Logger(),
	}
}

// InsertBatch writes one monitoring pass's records in a single transaction.
func (r *QualityRepository) InsertBatch(records []domain.QualityRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO data_quality_monitor
		(date, metric_type, metric_name, value, threshold, is_healthy, alert_level, description)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		healthy := 0
		if rec.IsHealthy {
			healthy = 1
		}
		if _, err := stmt.Exec(rec.Date, rec.MetricType, rec.MetricName, rec.Value,
			rec.Threshold, healthy, rec.AlertLevel, rec.Description); err != nil {
			return fmt.Errorf("failed to insert quality record %s: %w", rec.MetricName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(records)).Msg("Wrote quality records")
	return nil
}

// ListByDate returns all records for one date, ordered by metric name.
func (r *QualityRepository) ListByDate(date string) ([]domain.QualityRecord, error) {
	rows, err := r.db.Query(`
		SELECT date, metric_type, metric_name, value, threshold, is_healthy,
		       COALESCE(alert_level, ''), COALESCE(description, ''), created_at
		FROM data_quality_monitor
		WHERE date = ? ORDER BY metric_name
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality records: %w", err)
	}
	defer rows.Close()

	var out []domain.QualityRecord
	for rows.Next() {
		var rec domain.QualityRecord
		var healthy int
		if err := rows.Scan(&rec.Date, &rec.MetricType, &rec.MetricName, &rec.Value,
			&rec.Threshold, &healthy, &rec.AlertLevel, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quality record: %w", err)
		}
		rec.IsHealthy = healthy == 1
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality records: %w", err)
	}
	return out, nil
}
