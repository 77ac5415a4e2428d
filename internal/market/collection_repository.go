package market

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// CollectionRepository manages collection_history, the authoritative cursor
// for what has been ingested. Status transitions only advance:
// pending -> running -> completed | failed.
type CollectionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCollectionRepository creates a new collection repository.
func NewCollectionRepository(db *sql.DB, log zerolog.Logger) *CollectionRepository {
	return &CollectionRepository{
		db:  db,
		log: log.With().Str("component", "collection_repo").Logger(),
	}
}

// Create inserts a new run in pending state.
func (r *CollectionRepository) Create(run domain.CollectionRun) error {
	_, err := r.db.Exec(`
		INSERT INTO collection_history (id, type, start_date, end_date, status)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Type, run.StartDate, run.EndDate, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to create collection run: %w", err)
	}
	return nil
}

// Get fetches a run by id. Returns nil when absent.
func (r *CollectionRepository) Get(id string) (*domain.CollectionRun, error) {
	var run domain.CollectionRun
	var status string
	var errMsg sql.NullString
	err := r.db.QueryRow(`
		SELECT id, type, start_date, end_date, stock_count, kline_count, flow_count,
		       indicator_count, status, elapsed_sec, error, created_at
		FROM collection_history WHERE id = ?
	`, id).Scan(&run.ID, &run.Type, &run.StartDate, &run.EndDate,
		&run.StockCount, &run.KlineCount, &run.FlowCount, &run.IndicatorCount,
		&status, &run.ElapsedSec, &errMsg, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection run %s: %w", id, err)
	}
	run.Status = domain.RunStatus(status)
	run.Error = errMsg.String
	return &run, nil
}

// transition advances a run's status, enforcing forward-only transitions.
func (r *CollectionRepository) transition(id string, next domain.RunStatus) error {
	current, err := r.Get(id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("collection run %s: %w", id, domain.ErrNotFound)
	}
	if !current.Status.CanTransition(next) {
		return fmt.Errorf("collection run %s: illegal transition %s -> %s", id, current.Status, next)
	}
	if _, err := r.db.Exec(
		"UPDATE collection_history SET status = ? WHERE id = ?", string(next), id,
	); err != nil {
		return fmt.Errorf("failed to transition collection run %s: %w", id, err)
	}
	return nil
}

// MarkRunning advances a pending run to running.
func (r *CollectionRepository) MarkRunning(id string) error {
	return r.transition(id, domain.StatusRunning)
}

// Complete marks a running run completed and records its counts.
func (r *CollectionRepository) Complete(id string, stockCount, klineCount, flowCount, indicatorCount int, elapsed time.Duration) error {
	if err := r.transition(id, domain.StatusCompleted); err != nil {
		return err
	}
	_, err := r.db.Exec(`
		UPDATE collection_history
		SET stock_count = ?, kline_count = ?, flow_count = ?, indicator_count = ?, elapsed_sec = ?
		WHERE id = ?
	`, stockCount, klineCount, flowCount, indicatorCount, elapsed.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to complete collection run %s: %w", id, err)
	}
	r.log.Info().Str("run_id", id).
		Int("klines", klineCount).Int("flows", flowCount).
		Float64("elapsed_sec", elapsed.Seconds()).
		Msg("Collection run completed")
	return nil
}

// Fail marks a run failed, keeping any counts written so far.
func (r *CollectionRepository) Fail(id string, errMsg string, elapsed time.Duration) error {
	if err := r.transition(id, domain.StatusFailed); err != nil {
		return err
	}
	_, err := r.db.Exec(`
		UPDATE collection_history SET error = ?, elapsed_sec = ? WHERE id = ?
	`, errMsg, elapsed.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to fail collection run %s: %w", id, err)
	}
	r.log.Warn().Str("run_id", id).Str("error", errMsg).Msg("Collection run failed")
	return nil
}

// UpdateCounts records intermediate counts on a running run.
func (r *CollectionRepository) UpdateCounts(id string, stockCount, klineCount, flowCount, indicatorCount int) error {
	_, err := r.db.Exec(`
		UPDATE collection_history
		SET stock_count = ?, kline_count = ?, flow_count = ?, indicator_count = ?
		WHERE id = ?
	`, stockCount, klineCount, flowCount, indicatorCount, id)
	if err != nil {
		return fmt.Errorf("failed to update counts for run %s: %w", id, err)
	}
	return nil
}

// LatestCompleted returns the most recent completed run, or nil.
func (r *CollectionRepository) LatestCompleted() (*domain.CollectionRun, error) {
	var id string
	err := r.db.QueryRow(`
		SELECT id FROM collection_history
		WHERE status = ? ORDER BY created_at DESC LIMIT 1
	`, string(domain.StatusCompleted)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest completed run: %w", err)
	}
	return r.Get(id)
}

// CountCompletedSince returns the number of completed runs created on or
// after the given local timestamp.
func (r *CollectionRepository) CountCompletedSince(ts string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM collection_history
		WHERE status = ? AND created_at >= ?
	`, string(domain.StatusCompleted), ts).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed runs: %w", err)
	}
	return count, nil
}
