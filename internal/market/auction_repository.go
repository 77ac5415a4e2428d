package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// AuctionRepository manages call-auction snapshots and the realtime
// quote history.
type AuctionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAuctionRepository creates a new auction repository.
func NewAuctionRepository(db *sql.DB, log zerolog.Logger) *AuctionRepository {
	return &AuctionRepository{
		db:  db,
		log: log.With().Str("component", "auction_repo").Logger(),
	}
}

// UpsertBatch inserts or replaces auction snapshots in one transaction.
func (r *AuctionRepository) UpsertBatch(snaps []domain.AuctionSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO auction_snapshots
		(code, snapshot_ts, pre_close, price, vol, amount, turnover_rate, volume_ratio, float_share)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range snaps {
		_, err := stmt.Exec(s.Code, s.SnapshotTS, s.PreClose, s.Price, s.Vol, s.Amount,
			s.TurnoverRate, s.VolumeRatio, s.FloatShare)
		if err != nil {
			return fmt.Errorf("failed to upsert auction snapshot %s/%s: %w", s.Code, s.SnapshotTS, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(snaps)).Msg("Upserted auction snapshots")
	return nil
}

// DeleteWindow removes snapshots inside [fromTS, toTS) for the given codes.
// With no codes, the whole window is cleared. Used by forced refreshes.
func (r *AuctionRepository) DeleteWindow(fromTS, toTS string, codes []string) (int64, error) {
	query := "DELETE FROM auction_snapshots WHERE snapshot_ts >= ? AND snapshot_ts < ?"
	args := []interface{}{fromTS, toTS}
	if len(codes) > 0 {
		query += " AND code IN (" + placeholders(len(codes)) + ")"
		for _, c := range codes {
			args = append(args, c)
		}
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete auction window: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		r.log.Info().Int64("rows_deleted", deleted).Str("from", fromTS).Str("to", toTS).
			Msg("Cleared auction window")
	}
	return deleted, nil
}

// ByCodeDate fetches snapshots for a code with snapshot_ts on a given day,
// ordered ascending.
func (r *AuctionRepository) ByCodeDate(code, date string) ([]domain.AuctionSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT code, snapshot_ts, pre_close, price, vol, amount, turnover_rate, volume_ratio, float_share
		FROM auction_snapshots
		WHERE code = ? AND snapshot_ts >= ? AND snapshot_ts < ?
		ORDER BY snapshot_ts ASC
	`, code, date+"T00:00:00", date+"T23:59:59")
	if err != nil {
		return nil, fmt.Errorf("failed to query auction snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.AuctionSnapshot
	for rows.Next() {
		var s domain.AuctionSnapshot
		if err := rows.Scan(&s.Code, &s.SnapshotTS, &s.PreClose, &s.Price, &s.Vol, &s.Amount,
			&s.TurnoverRate, &s.VolumeRatio, &s.FloatShare); err != nil {
			return nil, fmt.Errorf("failed to scan auction snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auction snapshots: %w", err)
	}
	return snaps, nil
}

// AppendQuotes appends realtime quote snapshots to quote_history.
func (r *AuctionRepository) AppendQuotes(quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO quote_history
		(code, ts, price, pre_close, open, high, low, volume, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.Exec(q.Code, q.TS, q.Price, q.PreClose, q.Open, q.High, q.Low, q.Volume, q.Amount); err != nil {
			return fmt.Errorf("failed to append quote %s/%s: %w", q.Code, q.TS, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(quotes)).Msg("Appended quotes")
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ",?"
	}
	return s
}
