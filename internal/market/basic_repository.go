package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// DailyBasicRepository manages the per-day valuation snapshot table.
type DailyBasicRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDailyBasicRepository creates a new daily-basic repository.
func NewDailyBasicRepository(db *sql.DB, log zerolog.Logger) *DailyBasicRepository {
	return &DailyBasicRepository{
		db:  db,
		log: log.With().Str("component", "daily_basic_repo").Logger(),
	}
}

// UpsertBatch inserts or replaces daily-basic rows in a single transaction.
func (r *DailyBasicRepository) UpsertBatch(rows []domain.DailyBasic) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_basic
		(code, date, close, turnover_rate, volume_ratio, pe, pe_ttm, pb, ps, ps_ttm,
		 dv_ratio, dv_ttm, total_share, float_share, free_share, total_mv, circ_mv)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range rows {
		_, err := stmt.Exec(
			b.Code, b.Date,
			nullFloat(b.Close), nullFloat(b.TurnoverRate), nullFloat(b.VolumeRatio),
			nullFloat(b.PE), nullFloat(b.PETTM), nullFloat(b.PB),
			nullFloat(b.PS), nullFloat(b.PSTTM),
			nullFloat(b.DVRatio), nullFloat(b.DVTTM),
			nullFloat(b.TotalShare), nullFloat(b.FloatShare), nullFloat(b.FreeShare),
			nullFloat(b.TotalMV), nullFloat(b.CircMV),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert daily_basic %s/%s: %w", b.Code, b.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.Debug().Int("count", len(rows)).Msg("Upserted daily basics")
	return nil
}

// Latest fetches the most recent daily-basic row for a code.
// Returns nil when the stock has no row yet.
func (r *DailyBasicRepository) Latest(code string) (*domain.DailyBasic, error) {
	row := r.db.QueryRow(`
		SELECT code, date, close, turnover_rate, volume_ratio, pe, pe_ttm, pb, ps, ps_ttm,
		       dv_ratio, dv_ttm, total_share, float_share, free_share, total_mv, circ_mv
		FROM daily_basic WHERE code = ?
		ORDER BY date DESC LIMIT 1
	`, code)
	b, err := scanDailyBasic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest daily_basic for %s: %w", code, err)
	}
	return b, nil
}

// MergeAuctionFields fills turnover_rate, volume_ratio and float_share on an
// existing (code, date) row only where the current value is zero or null.
// Valuation fields from the main daily pull are never clobbered. When the row
// does not exist yet, a new partial row is inserted.
func (r *DailyBasicRepository) MergeAuctionFields(code, date string, turnoverRate, volumeRatio, floatShare float64) error {
	res, err := r.db.Exec(`
		UPDATE daily_basic SET
			turnover_rate = CASE WHEN COALESCE(turnover_rate, 0) = 0 AND ? > 0 THEN ? ELSE turnover_rate END,
			volume_ratio  = CASE WHEN COALESCE(volume_ratio, 0)  = 0 AND ? > 0 THEN ? ELSE volume_ratio  END,
			float_share   = CASE WHEN COALESCE(float_share, 0)   = 0 AND ? > 0 THEN ? ELSE float_share   END
		WHERE code = ? AND date = ?
	`, turnoverRate, turnoverRate, volumeRatio, volumeRatio, floatShare, floatShare, code, date)
	if err != nil {
		return fmt.Errorf("failed to merge auction fields for %s/%s: %w", code, date, err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		_, err := r.db.Exec(`
			INSERT OR IGNORE INTO daily_basic (code, date, turnover_rate, volume_ratio, float_share)
			VALUES (?, ?, NULLIF(?, 0), NULLIF(?, 0), NULLIF(?, 0))
		`, code, date, turnoverRate, volumeRatio, floatShare)
		if err != nil {
			return fmt.Errorf("failed to insert partial daily_basic for %s/%s: %w", code, date, err)
		}
	}
	return nil
}

// Get fetches one (code, date) row. Returns nil when absent.
func (r *DailyBasicRepository) Get(code, date string) (*domain.DailyBasic, error) {
	row := r.db.QueryRow(`
		SELECT code, date, close, turnover_rate, volume_ratio, pe, pe_ttm, pb, ps, ps_ttm,
		       dv_ratio, dv_ttm, total_share, float_share, free_share, total_mv, circ_mv
		FROM daily_basic WHERE code = ? AND date = ?
	`, code, date)
	b, err := scanDailyBasic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily_basic %s/%s: %w", code, date, err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDailyBasic(row rowScanner) (*domain.DailyBasic, error) {
	var b domain.DailyBasic
	var f [15]sql.NullFloat64
	err := row.Scan(
		&b.Code, &b.Date,
		&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7],
		&f[8], &f[9], &f[10], &f[11], &f[12], &f[13], &f[14],
	)
	if err != nil {
		return nil, err
	}
	dst := []**float64{
		&b.Close, &b.TurnoverRate, &b.VolumeRatio, &b.PE, &b.PETTM, &b.PB,
		&b.PS, &b.PSTTM, &b.DVRatio, &b.DVTTM,
		&b.TotalShare, &b.FloatShare, &b.FreeShare, &b.TotalMV, &b.CircMV,
	}
	for i := range f {
		if f[i].Valid {
			v := f[i].Float64
			*dst[i] = &v
		}
	}
	return &b, nil
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
