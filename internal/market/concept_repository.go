package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// ConceptRepository manages the limit-up concept tables used by the
// factor engine's theme heat.
type ConceptRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewConceptRepository creates a new concept repository.
func NewConceptRepository(db *sql.DB, log zerolog.Logger) *ConceptRepository {
	return &ConceptRepository{
		db:  db,
		log: log.With().Str("component", "concept_repo").Logger(),
	}
}

// UpsertConcepts inserts or replaces concept rows in one transaction.
func (r *ConceptRepository) UpsertConcepts(rows []domain.KplConcept) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO kpl_concepts (date, concept_code, name, z_t_num, up_num)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.Exec(c.Date, c.ConceptCode, c.Name, c.ZTNum, c.UpNum); err != nil {
			return fmt.Errorf("failed to upsert concept %s/%s: %w", c.Date, c.ConceptCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertCons inserts or replaces concept membership rows in one transaction.
func (r *ConceptRepository) UpsertCons(rows []domain.KplConceptCons) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO kpl_concept_cons (date, concept_code, stock_code, hot_num)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.Exec(c.Date, c.ConceptCode, c.StockCode, c.HotNum); err != nil {
			return fmt.Errorf("failed to upsert concept member %s/%s/%s: %w", c.Date, c.ConceptCode, c.StockCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ThemeStats holds the theme-heat inputs for one stock on one day.
type ThemeStats struct {
	MaxZTNum  int // Strongest concept's limit-up count
	MaxHotNum int // Stock's best member hot rank
}

// ThemeStatsFor joins a stock's concept memberships with the concept rows
// for a date. Returns nil when the stock belongs to no concept that day.
func (r *ConceptRepository) ThemeStatsFor(code, date string) (*ThemeStats, error) {
	var zt, hot sql.NullInt64
	err := r.db.QueryRow(`
		SELECT MAX(c.z_t_num), MAX(m.hot_num)
		FROM kpl_concept_cons m
		JOIN kpl_concepts c ON c.date = m.date AND c.concept_code = m.concept_code
		WHERE m.stock_code = ? AND m.date = ?
	`, code, date).Scan(&zt, &hot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get theme stats for %s/%s: %w", code, date, err)
	}
	if !zt.Valid && !hot.Valid {
		return nil, nil
	}
	return &ThemeStats{MaxZTNum: int(zt.Int64), MaxHotNum: int(hot.Int64)}, nil
}
