package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/sameday/internal/models"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite file at path and migrates it.
func Open(path string) (*Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return s, db, nil
}

// CohortSummary is the SQL-side aggregate of one month-day cohort.
type CohortSummary struct {
	Key   models.MonthDay
	Count int
	Mean  sql.NullFloat64
	Min   sql.NullFloat64
	Max   sql.NullFloat64
}

// ReplaceRecords swaps the stored table for t in a single transaction.
func (s *Store) ReplaceRecords(t *models.Table) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM daily_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO daily_records (date, station, avg_temp, min_temp, max_temp, year, month, day, month_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range t.Records {
		if _, err := stmt.Exec(
			r.Date.Format(dateLayout), r.Station, r.AvgTemp, r.MinTemp, r.MaxTemp,
			r.Year, int(r.Month), r.Day, r.Key.String(),
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.Date.Format(dateLayout), err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO exports (source_hash, rows, exported_at) VALUES (?, ?, ?)`,
		t.SourceHash, t.Len(), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record export: %w", err)
	}

	return tx.Commit()
}

// Export replaces the stored records with t unless the last export came
// from the same source. It reports whether records were written.
func (s *Store) Export(t *models.Table, force bool) (bool, error) {
	hash, _, err := s.LastExport()
	if err != nil {
		return false, fmt.Errorf("last export: %w", err)
	}
	if !force && hash != "" && hash == t.SourceHash {
		return false, nil
	}
	if err := s.ReplaceRecords(t); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_records`).Scan(&n)
	return n, err
}

func (s *Store) CohortSummary(key models.MonthDay) (*CohortSummary, error) {
	sum := &CohortSummary{Key: key}
	err := s.db.QueryRow(`
		SELECT valid_days, mean_avg, min_avg, max_avg
		FROM cohort_summaries
		WHERE month_day = ?
	`, key.String()).Scan(&sum.Count, &sum.Mean, &sum.Min, &sum.Max)
	// A month-day with no rows at all has no summary row.
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return sum, nil
}

// LastExport returns the source hash and time of the most recent export.
func (s *Store) LastExport() (hash string, at time.Time, err error) {
	err = s.db.QueryRow(`
		SELECT source_hash, exported_at FROM exports ORDER BY id DESC LIMIT 1
	`).Scan(&hash, &at)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	return hash, at, err
}
