package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/model"
	"github.com/and161185/moodle-elt/internal/repository"
)

var _ repository.RawRepository = (*RawRepo)(nil)

// TimeLayout is the fixed-width UTC text form of ts_extract; it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

const insertRaw = `INSERT INTO moodle_raw (instance, entity, moodle_id, data_json, hash_content, ts_extract)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`

const countRaw = `SELECT COUNT(*) FROM moodle_raw WHERE instance = ? AND entity = ?`

// RawRepo implements RawRepository on SQLite.
type RawRepo struct{ db *sql.DB }

// NewRawRepo constructs a raw snapshot repository over an open database.
func NewRawRepo(db *sql.DB) *RawRepo { return &RawRepo{db: db} }

// Persist inserts records in a single transaction; conflicting keys are skipped.
func (r *RawRepo) Persist(ctx context.Context, records []model.RawRecord) (inserted int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", errs.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			inserted = 0
			return
		}
		if e := tx.Commit(); e != nil {
			inserted = 0
			err = fmt.Errorf("%w: commit: %w", errs.ErrPersistence, e)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRaw)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %w", errs.ErrPersistence, err)
	}
	defer stmt.Close()

	for i, rec := range records {
		res, execErr := stmt.ExecContext(ctx,
			rec.Instance, rec.Entity, rec.MoodleID, rec.DataJSON, rec.ContentHash, formatTime(rec.ExtractedAt))
		if execErr != nil {
			return 0, fmt.Errorf("%w: insert record[%d]: %w", errs.ErrPersistence, i, execErr)
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return 0, fmt.Errorf("%w: insert record[%d]: %w", errs.ErrPersistence, i, raErr)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// CountSnapshots returns the number of rows stored for instance and entity.
func (r *RawRepo) CountSnapshots(ctx context.Context, instance, entity string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countRaw, instance, entity).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", errs.ErrPersistence, err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
