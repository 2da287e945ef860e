package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/model"
	"github.com/and161185/moodle-elt/internal/repository"
)

var _ repository.RawRepository = (*RawRepo)(nil)

const insertRaw = `INSERT INTO moodle_raw (instance, entity, moodle_id, data_json, hash_content, ts_extract)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`

const countRaw = `SELECT COUNT(*) FROM moodle_raw WHERE instance=$1 AND entity=$2`

// RawRepo implements RawRepository using PostgreSQL.
type RawRepo struct{ db *DB }

// NewRawRepo constructs a raw snapshot repository.
func NewRawRepo(db *DB) *RawRepo { return &RawRepo{db: db} }

// Persist inserts records in a single transaction. Conflicting keys are skipped;
// any other failure rolls the whole batch back.
func (r *RawRepo) Persist(ctx context.Context, records []model.RawRecord) (inserted int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", errs.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			inserted = 0
			return
		}
		if e := tx.Commit(ctx); e != nil {
			inserted = 0
			err = fmt.Errorf("%w: commit: %w", errs.ErrPersistence, e)
		}
	}()

	for i, rec := range records {
		tag, execErr := tx.Exec(ctx, insertRaw,
			rec.Instance, rec.Entity, rec.MoodleID, rec.DataJSON, rec.ContentHash, rec.ExtractedAt.UTC())
		if execErr != nil {
			return 0, fmt.Errorf("%w: insert record[%d]: %w", errs.ErrPersistence, i, execErr)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// CountSnapshots returns the number of rows stored for instance and entity.
func (r *RawRepo) CountSnapshots(ctx context.Context, instance, entity string) (int64, error) {
	var n int64
	if err := r.db.Pool.QueryRow(ctx, countRaw, instance, entity).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", errs.ErrPersistence, err)
	}
	return n, nil
}
