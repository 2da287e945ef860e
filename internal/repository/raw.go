// Package repository declares the storage contracts of the extractor.
package repository

import (
	"context"

	"github.com/and161185/moodle-elt/internal/model"
)

// RawRepository stores raw snapshots in moodle_raw.
type RawRepository interface {
	// Persist inserts the batch in one transaction, skipping rows whose
	// (instance, entity, moodle_id, extracted_at) key already exists.
	// It returns the number of newly inserted rows.
	Persist(ctx context.Context, records []model.RawRecord) (int, error)

	// CountSnapshots returns the number of stored rows for an instance and entity.
	CountSnapshots(ctx context.Context, instance, entity string) (int64, error)
}
