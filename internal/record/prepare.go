package record

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/and161185/moodle-elt/internal/convert"
	"github.com/and161185/moodle-elt/internal/crypto"
	"github.com/and161185/moodle-elt/internal/model"
)

// Preparer wraps payloads into raw records. It performs no I/O.
type Preparer struct {
	clock Clock
}

// NewPreparer constructs a preparer; a nil clock means NewMonotonicClock().
func NewPreparer(clock Clock) *Preparer {
	if clock == nil {
		clock = NewMonotonicClock()
	}
	return &Preparer{clock: clock}
}

// Prepare builds an immutable RawRecord: singular entity, extraction timestamp,
// content fingerprint and JSON form of data. The payload is deep-copied.
func (p *Preparer) Prepare(instance, entity string, moodleID *int64, data model.Record) (model.RawRecord, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return model.RawRecord{}, fmt.Errorf("prepare: empty instance")
	}
	e := Singular(entity)
	if e == "" {
		return model.RawRecord{}, fmt.Errorf("prepare: empty entity")
	}
	if data == nil {
		data = model.Record{}
	}

	payload := data.Clone()
	sum, err := crypto.Fingerprint(payload)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("prepare %s: %w", e, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("prepare %s: encode: %w", e, err)
	}

	var id *int64
	if moodleID != nil {
		v := *moodleID
		id = &v
	}

	return model.RawRecord{
		Instance:    instance,
		Entity:      e,
		MoodleID:    id,
		Data:        payload,
		DataJSON:    string(raw),
		ContentHash: sum,
		ExtractedAt: p.clock.Now(),
	}, nil
}

// MoodleID picks the identifier stored in moodle_raw.moodle_id:
// a positive "id", else a positive "course_id", else nil.
func MoodleID(data model.Record) *int64 {
	if id, ok := convert.PositiveID(data, "id"); ok {
		return &id
	}
	if id, ok := convert.PositiveID(data, "course_id"); ok {
		return &id
	}
	return nil
}
