// Package model defines domain entities used by the client, services and repositories.
package model

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Record is one decoded JSON object returned by the Moodle API.
// Numbers are kept as json.Number so identifiers survive verbatim.
type Record map[string]any

// Clone returns a deep copy of the record's objects and arrays.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r)+2)
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// RawRecord is a single extracted snapshot ready for the moodle_raw table.
type RawRecord struct {
	Instance    string    // source system, e.g. "moodle4"
	Entity      string    // singular record type, e.g. "user"
	MoodleID    *int64    // nil for composite/non-identified payloads
	Data        Record    // payload incl. injected association fields
	DataJSON    string    // transport form of Data
	ContentHash []byte    // binary fingerprint of Data
	ExtractedAt time.Time // UTC, storage precision
}

// HashHex returns the hex form of ContentHash.
func (r RawRecord) HashHex() string { return hex.EncodeToString(r.ContentHash) }

// Key identifies a snapshot row: (instance, entity, moodle_id, extracted_at).
type Key struct {
	Instance    string
	Entity      string
	MoodleID    int64
	HasMoodleID bool
	ExtractedAt time.Time
}

// Key returns the persistence key of the record.
func (r RawRecord) Key() Key {
	k := Key{Instance: r.Instance, Entity: r.Entity, ExtractedAt: r.ExtractedAt}
	if r.MoodleID != nil {
		k.MoodleID, k.HasMoodleID = *r.MoodleID, true
	}
	return k
}

// InstanceConfig is the resolved endpoint of one logical Moodle instance.
type InstanceConfig struct {
	URL      string
	Token    string // opaque credential, never logged
	Instance string
}

// String renders the config without the token.
func (c InstanceConfig) String() string {
	return fmt.Sprintf("%s (%s)", c.Instance, c.URL)
}
