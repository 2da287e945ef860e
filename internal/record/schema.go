package record

import (
	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/model"
)

var requiredFields = map[string][]string{
	EntityUser:       {"id", "username"},
	EntityCourse:     {"id", "fullname"},
	EntityRole:       {"id", "shortname"},
	EntityGrade:      {"userid", "itemid"},
	EntityGradeItem:  {"id", "itemname"},
	EntityCompletion: {"userid", "completionstate"},
}

// Validate checks that data carries the required fields of entity.
// The result is advisory: callers log it and still persist the record.
// Entities without a schema always pass.
func Validate(entity string, data model.Record) error {
	e := Singular(entity)
	for _, field := range requiredFields[e] {
		if _, ok := data[field]; !ok {
			return &errs.ValidationError{Entity: e, Field: field}
		}
	}
	return nil
}
