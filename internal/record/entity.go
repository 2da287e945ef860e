// Package record prepares extracted payloads for the raw table: entity naming,
// advisory schema checks, timestamps and content fingerprints.
package record

import "strings"

// Entity labels as stored in moodle_raw.entity.
const (
	EntityUser            = "user"
	EntityCourse          = "course"
	EntityRole            = "role"
	EntityEnrolment       = "enrolment"
	EntityEnrolmentMethod = "enrolment_method"
	EntityGradeItem       = "grade_item"
	EntityGrade           = "grade"
	EntityCompletion      = "completion"
)

var plurals = map[string]string{
	"users":             EntityUser,
	"courses":           EntityCourse,
	"roles":             EntityRole,
	"enrolments":        EntityEnrolment,
	"enrolment_methods": EntityEnrolmentMethod,
	"grade_items":       EntityGradeItem,
	"grades":            EntityGrade,
	"completions":       EntityCompletion,
}

// Singular maps a plural entity label to its singular form.
// Labels that are already singular, or unknown, are returned trimmed and lower-cased.
func Singular(entity string) string {
	e := strings.ToLower(strings.TrimSpace(entity))
	if s, ok := plurals[e]; ok {
		return s
	}
	return e
}

// Plural returns the plural label of a known singular entity, or the input unchanged.
func Plural(entity string) string {
	e := Singular(entity)
	for p, s := range plurals {
		if s == e {
			return p
		}
	}
	return e
}

// Entities lists the plural labels in extraction dependency order.
func Entities() []string {
	return []string{
		"users", "courses", "roles",
		"enrolments", "enrolment_methods", "grade_items", "grades",
		"completions",
	}
}
