package moodle

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/convert"
	"github.com/and161185/moodle-elt/internal/model"
)

// Web service functions used by the extractor.
const (
	FnGetUsers            = "core_user_get_users"
	FnGetCourses          = "core_course_get_courses"
	FnGetRoles            = "core_role_get_all_roles"
	FnGetEnrolledUsers    = "core_enrol_get_enrolled_users"
	FnGetEnrolmentMethods = "core_enrol_get_course_enrolment_methods"
	FnGetGradeItems       = "gradereport_user_get_grade_items"
	FnGetGradesTable      = "gradereport_user_get_grades_table"
	FnGetCompletionStatus = "core_completion_get_course_completion_status"
)

// Criterion is one core_user_get_users search pair.
type Criterion struct {
	Key   string
	Value string
}

// AllUsers matches every user with an email; Moodle rejects an empty criteria list.
var AllUsers = Criterion{Key: "email", Value: "%"}

// GetUsers lists users matching all criteria, or every user when none are given.
func (c *Client) GetUsers(ctx context.Context, criteria ...Criterion) ([]model.Record, error) {
	if len(criteria) == 0 {
		criteria = []Criterion{AllUsers}
	}
	params := make(map[string]string, 2*len(criteria))
	for i, cr := range criteria {
		prefix := "criteria[" + strconv.Itoa(i) + "]"
		params[prefix+"[key]"] = cr.Key
		params[prefix+"[value]"] = cr.Value
	}
	return c.list(ctx, FnGetUsers, params, "users")
}

func (c *Client) GetCourses(ctx context.Context) ([]model.Record, error) {
	return c.list(ctx, FnGetCourses, nil, "")
}

func (c *Client) GetRoles(ctx context.Context) ([]model.Record, error) {
	return c.list(ctx, FnGetRoles, nil, "")
}

func (c *Client) GetEnrolledUsers(ctx context.Context, courseID int64) ([]model.Record, error) {
	return c.list(ctx, FnGetEnrolledUsers, courseParams(courseID), "")
}

func (c *Client) GetEnrolmentMethods(ctx context.Context, courseID int64) ([]model.Record, error) {
	return c.list(ctx, FnGetEnrolmentMethods, courseParams(courseID), "")
}

func (c *Client) GetCourseGradeItems(ctx context.Context, courseID int64) ([]model.Record, error) {
	return c.list(ctx, FnGetGradeItems, courseParams(courseID), "usergrades")
}

// GetGrades returns the grade tables of a course; userID <= 0 means all users.
func (c *Client) GetGrades(ctx context.Context, courseID, userID int64) ([]model.Record, error) {
	params := courseParams(courseID)
	if userID > 0 {
		params["userid"] = convert.FormatID(userID)
	}
	return c.list(ctx, FnGetGradesTable, params, "tables")
}

// GetCourseCompletion returns the completion status of one user in one course,
// or nil when the remote returned nothing.
func (c *Client) GetCourseCompletion(ctx context.Context, courseID, userID int64) (model.Record, error) {
	params := courseParams(courseID)
	params["userid"] = convert.FormatID(userID)
	recs, err := c.list(ctx, FnGetCompletionStatus, params, "")
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func courseParams(courseID int64) map[string]string {
	return map[string]string{"courseid": convert.FormatID(courseID)}
}

func (c *Client) list(ctx context.Context, function string, params map[string]string, unwrapKey string) ([]model.Record, error) {
	items, err := c.Call(ctx, function, params)
	if err != nil {
		return nil, err
	}
	if unwrapKey != "" {
		items = convert.Unwrap(items, unwrapKey)
	}
	recs, dropped := convert.Records(items)
	if dropped > 0 {
		c.log.Warn("dropped non-object elements", zap.String("function", function), zap.Int("dropped", dropped))
	}
	return recs, nil
}
