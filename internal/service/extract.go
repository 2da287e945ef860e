package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/convert"
	"github.com/and161185/moodle-elt/internal/metrics"
	"github.com/and161185/moodle-elt/internal/model"
	"github.com/and161185/moodle-elt/internal/moodle"
	"github.com/and161185/moodle-elt/internal/record"
	"github.com/and161185/moodle-elt/internal/repository"
)

// MoodleAPI is the subset of *moodle.Client used for extraction.
type MoodleAPI interface {
	Instance() string
	GetUsers(ctx context.Context, criteria ...moodle.Criterion) ([]model.Record, error)
	GetCourses(ctx context.Context) ([]model.Record, error)
	GetRoles(ctx context.Context) ([]model.Record, error)
	GetEnrolledUsers(ctx context.Context, courseID int64) ([]model.Record, error)
	GetEnrolmentMethods(ctx context.Context, courseID int64) ([]model.Record, error)
	GetCourseGradeItems(ctx context.Context, courseID int64) ([]model.Record, error)
	GetGrades(ctx context.Context, courseID, userID int64) ([]model.Record, error)
	GetCourseCompletion(ctx context.Context, courseID, userID int64) (model.Record, error)
}

var _ MoodleAPI = (*moodle.Client)(nil)

// FanOutReport describes a per-parent extraction. Failed parents are excluded
// from the result instead of failing the batch.
type FanOutReport struct {
	Succeeded int
	Failed    int
	FailedIDs []string
}

// LoadResult counts the rows of one load step.
type LoadResult struct {
	Prepared int
	Inserted int
}

// ExtractionService pulls entities from one Moodle instance into the raw store.
type ExtractionService struct {
	api      MoodleAPI
	repo     repository.RawRepository
	prep     *record.Preparer
	log      *zap.Logger
	instance string
}

// NewExtractionService wires the service. A nil preparer uses a monotonic clock;
// a nil logger discards output.
func NewExtractionService(api MoodleAPI, repo repository.RawRepository, prep *record.Preparer, log *zap.Logger) *ExtractionService {
	if prep == nil {
		prep = record.NewPreparer(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExtractionService{
		api:      api,
		repo:     repo,
		prep:     prep,
		log:      log.With(zap.String("instance", api.Instance())),
		instance: api.Instance(),
	}
}

// ExtractUsers returns every user of the instance.
func (s *ExtractionService) ExtractUsers(ctx context.Context) ([]model.Record, error) {
	return s.top(ctx, "users", func(ctx context.Context) ([]model.Record, error) { return s.api.GetUsers(ctx) })
}

func (s *ExtractionService) ExtractCourses(ctx context.Context) ([]model.Record, error) {
	return s.top(ctx, "courses", s.api.GetCourses)
}

func (s *ExtractionService) ExtractRoles(ctx context.Context) ([]model.Record, error) {
	return s.top(ctx, "roles", s.api.GetRoles)
}

func (s *ExtractionService) top(
	ctx context.Context, entity string, fetch func(context.Context) ([]model.Record, error),
) ([]model.Record, error) {
	s.log.Info("extracting", zap.String("entity", entity))
	recs, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", entity, err)
	}
	metrics.RecordsExtracted.WithLabelValues(s.instance, entity).Add(float64(len(recs)))
	s.log.Info("extracted", zap.String("entity", entity), zap.Int("count", len(recs)))
	return recs, nil
}

// ExtractEnrolments returns the enrolled users of each course tagged with course_id.
func (s *ExtractionService) ExtractEnrolments(ctx context.Context, courses []model.Record) ([]model.Record, FanOutReport) {
	return s.perCourse(ctx, "enrolments", courses, s.api.GetEnrolledUsers)
}

func (s *ExtractionService) ExtractEnrolmentMethods(ctx context.Context, courses []model.Record) ([]model.Record, FanOutReport) {
	return s.perCourse(ctx, "enrolment_methods", courses, s.api.GetEnrolmentMethods)
}

func (s *ExtractionService) ExtractGradeItems(ctx context.Context, courses []model.Record) ([]model.Record, FanOutReport) {
	return s.perCourse(ctx, "grade_items", courses, s.api.GetCourseGradeItems)
}

// ExtractGrades returns the grade tables of each course for all users.
func (s *ExtractionService) ExtractGrades(ctx context.Context, courses []model.Record) ([]model.Record, FanOutReport) {
	return s.perCourse(ctx, "grades", courses, func(ctx context.Context, courseID int64) ([]model.Record, error) {
		return s.api.GetGrades(ctx, courseID, 0)
	})
}

// perCourse calls fetch for every course with a positive id. A failing course
// is logged and skipped; the loop stops early only when ctx is done.
func (s *ExtractionService) perCourse(
	ctx context.Context, entity string, courses []model.Record,
	fetch func(context.Context, int64) ([]model.Record, error),
) ([]model.Record, FanOutReport) {
	s.log.Info("extracting", zap.String("entity", entity), zap.Int("courses", len(courses)))

	var (
		out []model.Record
		rep FanOutReport
	)
	for _, course := range courses {
		if ctx.Err() != nil {
			break
		}
		courseID, ok := convert.PositiveID(course, "id")
		if !ok {
			continue
		}
		recs, err := fetch(ctx, courseID)
		if err != nil {
			s.fanOutFailed(entity, &rep, convert.FormatID(courseID), err)
			continue
		}
		rep.Succeeded++
		for _, rec := range recs {
			tagged := rec.Clone()
			tagged["course_id"] = courseID
			out = append(out, tagged)
		}
	}

	metrics.RecordsExtracted.WithLabelValues(s.instance, entity).Add(float64(len(out)))
	s.log.Info("extracted", zap.String("entity", entity), zap.Int("count", len(out)), zap.Int("failed", rep.Failed))
	return out, rep
}

// ExtractCompletions fetches the completion status of every enrolment
// (course_id plus user id) and tags it with course_id and userid.
func (s *ExtractionService) ExtractCompletions(ctx context.Context, enrolments []model.Record) ([]model.Record, FanOutReport) {
	const entity = "completions"
	s.log.Info("extracting", zap.String("entity", entity), zap.Int("enrolments", len(enrolments)))

	var (
		out []model.Record
		rep FanOutReport
	)
	for _, enr := range enrolments {
		if ctx.Err() != nil {
			break
		}
		courseID, okCourse := convert.PositiveID(enr, "course_id")
		userID, okUser := convert.PositiveID(enr, "id")
		if !okCourse || !okUser {
			continue
		}
		rec, err := s.api.GetCourseCompletion(ctx, courseID, userID)
		if err != nil {
			s.fanOutFailed(entity, &rep, convert.FormatID(courseID)+"/"+convert.FormatID(userID), err)
			continue
		}
		rep.Succeeded++
		if rec == nil {
			continue
		}
		tagged := rec.Clone()
		tagged["course_id"] = courseID
		tagged["userid"] = userID
		out = append(out, tagged)
	}

	metrics.RecordsExtracted.WithLabelValues(s.instance, entity).Add(float64(len(out)))
	s.log.Info("extracted", zap.String("entity", entity), zap.Int("count", len(out)), zap.Int("failed", rep.Failed))
	return out, rep
}

func (s *ExtractionService) fanOutFailed(entity string, rep *FanOutReport, id string, err error) {
	rep.Failed++
	rep.FailedIDs = append(rep.FailedIDs, id)
	metrics.FanOutFailures.WithLabelValues(s.instance, entity).Inc()
	s.log.Error("fan-out call failed, skipping",
		zap.String("entity", entity),
		zap.String("parent", id),
		zap.Error(err),
	)
}

// Load prepares items as raw records of entity and persists them as one batch.
// Schema problems are logged and do not block the row.
func (s *ExtractionService) Load(ctx context.Context, entity string, items []model.Record) (LoadResult, error) {
	e := record.Singular(entity)
	if len(items) == 0 {
		s.log.Warn("no data to load", zap.String("entity", e))
		return LoadResult{}, nil
	}

	raws := make([]model.RawRecord, 0, len(items))
	for _, item := range items {
		if err := record.Validate(e, item); err != nil {
			metrics.ValidationWarnings.WithLabelValues(e).Inc()
			s.log.Warn("schema validation failed", zap.String("entity", e), zap.Error(err))
		}
		raw, err := s.prep.Prepare(s.instance, e, record.MoodleID(item), item)
		if err != nil {
			return LoadResult{}, fmt.Errorf("load %s: %w", e, err)
		}
		raws = append(raws, raw)
	}

	inserted, err := s.repo.Persist(ctx, raws)
	if err != nil {
		return LoadResult{Prepared: len(raws)}, fmt.Errorf("load %s: %w", e, err)
	}
	metrics.RecordsPersisted.WithLabelValues(s.instance, e).Add(float64(inserted))
	s.log.Info("loaded",
		zap.String("entity", e),
		zap.Int("prepared", len(raws)),
		zap.Int("inserted", inserted),
	)
	return LoadResult{Prepared: len(raws), Inserted: inserted}, nil
}
