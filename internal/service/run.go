package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/model"
	"github.com/and161185/moodle-elt/internal/record"
)

// EntityStats summarizes one entity of a run.
type EntityStats struct {
	Extracted     int
	Inserted      int
	Snapshots     int64 // rows stored for the entity after the load
	FailedParents int
	FailedIDs     []string
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s EntityStats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("extracted", s.Extracted)
	enc.AddInt("inserted", s.Inserted)
	enc.AddInt64("snapshots", s.Snapshots)
	if s.FailedParents > 0 {
		enc.AddInt("failed_parents", s.FailedParents)
		return enc.AddArray("failed_ids", zapcore.ArrayMarshalerFunc(func(enc zapcore.ArrayEncoder) error {
			for _, id := range s.FailedIDs {
				enc.AppendString(id)
			}
			return nil
		}))
	}
	return nil
}

// RunSummary is the outcome of a pipeline run, keyed by plural entity label.
type RunSummary struct {
	RunID      uuid.UUID
	Instance   string
	StartedAt  time.Time
	FinishedAt time.Time
	Entities   map[string]EntityStats
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s RunSummary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("run_id", s.RunID.String())
	enc.AddString("instance", s.Instance)
	enc.AddTime("started_at", s.StartedAt)
	enc.AddTime("finished_at", s.FinishedAt)
	return enc.AddObject("statistics", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		for _, e := range record.Entities() {
			if st, ok := s.Entities[e]; ok {
				if err := enc.AddObject(e, st); err != nil {
					return err
				}
			}
		}
		return nil
	}))
}

// dependencies lists the entities whose extraction feeds another.
var dependencies = map[string][]string{
	"enrolments":        {"courses"},
	"enrolment_methods": {"courses"},
	"grade_items":       {"courses"},
	"grades":            {"courses"},
	"completions":       {"enrolments"},
}

// Run extracts and loads the selected entities in dependency order. Parents
// that are needed but not selected are extracted and not loaded. An empty
// selection runs every entity.
func (s *ExtractionService) Run(ctx context.Context, entities []string) (RunSummary, error) {
	sum := RunSummary{
		RunID:     uuid.Must(uuid.NewV4()),
		Instance:  s.instance,
		StartedAt: time.Now().UTC(),
		Entities:  make(map[string]EntityStats),
	}
	log := s.log.With(zap.String("run_id", sum.RunID.String()))

	known := make(map[string]bool)
	for _, e := range record.Entities() {
		known[e] = true
	}
	selected := make(map[string]bool)
	for _, e := range entities {
		p := record.Plural(e)
		if !known[p] {
			return sum, fmt.Errorf("%w: unknown entity %q", errs.ErrConfiguration, e)
		}
		selected[p] = true
	}
	if len(selected) == 0 {
		for e := range known {
			selected[e] = true
		}
	}
	needed := make(map[string]bool)
	for e := range selected {
		markNeeded(e, needed)
	}

	var courses, enrolments []model.Record
	for _, entity := range record.Entities() {
		if !needed[entity] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.finish(log, sum), err
		}

		var (
			recs []model.Record
			rep  FanOutReport
			err  error
		)
		switch entity {
		case "users":
			recs, err = s.ExtractUsers(ctx)
		case "courses":
			recs, err = s.ExtractCourses(ctx)
			courses = recs
		case "roles":
			recs, err = s.ExtractRoles(ctx)
		case "enrolments":
			recs, rep = s.ExtractEnrolments(ctx, courses)
			enrolments = recs
		case "enrolment_methods":
			recs, rep = s.ExtractEnrolmentMethods(ctx, courses)
		case "grade_items":
			recs, rep = s.ExtractGradeItems(ctx, courses)
		case "grades":
			recs, rep = s.ExtractGrades(ctx, courses)
		case "completions":
			recs, rep = s.ExtractCompletions(ctx, enrolments)
		}
		if err != nil {
			return s.finish(log, sum), err
		}

		if !selected[entity] {
			continue
		}
		st := EntityStats{Extracted: len(recs), FailedParents: rep.Failed, FailedIDs: rep.FailedIDs}
		res, err := s.Load(ctx, entity, recs)
		st.Inserted = res.Inserted
		if err != nil {
			sum.Entities[entity] = st
			return s.finish(log, sum), err
		}
		st.Snapshots, err = s.repo.CountSnapshots(ctx, s.instance, record.Singular(entity))
		sum.Entities[entity] = st
		if err != nil {
			return s.finish(log, sum), fmt.Errorf("count %s: %w", entity, err)
		}
	}

	return s.finish(log, sum), nil
}

func markNeeded(entity string, needed map[string]bool) {
	if needed[entity] {
		return
	}
	needed[entity] = true
	for _, dep := range dependencies[entity] {
		markNeeded(dep, needed)
	}
}

// finish stamps the summary and logs it as catalog metadata.
func (s *ExtractionService) finish(log *zap.Logger, sum RunSummary) RunSummary {
	sum.FinishedAt = time.Now().UTC()
	log.Info("catalog metadata", zap.Object("metadata", sum))
	return sum
}
