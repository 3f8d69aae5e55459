package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/pkg/core/rotation"
	"github.com/whoseonfirst/oncall/pkg/db"
)

// GenerateResult represents the outcome of a schedule generation run
type GenerateResult struct {
	Assignments []db.ShiftAssignment
	Start       time.Time
	End         time.Time
	Replaced    int
}

// GenerateSchedule builds a rotation schedule starting at startDate and
// persists it. Without force, any overlap with existing assignments
// returns *db.ScheduleExistsError and nothing is written. With force, the
// conflicting slots are replaced in the same transaction as the insert.
func GenerateSchedule(ctx context.Context, roster db.RosterStore, schedule db.ScheduleStore, logger *zap.Logger, loc *time.Location, startDate time.Time, weeks int, force bool) (*GenerateResult, error) {
	logger.Debug("Generating schedule",
		zap.Time("start_date", startDate),
		zap.Int("weeks", weeks),
		zap.Bool("force", force))

	assignments, err := buildAssignments(ctx, roster, schedule, loc, startDate, weeks)
	if err != nil {
		return nil, err
	}

	created, err := schedule.CreateAssignments(ctx, assignments, force)
	if err != nil {
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	result := &GenerateResult{
		Assignments: created,
		Start:       created[0].StartAt,
		End:         created[len(created)-1].EndAt,
	}

	logger.Info("Schedule generated",
		zap.Int("assignments", len(created)),
		zap.Time("start", result.Start),
		zap.Time("end", result.End))

	return result, nil
}

// RegenerateFrom discards every assignment starting at or after fromDate
// and rebuilds the schedule from that point, atomically. Assignments that
// already started are never touched, so the notification history behind
// them stays meaningful.
func RegenerateFrom(ctx context.Context, roster db.RosterStore, schedule db.ScheduleStore, logger *zap.Logger, loc *time.Location, fromDate time.Time, weeks int) (*GenerateResult, error) {
	logger.Debug("Regenerating schedule",
		zap.Time("from_date", fromDate),
		zap.Int("weeks", weeks))

	assignments, err := buildAssignments(ctx, roster, schedule, loc, fromDate, weeks)
	if err != nil {
		return nil, err
	}

	from := rotation.WeekStart(fromDate.In(loc))
	created, deleted, err := schedule.ReplaceFrom(ctx, from, assignments)
	if err != nil {
		return nil, fmt.Errorf("failed to replace schedule: %w", err)
	}

	result := &GenerateResult{
		Assignments: created,
		Start:       created[0].StartAt,
		End:         created[len(created)-1].EndAt,
		Replaced:    int(deleted),
	}

	logger.Info("Schedule regenerated",
		zap.Int("assignments", len(created)),
		zap.Int64("replaced", deleted),
		zap.Time("start", result.Start),
		zap.Time("end", result.End))

	return result, nil
}

func buildAssignments(ctx context.Context, roster db.RosterStore, schedule db.ScheduleStore, loc *time.Location, startDate time.Time, weeks int) ([]db.ShiftAssignment, error) {
	participants, err := roster.ListActiveParticipantsOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}

	templates, err := roster.ListShiftTemplatesOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shift templates: %w", err)
	}

	assignments, err := rotation.Generate(participants, templates, startDate, weeks, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rotation: %w", err)
	}

	return assignments, nil
}
