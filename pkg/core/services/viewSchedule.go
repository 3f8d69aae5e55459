package services

import (
	"context"
	"fmt"
	"time"

	"github.com/whoseonfirst/oncall/pkg/core/rotation"
	"github.com/whoseonfirst/oncall/pkg/db"
)

// CurrentWeek returns the assignments for the rotation week containing now
func CurrentWeek(ctx context.Context, schedule db.ScheduleStore, loc *time.Location, now time.Time) ([]db.ShiftAssignment, error) {
	weekStart := rotation.WeekStart(now.In(loc))
	assignments, err := schedule.GetByDateRange(ctx, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current week: %w", err)
	}
	return assignments, nil
}

// Upcoming returns the assignments for the next `weeks` rotation weeks,
// starting from the week containing now
func Upcoming(ctx context.Context, schedule db.ScheduleStore, loc *time.Location, now time.Time, weeks int) ([]db.ShiftAssignment, error) {
	if weeks <= 0 {
		return nil, fmt.Errorf("weeks must be positive, got %d", weeks)
	}
	weekStart := rotation.WeekStart(now.In(loc))
	assignments, err := schedule.GetByDateRange(ctx, weekStart, weekStart.AddDate(0, 0, 7*weeks))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming weeks: %w", err)
	}
	return assignments, nil
}

// ForParticipant returns all of one participant's assignments, ordered by
// start time
func ForParticipant(ctx context.Context, schedule db.ScheduleStore, participantID int64) ([]db.ShiftAssignment, error) {
	assignments, err := schedule.GetByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participant schedule: %w", err)
	}
	return assignments, nil
}

// NextForParticipant returns the participant's next assignment starting at
// or after now, or nil when none is scheduled
func NextForParticipant(ctx context.Context, schedule db.ScheduleStore, participantID int64, now time.Time) (*db.ShiftAssignment, error) {
	assignment, err := schedule.NextForParticipant(ctx, participantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next assignment: %w", err)
	}
	return assignment, nil
}
