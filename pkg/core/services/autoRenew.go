package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/pkg/core/rotation"
	"github.com/whoseonfirst/oncall/pkg/db"
)

// AutoRenewResult reports what the renewal check found and did
type AutoRenewResult struct {
	Extended       bool
	RemainingWeeks int
	Result         *GenerateResult
}

// CheckAutoRenew extends the schedule when coverage is running out. If the
// furthest scheduled assignment starts fewer than thresholdWeeks from now,
// renewWeeks of new assignments are appended after it. The rotation
// counter keeps participants' turns continuous across the extension.
func CheckAutoRenew(ctx context.Context, roster db.RosterStore, schedule db.ScheduleStore, logger *zap.Logger, loc *time.Location, now time.Time, thresholdWeeks, renewWeeks int) (*AutoRenewResult, error) {
	furthest, err := schedule.FurthestStart(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check schedule horizon: %w", err)
	}
	if furthest == nil {
		logger.Info("No schedule exists, skipping auto-renewal")
		return &AutoRenewResult{}, nil
	}

	// Count whole civil weeks between the two week starts rather than
	// dividing elapsed hours, which drifts across DST transitions.
	remaining := rotation.WeekIndex(furthest.In(loc)) - rotation.WeekIndex(now.In(loc))
	if remaining >= thresholdWeeks {
		logger.Debug("Schedule coverage sufficient",
			zap.Int("remaining_weeks", remaining),
			zap.Int("threshold_weeks", thresholdWeeks))
		return &AutoRenewResult{RemainingWeeks: remaining}, nil
	}

	nextWeek := rotation.WeekStart(furthest.In(loc)).AddDate(0, 0, 7)
	logger.Info("Schedule coverage below threshold, extending",
		zap.Int("remaining_weeks", remaining),
		zap.Int("renew_weeks", renewWeeks),
		zap.Time("extend_from", nextWeek))

	result, err := GenerateSchedule(ctx, roster, schedule, logger, loc, nextWeek, renewWeeks, false)
	if err != nil {
		return nil, fmt.Errorf("failed to extend schedule: %w", err)
	}

	return &AutoRenewResult{
		Extended:       true,
		RemainingWeeks: remaining,
		Result:         result,
	}, nil
}
