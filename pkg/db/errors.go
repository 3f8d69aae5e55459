package db

import (
	"fmt"
	"time"
)

// ScheduleExistsError is returned when a generation request targets
// (template, week index) slots that already have assignments and force was
// not set
type ScheduleExistsError struct {
	Start time.Time
	End   time.Time
	Count int
}

func (e *ScheduleExistsError) Error() string {
	return fmt.Sprintf(
		"schedule already exists for period %s to %s (%d assignments); use force to regenerate",
		e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"), e.Count,
	)
}
