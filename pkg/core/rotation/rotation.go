// Package rotation implements the circular on-call rotation algorithm.
//
// Participants advance through shift templates on a single continuous
// counter: for week w and template index t (of M templates), the occurrence
// is the (w*M + t)-th shift overall and goes to participant
// (w*M + t) mod N. Multi-day templates spread across the roster over time
// without any weekend-specific handling.
package rotation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/whoseonfirst/oncall/pkg/db"
)

// Generation precondition errors, returned synchronously to the caller
var (
	ErrNoParticipants = errors.New("no active participants available for rotation")
	ErrNoTemplates    = errors.New("no shift templates configured")
	ErrInvalidWeeks   = errors.New("week count must be at least 1")
)

// epoch anchors the absolute week index. Monday, 1 January 2024.
var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// dayOffsets maps day names to offsets from Monday
var dayOffsets = map[string]int{
	"Monday":    0,
	"Tuesday":   1,
	"Wednesday": 2,
	"Thursday":  3,
	"Friday":    4,
	"Saturday":  5,
	"Sunday":    6,
}

// Generate produces shift assignments for weeks consecutive weeks starting
// from the Monday of startDate's week. roster must be ordered by rotation
// order and templates by shift number; the caller owns that ordering.
// All timestamps are computed as civil times in loc, so occurrences keep
// their wall-clock start across daylight-saving transitions.
func Generate(roster []db.Participant, templates []db.ShiftTemplate, startDate time.Time, weeks int, loc *time.Location) ([]db.ShiftAssignment, error) {
	if len(roster) == 0 {
		return nil, ErrNoParticipants
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}
	if weeks < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWeeks, weeks)
	}

	monday := WeekStart(startDate.In(loc))

	assignments := make([]db.ShiftAssignment, 0, weeks*len(templates))

	for templateIndex, template := range templates {
		starts, err := occurrenceStarts(monday, template, weeks, loc)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", template.ShiftNumber, err)
		}

		for week, start := range starts {
			shiftsElapsed := week*len(templates) + templateIndex
			participant := roster[shiftsElapsed%len(roster)]

			// Duration is a whole number of days; AddDate keeps the end
			// on the same wall-clock time across DST boundaries.
			end := start.AddDate(0, 0, template.DurationHours/24)

			assignments = append(assignments, db.ShiftAssignment{
				ParticipantID:    participant.ID,
				ShiftTemplateID:  template.ID,
				WeekIndex:        WeekIndex(start),
				StartAt:          start,
				EndAt:            end,
				Notified:         false,
				ParticipantName:  participant.Name,
				ParticipantPhone: participant.Phone,
				ShiftNumber:      template.ShiftNumber,
				DurationHours:    template.DurationHours,
			})
		}
	}

	// Re-order by week then shift number so callers see the schedule in
	// chronological rotation order
	sortAssignments(assignments)

	return assignments, nil
}

// WeekStart normalizes a time to the Monday of its week at midnight,
// preserving the location
func WeekStart(t time.Time) time.Time {
	// time.Weekday has Sunday = 0; shift so Monday = 0
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

// occurrenceStarts expands a template into its weekly occurrence start
// times using an RRULE anchored at the first occurrence
func occurrenceStarts(monday time.Time, template db.ShiftTemplate, weeks int, loc *time.Location) ([]time.Time, error) {
	if template.DurationHours <= 0 || template.DurationHours%24 != 0 {
		return nil, fmt.Errorf("duration must be a positive multiple of 24 hours, got %d", template.DurationHours)
	}

	// Spans like "Tuesday-Wednesday" start on the first named day
	startDay := strings.SplitN(template.DayOfWeek, "-", 2)[0]
	offset, ok := dayOffsets[startDay]
	if !ok {
		return nil, fmt.Errorf("unknown day of week %q", template.DayOfWeek)
	}

	hour, minute, err := parseStartTime(template.StartTime)
	if err != nil {
		return nil, err
	}

	firstDay := monday.AddDate(0, 0, offset)
	first := time.Date(firstDay.Year(), firstDay.Month(), firstDay.Day(), hour, minute, 0, 0, loc)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Count:   weeks,
		Dtstart: first,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build recurrence rule: %w", err)
	}

	occurrences := rule.All()
	starts := make([]time.Time, len(occurrences))
	for i, occ := range occurrences {
		starts[i] = occ.In(loc)
	}

	return starts, nil
}

// WeekIndex returns the number of whole weeks between the epoch Monday
// and the Monday of t's week. Computed on civil dates so DST offsets
// cannot skew the division.
func WeekIndex(t time.Time) int {
	monday := WeekStart(t)
	civil := time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
	return int(civil.Sub(epoch).Hours() / (24 * 7))
}

func parseStartTime(s string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start time %q: %w", s, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func sortAssignments(assignments []db.ShiftAssignment) {
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].WeekIndex != assignments[j].WeekIndex {
			return assignments[i].WeekIndex < assignments[j].WeekIndex
		}
		return assignments[i].ShiftNumber < assignments[j].ShiftNumber
	})
}
