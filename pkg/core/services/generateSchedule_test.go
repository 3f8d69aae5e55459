package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whoseonfirst/oncall/pkg/db"
)

var chicago = mustLoadLocation("America/Chicago")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// mockRosterStore implements db.RosterStore for testing
type mockRosterStore struct {
	participants    []db.Participant
	templates       []db.ShiftTemplate
	participantsErr error
	templatesErr    error
}

func (m *mockRosterStore) ListActiveParticipantsOrdered(ctx context.Context) ([]db.Participant, error) {
	if m.participantsErr != nil {
		return nil, m.participantsErr
	}
	return m.participants, nil
}

func (m *mockRosterStore) ListShiftTemplatesOrdered(ctx context.Context) ([]db.ShiftTemplate, error) {
	if m.templatesErr != nil {
		return nil, m.templatesErr
	}
	return m.templates, nil
}

func (m *mockRosterStore) GetParticipant(ctx context.Context, id int64) (*db.Participant, error) {
	for _, p := range m.participants {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("participant not found: %d", id)
}

// mockScheduleStore implements db.ScheduleStore for testing
type mockScheduleStore struct {
	existing        []db.ShiftAssignment
	created         []db.ShiftAssignment
	replacedFrom    *time.Time
	deletedCount    int
	conflict        *db.ScheduleExistsError
	forcedOverwrite bool
	createErr       error
}

func (m *mockScheduleStore) CreateAssignments(ctx context.Context, assignments []db.ShiftAssignment, force bool) ([]db.ShiftAssignment, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.conflict != nil && !force {
		return nil, m.conflict
	}
	if m.conflict != nil {
		m.forcedOverwrite = true
	}
	for i := range assignments {
		assignments[i].ID = int64(i + 1)
	}
	m.created = append(m.created, assignments...)
	return assignments, nil
}

func (m *mockScheduleStore) ReplaceFrom(ctx context.Context, from time.Time, assignments []db.ShiftAssignment) ([]db.ShiftAssignment, int64, error) {
	m.replacedFrom = &from
	var deleted int64
	var kept []db.ShiftAssignment
	for _, a := range m.existing {
		if a.StartAt.Before(from) {
			kept = append(kept, a)
		} else {
			deleted++
		}
	}
	m.existing = kept
	for i := range assignments {
		assignments[i].ID = int64(100 + i)
	}
	m.created = append(m.created, assignments...)
	m.deletedCount = int(deleted)
	return assignments, deleted, nil
}

func (m *mockScheduleStore) DeleteFrom(ctx context.Context, from time.Time) (int64, error) {
	return 0, nil
}

func (m *mockScheduleStore) GetByDateRange(ctx context.Context, start, end time.Time) ([]db.ShiftAssignment, error) {
	var out []db.ShiftAssignment
	for _, a := range m.existing {
		if !a.StartAt.Before(start) && a.StartAt.Before(end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockScheduleStore) GetByParticipant(ctx context.Context, participantID int64) ([]db.ShiftAssignment, error) {
	var out []db.ShiftAssignment
	for _, a := range m.existing {
		if a.ParticipantID == participantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockScheduleStore) NextForParticipant(ctx context.Context, participantID int64, after time.Time) (*db.ShiftAssignment, error) {
	var next *db.ShiftAssignment
	for i, a := range m.existing {
		if a.ParticipantID != participantID || a.StartAt.Before(after) {
			continue
		}
		if next == nil || a.StartAt.Before(next.StartAt) {
			next = &m.existing[i]
		}
	}
	return next, nil
}

func (m *mockScheduleStore) FurthestStart(ctx context.Context) (*time.Time, error) {
	var furthest *time.Time
	for i, a := range m.existing {
		if furthest == nil || a.StartAt.After(*furthest) {
			furthest = &m.existing[i].StartAt
		}
	}
	return furthest, nil
}

func testRoster() *mockRosterStore {
	order := func(n int) *int { return &n }
	return &mockRosterStore{
		participants: []db.Participant{
			{ID: 1, Name: "Alice", Phone: "+15550000001", Active: true, RotationOrder: order(0)},
			{ID: 2, Name: "Bob", Phone: "+15550000002", Active: true, RotationOrder: order(1)},
			{ID: 3, Name: "Carol", Phone: "+15550000003", Active: true, RotationOrder: order(2)},
		},
		templates: []db.ShiftTemplate{
			{ID: 10, ShiftNumber: 1, DayOfWeek: "Monday", DurationHours: 24, StartTime: "08:00"},
			{ID: 11, ShiftNumber: 2, DayOfWeek: "Tuesday-Wednesday", DurationHours: 48, StartTime: "08:00"},
			{ID: 12, ShiftNumber: 3, DayOfWeek: "Thursday", DurationHours: 24, StartTime: "08:00"},
		},
	}
}

func TestGenerateSchedule(t *testing.T) {
	schedule := &mockScheduleStore{}
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, chicago)

	result, err := GenerateSchedule(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, start, 4, false)
	require.NoError(t, err)

	assert.Len(t, result.Assignments, 12)
	assert.Equal(t, time.Date(2025, 3, 3, 8, 0, 0, 0, chicago), result.Start)
	assert.True(t, result.End.After(result.Start))
	assert.Zero(t, result.Replaced)
}

func TestGenerateSchedule_ConflictWithoutForce(t *testing.T) {
	schedule := &mockScheduleStore{
		conflict: &db.ScheduleExistsError{Count: 3},
	}
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, chicago)

	_, err := GenerateSchedule(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, start, 4, false)
	require.Error(t, err)

	var existsErr *db.ScheduleExistsError
	assert.ErrorAs(t, err, &existsErr)
	assert.Empty(t, schedule.created)
}

func TestGenerateSchedule_ForceOverwritesConflict(t *testing.T) {
	schedule := &mockScheduleStore{
		conflict: &db.ScheduleExistsError{Count: 3},
	}
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, chicago)

	result, err := GenerateSchedule(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, start, 4, true)
	require.NoError(t, err)

	assert.True(t, schedule.forcedOverwrite)
	assert.Len(t, result.Assignments, 12)
}

func TestGenerateSchedule_NoParticipants(t *testing.T) {
	roster := testRoster()
	roster.participants = nil

	_, err := GenerateSchedule(context.Background(), roster, &mockScheduleStore{}, zap.NewNop(), chicago, time.Now(), 4, false)
	assert.Error(t, err)
}

func TestRegenerateFrom_PreservesHistory(t *testing.T) {
	pastStart := time.Date(2025, 2, 24, 8, 0, 0, 0, chicago)
	futureStart := time.Date(2025, 3, 10, 8, 0, 0, 0, chicago)
	schedule := &mockScheduleStore{
		existing: []db.ShiftAssignment{
			{ID: 1, ParticipantID: 1, StartAt: pastStart, EndAt: pastStart.AddDate(0, 0, 1)},
			{ID: 2, ParticipantID: 2, StartAt: futureStart, EndAt: futureStart.AddDate(0, 0, 1)},
		},
	}
	from := time.Date(2025, 3, 12, 14, 30, 0, 0, chicago)

	result, err := RegenerateFrom(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, from, 4)
	require.NoError(t, err)

	// Cutoff normalizes to the Monday of the from week
	require.NotNil(t, schedule.replacedFrom)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, chicago), schedule.replacedFrom.In(chicago))

	assert.Len(t, result.Assignments, 12)
	assert.Equal(t, 1, result.Replaced)
	require.Len(t, schedule.existing, 1)
	assert.Equal(t, int64(1), schedule.existing[0].ID)
}

func TestCheckAutoRenew_CoverageSufficient(t *testing.T) {
	now := time.Date(2025, 3, 3, 2, 0, 0, 0, chicago)
	farOut := now.AddDate(0, 0, 28)
	schedule := &mockScheduleStore{
		existing: []db.ShiftAssignment{{ID: 1, StartAt: farOut, EndAt: farOut.AddDate(0, 0, 1)}},
	}

	result, err := CheckAutoRenew(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, now, 2, 4)
	require.NoError(t, err)

	assert.False(t, result.Extended)
	assert.Equal(t, 4, result.RemainingWeeks)
	assert.Empty(t, schedule.created)
}

func TestCheckAutoRenew_SpringForwardKeepsWeekCount(t *testing.T) {
	// The window spans the 2025-03-09 transition, so it is one hour short
	// of three full weeks in absolute time but still three civil weeks.
	now := time.Date(2025, 3, 5, 2, 0, 0, 0, chicago)
	furthest := time.Date(2025, 3, 26, 8, 0, 0, 0, chicago)
	schedule := &mockScheduleStore{
		existing: []db.ShiftAssignment{{ID: 1, StartAt: furthest, EndAt: furthest.AddDate(0, 0, 1)}},
	}

	result, err := CheckAutoRenew(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, now, 3, 4)
	require.NoError(t, err)

	assert.False(t, result.Extended)
	assert.Equal(t, 3, result.RemainingWeeks)
	assert.Empty(t, schedule.created)
}

func TestCheckAutoRenew_ExtendsLowCoverage(t *testing.T) {
	now := time.Date(2025, 3, 3, 2, 0, 0, 0, chicago)
	soon := now.AddDate(0, 0, 7)
	schedule := &mockScheduleStore{
		existing: []db.ShiftAssignment{{ID: 1, StartAt: soon, EndAt: soon.AddDate(0, 0, 1)}},
	}

	result, err := CheckAutoRenew(context.Background(), testRoster(), schedule, zap.NewNop(), chicago, now, 2, 4)
	require.NoError(t, err)

	assert.True(t, result.Extended)
	require.NotNil(t, result.Result)
	assert.Len(t, result.Result.Assignments, 12)
	// Extension starts the week after the furthest scheduled assignment
	assert.Equal(t, time.Date(2025, 3, 17, 8, 0, 0, 0, chicago), result.Result.Start)
}

func TestCheckAutoRenew_EmptySchedule(t *testing.T) {
	result, err := CheckAutoRenew(context.Background(), testRoster(), &mockScheduleStore{}, zap.NewNop(), chicago, time.Now(), 2, 4)
	require.NoError(t, err)

	assert.False(t, result.Extended)
	assert.Zero(t, result.RemainingWeeks)
}

func TestCurrentWeek(t *testing.T) {
	monday := time.Date(2025, 3, 3, 8, 0, 0, 0, chicago)
	schedule := &mockScheduleStore{
		existing: []db.ShiftAssignment{
			{ID: 1, StartAt: monday},
			{ID: 2, StartAt: monday.AddDate(0, 0, 7)},
		},
	}

	assignments, err := CurrentWeek(context.Background(), schedule, chicago, monday.AddDate(0, 0, 2))
	require.NoError(t, err)

	require.Len(t, assignments, 1)
	assert.Equal(t, int64(1), assignments[0].ID)
}

func TestNextForParticipant(t *testing.T) {
	now := time.Date(2025, 3, 3, 0, 0, 0, 0, chicago)
	schedule := &mockScheduleStore{
		existing: []db.ShiftAssignment{
			{ID: 1, ParticipantID: 1, StartAt: now.AddDate(0, 0, -7)},
			{ID: 2, ParticipantID: 1, StartAt: now.AddDate(0, 0, 3)},
			{ID: 3, ParticipantID: 1, StartAt: now.AddDate(0, 0, 10)},
		},
	}

	next, err := NextForParticipant(context.Background(), schedule, 1, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(2), next.ID)

	none, err := NextForParticipant(context.Background(), schedule, 9, now)
	require.NoError(t, err)
	assert.Nil(t, none)
}
