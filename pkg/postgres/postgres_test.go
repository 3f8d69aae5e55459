package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whoseonfirst/oncall/pkg/db"
)

// testDB connects to the database named by ONCALL_TEST_DATABASE_URL and
// resets the tables. Tests are skipped when the variable is unset.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("ONCALL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ONCALL_TEST_DATABASE_URL not set, skipping database tests")
	}

	ctx := context.Background()
	database, err := NewDB(ctx, url)
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx))

	_, err = database.pool.Exec(ctx,
		`TRUNCATE notification_records, shift_assignments, shift_templates, participants RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	t.Cleanup(database.Close)
	return database
}

func seedRoster(t *testing.T, database *DB) ([]db.Participant, []db.ShiftTemplate) {
	t.Helper()
	ctx := context.Background()

	names := []string{"Alice", "Bob", "Carol"}
	for i, name := range names {
		_, err := database.pool.Exec(ctx,
			`INSERT INTO participants (name, phone, active, rotation_order) VALUES ($1, $2, TRUE, $3)`,
			name, fmt.Sprintf("+1555000%04d", i+1), i)
		require.NoError(t, err)
	}

	templates := []struct {
		number   int
		day      string
		duration int
	}{
		{1, "Monday", 24},
		{2, "Tuesday-Wednesday", 48},
		{3, "Thursday", 24},
	}
	for _, tpl := range templates {
		_, err := database.pool.Exec(ctx,
			`INSERT INTO shift_templates (shift_number, day_of_week, duration_hours, start_time) VALUES ($1, $2, $3, '08:00')`,
			tpl.number, tpl.day, tpl.duration)
		require.NoError(t, err)
	}

	participants, err := database.ListActiveParticipantsOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, participants, 3)

	shiftTemplates, err := database.ListShiftTemplatesOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, shiftTemplates, 3)

	return participants, shiftTemplates
}

func buildAssignments(participants []db.Participant, templates []db.ShiftTemplate, baseWeek int, weeks int) []db.ShiftAssignment {
	loc, _ := time.LoadLocation("America/Chicago")
	monday := time.Date(2025, 3, 3, 8, 0, 0, 0, loc)

	var out []db.ShiftAssignment
	for week := 0; week < weeks; week++ {
		for i, tpl := range templates {
			elapsed := week*len(templates) + i
			p := participants[elapsed%len(participants)]
			start := monday.AddDate(0, 0, week*7+i)
			out = append(out, db.ShiftAssignment{
				ParticipantID:   p.ID,
				ShiftTemplateID: tpl.ID,
				WeekIndex:       baseWeek + week,
				StartAt:         start,
				EndAt:           start.AddDate(0, 0, tpl.DurationHours/24),
			})
		}
	}
	return out
}

func TestCreateAssignments_ConflictAndForce(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	participants, templates := seedRoster(t, database)

	first := buildAssignments(participants, templates, 61, 2)
	created, err := database.CreateAssignments(ctx, first, false)
	require.NoError(t, err)
	require.Len(t, created, 6)

	// Same range again without force fails and writes nothing
	again := buildAssignments(participants, templates, 61, 2)
	_, err = database.CreateAssignments(ctx, again, false)
	var existsErr *db.ScheduleExistsError
	require.ErrorAs(t, err, &existsErr)
	assert.Equal(t, 6, existsErr.Count)

	all, err := database.GetByDateRange(ctx, time.Time{}, time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, all, 6)

	// Force replaces the conflicting slots
	forced, err := database.CreateAssignments(ctx, again, true)
	require.NoError(t, err)
	assert.Len(t, forced, 6)

	all, err = database.GetByDateRange(ctx, time.Time{}, time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestReplaceFrom_PreservesEarlierAssignments(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	participants, templates := seedRoster(t, database)

	created, err := database.CreateAssignments(ctx, buildAssignments(participants, templates, 61, 2), false)
	require.NoError(t, err)

	cutoff := created[3].StartAt // start of the second week
	replacement := buildAssignments(participants, templates, 62, 1)[0:3]
	for i := range replacement {
		replacement[i].StartAt = cutoff.AddDate(0, 0, i)
		replacement[i].EndAt = replacement[i].StartAt.AddDate(0, 0, 1)
	}

	newRows, deleted, err := database.ReplaceFrom(ctx, cutoff, replacement)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Len(t, newRows, 3)

	all, err := database.GetByDateRange(ctx, time.Time{}, time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, all, 6)
	for _, a := range all[:3] {
		assert.True(t, a.StartAt.Before(cutoff))
	}
}

func TestNotificationRecord_SurvivesAssignmentDeletion(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	participants, templates := seedRoster(t, database)

	_, err := database.CreateAssignments(ctx, buildAssignments(participants, templates, 61, 1), false)
	require.NoError(t, err)

	all, err := database.GetByDateRange(ctx, time.Time{}, time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)
	target := all[0]
	require.NotEmpty(t, target.ParticipantName)

	record := &db.NotificationRecord{
		AssignmentID:   &target.ID,
		RecipientName:  target.ParticipantName,
		RecipientPhone: target.ParticipantPhone,
		Status:         db.NotificationStatusSent,
		ProviderSID:    "SM-integration",
	}
	require.NoError(t, database.MarkNotifiedWithRecord(ctx, target.ID, record))

	// The notified flag flipped with the record write
	pending, err := database.GetPendingNotifications(ctx, target.StartAt.AddDate(0, 0, -1), target.StartAt.AddDate(0, 0, 7))
	require.NoError(t, err)
	for _, a := range pending {
		assert.NotEqual(t, target.ID, a.ID)
	}

	// Deleting the assignment nulls the reference but keeps the snapshot
	deleted, err := database.DeleteFrom(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	records, err := database.RecentNotificationRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].AssignmentID)
	assert.Equal(t, target.ParticipantName, records[0].RecipientName)
	assert.Equal(t, target.ParticipantPhone, records[0].RecipientPhone)
	assert.Equal(t, "SM-integration", records[0].ProviderSID)
}

func TestDeactivateParticipant_CompactsRotationOrder(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	participants, _ := seedRoster(t, database)

	require.NoError(t, database.DeactivateParticipant(ctx, participants[0].ID))

	active, err := database.ListActiveParticipantsOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	for i, p := range active {
		require.NotNil(t, p.RotationOrder)
		assert.Equal(t, i, *p.RotationOrder)
	}

	require.NoError(t, database.ActivateParticipant(ctx, participants[0].ID))
	active, err = database.ListActiveParticipantsOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	// Reactivated participants rejoin at the end of the rotation
	assert.Equal(t, participants[0].ID, active[2].ID)
}

func TestAddParticipant_AppendsToRotation(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	seedRoster(t, database)

	added, err := database.AddParticipant(ctx, "Dana", "+15550009999", "")
	require.NoError(t, err)
	require.NotNil(t, added.RotationOrder)
	assert.Equal(t, 3, *added.RotationOrder)
	assert.True(t, added.Active)
	assert.Empty(t, added.SecondaryPhone)
}
