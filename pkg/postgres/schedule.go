package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whoseonfirst/oncall/pkg/db"
)

const assignmentColumns = `
	a.id, a.participant_id, a.shift_template_id, a.week_index,
	a.start_at, a.end_at, a.notified, a.created_at,
	p.name, p.phone, t.shift_number, t.duration_hours`

const assignmentJoins = `
	FROM shift_assignments a
	JOIN participants p ON p.id = a.participant_id
	JOIN shift_templates t ON t.id = a.shift_template_id`

// CreateAssignments persists a generated range in a single transaction.
// The conflict check on (template, week index) happens before any write:
// without force an occupied slot aborts the whole batch with
// db.ScheduleExistsError, with force the occupied slots are replaced inside
// the same transaction.
func (d *DB) CreateAssignments(ctx context.Context, assignments []db.ShiftAssignment, force bool) ([]db.ShiftAssignment, error) {
	if len(assignments) == 0 {
		return nil, nil
	}

	templateIDs := make([]int64, len(assignments))
	weekIndexes := make([]int32, len(assignments))
	for i, a := range assignments {
		templateIDs[i] = a.ShiftTemplateID
		weekIndexes[i] = int32(a.WeekIndex)
	}

	created := make([]db.ShiftAssignment, 0, len(assignments))

	err := d.withTx(ctx, func(tx pgx.Tx) error {
		var conflicts int
		err := tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM shift_assignments
			WHERE (shift_template_id, week_index) IN (
				SELECT unnest($1::bigint[]), unnest($2::int[])
			)
		`, templateIDs, weekIndexes).Scan(&conflicts)
		if err != nil {
			return fmt.Errorf("failed to check for existing assignments: %w", err)
		}

		if conflicts > 0 {
			if !force {
				return &db.ScheduleExistsError{
					Start: assignments[0].StartAt,
					End:   assignments[len(assignments)-1].EndAt,
					Count: conflicts,
				}
			}
			_, err := tx.Exec(ctx, `
				DELETE FROM shift_assignments
				WHERE (shift_template_id, week_index) IN (
					SELECT unnest($1::bigint[]), unnest($2::int[])
				)
			`, templateIDs, weekIndexes)
			if err != nil {
				return fmt.Errorf("failed to replace existing assignments: %w", err)
			}
		}

		for _, a := range assignments {
			row := tx.QueryRow(ctx, `
				INSERT INTO shift_assignments
					(participant_id, shift_template_id, week_index, start_at, end_at, notified)
				VALUES ($1, $2, $3, $4, $5, FALSE)
				RETURNING id, created_at
			`, a.ParticipantID, a.ShiftTemplateID, a.WeekIndex, a.StartAt, a.EndAt)
			if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert assignment: %w", err)
			}
			created = append(created, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// ReplaceFrom deletes all assignments starting on or after from and inserts
// the replacements in the same transaction, so concurrent readers never see
// a half-regenerated schedule
func (d *DB) ReplaceFrom(ctx context.Context, from time.Time, assignments []db.ShiftAssignment) ([]db.ShiftAssignment, int64, error) {
	created := make([]db.ShiftAssignment, 0, len(assignments))
	var deleted int64

	err := d.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM shift_assignments WHERE start_at >= $1`, from)
		if err != nil {
			return fmt.Errorf("failed to delete assignments from %s: %w", from.Format(time.RFC3339), err)
		}
		deleted = tag.RowsAffected()

		for _, a := range assignments {
			row := tx.QueryRow(ctx, `
				INSERT INTO shift_assignments
					(participant_id, shift_template_id, week_index, start_at, end_at, notified)
				VALUES ($1, $2, $3, $4, $5, FALSE)
				RETURNING id, created_at
			`, a.ParticipantID, a.ShiftTemplateID, a.WeekIndex, a.StartAt, a.EndAt)
			if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert assignment: %w", err)
			}
			created = append(created, a)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return created, deleted, nil
}

// DeleteFrom removes assignments starting on or after from
func (d *DB) DeleteFrom(ctx context.Context, from time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM shift_assignments WHERE start_at >= $1`, from)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByDateRange returns assignments starting inside [start, end),
// chronologically
func (d *DB) GetByDateRange(ctx context.Context, start, end time.Time) ([]db.ShiftAssignment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+assignmentColumns+assignmentJoins+`
		WHERE a.start_at >= $1 AND a.start_at < $2
		ORDER BY a.start_at, t.shift_number
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments by date range: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// GetByParticipant returns all assignments for one participant
func (d *DB) GetByParticipant(ctx context.Context, participantID int64) ([]db.ShiftAssignment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+assignmentColumns+assignmentJoins+`
		WHERE a.participant_id = $1
		ORDER BY a.start_at
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments by participant: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// NextForParticipant returns the participant's next assignment starting
// after now, or nil when none is scheduled
func (d *DB) NextForParticipant(ctx context.Context, participantID int64, now time.Time) (*db.ShiftAssignment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+assignmentColumns+assignmentJoins+`
		WHERE a.participant_id = $1 AND a.start_at > $2
		ORDER BY a.start_at
		LIMIT 1
	`, participantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query next assignment: %w", err)
	}
	defer rows.Close()

	assignments, err := scanAssignments(rows)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	return &assignments[0], nil
}

// FurthestStart returns the latest assignment start on record, or nil when
// the schedule is empty
func (d *DB) FurthestStart(ctx context.Context) (*time.Time, error) {
	var furthest *time.Time
	err := d.pool.QueryRow(ctx, `SELECT MAX(start_at) FROM shift_assignments`).Scan(&furthest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to query furthest assignment start: %w", err)
	}
	return furthest, nil
}

// GetPendingNotifications returns unnotified assignments starting inside
// [dayStart, dayEnd)
func (d *DB) GetPendingNotifications(ctx context.Context, dayStart, dayEnd time.Time) ([]db.ShiftAssignment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+assignmentColumns+assignmentJoins+`
		WHERE NOT a.notified AND a.start_at >= $1 AND a.start_at < $2
		ORDER BY a.start_at, t.shift_number
	`, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending notifications: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func scanAssignments(rows pgx.Rows) ([]db.ShiftAssignment, error) {
	var assignments []db.ShiftAssignment
	for rows.Next() {
		var a db.ShiftAssignment
		err := rows.Scan(
			&a.ID, &a.ParticipantID, &a.ShiftTemplateID, &a.WeekIndex,
			&a.StartAt, &a.EndAt, &a.Notified, &a.CreatedAt,
			&a.ParticipantName, &a.ParticipantPhone, &a.ShiftNumber, &a.DurationHours,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return assignments, nil
}
