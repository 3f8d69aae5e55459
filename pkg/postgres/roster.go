package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/whoseonfirst/oncall/pkg/db"
)

// ErrParticipantNotFound is returned when a participant lookup misses
var ErrParticipantNotFound = errors.New("participant not found")

const participantColumns = `id, name, phone, COALESCE(secondary_phone, ''), active, rotation_order, created_at, updated_at`

// ListActiveParticipantsOrdered returns active participants in rotation
// order, falling back to id for null orders and ties
func (d *DB) ListActiveParticipantsOrdered(ctx context.Context) ([]db.Participant, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE active
		ORDER BY rotation_order NULLS LAST, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active participants: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// ListParticipants returns all participants, active first
func (d *DB) ListParticipants(ctx context.Context) ([]db.Participant, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		ORDER BY active DESC, rotation_order NULLS LAST, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	return scanParticipants(rows)
}

// GetParticipant retrieves a single participant by id
func (d *DB) GetParticipant(ctx context.Context, id int64) (*db.Participant, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE id = $1
	`, id)

	var p db.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.SecondaryPhone, &p.Active, &p.RotationOrder, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrParticipantNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}

	return &p, nil
}

// AddParticipant creates an active participant at the end of the rotation
func (d *DB) AddParticipant(ctx context.Context, name, phone, secondaryPhone string) (*db.Participant, error) {
	row := d.pool.QueryRow(ctx, `
		INSERT INTO participants (name, phone, secondary_phone, active, rotation_order)
		VALUES ($1, $2, NULLIF($3, ''), TRUE,
			(SELECT COALESCE(MAX(rotation_order), -1) + 1 FROM participants WHERE active))
		RETURNING `+participantColumns+`
	`, name, phone, secondaryPhone)

	var p db.Participant
	if err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.SecondaryPhone, &p.Active, &p.RotationOrder, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert participant: %w", err)
	}
	return &p, nil
}

// DeactivateParticipant marks a participant inactive, clears their rotation
// order and re-compacts the remaining active orders to 0..n-1, all in one
// transaction
func (d *DB) DeactivateParticipant(ctx context.Context, id int64) error {
	return d.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE participants
			SET active = FALSE, rotation_order = NULL, updated_at = NOW()
			WHERE id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("failed to deactivate participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: id %d", ErrParticipantNotFound, id)
		}

		// Renumber the remaining actives so orders stay contiguous from 0
		_, err = tx.Exec(ctx, `
			WITH ranked AS (
				SELECT id, ROW_NUMBER() OVER (ORDER BY rotation_order NULLS LAST, id) - 1 AS new_order
				FROM participants
				WHERE active
			)
			UPDATE participants p
			SET rotation_order = ranked.new_order, updated_at = NOW()
			FROM ranked
			WHERE p.id = ranked.id
		`)
		if err != nil {
			return fmt.Errorf("failed to compact rotation orders: %w", err)
		}
		return nil
	})
}

// ActivateParticipant marks a participant active and appends them at the
// end of the rotation
func (d *DB) ActivateParticipant(ctx context.Context, id int64) error {
	return d.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE participants
			SET active = TRUE,
			    rotation_order = (SELECT COALESCE(MAX(rotation_order), -1) + 1 FROM participants WHERE active),
			    updated_at = NOW()
			WHERE id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("failed to activate participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: id %d", ErrParticipantNotFound, id)
		}
		return nil
	})
}

// ListShiftTemplatesOrdered returns all shift templates ordered by shift
// number, the total order the rotation math depends on
func (d *DB) ListShiftTemplatesOrdered(ctx context.Context) ([]db.ShiftTemplate, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, shift_number, day_of_week, duration_hours, start_time, created_at
		FROM shift_templates
		ORDER BY shift_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift templates: %w", err)
	}
	defer rows.Close()

	var templates []db.ShiftTemplate
	for rows.Next() {
		var t db.ShiftTemplate
		if err := rows.Scan(&t.ID, &t.ShiftNumber, &t.DayOfWeek, &t.DurationHours, &t.StartTime, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shift templates: %w", err)
	}

	return templates, nil
}

func scanParticipants(rows pgx.Rows) ([]db.Participant, error) {
	var participants []db.Participant
	for rows.Next() {
		var p db.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.SecondaryPhone, &p.Active, &p.RotationOrder, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return participants, nil
}
