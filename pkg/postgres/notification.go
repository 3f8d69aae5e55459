package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/whoseonfirst/oncall/pkg/db"
)

const recordColumns = `
	id, assignment_id, recipient_name, recipient_phone, status,
	COALESCE(provider_sid, ''), COALESCE(error_message, ''), sent_at`

// InsertNotificationRecord appends one delivery attempt to the audit trail.
// Records are never updated or deleted afterwards.
func (d *DB) InsertNotificationRecord(ctx context.Context, record *db.NotificationRecord) (*db.NotificationRecord, error) {
	row := d.pool.QueryRow(ctx, `
		INSERT INTO notification_records
			(assignment_id, recipient_name, recipient_phone, status, provider_sid, error_message)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING id, sent_at
	`, record.AssignmentID, record.RecipientName, record.RecipientPhone,
		record.Status, record.ProviderSID, record.ErrorMessage)

	if err := row.Scan(&record.ID, &record.SentAt); err != nil {
		return nil, fmt.Errorf("failed to insert notification record: %w", err)
	}
	return record, nil
}

// MarkNotifiedWithRecord flips the assignment's notified flag and appends
// the sent record in the same transaction, so a half-completed run can
// never leave the flag and the audit trail disagreeing
func (d *DB) MarkNotifiedWithRecord(ctx context.Context, assignmentID int64, record *db.NotificationRecord) error {
	return d.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE shift_assignments SET notified = TRUE WHERE id = $1
		`, assignmentID)
		if err != nil {
			return fmt.Errorf("failed to mark assignment notified: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("assignment %d not found", assignmentID)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO notification_records
				(assignment_id, recipient_name, recipient_phone, status, provider_sid, error_message)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
			RETURNING id, sent_at
		`, record.AssignmentID, record.RecipientName, record.RecipientPhone,
			record.Status, record.ProviderSID, record.ErrorMessage)
		if err := row.Scan(&record.ID, &record.SentAt); err != nil {
			return fmt.Errorf("failed to insert notification record: %w", err)
		}
		return nil
	})
}

// GetNotificationRecords returns the delivery history for one assignment,
// oldest first
func (d *DB) GetNotificationRecords(ctx context.Context, assignmentID int64) ([]db.NotificationRecord, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM notification_records
		WHERE assignment_id = $1
		ORDER BY sent_at
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RecentNotificationRecords returns the newest limit records across all
// assignments, including orphaned manual sends
func (d *DB) RecentNotificationRecords(ctx context.Context, limit int) ([]db.NotificationRecord, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM notification_records
		ORDER BY sent_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent notification records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]db.NotificationRecord, error) {
	var records []db.NotificationRecord
	for rows.Next() {
		var r db.NotificationRecord
		err := rows.Scan(
			&r.ID, &r.AssignmentID, &r.RecipientName, &r.RecipientPhone,
			&r.Status, &r.ProviderSID, &r.ErrorMessage, &r.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification records: %w", err)
	}
	return records, nil
}
