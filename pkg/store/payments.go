package store

import (
	"context"
	"fmt"
	"time"
)

// PaymentDue is a mirrored schedule day still waiting for payment.
type PaymentDue struct {
	RecordID   string
	CalendarID string
	EventID    string
	Summary    string
	DueAt      time.Time
}

// PutPaymentDue adds or replaces the entry for p.RecordID.
func (d *DB) PutPaymentDue(ctx context.Context, p PaymentDue) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO payments_due (record_id, calendar_id, event_id, summary, due_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			event_id = excluded.event_id,
			summary = excluded.summary,
			due_at = excluded.due_at,
			updated_at = excluded.updated_at
	`, p.RecordID, p.CalendarID, p.EventID, p.Summary, formatTime(p.DueAt), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store payment due for %s: %w", p.RecordID, err)
	}
	return nil
}

// RemovePaymentDue forgets recordID. Unknown ids are not an error.
func (d *DB) RemovePaymentDue(ctx context.Context, recordID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM payments_due WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("remove payment due for %s: %w", recordID, err)
	}
	return nil
}

// PaymentsDue lists the entries of calendarID due before now, oldest first.
func (d *DB) PaymentsDue(ctx context.Context, calendarID string, now time.Time) ([]PaymentDue, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT record_id, calendar_id, event_id, summary, due_at
		FROM payments_due
		WHERE calendar_id = ? AND due_at < ?
		ORDER BY due_at, record_id
	`, calendarID, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list payments due: %w", err)
	}
	defer rows.Close()

	var due []PaymentDue
	for rows.Next() {
		var (
			p     PaymentDue
			dueAt string
		)
		if err := rows.Scan(&p.RecordID, &p.CalendarID, &p.EventID, &p.Summary, &dueAt); err != nil {
			return nil, fmt.Errorf("scan payment due: %w", err)
		}
		p.DueAt = parseTime(dueAt)
		due = append(due, p)
	}
	return due, rows.Err()
}
