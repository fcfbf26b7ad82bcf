package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EventID returns the calendar event mirrored for a Lark record id, or "".
func (d *DB) EventID(ctx context.Context, calendarID, recordID string) (string, error) {
	var eventID string
	err := d.db.QueryRowContext(ctx, `
		SELECT event_id FROM calendar_events WHERE record_id = ? AND calendar_id = ?
	`, recordID, calendarID).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup event for %s: %w", recordID, err)
	}
	return eventID, nil
}

// SetEventID records that recordID is mirrored by eventID.
func (d *DB) SetEventID(ctx context.Context, calendarID, recordID, eventID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO calendar_events (record_id, calendar_id, event_id, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			event_id = excluded.event_id,
			updated_at = excluded.updated_at
	`, recordID, calendarID, eventID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store event for %s: %w", recordID, err)
	}
	return nil
}

// RemoveEventID forgets the mapping for recordID.
func (d *DB) RemoveEventID(ctx context.Context, recordID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("remove event for %s: %w", recordID, err)
	}
	return nil
}
