// Package overdue flags mirrored schedule days whose expected payment date has
// passed while the payment is still pending.
package overdue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/mapping"
	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/store"
	"google.golang.org/api/calendar/v3"
)

// Marker prefixes the summary of an event whose payment is overdue.
const Marker = "! "

// Table keeps the pending payments of mirrored days.
type Table interface {
	PutPaymentDue(ctx context.Context, p store.PaymentDue) error
	RemovePaymentDue(ctx context.Context, recordID string) error
	PaymentsDue(ctx context.Context, calendarID string, now time.Time) ([]store.PaymentDue, error)
}

type EventPatcher interface {
	PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error)
}

// Track adds the day to the table if it is pending with an expected payment
// date. Otherwise it removes it.
func Track(ctx context.Context, t Table, calendarID, recordID string, event *calendar.Event, day model.ProjectDay) error {
	due := mapping.DateTimestamp(day.ExpectedPaymentDate)
	if day.PaymentStatus != model.PaymentPending || due == nil || event == nil || event.Id == "" {
		return t.RemovePaymentDue(ctx, recordID)
	}
	return t.PutPaymentDue(ctx, store.PaymentDue{
		RecordID:   recordID,
		CalendarID: calendarID,
		EventID:    event.Id,
		Summary:    strings.TrimPrefix(event.Summary, Marker),
		// overdue once the whole due date has passed
		DueAt: time.UnixMilli(*due).UTC().Add(24 * time.Hour),
	})
}

// Sweep marks every entry of calendarID that became overdue before now and
// drops it from the table. Entries whose patch fails stay for the next sweep.
func Sweep(ctx context.Context, t Table, p EventPatcher, calendarID string, now time.Time, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	due, err := t.PaymentsDue(ctx, calendarID, now)
	if err != nil {
		return 0, err
	}

	var (
		marked int
		errs   []error
	)
	for _, e := range due {
		patch := &calendar.Event{Summary: Marker + e.Summary}
		if _, err := p.PatchEvent(ctx, e.EventID, patch); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", e.RecordID, err))
			continue
		}
		if err := t.RemovePaymentDue(ctx, e.RecordID); err != nil {
			errs = append(errs, err)
			continue
		}
		marked++
		logger.Info("payment overdue", "record", e.RecordID, "event", e.EventID, "due", e.DueAt)
	}
	return marked, errors.Join(errs...)
}
