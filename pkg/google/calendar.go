package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/overdue"
	"google.golang.org/api/calendar/v3"
)

// EventIndex remembers which event mirrors which record.
type EventIndex interface {
	EventID(ctx context.Context, calendarID, recordID string) (string, error)
	SetEventID(ctx context.Context, calendarID, recordID, eventID string) error
}

// CalendarClient mirrors schedule records into one Google calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      EventIndex
	location   *time.Location
	logger     *slog.Logger
	payments   overdue.Table
}

// NewCalendarClient wraps srv for calendarID. idx may be nil.
func NewCalendarClient(srv *calendar.Service, calendarID string, idx EventIndex, loc *time.Location, logger *slog.Logger) *CalendarClient {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, location: loc, logger: logger}
}

// WatchPayments makes MirrorDays track pending payments in t so that
// SweepOverduePayments can flag them later.
func (c *CalendarClient) WatchPayments(t overdue.Table) {
	c.payments = t
}

// SweepOverduePayments marks the events of days whose payment is overdue and
// returns how many were marked.
func (c *CalendarClient) SweepOverduePayments(ctx context.Context, now time.Time) (int, error) {
	if c.payments == nil {
		return 0, nil
	}
	return overdue.Sweep(ctx, c.payments, c, c.calendarID, now, c.logger)
}

// MirrorDays syncs one event per schedule day. Days that cannot be placed on
// the calendar are skipped; other failures are collected and returned.
func (c *CalendarClient) MirrorDays(ctx context.Context, project model.ProjectDetails, days []model.ProjectDay, recordIDs []string) error {
	var errs []error
	for i, day := range days {
		if i >= len(recordIDs) {
			break
		}
		if recordIDs[i] == "" {
			c.logger.Info("not mirroring schedule day", "day", i+1, "reason", "no record id")
			continue
		}
		event, err := ConvertDayToEvent(c.location, project, day, i, recordIDs[i])
		if err != nil {
			c.logger.Info("not mirroring schedule day", "day", i+1, "reason", err)
			continue
		}
		synced, err := c.SyncEvent(ctx, recordIDs[i], event)
		if err != nil {
			errs = append(errs, fmt.Errorf("day %d: %w", i+1, err))
			continue
		}
		c.logger.Debug("mirrored schedule day", "day", i+1, "record", recordIDs[i], "event", synced.Id)
		if c.payments != nil {
			if err := overdue.Track(ctx, c.payments, c.calendarID, recordIDs[i], synced, day); err != nil {
				c.logger.Warn("payment tracking failed", "record", recordIDs[i], "error", err)
			}
		}
	}
	return errors.Join(errs...)
}

// SyncEvent creates the event for recordID or patches the existing one.
func (c *CalendarClient) SyncEvent(ctx context.Context, recordID string, event *calendar.Event) (*calendar.Event, error) {
	var existing *calendar.Event

	if c.index != nil {
		eventID, err := c.index.EventID(ctx, c.calendarID, recordID)
		if err != nil {
			c.logger.Warn("event index lookup failed", "record", recordID, "error", err)
		}
		if eventID != "" {
			existing, err = c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			if err != nil {
				existing = nil
			}
		}
	}

	if existing == nil {
		var err error
		existing, err = c.GetEventByRecordID(ctx, recordID)
		if err != nil {
			return nil, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch, err := EventNeedsUpdate(existing, event)
		if err != nil {
			return nil, fmt.Errorf("compare event %s: %w", existing.Id, err)
		}
		if patch == nil {
			c.remember(ctx, recordID, existing.Id)
			return existing, nil
		}
		updated, err := c.PatchEvent(ctx, existing.Id, patch)
		if err != nil {
			return nil, err
		}
		c.remember(ctx, recordID, updated.Id)
		return updated, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	c.remember(ctx, recordID, created.Id)
	return created, nil
}

func (c *CalendarClient) remember(ctx context.Context, recordID, eventID string) {
	if c.index == nil {
		return
	}
	if err := c.index.SetEventID(ctx, c.calendarID, recordID, eventID); err != nil {
		c.logger.Warn("event index update failed", "record", recordID, "error", err)
	}
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	updated, err := c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("patch event %s: %w", eventID, err)
	}
	return updated, nil
}

// GetEventByRecordID searches the private extended properties for recordID.
func (c *CalendarClient) GetEventByRecordID(ctx context.Context, recordID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", RecordIDProperty, recordID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
