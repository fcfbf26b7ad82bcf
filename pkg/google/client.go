// Package google mirrors schedule days into a Google calendar.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// NewClient resolves calendarName among the user's calendars and returns a
// client for it. opts carry the authorized HTTP client.
func NewClient(ctx context.Context, calendarName string, idx EventIndex, loc *time.Location, logger *slog.Logger, opts ...option.ClientOption) (*CalendarClient, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}

	var calendarID string
	for _, item := range calendarList.Items {
		if item.Summary == calendarName {
			calendarID = item.Id
			break
		}
	}
	if calendarID == "" {
		return nil, fmt.Errorf("calendar %q not found", calendarName)
	}

	return NewCalendarClient(srv, calendarID, idx, loc, logger), nil
}
