package overdue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/store"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
)

type fakePatcher struct {
	patched map[string]string
	fail    map[string]bool
}

func (f *fakePatcher) PatchEvent(_ context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	if f.fail[eventID] {
		return nil, errors.New("backend error")
	}
	f.patched[eventID] = patch.Summary
	return &calendar.Event{Id: eventID, Summary: patch.Summary}, nil
}

func openTable(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "projectreg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func pendingDay(due string) model.ProjectDay {
	return model.ProjectDay{
		Date:                "2025-03-01",
		ExpectedPaymentDate: due,
		PaymentStatus:       model.PaymentPending,
	}
}

func TestTrack(t *testing.T) {
	ctx := context.Background()
	db := openTable(t)
	event := &calendar.Event{Id: "evt1", Summary: "Data Literacy · Day 1"}
	afterDue := time.Date(2025, 3, 16, 0, 0, 1, 0, time.UTC)

	require.NoError(t, Track(ctx, db, "cal-1", "recS1", event, pendingDay("2025-03-15")))
	due, err := db.PaymentsDue(ctx, "cal-1", afterDue)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "evt1", due[0].EventID)
	require.True(t, due[0].DueAt.Equal(time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)), due[0].DueAt)

	// not overdue during the due date itself
	due, err = db.PaymentsDue(ctx, "cal-1", time.Date(2025, 3, 15, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, due)

	paid := pendingDay("2025-03-15")
	paid.PaymentStatus = model.PaymentPaid
	require.NoError(t, Track(ctx, db, "cal-1", "recS1", event, paid))
	due, err = db.PaymentsDue(ctx, "cal-1", afterDue)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestTrack_WithoutDueDate(t *testing.T) {
	ctx := context.Background()
	db := openTable(t)

	require.NoError(t, Track(ctx, db, "cal-1", "recS1", &calendar.Event{Id: "evt1"}, pendingDay("")))
	due, err := db.PaymentsDue(ctx, "cal-1", time.Now().AddDate(10, 0, 0))
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	db := openTable(t)

	for _, e := range []struct{ record, event, due string }{
		{"recS1", "evt1", "2025-03-10"},
		{"recS2", "evt2", "2025-03-11"},
		{"recS3", "evt3", "2025-04-30"},
	} {
		ev := &calendar.Event{Id: e.event, Summary: "Project · " + e.record}
		require.NoError(t, Track(ctx, db, "cal-1", e.record, ev, pendingDay(e.due)))
	}

	p := &fakePatcher{patched: map[string]string{}, fail: map[string]bool{"evt2": true}}
	now := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	n, err := Sweep(ctx, db, p, "cal-1", now, nil)
	require.Error(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, map[string]string{"evt1": "! Project · recS1"}, p.patched)

	// the failed entry is retried, the marked one is gone
	p.fail = nil
	n, err = Sweep(ctx, db, p, "cal-1", now, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "! Project · recS2", p.patched["evt2"])
	require.NotContains(t, p.patched, "evt3")

	n, err = Sweep(ctx, db, p, "other-calendar", now.AddDate(1, 0, 0), nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTrack_StripsExistingMarker(t *testing.T) {
	ctx := context.Background()
	db := openTable(t)

	ev := &calendar.Event{Id: "evt1", Summary: Marker + "Project · Day 1"}
	require.NoError(t, Track(ctx, db, "cal-1", "recS1", ev, pendingDay("2025-03-10")))

	p := &fakePatcher{patched: map[string]string{}}
	_, err := Sweep(ctx, db, p, "cal-1", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Equal(t, "! Project · Day 1", p.patched["evt1"])
}
