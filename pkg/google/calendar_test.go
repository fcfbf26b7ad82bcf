package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/store"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var (
	bangkok     = time.FixedZone("ICT", 7*60*60)
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func sampleProject() model.ProjectDetails {
	return model.ProjectDetails{
		ProjectType:   model.ProjectConsulting,
		ProjectName:   "Data Literacy",
		TrainingName:  "SQL Basics",
		BatchNo:       "B-7",
		CSID:          "CS-42",
		ProjectStatus: model.StatusWIP,
		Invitation:    "bring laptops",
	}
}

func sampleDay() model.ProjectDay {
	return model.ProjectDay{
		Date:          "2025-03-01",
		StartTime:     "09:00",
		EndTime:       "17:00",
		SalesAmount:   "1500.5",
		PaymentStatus: model.PaymentPending,
	}
}

func TestConvertDayToEvent(t *testing.T) {
	event, err := ConvertDayToEvent(bangkok, sampleProject(), sampleDay(), 1, "recS2")
	require.NoError(t, err)

	require.Equal(t, "Data Literacy · Day 2", event.Summary)
	require.Equal(t, "5", event.ColorId)
	require.Equal(t, "2025-03-01T02:00:00Z", event.Start.DateTime)
	require.Equal(t, "2025-03-01T10:00:00Z", event.End.DateTime)
	require.Equal(t, "recS2", event.ExtendedProperties.Private[RecordIDProperty])
	require.Contains(t, event.Description, "Batch: B-7")
	require.Contains(t, event.Description, "sales amount: 1500.50")
	require.Contains(t, event.Description, "bring laptops")
	require.NotContains(t, event.Description, "Trainee dept")
}

func TestConvertDayToEvent_Unplaceable(t *testing.T) {
	day := sampleDay()
	day.EndTime = ""
	_, err := ConvertDayToEvent(bangkok, sampleProject(), day, 0, "r")
	require.Error(t, err)

	day = sampleDay()
	day.StartTime, day.EndTime = "18:00", "09:00"
	_, err = ConvertDayToEvent(bangkok, sampleProject(), day, 0, "r")
	require.Error(t, err)
}

func TestConvertDayToEvent_Cancelled(t *testing.T) {
	p := sampleProject()
	p.ProjectStatus = model.StatusCancelled
	event, err := ConvertDayToEvent(bangkok, p, sampleDay(), 0, "r")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(event.Summary, "✗ "))
	require.Equal(t, "11", event.ColorId)
}

func TestEventNeedsUpdate(t *testing.T) {
	target, err := ConvertDayToEvent(bangkok, sampleProject(), sampleDay(), 0, "r")
	require.NoError(t, err)

	same := *target
	same.Start = &calendar.EventDateTime{DateTime: "2025-03-01T09:00:00+07:00"}
	same.End = &calendar.EventDateTime{DateTime: "2025-03-01T17:00:00+07:00"}
	patch, err := EventNeedsUpdate(&same, target)
	require.NoError(t, err)
	require.Nil(t, patch, "equal instants in another offset need no patch")

	moved := same
	moved.Summary = "old"
	moved.End = &calendar.EventDateTime{DateTime: "2025-03-01T16:00:00+07:00"}
	patch, err = EventNeedsUpdate(&moved, target)
	require.NoError(t, err)
	require.Equal(t, target.Summary, patch.Summary)
	require.Empty(t, patch.Description)
	require.Equal(t, target.End, patch.End)

	broken := same
	broken.Start = &calendar.EventDateTime{DateTime: "yesterday"}
	_, err = EventNeedsUpdate(&broken, target)
	require.Error(t, err)
}

// fakeCalendarAPI is an in-memory stand-in for the Calendar v3 endpoints used
// by CalendarClient.
type fakeCalendarAPI struct {
	mu      sync.Mutex
	events  map[string]*calendar.Event
	inserts int
	patches int
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const events = "/calendars/cal-1/events"
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users/me/calendarList":
		json.NewEncoder(w).Encode(calendar.CalendarList{Items: []*calendar.CalendarListEntry{
			{Id: "cal-0", Summary: "Personal"},
			{Id: "cal-1", Summary: "Training Schedule"},
		}})
	case r.Method == http.MethodGet && r.URL.Path == events:
		want := r.URL.Query().Get("privateExtendedProperty")
		list := &calendar.Events{Items: []*calendar.Event{}}
		for _, e := range f.events {
			if fmt.Sprintf("%s=%s", RecordIDProperty, e.ExtendedProperties.Private[RecordIDProperty]) == want {
				list.Items = append(list.Items, e)
			}
		}
		json.NewEncoder(w).Encode(list)
	case r.Method == http.MethodPost && r.URL.Path == events:
		var e calendar.Event
		json.NewDecoder(r.Body).Decode(&e)
		f.inserts++
		e.Id = fmt.Sprintf("evt%d", f.inserts)
		f.events[e.Id] = &e
		json.NewEncoder(w).Encode(&e)
	case strings.HasPrefix(r.URL.Path, events+"/"):
		id := strings.TrimPrefix(r.URL.Path, events+"/")
		e, ok := f.events[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
			return
		}
		if r.Method == http.MethodPatch {
			var patch calendar.Event
			json.NewDecoder(r.Body).Decode(&patch)
			f.patches++
			if patch.Summary != "" {
				e.Summary = patch.Summary
			}
			if patch.Description != "" {
				e.Description = patch.Description
			}
			if patch.ColorId != "" {
				e.ColorId = patch.ColorId
			}
			if patch.Start != nil {
				e.Start, e.End = patch.Start, patch.End
			}
		}
		json.NewEncoder(w).Encode(e)
	default:
		http.NotFound(w, r)
	}
}

type memIndex map[string]string

func (m memIndex) EventID(_ context.Context, calendarID, recordID string) (string, error) {
	return m[calendarID+"/"+recordID], nil
}

func (m memIndex) SetEventID(_ context.Context, calendarID, recordID, eventID string) error {
	m[calendarID+"/"+recordID] = eventID
	return nil
}

func newFakeClient(t *testing.T, idx EventIndex) (*CalendarClient, *fakeCalendarAPI) {
	t.Helper()
	api := &fakeCalendarAPI{events: map[string]*calendar.Event{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "Training Schedule", idx, bangkok, quietLogger,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	require.Equal(t, "cal-1", c.calendarID)
	return c, api
}

func TestNewClient_UnknownCalendar(t *testing.T) {
	api := &fakeCalendarAPI{events: map[string]*calendar.Event{}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	_, err := NewClient(context.Background(), "Missing", nil, bangkok, quietLogger,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.ErrorContains(t, err, `calendar "Missing" not found`)
}

func TestMirrorDays_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := memIndex{}
	c, api := newFakeClient(t, idx)

	unplaceable := sampleDay()
	unplaceable.Date = ""
	days := []model.ProjectDay{sampleDay(), unplaceable}
	ids := []string{"recS1", "recS2"}

	require.NoError(t, c.MirrorDays(ctx, sampleProject(), days, ids))
	require.Equal(t, 1, api.inserts)
	require.Equal(t, "evt1", idx["cal-1/recS1"])

	require.NoError(t, c.MirrorDays(ctx, sampleProject(), days, ids))
	require.Equal(t, 1, api.inserts)
	require.Equal(t, 0, api.patches)

	renamed := sampleProject()
	renamed.ProjectName = "Data Literacy II"
	require.NoError(t, c.MirrorDays(ctx, renamed, days, ids))
	require.Equal(t, 1, api.inserts)
	require.Equal(t, 1, api.patches)
	require.Equal(t, "Data Literacy II · Day 1", api.events["evt1"].Summary)
}

func TestMirrorDays_SkipsDayWithoutRecordID(t *testing.T) {
	ctx := context.Background()
	idx := memIndex{}
	c, api := newFakeClient(t, idx)

	second := sampleDay()
	second.Date = "2025-03-02"
	days := []model.ProjectDay{sampleDay(), second}

	require.NoError(t, c.MirrorDays(ctx, sampleProject(), days, []string{"", "recS2"}))
	require.Equal(t, 1, api.inserts)
	require.Equal(t, "evt1", idx["cal-1/recS2"])
	require.Equal(t, "Data Literacy · Day 2", api.events["evt1"].Summary)
}

func TestSyncEvent_FallsBackToPropertySearch(t *testing.T) {
	ctx := context.Background()
	c, api := newFakeClient(t, nil)

	event, err := ConvertDayToEvent(bangkok, sampleProject(), sampleDay(), 0, "recS1")
	require.NoError(t, err)

	first, err := c.SyncEvent(ctx, "recS1", event)
	require.NoError(t, err)
	second, err := c.SyncEvent(ctx, "recS1", event)
	require.NoError(t, err)

	require.Equal(t, first.Id, second.Id)
	require.Equal(t, 1, api.inserts)
}

func TestMirrorDays_FlagsOverduePayments(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "projectreg.db"))
	require.NoError(t, err)
	defer db.Close()

	c, api := newFakeClient(t, db)
	c.WatchPayments(db)

	pending := sampleDay()
	pending.ExpectedPaymentDate = "2025-03-15"
	paid := sampleDay()
	paid.Date = "2025-03-02"
	paid.ExpectedPaymentDate = "2025-03-15"
	paid.PaymentStatus = model.PaymentPaid

	require.NoError(t, c.MirrorDays(ctx, sampleProject(), []model.ProjectDay{pending, paid}, []string{"recS1", "recS2"}))
	require.Equal(t, 2, api.inserts)

	n, err := c.SweepOverduePayments(ctx, time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = c.SweepOverduePayments(ctx, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "! Data Literacy · Day 1", api.events["evt1"].Summary)
	require.Equal(t, "Data Literacy · Day 2", api.events["evt2"].Summary)
}
