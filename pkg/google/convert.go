package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/mapping"
	"github.com/harrisonrobin/projectreg/pkg/model"
	"google.golang.org/api/calendar/v3"
)

// RecordIDProperty is the private extended property that ties an event to its
// schedule record.
const RecordIDProperty = "lark_record_id"

// Calendar color ids per project status.
var statusColors = map[model.ProjectStatus]string{
	model.StatusWIP:       "5",  // banana
	model.StatusCompleted: "10", // basil
	model.StatusCancelled: "11", // tomato
}

// ConvertDayToEvent builds the calendar event for schedule day index (0-based).
// Days without a valid start and end cannot be placed on a calendar.
func ConvertDayToEvent(loc *time.Location, project model.ProjectDetails, day model.ProjectDay, index int, recordID string) (*calendar.Event, error) {
	startMS := mapping.Timestamp(loc, day.Date, day.StartTime)
	endMS := mapping.Timestamp(loc, day.Date, day.EndTime)
	if startMS == nil || endMS == nil {
		return nil, fmt.Errorf("day %d has no usable date and times", index+1)
	}
	start := time.UnixMilli(*startMS)
	end := time.UnixMilli(*endMS)
	if end.Before(start) {
		return nil, fmt.Errorf("day %d ends before it starts", index+1)
	}

	name := project.ProjectName
	if name == "" {
		name = project.TrainingName
	}
	summary := fmt.Sprintf("%s · Day %d", name, index+1)
	if project.ProjectStatus == model.StatusCancelled {
		summary = "✗ " + summary
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Type: %s\n", project.ProjectType)
	fmt.Fprintf(&desc, "Status: %s\n", project.ProjectStatus)
	writeLine(&desc, "Training", project.TrainingName)
	writeLine(&desc, "Batch", project.BatchNo)
	writeLine(&desc, "Trainee dept", project.TraineeDept)
	writeLine(&desc, "CS ID", project.CSID)
	writeLine(&desc, "Product ID", project.ProductID)

	desc.WriteString("\nBilling:\n")
	fmt.Fprintf(&desc, "• sales amount: %.2f\n", mapping.ParseAmount(day.SalesAmount))
	fmt.Fprintf(&desc, "• payment: %s\n", day.PaymentStatus)
	if day.ExpectedPaymentDate != "" {
		fmt.Fprintf(&desc, "• expected payment: %s\n", day.ExpectedPaymentDate)
	}

	if strings.TrimSpace(project.Invitation) != "" {
		desc.WriteString("\nNotes:\n")
		desc.WriteString(strings.TrimSpace(project.Invitation))
		desc.WriteString("\n")
	}
	fmt.Fprintf(&desc, "\nLark record: %s\n", recordID)

	colorID := statusColors[project.ProjectStatus]
	if colorID == "" {
		colorID = "1"
	}

	return &calendar.Event{
		Summary:     summary,
		Description: desc.String(),
		ColorId:     colorID,
		Start:       &calendar.EventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{RecordIDProperty: recordID},
		},
	}, nil
}

func writeLine(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

// EventNeedsUpdate returns a patch with the fields of target that differ from
// existing, or nil when they already match.
func EventNeedsUpdate(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	same, err := sameTimes(existing, target)
	if err != nil {
		return nil, err
	}
	if !same {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

func sameTimes(a, b *calendar.Event) (bool, error) {
	if a.Start == nil || a.End == nil {
		return false, nil
	}
	pairs := [][2]string{
		{a.Start.DateTime, b.Start.DateTime},
		{a.End.DateTime, b.End.DateTime},
	}
	for _, p := range pairs {
		x, err := time.Parse(time.RFC3339, p[0])
		if err != nil {
			return false, err
		}
		y, err := time.Parse(time.RFC3339, p[1])
		if err != nil {
			return false, err
		}
		if !x.Equal(y) {
			return false, nil
		}
	}
	return true, nil
}
