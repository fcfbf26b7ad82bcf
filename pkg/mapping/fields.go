// Package mapping converts registration form state into Bitable field maps.
package mapping

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/model"
)

// Project table columns.
const (
	FieldProjectType   = "ProjectType"
	FieldProjectName   = "ProjectName"
	FieldProductID     = "Product ID"
	FieldTrainingName  = "Training Name"
	FieldBatchNo       = "Batch No"
	FieldTraineeDept   = "Trainee Dept"
	FieldCSID          = "CS ID"
	FieldProjectStatus = "Project Status"
	FieldInvitation    = "Invitation"
)

// Schedule table columns. FieldProjectLink is the link column pointing at the
// project table.
const (
	FieldDayNo               = "DayNo"
	FieldProjectLink         = "ID"
	FieldTimeStart           = "TimeStart"
	FieldTimeEnd             = "TimeEnd"
	FieldSalesAmount         = "Sales Amount"
	FieldExpectedPaymentDate = "Expected Payment Date"
	FieldPaymentStatus       = "Payment Status"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
)

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ProjectFields renames project state to the project table's columns.
// Customer is left out until contacts are set up in the base.
func ProjectFields(p model.ProjectDetails) map[string]any {
	return map[string]any{
		FieldProjectType:   string(p.ProjectType),
		FieldProjectName:   p.ProjectName,
		FieldProductID:     p.ProductID,
		FieldTrainingName:  p.TrainingName,
		FieldBatchNo:       p.BatchNo,
		FieldTraineeDept:   p.TraineeDept,
		FieldCSID:          p.CSID,
		FieldProjectStatus: string(p.ProjectStatus),
		FieldInvitation:    p.Invitation,
	}
}

// ScheduleFields maps a day using the local time zone for its wall-clock times.
func ScheduleFields(day model.ProjectDay, index int, projectRecordID string) map[string]any {
	return ScheduleFieldsIn(time.Local, day, index, projectRecordID)
}

// ScheduleFieldsIn maps the day at index (0-based) to the schedule table's
// columns. Missing or unparsable dates and times map to nil; it never fails.
func ScheduleFieldsIn(loc *time.Location, day model.ProjectDay, index int, projectRecordID string) map[string]any {
	return map[string]any{
		FieldDayNo:               index + 1,
		FieldProjectLink:         []string{projectRecordID},
		FieldTimeStart:           nullable(Timestamp(loc, day.Date, day.StartTime)),
		FieldTimeEnd:             nullable(Timestamp(loc, day.Date, day.EndTime)),
		FieldSalesAmount:         ParseAmount(day.SalesAmount),
		FieldExpectedPaymentDate: nullable(DateTimestamp(day.ExpectedPaymentDate)),
		FieldPaymentStatus:       string(day.PaymentStatus),
	}
}

// Timestamp combines a date and a time of day into epoch milliseconds, read as
// wall-clock time in loc. It returns nil when either part is absent or invalid.
func Timestamp(loc *time.Location, date, clock string) *int64 {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return nil
	}
	if strings.Count(clock, ":") == 1 {
		clock += ":00"
	}
	t, err := time.ParseInLocation(dateTimeLayout, date+"T"+clock, loc)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// DateTimestamp converts a date-only value to epoch milliseconds at UTC
// midnight, or nil when empty or invalid.
func DateTimestamp(date string) *int64 {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// ParseAmount reads the leading number of s. Empty or non-numeric input is 0.
func ParseAmount(s string) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// nullable keeps a nil pointer as an untyped nil so it encodes as JSON null.
func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
