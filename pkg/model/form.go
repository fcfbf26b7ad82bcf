package model

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProjectType string

const (
	ProjectInHouse    ProjectType = "In-House"
	ProjectPublic     ProjectType = "Public"
	ProjectConsulting ProjectType = "Consulting"
)

type ProjectStatus string

const (
	StatusWIP       ProjectStatus = "WIP"
	StatusCompleted ProjectStatus = "Completed"
	StatusCancelled ProjectStatus = "Cancelled"
)

// PaymentStatus values are the option labels used by the schedule table.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "รอชำระเงิน"
	PaymentPaid    PaymentStatus = "ชำระแล้ว"
)

// UnmarshalYAML accepts the table labels as well as the English aliases.
func (p *PaymentStatus) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*p = ParsePaymentStatus(s)
	return nil
}

// ParsePaymentStatus maps "Pending"/"Paid" (any case) to the table labels.
// Anything else is kept as given.
func ParsePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "":
		return PaymentPending
	case "paid":
		return PaymentPaid
	}
	return PaymentStatus(strings.TrimSpace(s))
}

// ProjectDetails is the project half of the registration form.
type ProjectDetails struct {
	ProjectType   ProjectType   `json:"projectType" yaml:"projectType"`
	ProjectName   string        `json:"projectName" yaml:"projectName"`
	ProductID     string        `json:"productId" yaml:"productId"`
	Customer      string        `json:"customer,omitempty" yaml:"customer,omitempty"` // not sent; contacts are not set up in the base
	TrainingName  string        `json:"trainingName" yaml:"trainingName"`
	BatchNo       string        `json:"batchNo" yaml:"batchNo"`
	TraineeDept   string        `json:"traineeDept" yaml:"traineeDept"`
	CSID          string        `json:"csId" yaml:"csId"`
	ProjectStatus ProjectStatus `json:"projectStatus" yaml:"projectStatus"`
	Invitation    string        `json:"invitation" yaml:"invitation"`
}

// ProjectDay is one schedule day. All values are kept as entered.
type ProjectDay struct {
	Date                string        `json:"date" yaml:"date"`           // YYYY-MM-DD
	StartTime           string        `json:"startTime" yaml:"startTime"` // HH:MM
	EndTime             string        `json:"endTime" yaml:"endTime"`
	SalesAmount         string        `json:"salesAmount" yaml:"salesAmount"`
	ExpectedPaymentDate string        `json:"expectedPaymentDate" yaml:"expectedPaymentDate"`
	PaymentStatus       PaymentStatus `json:"paymentStatus" yaml:"paymentStatus"`
}

// Form is the whole registration form: one project and its schedule days.
type Form struct {
	Project ProjectDetails `json:"project" yaml:"project"`
	Days    []ProjectDay   `json:"days" yaml:"days"`
}

func NewProjectDetails() ProjectDetails {
	return ProjectDetails{
		ProjectType:   ProjectInHouse,
		ProjectStatus: StatusWIP,
	}
}

func NewProjectDay() ProjectDay {
	return ProjectDay{
		StartTime:     "09:00",
		EndTime:       "17:00",
		PaymentStatus: PaymentPending,
	}
}

// NewForm returns the initial, empty form shape.
func NewForm() *Form {
	return &Form{
		Project: NewProjectDetails(),
		Days:    []ProjectDay{NewProjectDay()},
	}
}

// Reset puts the form back into its initial shape.
func (f *Form) Reset() {
	*f = *NewForm()
}

// AddDay appends a day with the default times.
func (f *Form) AddDay() {
	f.Days = append(f.Days, NewProjectDay())
}

// RemoveDay drops the day at index i. The last remaining day is never removed.
func (f *Form) RemoveDay(i int) bool {
	if len(f.Days) <= 1 || i < 0 || i >= len(f.Days) {
		return false
	}
	f.Days = append(f.Days[:i], f.Days[i+1:]...)
	return true
}

// Clone returns a deep copy, so callers can keep a snapshot across a reset.
func (f *Form) Clone() *Form {
	c := *f
	c.Days = append([]ProjectDay(nil), f.Days...)
	return &c
}

// ParseForm reads a form from YAML or JSON. Fields that are absent keep their
// initial values.
func ParseForm(r io.Reader) (*Form, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read form: %w", err)
	}

	var raw struct {
		Project yaml.Node   `yaml:"project"`
		Days    []yaml.Node `yaml:"days"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	form := NewForm()
	if !raw.Project.IsZero() {
		if err := raw.Project.Decode(&form.Project); err != nil {
			return nil, fmt.Errorf("parse form: project: %w", err)
		}
	}
	if len(raw.Days) > 0 {
		form.Days = make([]ProjectDay, 0, len(raw.Days))
		for i := range raw.Days {
			day := NewProjectDay()
			if err := raw.Days[i].Decode(&day); err != nil {
				return nil, fmt.Errorf("parse form: day %d: %w", i+1, err)
			}
			form.Days = append(form.Days, day)
		}
	}
	return form, nil
}
