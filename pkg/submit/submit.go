// Package submit writes a registration form to Lark: one project record, then
// one schedule record per day linked to it.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/lark"
	"github.com/harrisonrobin/projectreg/pkg/mapping"
	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/store"
)

type State string

const (
	StateIdle             State = "Idle"
	StateAuthenticating   State = "Authenticating"
	StateCreatingProject  State = "CreatingProject"
	StateCreatingSchedule State = "CreatingSchedule"
	StateSucceeded        State = "Succeeded"
	StateFailed           State = "Failed"
)

// Transition is one state change. Day is set for CreatingSchedule (1-based).
type Transition struct {
	State State `json:"state"`
	Day   int   `json:"day,omitempty"`
}

type TokenIssuer interface {
	TenantAccessToken(ctx context.Context, appID, appSecret string) (string, error)
}

type RecordCreator interface {
	CreateRecord(ctx context.Context, token, appToken, tableID string, fields map[string]any) (*lark.Record, error)
}

// Journal records submissions locally.
type Journal interface {
	BeginSubmission(ctx context.Context, projectName, state string) (string, error)
	AddRecord(ctx context.Context, submissionID string, rec store.SubmissionRecord) error
	FinishSubmission(ctx context.Context, submissionID, state, errMsg string) error
}

// Mirror copies created schedule days elsewhere, e.g. a calendar.
// recordIDs[i] is the schedule record created for days[i].
type Mirror interface {
	MirrorDays(ctx context.Context, project model.ProjectDetails, days []model.ProjectDay, recordIDs []string) error
}

// ConfirmFunc asks whether to continue without a schedule table.
type ConfirmFunc func(ctx context.Context) (bool, error)

// Request is one submission.
type Request struct {
	Connection config.Connection
	// Form is reset to its initial shape on success and left untouched otherwise.
	Form *model.Form
	// Confirm is consulted when no schedule table is configured. A nil
	// Confirm declines.
	Confirm      ConfirmFunc
	OnTransition func(Transition)
}

// Result describes what happened, including partial progress on failure.
type Result struct {
	State             State        `json:"state"`
	ProjectRecordID   string       `json:"projectRecordId,omitempty"`
	ScheduleRecordIDs []string     `json:"scheduleRecordIds"`
	Transitions       []Transition `json:"transitions"`
	SubmissionID      string       `json:"submissionId,omitempty"`
}

type Orchestrator struct {
	tokens   TokenIssuer
	records  RecordCreator
	journal  Journal
	mirror   Mirror
	logger   *slog.Logger
	location *time.Location
	timeout  time.Duration
}

type Option func(*Orchestrator)

func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithMirror(m Mirror) Option {
	return func(o *Orchestrator) { o.mirror = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithLocation sets the zone schedule times are read in. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.location = loc }
}

// WithRequestTimeout bounds each remote call. Zero means no extra deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func New(tokens TokenIssuer, records RecordCreator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tokens:   tokens,
		records:  records,
		logger:   slog.Default(),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of a single submission.
type run struct {
	o      *Orchestrator
	req    Request
	result *Result
}

func (r *run) transition(s State, day int) {
	r.result.State = s
	t := Transition{State: s, Day: day}
	r.result.Transitions = append(r.result.Transitions, t)
	if r.req.OnTransition != nil {
		r.req.OnTransition(t)
	}
}

// Submit creates the project record and then each schedule record in order.
// It stops at the first failure without undoing records already created.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.Form == nil {
		return nil, errors.New("submit: form is nil")
	}
	r := &run{o: o, req: req, result: &Result{State: StateIdle, ScheduleRecordIDs: []string{}}}
	conn := req.Connection

	if missing := conn.Missing(); len(missing) > 0 {
		r.transition(StateFailed, 0)
		return r.result, &ConfigurationError{Missing: missing}
	}

	withSchedule := conn.HasScheduleTable()
	if !withSchedule {
		ok := false
		if req.Confirm != nil {
			var err error
			if ok, err = req.Confirm(ctx); err != nil {
				return r.result, fmt.Errorf("confirm: %w", err)
			}
		}
		if !ok {
			return r.result, ErrDeclined
		}
		o.logger.Info("submitting project without schedule days", "project", req.Form.Project.ProjectName)
	}

	snapshot := req.Form.Clone()
	r.transition(StateAuthenticating, 0)
	r.begin(ctx, snapshot.Project.ProjectName)

	err := r.execute(ctx, conn, snapshot, withSchedule)
	if err != nil {
		r.transition(StateFailed, 0)
		r.finish(ctx, err)
		o.logger.Error("submission failed",
			"project", snapshot.Project.ProjectName,
			"project_record", r.result.ProjectRecordID,
			"schedule_records", len(r.result.ScheduleRecordIDs),
			"error", err,
		)
		return r.result, err
	}

	r.transition(StateSucceeded, 0)
	r.finish(ctx, nil)
	o.logger.Info("submission succeeded",
		"project", snapshot.Project.ProjectName,
		"project_record", r.result.ProjectRecordID,
		"schedule_records", len(r.result.ScheduleRecordIDs),
	)

	if o.mirror != nil && len(r.result.ScheduleRecordIDs) > 0 {
		if err := o.mirror.MirrorDays(ctx, snapshot.Project, snapshot.Days, r.result.ScheduleRecordIDs); err != nil {
			o.logger.Warn("calendar mirror failed", "error", err)
		}
	}

	req.Form.Reset()
	return r.result, nil
}

func (r *run) execute(ctx context.Context, conn config.Connection, form *model.Form, withSchedule bool) error {
	o := r.o

	var token string
	err := o.call(ctx, func(ctx context.Context) (err error) {
		token, err = o.tokens.TenantAccessToken(ctx, conn.AppID, conn.AppSecret)
		return err
	})
	if err != nil {
		return &StepError{State: StateAuthenticating, Err: err}
	}

	r.transition(StateCreatingProject, 0)
	var project *lark.Record
	err = o.call(ctx, func(ctx context.Context) (err error) {
		project, err = o.records.CreateRecord(ctx, token, conn.AppToken, conn.ProjectTableID, mapping.ProjectFields(form.Project))
		return err
	})
	if err != nil {
		return &StepError{State: StateCreatingProject, Err: err}
	}
	projectID := project.Identifier()
	if projectID == "" {
		return &StepError{State: StateCreatingProject, Err: ErrMissingIdentifier}
	}
	r.result.ProjectRecordID = projectID
	r.record(ctx, store.SubmissionRecord{Kind: store.KindProject, TableID: conn.ProjectTableID, RecordID: projectID})

	if !withSchedule {
		return nil
	}

	for i, day := range form.Days {
		r.transition(StateCreatingSchedule, i+1)
		fields := mapping.ScheduleFieldsIn(o.location, day, i, projectID)

		var rec *lark.Record
		err := o.call(ctx, func(ctx context.Context) (err error) {
			rec, err = o.records.CreateRecord(ctx, token, conn.AppToken, conn.ScheduleTableID, fields)
			return err
		})
		if err != nil {
			return &StepError{State: StateCreatingSchedule, Day: i + 1, Err: err}
		}
		id := rec.Identifier()
		r.result.ScheduleRecordIDs = append(r.result.ScheduleRecordIDs, id)
		r.record(ctx, store.SubmissionRecord{Kind: store.KindSchedule, DayNo: i + 1, TableID: conn.ScheduleTableID, RecordID: id})
	}
	return nil
}

func (o *Orchestrator) call(ctx context.Context, fn func(context.Context) error) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return fn(ctx)
}

// begin opens the journal entry. Journal failures are logged and never change
// the outcome. Journal writes outlive cancellation of ctx: records created
// remotely before a cancel must still be listed locally.
func (r *run) begin(ctx context.Context, projectName string) {
	if r.o.journal == nil {
		return
	}
	id, err := r.o.journal.BeginSubmission(context.WithoutCancel(ctx), projectName, string(r.result.State))
	if err != nil {
		r.o.logger.Warn("journal: begin submission", "error", err)
		return
	}
	r.result.SubmissionID = id
}

func (r *run) record(ctx context.Context, rec store.SubmissionRecord) {
	if r.o.journal == nil || r.result.SubmissionID == "" {
		return
	}
	if err := r.o.journal.AddRecord(context.WithoutCancel(ctx), r.result.SubmissionID, rec); err != nil {
		r.o.logger.Warn("journal: add record", "submission", r.result.SubmissionID, "record", rec.RecordID, "error", err)
	}
}

func (r *run) finish(ctx context.Context, failure error) {
	if r.o.journal == nil || r.result.SubmissionID == "" {
		return
	}
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}
	if err := r.o.journal.FinishSubmission(context.WithoutCancel(ctx), r.result.SubmissionID, string(r.result.State), msg); err != nil {
		r.o.logger.Warn("journal: finish submission", "submission", r.result.SubmissionID, "error", err)
	}
}
