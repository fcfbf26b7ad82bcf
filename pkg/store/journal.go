package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record kinds kept in the journal.
const (
	KindProject  = "project"
	KindSchedule = "schedule"
)

// Submission is one journaled submit attempt and the remote records it created.
type Submission struct {
	ID          string             `json:"id"`
	ProjectName string             `json:"projectName"`
	State       string             `json:"state"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	FinishedAt  *time.Time         `json:"finishedAt,omitempty"`
	Records     []SubmissionRecord `json:"records"`
}

// SubmissionRecord is a record that exists remotely because of a submission.
type SubmissionRecord struct {
	Kind     string `json:"kind"`
	DayNo    int    `json:"dayNo,omitempty"`
	TableID  string `json:"tableId"`
	RecordID string `json:"recordId"`
}

// BeginSubmission opens a journal entry and returns its id.
func (d *DB) BeginSubmission(ctx context.Context, projectName, state string) (string, error) {
	id := ulid.Make().String()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO submissions (id, project_name, state, created_at) VALUES (?, ?, ?, ?)
	`, id, projectName, state, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("begin submission: %w", err)
	}
	return id, nil
}

// AddRecord notes a remote record created by the submission.
func (d *DB) AddRecord(ctx context.Context, submissionID string, rec SubmissionRecord) error {
	var dayNo any
	if rec.Kind == KindSchedule {
		dayNo = rec.DayNo
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO submission_records (id, submission_id, kind, day_no, table_id, record_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), submissionID, rec.Kind, dayNo, rec.TableID, rec.RecordID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("add record to submission %s: %w", submissionID, err)
	}
	return nil
}

// FinishSubmission stores the terminal state and error message, if any.
func (d *DB) FinishSubmission(ctx context.Context, submissionID, state, errMsg string) error {
	var msg any
	if errMsg != "" {
		msg = errMsg
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE submissions SET state = ?, error = ?, finished_at = ? WHERE id = ?
	`, state, msg, formatTime(time.Now()), submissionID)
	if err != nil {
		return fmt.Errorf("finish submission %s: %w", submissionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish submission %s: %w", submissionID, ErrNotFound)
	}
	return nil
}

// ListSubmissions returns the most recent submissions first, with their records.
func (d *DB) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, project_name, state, error, created_at, finished_at
		FROM submissions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	subs := []Submission{}
	index := map[string]int{}
	for rows.Next() {
		var (
			s        Submission
			errMsg   sql.NullString
			created  string
			finished sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.ProjectName, &s.State, &errMsg, &created, &finished); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.Error = errMsg.String
		s.CreatedAt = parseTime(created)
		if finished.Valid {
			t := parseTime(finished.String)
			s.FinishedAt = &t
		}
		s.Records = []SubmissionRecord{}
		index[s.ID] = len(subs)
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if len(subs) == 0 {
		return subs, nil
	}

	recRows, err := d.db.QueryContext(ctx, `
		SELECT r.submission_id, r.kind, r.day_no, r.table_id, r.record_id
		FROM submission_records r
		JOIN (SELECT id FROM submissions ORDER BY id DESC LIMIT ?) s ON s.id = r.submission_id
		ORDER BY r.id
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list submission records: %w", err)
	}
	defer recRows.Close()

	for recRows.Next() {
		var (
			subID string
			rec   SubmissionRecord
			dayNo sql.NullInt64
		)
		if err := recRows.Scan(&subID, &rec.Kind, &dayNo, &rec.TableID, &rec.RecordID); err != nil {
			return nil, fmt.Errorf("scan submission record: %w", err)
		}
		rec.DayNo = int(dayNo.Int64)
		if i, ok := index[subID]; ok {
			subs[i].Records = append(subs[i].Records, rec)
		}
	}
	return subs, recRows.Err()
}
