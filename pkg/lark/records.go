package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/harrisonrobin/projectreg/pkg/config"
)

// Field describes one column of a Bitable table.
type Field struct {
	Name string `json:"field_name"`
	Type int    `json:"type"`
}

// Record is a row as returned by the server.
type Record struct {
	RecordID string         `json:"record_id"`
	ID       string         `json:"id"`
	Fields   map[string]any `json:"fields"`
}

// Identifier returns record_id, falling back to id. Empty means the server
// returned neither.
func (r *Record) Identifier() string {
	if r == nil {
		return ""
	}
	if r.RecordID != "" {
		return r.RecordID
	}
	return r.ID
}

func tablePath(appToken, tableID, suffix string) string {
	return fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/%s",
		url.PathEscape(appToken), url.PathEscape(tableID), suffix)
}

// ListFields returns the columns of a table.
func (c *Client) ListFields(ctx context.Context, token, appToken, tableID string) ([]Field, error) {
	env, err := c.do(ctx, c.bearer(ctx, token), http.MethodGet, tablePath(appToken, tableID, "fields"), nil)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	if env.Code != 0 {
		return nil, newAPIError("list fields", env.Code, env.Msg)
	}

	var data struct {
		Items []Field `json:"items"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("list fields: decode data: %w", err)
		}
	}
	return data.Items, nil
}

// CreateRecord appends one row to a table. A non-zero response code becomes an
// *APIError, or a *LinkFieldError when a link column value was rejected.
func (c *Client) CreateRecord(ctx context.Context, token, appToken, tableID string, fields map[string]any) (*Record, error) {
	body := map[string]any{"fields": fields}
	env, err := c.do(ctx, c.bearer(ctx, token), http.MethodPost, tablePath(appToken, tableID, "records"), body)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if env.Code != 0 {
		return nil, newAPIError("create record", env.Code, env.Msg)
	}

	var data struct {
		Record Record `json:"record"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("create record: decode data: %w", err)
		}
	}
	return &data.Record, nil
}

// Schema lists the columns of the project table and, when set, the schedule
// table.
type Schema struct {
	Project  []Field `json:"project"`
	Schedule []Field `json:"schedule,omitempty"`
}

// Schema issues a tenant token and reads the columns of the configured tables.
func (c *Client) Schema(ctx context.Context, conn config.Connection) (*Schema, error) {
	token, err := c.TenantAccessToken(ctx, conn.AppID, conn.AppSecret)
	if err != nil {
		return nil, err
	}
	var s Schema
	if s.Project, err = c.ListFields(ctx, token, conn.AppToken, conn.ProjectTableID); err != nil {
		return nil, fmt.Errorf("project table: %w", err)
	}
	if conn.HasScheduleTable() {
		if s.Schedule, err = c.ListFields(ctx, token, conn.AppToken, conn.ScheduleTableID); err != nil {
			return nil, fmt.Errorf("schedule table: %w", err)
		}
	}
	return &s, nil
}
