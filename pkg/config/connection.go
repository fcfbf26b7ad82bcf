package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Connection holds the Lark app credentials and table identifiers. The JSON
// keys match the persisted override.
type Connection struct {
	AppID           string `json:"appId"`
	AppSecret       string `json:"appSecret"`
	AppToken        string `json:"appToken"`
	ProjectTableID  string `json:"projectTableId"`
	ScheduleTableID string `json:"scheduleTableId"`
}

// Each key can come from its VITE_-prefixed name or the plain LARK_ name.
var connectionEnv = []struct {
	names []string
	field func(*Connection) *string
}{
	{[]string{"VITE_LARK_APP_ID", "LARK_APP_ID"}, func(c *Connection) *string { return &c.AppID }},
	{[]string{"VITE_LARK_APP_SECRET", "LARK_APP_SECRET"}, func(c *Connection) *string { return &c.AppSecret }},
	{[]string{"VITE_LARK_APP_TOKEN", "LARK_APP_TOKEN"}, func(c *Connection) *string { return &c.AppToken }},
	{[]string{"VITE_LARK_PROJECT_TABLE_ID", "LARK_PROJECT_TABLE_ID"}, func(c *Connection) *string { return &c.ProjectTableID }},
	{[]string{"VITE_LARK_SCHEDULE_TABLE_ID", "LARK_SCHEDULE_TABLE_ID"}, func(c *Connection) *string { return &c.ScheduleTableID }},
}

// ConnectionFromEnv reads the default connection from the environment.
func ConnectionFromEnv() Connection {
	var c Connection
	for _, e := range connectionEnv {
		for _, name := range e.names {
			if v := os.Getenv(name); v != "" {
				*e.field(&c) = v
				break
			}
		}
	}
	return c
}

// Merge returns c with the keys present in the JSON override replacing its
// values, including empty strings. Keys absent from the override keep their
// value.
func (c Connection) Merge(override []byte) (Connection, error) {
	merged := c
	if len(override) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(override, &merged); err != nil {
		return c, fmt.Errorf("decode connection override: %w", err)
	}
	return merged, nil
}

// Missing lists the keys required for submitting that are empty. The schedule
// table is optional and never reported.
func (c Connection) Missing() []string {
	var missing []string
	if c.AppID == "" {
		missing = append(missing, "appId")
	}
	if c.AppSecret == "" {
		missing = append(missing, "appSecret")
	}
	if c.AppToken == "" {
		missing = append(missing, "appToken")
	}
	if c.ProjectTableID == "" {
		missing = append(missing, "projectTableId")
	}
	return missing
}

// HasScheduleTable reports whether schedule days can be written.
func (c Connection) HasScheduleTable() bool {
	return c.ScheduleTableID != ""
}

// Redacted returns a copy safe to log or display.
func (c Connection) Redacted() Connection {
	c.AppSecret = Mask(c.AppSecret)
	return c
}

// Mask hides a secret except for its last four characters. Secrets shorter
// than twelve characters are hidden entirely.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) < 12 {
		return "****"
	}
	return "****" + string(r[len(r)-4:])
}
