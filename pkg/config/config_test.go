package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "https://open.larksuite.com/open-apis", cfg.Lark.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Lark.RequestTimeout.Std())
	require.False(t, cfg.Lark.TokenCache)
	require.Equal(t, 5173, cfg.Lark.RedirectPort)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, cfg.Calendar.Enabled)
	require.Equal(t, time.Hour, cfg.Calendar.SweepInterval.Std())
	require.Equal(t, filepath.Join(cfg.Data.Dir, "projectreg.db"), cfg.DatabasePath())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, `
lark:
  request_timeout: 5s
  token_cache: true
data:
  dir: /tmp/projectreg-data
log:
  level: debug
  format: json
calendar:
  enabled: true
  name: Trainings
  sweep_interval: 15m
`)
	t.Setenv("PROJECTREG_LOG_LEVEL", "warn")
	t.Setenv("PROJECTREG_LARK_REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("PROJECTREG_SERVER_ADDR", "127.0.0.1:9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.Lark.RequestTimeout.Std(), "unparsable env values are ignored")
	require.True(t, cfg.Lark.TokenCache)
	require.Equal(t, "/tmp/projectreg-data", cfg.Data.Dir)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, "Trainings", cfg.Calendar.Name)
	require.Equal(t, 15*time.Minute, cfg.Calendar.SweepInterval.Std())
	require.Equal(t, "/tmp/projectreg-data/credentials.json", cfg.CalendarCredentialsPath())
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, "server:\n  public_url: https://reg.example.com\n")
	t.Setenv("PROJECTREG_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://reg.example.com", cfg.Server.PublicURL)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cases := map[string]string{
		"bad duration": "lark:\n  request_timeout: soon\n",
		"bad level":    "log:\n  level: loud\n",
		"bad format":   "log:\n  format: xml\n",
		"bad port":     "lark:\n  redirect_port: 70000\n",
		"no calendar":  "calendar:\n  enabled: true\n  name: \"\"\n",
		"not yaml":     "lark: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestConnectionFromEnv(t *testing.T) {
	t.Setenv("VITE_LARK_APP_ID", "cli_vite")
	t.Setenv("LARK_APP_ID", "cli_plain")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("VITE_LARK_APP_TOKEN", "")
	t.Setenv("LARK_APP_TOKEN", "")
	t.Setenv("VITE_LARK_PROJECT_TABLE_ID", "tblP")
	t.Setenv("VITE_LARK_SCHEDULE_TABLE_ID", "")
	t.Setenv("LARK_SCHEDULE_TABLE_ID", "")

	c := ConnectionFromEnv()
	require.Equal(t, "cli_vite", c.AppID, "VITE_ name wins")
	require.Equal(t, "secret", c.AppSecret)
	require.Equal(t, "tblP", c.ProjectTableID)
	require.Equal(t, []string{"appToken"}, c.Missing())
	require.False(t, c.HasScheduleTable())
}

func TestConnection_Merge(t *testing.T) {
	defaults := Connection{AppID: "a", AppSecret: "s", AppToken: "t", ProjectTableID: "p", ScheduleTableID: "sch"}

	merged, err := defaults.Merge([]byte(`{"appToken":"t2","scheduleTableId":""}`))
	require.NoError(t, err)
	require.Equal(t, Connection{AppID: "a", AppSecret: "s", AppToken: "t2", ProjectTableID: "p"}, merged)
	require.Equal(t, "t", defaults.AppToken)

	same, err := defaults.Merge(nil)
	require.NoError(t, err)
	require.Equal(t, defaults, same)

	_, err = defaults.Merge([]byte("{"))
	require.Error(t, err)
}

func TestConnection_Missing(t *testing.T) {
	require.Equal(t, []string{"appId", "appSecret", "appToken", "projectTableId"}, Connection{}.Missing())
	require.Empty(t, Connection{AppID: "a", AppSecret: "s", AppToken: "t", ProjectTableID: "p"}.Missing())
}

func TestMask(t *testing.T) {
	require.Equal(t, "", Mask(""))
	require.Equal(t, "****", Mask("short"))
	require.Equal(t, "****", Mask("elevenchars"))
	require.Equal(t, "****wxyz", Mask("abcdefghijklmnopqrstuvwxyz"))
	require.Equal(t, "****กขคง", Mask("abcdefghijกขคง"))
	require.Equal(t, "****", Connection{AppSecret: "tiny"}.Redacted().AppSecret)
}
