package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/config"
	"github.com/harrisonrobin/projectreg/pkg/session"
	"github.com/harrisonrobin/projectreg/pkg/store"
	"github.com/harrisonrobin/projectreg/pkg/submit"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetFlags puts every flag back to its default so values from a previous
// Execute do not leak into the next one.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCmd(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetIn(nil)
	rootCmd.SetArgs(nil)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return outBuf.String(), errBuf.String(), err
}

// setupEnv isolates config, data dir and connection defaults. It returns the
// data directory.
func setupEnv(t *testing.T, conn config.Connection) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PROJECTREG_CONFIG", filepath.Join(dir, "absent.yaml"))
	t.Setenv("PROJECTREG_DATA_DIR", dir)
	for _, name := range []string{"APP_ID", "APP_SECRET", "APP_TOKEN", "PROJECT_TABLE_ID", "SCHEDULE_TABLE_ID"} {
		t.Setenv("LARK_"+name, "")
	}
	t.Setenv("VITE_LARK_APP_ID", conn.AppID)
	t.Setenv("VITE_LARK_APP_SECRET", conn.AppSecret)
	t.Setenv("VITE_LARK_APP_TOKEN", conn.AppToken)
	t.Setenv("VITE_LARK_PROJECT_TABLE_ID", conn.ProjectTableID)
	t.Setenv("VITE_LARK_SCHEDULE_TABLE_ID", conn.ScheduleTableID)
	return dir
}

func saveSession(t *testing.T, dataDir, name string) {
	t.Helper()
	db, err := store.Open(filepath.Join(dataDir, "projectreg.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, session.NewStore(db).Save(context.Background(), session.Session{Name: name}))
}

type fakeLark struct {
	mu     sync.Mutex
	tables []string
}

func (f *fakeLark) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/auth/v3/tenant_access_token/internal":
		io.WriteString(w, `{"code":0,"tenant_access_token":"tenant-1","expire":7200}`)
	case strings.HasSuffix(r.URL.Path, "/records"):
		f.mu.Lock()
		f.tables = append(f.tables, strings.Split(r.URL.Path, "/")[6])
		n := len(f.tables)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"code":0,"data":{"record":{"record_id":"rec%d"}}}`, n)
	default:
		http.NotFound(w, r)
	}
}

func startFakeLark(t *testing.T) *fakeLark {
	t.Helper()
	fl := &fakeLark{}
	srv := httptest.NewServer(fl)
	t.Cleanup(srv.Close)
	t.Setenv("PROJECTREG_LARK_BASE_URL", srv.URL)
	return fl
}

var testConn = config.Connection{
	AppID:           "cli_app",
	AppSecret:       "super-secret-value",
	AppToken:        "bascApp",
	ProjectTableID:  "tblProject",
	ScheduleTableID: "tblSchedule",
}

const formYAML = `project:
  projectName: Data Literacy
  projectType: Public
days:
  - date: "2025-03-01"
    salesAmount: "1,000"
  - date: "2025-03-02"
    paymentStatus: Paid
`

func TestSettings_SetShowReset(t *testing.T) {
	setupEnv(t, testConn)

	_, _, err := executeCmd(t, "", "settings", "set", "--schedule-table", "tblOther", "--app-secret", "another-long-secret")
	require.NoError(t, err)

	out, _, err := executeCmd(t, "", "settings", "show")
	require.NoError(t, err)
	var shown config.Connection
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.Equal(t, "cli_app", shown.AppID)
	require.Equal(t, "tblOther", shown.ScheduleTableID)
	require.Equal(t, config.Mask("another-long-secret"), shown.AppSecret)

	out, _, err = executeCmd(t, "", "settings", "reset")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.Equal(t, "tblSchedule", shown.ScheduleTableID)
}

func TestWhoami(t *testing.T) {
	dir := setupEnv(t, testConn)

	out, _, err := executeCmd(t, "", "whoami")
	require.NoError(t, err)
	require.Equal(t, "Not logged in.\n", out)

	saveSession(t, dir, "Somchai")
	out, _, err = executeCmd(t, "", "whoami")
	require.NoError(t, err)
	require.Equal(t, "Somchai\n", out)

	_, _, err = executeCmd(t, "", "logout")
	require.NoError(t, err)
	out, _, err = executeCmd(t, "", "whoami")
	require.NoError(t, err)
	require.Equal(t, "Not logged in.\n", out)
}

func TestForm_PrintsInitialShape(t *testing.T) {
	out, _, err := executeCmd(t, "", "form")
	require.NoError(t, err)
	require.Contains(t, out, "projectType: In-House")
	require.Contains(t, out, "projectStatus: WIP")
}

func TestSubmit_RequiresLogin(t *testing.T) {
	setupEnv(t, testConn)
	fl := startFakeLark(t)

	_, _, err := executeCmd(t, formYAML, "submit", "-")
	require.ErrorIs(t, err, session.ErrNoSession)
	require.Empty(t, fl.tables)
}

func TestSubmit_CreatesRecordsAndJournals(t *testing.T) {
	dir := setupEnv(t, testConn)
	fl := startFakeLark(t)
	saveSession(t, dir, "Somchai")

	formFile := filepath.Join(t.TempDir(), "form.yaml")
	require.NoError(t, os.WriteFile(formFile, []byte(formYAML), 0o600))

	out, _, err := executeCmd(t, "", "submit", formFile)
	require.NoError(t, err)
	require.Contains(t, out, "→ Authenticating\n")
	require.Contains(t, out, "→ CreatingSchedule (day 2 of 2)\n")
	require.Contains(t, out, "Submitted project rec1 with 2 schedule record(s).")
	require.Equal(t, []string{"tblProject", "tblSchedule", "tblSchedule"}, fl.tables)

	out, _, err = executeCmd(t, "", "history", "--json")
	require.NoError(t, err)
	var subs []store.Submission
	require.NoError(t, json.Unmarshal([]byte(out), &subs))
	require.Len(t, subs, 1)
	require.Equal(t, string(submit.StateSucceeded), subs[0].State)
	require.Len(t, subs[0].Records, 3)
}

func TestSubmit_WithoutScheduleTable(t *testing.T) {
	conn := testConn
	conn.ScheduleTableID = ""
	dir := setupEnv(t, conn)
	fl := startFakeLark(t)
	saveSession(t, dir, "Somchai")

	formFile := filepath.Join(t.TempDir(), "form.yaml")
	require.NoError(t, os.WriteFile(formFile, []byte(formYAML), 0o600))

	_, stderr, err := executeCmd(t, "n\n", "submit", formFile)
	require.ErrorIs(t, err, submit.ErrDeclined)
	require.Contains(t, stderr, "[y/N]")
	require.Empty(t, fl.tables)

	_, _, err = executeCmd(t, formYAML, "submit", "-")
	require.ErrorIs(t, err, submit.ErrDeclined)
	require.Empty(t, fl.tables)

	out, _, err := executeCmd(t, "y\n", "submit", formFile)
	require.NoError(t, err)
	require.Contains(t, out, "with 0 schedule record(s)")
	require.Equal(t, []string{"tblProject"}, fl.tables)

	_, _, err = executeCmd(t, formYAML, "submit", "--yes", "-")
	require.NoError(t, err)
	require.Equal(t, []string{"tblProject", "tblProject"}, fl.tables)
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

type countingSweeper struct {
	calls  atomic.Int32
	cancel context.CancelFunc
}

func (s *countingSweeper) SweepOverduePayments(ctx context.Context, now time.Time) (int, error) {
	if s.calls.Add(1) == 2 {
		s.cancel()
	}
	return 1, nil
}

func TestSweepLoop_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &countingSweeper{cancel: cancel}

	var wg sync.WaitGroup
	startWorker(ctx, &wg, slog.New(slog.NewTextHandler(io.Discard, nil)), "sweep", func(ctx context.Context) {
		sweepLoop(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), s, time.Millisecond)
	})
	wg.Wait()
	require.Equal(t, int32(2), s.calls.Load())
}
