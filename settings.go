package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	setAppID           string
	setAppSecret       string
	setAppToken        string
	setProjectTableID  string
	setScheduleTableID string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the Lark connection",
	Long: "The connection starts from the environment (VITE_LARK_* or LARK_*, " +
		"also read from .env). Values saved with `settings set` replace them " +
		"until `settings reset`.",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the connection in effect (secret masked)",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save connection values",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop saved values and go back to the environment defaults",
	Args:  cobra.NoArgs,
	RunE:  runSettingsReset,
}

func init() {
	f := settingsSetCmd.Flags()
	f.StringVar(&setAppID, "app-id", "", "Lark app id")
	f.StringVar(&setAppSecret, "app-secret", "", "Lark app secret")
	f.StringVar(&setAppToken, "app-token", "", "Bitable app token")
	f.StringVar(&setProjectTableID, "project-table", "", "Project table id")
	f.StringVar(&setScheduleTableID, "schedule-table", "", "Schedule table id (empty to submit projects only)")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := a.connection(context.Background())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), conn.Redacted())
}

// runSettingsSet saves the connection in effect with the given flags applied.
// Flags that are not passed keep their current value.
func runSettingsSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := a.connection(ctx)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("app-id") {
		conn.AppID = setAppID
	}
	if f.Changed("app-secret") {
		conn.AppSecret = setAppSecret
	}
	if f.Changed("app-token") {
		conn.AppToken = setAppToken
	}
	if f.Changed("project-table") {
		conn.ProjectTableID = setProjectTableID
	}
	if f.Changed("schedule-table") {
		conn.ScheduleTableID = setScheduleTableID
	}

	if err := a.sessions.SaveConnection(ctx, conn); err != nil {
		return err
	}
	a.logger.Info("connection settings saved", "app_id", conn.AppID, "schedule_table", conn.HasScheduleTable())
	if missing := conn.Missing(); len(missing) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: still missing %v\n", missing)
	}
	return printJSON(cmd.OutOrStdout(), conn.Redacted())
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.ResetConnection(context.Background()); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), a.defaults.Redacted())
}
