package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/projectreg/pkg/auth"
	"github.com/spf13/cobra"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Manage the Google Calendar mirror of schedule days",
}

var calendarAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Calendar",
	Long: "Runs the Google consent flow and stores the token in the data directory, " +
		"replacing any previous token.",
	Args: cobra.NoArgs,
	RunE: runCalendarAuth,
}

var calendarSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Flag calendar events of days whose payment is overdue",
	Long: "Prefixes the event summary with \"! \" for every mirrored day that is still " +
		"pending after its expected payment date.",
	Args: cobra.NoArgs,
	RunE: runCalendarSweep,
}

func init() {
	calendarCmd.AddCommand(calendarAuthCmd)
	calendarCmd.AddCommand(calendarSweepCmd)
}

func runCalendarAuth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	gcfg, err := auth.GoogleConfig(a.cfg.CalendarCredentialsPath(), auth.CalendarScopes...)
	if err != nil {
		return err
	}
	tokenFile := a.cfg.CalendarTokenPath()
	if _, err := auth.AuthorizeGoogle(ctx, gcfg, tokenFile, a.cfg.Lark.LoginTimeout.Std(), cmd.OutOrStdout(), a.logger); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", tokenFile)
	if !a.cfg.Calendar.Enabled {
		fmt.Fprintln(cmd.OutOrStdout(), "Set calendar.enabled: true to mirror schedule days.")
	}
	return nil
}

func runCalendarSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.Calendar.Enabled {
		return errors.New("the calendar mirror is disabled; set calendar.enabled: true")
	}
	cal, err := a.openCalendar(ctx)
	if err != nil {
		return err
	}
	n, err := cal.SweepOverduePayments(ctx, time.Now())
	fmt.Fprintf(cmd.OutOrStdout(), "Marked %d overdue payment(s).\n", n)
	return err
}
