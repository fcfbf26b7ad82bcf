package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrisonrobin/projectreg/pkg/auth"
	"github.com/harrisonrobin/projectreg/pkg/session"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with Lark in the browser",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the logged-in Lark user",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in Lark user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func runLogin(cmd *cobra.Command, args []string) error {
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

	login := &auth.BrowserLogin{
		Client:  a.lark,
		Port:    a.cfg.Lark.RedirectPort,
		Timeout: a.cfg.Lark.LoginTimeout.Std(),
		Out:     cmd.OutOrStdout(),
		Logger:  a.logger,
	}
	sess, err := login.Run(ctx, conn)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := a.sessions.Save(ctx, sess); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", sess.Name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.Current(context.Background())
	if errors.Is(err, session.ErrNoSession) {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sess.Name)
	if sess.OpenID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "open_id: %s\n", sess.OpenID)
	}
	return nil
}
