package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/harrisonrobin/projectreg/pkg/lark"
	"github.com/harrisonrobin/projectreg/pkg/submit"
	"github.com/spf13/cobra"
)

var fieldsOut string

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the columns of the project and schedule tables",
	Args:  cobra.NoArgs,
	RunE:  runFields,
}

func init() {
	fieldsCmd.Flags().StringVarP(&fieldsOut, "out", "o", "", "Also write the field list as JSON to this file")
}

func runFields(cmd *cobra.Command, args []string) error {
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
	if missing := conn.Missing(); len(missing) > 0 {
		return &submit.ConfigurationError{Missing: missing}
	}

	schema, err := a.lark.Schema(ctx, conn)
	if err != nil {
		return fmt.Errorf("fetch fields: %w", err)
	}

	out := cmd.OutOrStdout()
	printFields(out, "Project table ("+conn.ProjectTableID+")", schema.Project)
	if conn.HasScheduleTable() {
		fmt.Fprintln(out)
		printFields(out, "Schedule table ("+conn.ScheduleTableID+")", schema.Schedule)
	}

	if fieldsOut != "" {
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(fieldsOut, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", fieldsOut, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Fields saved to %s\n", fieldsOut)
	}
	return nil
}

func printFields(w io.Writer, title string, fields []lark.Field) {
	fmt.Fprintln(w, title+":")
	for _, f := range fields {
		fmt.Fprintf(w, "  %s (%d)\n", f.Name, f.Type)
	}
}
