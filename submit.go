package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harrisonrobin/projectreg/pkg/model"
	"github.com/harrisonrobin/projectreg/pkg/submit"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	submitYes        bool
	submitJSONOutput bool
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Print an empty registration form to fill in",
	Args:  cobra.NoArgs,
	RunE:  runForm,
}

var submitCmd = &cobra.Command{
	Use:   "submit FORM",
	Short: "Submit a filled-in form (YAML or JSON, - for stdin)",
	Long: "Creates the project record and then one schedule record per day, in order. " +
		"The first failure stops the run; records already created are kept.",
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVarP(&submitYes, "yes", "y", false,
		"Submit without asking when no schedule table is configured")
	submitCmd.Flags().BoolVar(&submitJSONOutput, "json", false, "Output the result in JSON format")
}

func runForm(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(model.NewForm())
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	form, err := readForm(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.requireSession(ctx); err != nil {
		return err
	}
	conn, err := a.connection(ctx)
	if err != nil {
		return err
	}

	confirm := confirmPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
	switch {
	case submitYes:
		confirm = func(context.Context) (bool, error) { return true, nil }
	case args[0] == "-":
		// stdin already carried the form
		confirm = nil
	}

	out := cmd.OutOrStdout()
	req := submit.Request{
		Connection: conn,
		Form:       form,
		Confirm:    confirm,
	}
	if !submitJSONOutput {
		req.OnTransition = func(t submit.Transition) {
			if t.State == submit.StateCreatingSchedule {
				fmt.Fprintf(out, "→ %s (day %d of %d)\n", t.State, t.Day, len(form.Days))
				return
			}
			fmt.Fprintf(out, "→ %s\n", t.State)
		}
	}

	result, err := a.orchestrator(a.calendarClient(ctx)).Submit(ctx, req)
	if submitJSONOutput && result != nil {
		if perr := printJSON(out, result); perr != nil {
			return perr
		}
	}
	if err != nil {
		if errors.Is(err, submit.ErrDeclined) && args[0] == "-" && !submitYes {
			return fmt.Errorf("%w (pass --yes to submit the project only)", err)
		}
		if result != nil && result.ProjectRecordID != "" && !submitJSONOutput {
			fmt.Fprintf(out, "Project record %s and %d schedule record(s) were created before the failure.\n",
				result.ProjectRecordID, len(result.ScheduleRecordIDs))
		}
		return err
	}

	if !submitJSONOutput {
		fmt.Fprintf(out, "Submitted project %s with %d schedule record(s).\n",
			result.ProjectRecordID, len(result.ScheduleRecordIDs))
	}
	return nil
}

func readForm(stdin io.Reader, path string) (*model.Form, error) {
	if path == "-" {
		return model.ParseForm(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open form: %w", err)
	}
	defer f.Close()
	return model.ParseForm(f)
}

// confirmPrompt asks on the terminal. Anything but y/yes declines.
func confirmPrompt(in io.Reader, out io.Writer) submit.ConfirmFunc {
	return func(ctx context.Context) (bool, error) {
		fmt.Fprint(out, "No schedule table is configured. Submit the project without schedule days? [y/N] ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
