package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyLimit      int
	historyJSONOutput bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past submissions and the records they created",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of submissions to show")
	historyCmd.Flags().BoolVar(&historyJSONOutput, "json", false, "Output in JSON format")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := a.db.ListSubmissions(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}

	if historyJSONOutput {
		return printJSON(cmd.OutOrStdout(), subs)
	}
	if len(subs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No submissions yet.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "CREATED\tSTATE\tPROJECT\tRECORDS\tERROR")
	for _, s := range subs {
		errMsg := s.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.State,
			s.ProjectName,
			len(s.Records),
			errMsg,
		)
	}
	return w.Flush()
}
