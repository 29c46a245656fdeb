package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scrape invocations",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "Maximum runs to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.svc.History(cmd.Context(), historyFlags.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No scrape history yet.")
		return nil
	}
	for _, run := range runs {
		target := run.URL
		if run.Source != "" {
			target = fmt.Sprintf("%s/%s", run.Source, run.ContentID)
		}
		age := humanize.Time(run.StartedAt)
		if run.Outcome == "success" {
			fmt.Fprintf(out, "%-8s %-40s %-16s %s, took %s\n",
				run.Outcome, target, run.Method, age, run.Duration.Round(time.Millisecond))
			continue
		}
		fmt.Fprintf(out, "%-8s %-40s %s: %s\n", run.Outcome, target, age, run.Error)
	}
	return nil
}
