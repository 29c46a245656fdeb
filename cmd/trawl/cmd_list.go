package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"trawl/internal/storage"
)

var listFlags struct {
	source string
	limit  int
	sortBy string
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scraped records",
	RunE:  runList,
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listFlags.source, "source", "all", "Source name, or \"all\" for every source")
	f.IntVar(&listFlags.limit, "limit", 50, "Maximum records to show")
	f.StringVar(&listFlags.sortBy, "sort-by", storage.SortRecency, "Sort order: recency, label or secondary-metric")
}

func runList(cmd *cobra.Command, _ []string) error {
	if !storage.ValidSortKey(listFlags.sortBy) {
		return fmt.Errorf("unknown sort key %q (want %s, %s or %s)",
			listFlags.sortBy, storage.SortRecency, storage.SortLabel, storage.SortMetric)
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	listing, err := a.svc.List(listFlags.source, listFlags.limit, listFlags.sortBy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listing.Total == 0 {
		fmt.Fprintln(out, "No scraped content found.")
		return nil
	}
	for _, e := range listing.Items {
		age := "unknown age"
		if e.ScrapedAt > 0 {
			age = humanize.Time(time.Unix(e.ScrapedAt, 0))
		}
		fmt.Fprintf(out, "%-12s %-30s %s\n", e.Source, e.ID, age)
	}
	fmt.Fprintf(out, "Showing %d of %d records\n", listing.Shown, listing.Total)
	return nil
}
