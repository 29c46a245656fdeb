package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trawl/internal/scrape"
)

var scrapeFlags struct {
	method string
	output string
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Scrape a URL into a canonical JSON record",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeFlags.method, "method", "m", "", "Extraction method: auto, browser-rendered, managed-job or plain-fetch (default auto)")
	f.StringVarP(&scrapeFlags.output, "output", "o", "", "Override the record output path (single-record scrapes only)")
}

func runScrape(cmd *cobra.Command, args []string) error {
	method, err := scrape.ParseMethod(scrapeFlags.method)
	if err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.svc.ScrapeURL(cmd.Context(), scrape.Request{
		URL:        args[0],
		Method:     method,
		OutputPath: scrapeFlags.output,
	})
	if err != nil {
		var exhausted *scrape.ExhaustedError
		if errors.As(err, &exhausted) {
			for _, attempt := range exhausted.Attempts {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", attempt)
			}
		}
		return err
	}

	// Methods that failed before one succeeded are worth surfacing:
	// they often point at a missing credential or binary.
	for _, failure := range result.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", failure)
	}

	out := cmd.OutOrStdout()
	if result.FanOut {
		fmt.Fprintf(out, "Scraped %d records from %s %s via %s\n",
			len(result.Records), result.Source, result.ID, result.MethodUsed)
		for _, path := range result.Paths {
			fmt.Fprintf(out, "  %s\n", path)
		}
		return nil
	}
	fmt.Fprintf(out, "Scraped %s %s via %s\n", result.Source, result.ID, result.MethodUsed)
	fmt.Fprintf(out, "  %s\n", result.Paths[0])
	return nil
}
