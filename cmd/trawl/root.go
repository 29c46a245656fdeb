package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config   string
	dataDir  string
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "trawl",
	Short: "Scrape web content into canonical JSON records",
	Long: "Trawl ingests content from supported web sources (ChatGPT shares,\n" +
		"tweets, podcast pages, playlists) and persists each item as a\n" +
		"canonical JSON record keyed by its source identifier.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "Config file path (default: user config dir)")
	pf.StringVar(&rootFlags.dataDir, "data-dir", "", "Directory for scraped records (default: config, then environment)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn or error (default: config)")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
