package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List supported sources and their extraction methods",
	RunE:  runSources,
}

func runSources(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for _, info := range a.svc.Sources() {
		methods := make([]string, len(info.Methods))
		for i, m := range info.Methods {
			methods[i] = string(m)
		}
		fmt.Fprintf(out, "%s: %s\n", info.Name, info.Description)
		fmt.Fprintf(out, "  methods: %s\n", strings.Join(methods, ", "))
	}
	return nil
}
