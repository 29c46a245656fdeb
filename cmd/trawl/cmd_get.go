package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trawl/internal/storage"
)

var getCmd = &cobra.Command{
	Use:   "get <source> <content-id>",
	Short: "Print one stored record as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	content, err := a.svc.Get(args[0], args[1])
	if err != nil {
		return err
	}

	data, err := storage.MarshalCanonical(content.Data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
