package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a hierarchy document loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtName, err := formatFor(args[0], format)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			doc, err := readDocument(args[0], fmtName)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			profiles, folders, entities, err := countNodes(doc)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			fmt.Printf("OK: %d profiles, %d folders, %d entities\n", profiles, folders, entities)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "input format: json or yaml (default from extension)")
	return cmd
}
