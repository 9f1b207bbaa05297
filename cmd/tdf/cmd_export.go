package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <scenario>",
		Short: "Write a stored scenario as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("export: opening scenario store: %w", err)
			}
			doc, err := st.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			fmtName, err := formatFor(output, format)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			w := os.Stdout
			if output != "" && output != "-" {
				w, err = os.Create(output)
				if err != nil {
					return fmt.Errorf("export: creating output file: %w", err)
				}
				defer func() { _ = w.Close() }()
			}

			if err := writeDocument(w, doc, fmtName); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format: json or yaml (default from --output extension, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	return cmd
}
