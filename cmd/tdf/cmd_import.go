package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		filePath string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "import <scenario>",
		Short: "Validate a JSON or YAML document and store it as a scenario",
		Long: `Reads a hierarchy document, checks that it loads cleanly, and saves it in the
scenario directory under the given name. Use - as the file path to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			fmtName, err := formatFor(filePath, format)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			doc, err := readDocument(filePath, fmtName)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			profiles, folders, entities, err := countNodes(doc)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("import: opening scenario store: %w", err)
			}
			if err := st.Save(cmd.Context(), args[0], doc); err != nil {
				return fmt.Errorf("import: %w", err)
			}

			fmt.Printf("Imported %q: %d profiles, %d folders, %d entities\n", args[0], profiles, folders, entities)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "-", "path to input file (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "", "input format: json or yaml (default from extension)")
	return cmd
}
