package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func scenariosCmd() *cobra.Command {
	var remove string

	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List stored scenarios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("scenarios: opening scenario store: %w", err)
			}

			if remove != "" {
				if err := st.Delete(ctx, remove); err != nil {
					return fmt.Errorf("scenarios: %w", err)
				}
				fmt.Printf("Deleted %q\n", remove)
				return nil
			}

			infos, err := st.List(ctx)
			if err != nil {
				return fmt.Errorf("scenarios: %w", err)
			}
			for _, info := range infos {
				fmt.Printf("%-32s %8d bytes  %s\n", info.Name, info.Size, info.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			if len(infos) == 0 {
				fmt.Printf("No scenarios in %s.\n", st.Dir())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remove, "delete", "", "delete the named scenario instead of listing")
	return cmd
}
