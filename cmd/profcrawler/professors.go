package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProfessorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "professors [university]",
		Short: "Prints stored professors as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			university := ""
			if len(args) == 1 {
				university = args[0]
			}
			list, err := appInstance.Professors(cmd.Context(), university)
			if err != nil {
				return fmt.Errorf("list professors: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	}
}
