package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed [university]",
		Short: "Embeds stored research interests",
		Long: `Reads the stored professors (all of them, or those of one university), embeds
each research interest and inserts it into research_interests.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			university := ""
			if len(args) == 1 {
				university = args[0]
			}
			report, err := appInstance.EmbedInterests(cmd.Context(), university)
			if err != nil {
				return fmt.Errorf("embed interests: %w", err)
			}
			appInstance.Logger().Info("embed command finished",
				zap.String("university", university),
				zap.Int("batches", report.Batches),
				zap.Int("inserted", report.Inserted),
				zap.Ints("failed", report.Failed),
			)
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
