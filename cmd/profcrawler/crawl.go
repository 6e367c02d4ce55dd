package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/runs"
)

func newCrawlCmd() *cobra.Command {
	var req runs.Request
	cmd := &cobra.Command{
		Use:   "crawl <university>",
		Short: "Crawls one university and writes its professor records",
		Long: `Walks every faculty and department directory configured for the university,
extracts each profile and writes the emitted records as a JSON snapshot.
With --persist the records are also inserted into Postgres; --embed then
embeds each research interest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req.University = strings.TrimSpace(args[0])

			run, err := appInstance.Crawl(cmd.Context(), req)
			if run.ID != "" {
				appInstance.Logger().Info("crawl command finished",
					zap.String("run_id", run.ID),
					zap.String("status", string(run.Status)),
					zap.Int("emitted", run.Stats.Emitted),
					zap.String("snapshot", run.SnapshotURI),
				)
				if werr := writeJSON(cmd.OutOrStdout(), run); werr != nil {
					return werr
				}
			}
			if err != nil {
				return fmt.Errorf("crawl %q: %w", req.University, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&req.Persist, "persist", false, "insert records into Postgres")
	cmd.Flags().BoolVar(&req.Embed, "embed", false, "embed research interests after persisting")
	cmd.Flags().String("out", "", "write the snapshot under this directory instead of the configured storage")
	return cmd
}
