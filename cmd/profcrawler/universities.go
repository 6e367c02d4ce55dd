package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/professor-crawler/internal/router"
)

func newUniversitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "universities",
		Short: "Lists or syncs configured universities",
	}
	cmd.AddCommand(newUniversitiesListCmd(), newUniversitiesSyncCmd())
	return cmd
}

type universityListing struct {
	Supported  []string `json:"supported"`
	Configured []string `json:"configured"`
	Stored     []string `json:"stored,omitempty"`
}

func newUniversitiesListCmd() *cobra.Command {
	var stored bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Prints supported, configured and (with --stored) synced universities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := universityListing{
				Supported:  router.Supported(),
				Configured: appInstance.Catalog().Names(),
			}
			if stored {
				list, err := appInstance.StoredUniversities(cmd.Context())
				if err != nil {
					return fmt.Errorf("list stored universities: %w", err)
				}
				out.Stored = make([]string, 0, len(list))
				for _, u := range list {
					out.Stored = append(out.Stored, u.Name)
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&stored, "stored", false, "also list universities synced to the database")
	return cmd
}

func newUniversitiesSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Uploads every configured directory into the universities table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.SyncUniversities(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync universities: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "synced %d universities\n", n)
			return err
		},
	}
}
