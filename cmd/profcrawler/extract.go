package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var urlsFile string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extracts research interests from a list of profile URLs with the LLM",
		Long: `Reads a JSON array of profile URLs, asks the configured language model for
each page's research interests concurrently and prints a JSON object keyed
by URL. Pages that yield nothing map to an empty list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			urls, err := readURLs(urlsFile)
			if err != nil {
				return err
			}
			results, err := appInstance.ExtractMany(cmd.Context(), urls)
			if err != nil {
				return fmt.Errorf("extract interests: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&urlsFile, "urls", "", "JSON file holding an array of profile URLs")
	_ = cmd.MarkFlagRequired("urls")
	return cmd
}

func readURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("decode urls file: %w", err)
	}
	if len(urls) == 0 {
		return nil, errors.New("urls file lists no URLs")
	}
	return urls, nil
}
