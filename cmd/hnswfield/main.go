// Command hnswfield indexes, queries and serves vector fields.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/config"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hnswfield",
		Short: "Approximate nearest neighbor search over named vector fields",
		Long: `hnswfield stores vectors in named fields, each backed by its own HNSW
graph, and answers k-nearest-neighbor queries with optional attribute filters.

Storage, the embedding service and per-field index parameters are read from
a YAML config file; HNSWFIELD_* environment variables override it.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "hnswfield.yaml", "Config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newIndexCmd(),
		newQueryCmd(),
		newStatsCmd(),
		newServeCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hnswfield version %s\n", version)
			return nil
		},
	}
}

// openDB loads the config named by the --config flag and opens the database.
func openDB(ctx context.Context, cmd *cobra.Command, extra ...hnswfield.Option) (*hnswfield.DB, *config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.Options(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := hnswfield.Open(ctx, append(opts, extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
