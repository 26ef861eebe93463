package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/hnswfield/api"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fields and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			stats := db.Stats()
			if jsonOutput(cmd) {
				out := make([]api.FieldResponse, len(stats))
				for i, st := range stats {
					out[i] = api.NewFieldResponse(st)
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"manifest": db.Manifest().ID,
					"fields":   out,
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tMETRIC\tM\tEF_C\tDIM\tVECTORS\tLEVELS\tATTR_KEYS")
			for _, st := range stats {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
					st.Field, st.Config.Metric, st.Config.M, st.Config.EFConstruction,
					st.Dimension, st.Vectors, st.Graph.MaxLevel+1, st.Attributes.Keys)
			}
			return tw.Flush()
		},
	}
}
