package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/api"
	"github.com/hupe1980/hnswfield/engine"
	"github.com/hupe1980/hnswfield/metadata"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find the nearest neighbors of a vector or text",
		Long: `Search a field for the k nearest neighbors of a query.

Filters restrict the candidates by attribute. Each --where takes the form
key<op>value with op one of =, !=, >, >=, <, <=; values are parsed as YAML
scalars, so 2000 is a number and "2000" a string.

Examples:
  hnswfield query -f description_vector --vector 1,0.6,0.2,0,0,0,0,0.2 -k 3
  hnswfield query -f description_vector --text "alien invasion" --where 'year>=2000'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			field, _ := cmd.Flags().GetString("field")
			vecArg, _ := cmd.Flags().GetString("vector")
			text, _ := cmd.Flags().GetString("text")
			k, _ := cmd.Flags().GetInt("k")
			ef, _ := cmd.Flags().GetInt("ef")
			modeArg, _ := cmd.Flags().GetString("mode")
			where, _ := cmd.Flags().GetStringArray("where")

			if (vecArg == "") == (text == "") {
				return fmt.Errorf("exactly one of --vector and --text must be set")
			}
			mode, err := engine.ParseMode(modeArg)
			if err != nil {
				return err
			}
			filters := make([]metadata.Filter, 0, len(where))
			for _, w := range where {
				f, err := parseWhere(w)
				if err != nil {
					return err
				}
				filters = append(filters, f)
			}

			ctx := cmd.Context()
			db, _, err := openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			var sb *hnswfield.SearchBuilder
			if text != "" {
				sb = db.SearchText(field, text)
			} else {
				vec, err := parseVector(vecArg)
				if err != nil {
					return err
				}
				sb = db.Search(field, vec)
			}
			resp, err := sb.KNN(k).EF(ef).Mode(mode).Where(filters...).Run(ctx)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), api.NewSearchResponse(resp))
			}
			out := cmd.OutOrStdout()
			for i, h := range resp.Hits {
				name := ""
				if h.Record != nil {
					name = h.Record.Fields["name"]
				}
				fmt.Fprintf(out, "%2d. id=%-6d distance=%.4f %s\n", i+1, h.ID, h.Distance, name)
			}
			fmt.Fprintf(out, "status=%s path=%s rounds=%d\n", resp.Status, resp.Path, resp.Rounds)
			return nil
		},
	}
	cmd.Flags().StringP("field", "f", "", "Vector field to search")
	cmd.Flags().String("vector", "", "Comma separated query vector")
	cmd.Flags().String("text", "", "Query text to embed")
	cmd.Flags().IntP("k", "k", 10, "Number of neighbors")
	cmd.Flags().Int("ef", 0, "Beam width, 0 uses the field default")
	cmd.Flags().String("mode", "auto", "Search mode: auto, ann or exact")
	cmd.Flags().StringArray("where", nil, "Attribute filter key<op>value, repeatable")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// whereOps is ordered so that two-character operators match first.
var whereOps = []struct {
	token string
	op    metadata.Operator
}{
	{">=", metadata.OpGreaterEqual},
	{"<=", metadata.OpLessEqual},
	{"!=", metadata.OpNotEqual},
	{">", metadata.OpGreaterThan},
	{"<", metadata.OpLessThan},
	{"=", metadata.OpEqual},
}

func parseWhere(s string) (metadata.Filter, error) {
	for _, w := range whereOps {
		key, raw, ok := strings.Cut(s, w.token)
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return metadata.Filter{}, fmt.Errorf("invalid filter %q: empty key", s)
		}
		var scalar any
		if err := yaml.Unmarshal([]byte(strings.TrimSpace(raw)), &scalar); err != nil {
			return metadata.Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
		}
		v, err := metadata.FromAny(scalar)
		if err != nil {
			return metadata.Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
		}
		return metadata.Filter{Key: key, Operator: w.op, Value: v}, nil
	}
	return metadata.Filter{}, fmt.Errorf("invalid filter %q: no operator", s)
}
