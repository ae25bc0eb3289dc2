package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bbiangul/triplegraph"
	"github.com/bbiangul/triplegraph/graph"
	"github.com/bbiangul/triplegraph/report"
	"github.com/bbiangul/triplegraph/store"
)

// openGraph opens an existing graph for reading.
func openGraph(ctx context.Context, opts *globalOptions, output, backend string, flags interface{ Changed(string) bool }) (store.Graph, triplegraph.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, cfg, err
	}
	setString(flags.Changed("output"), &cfg.Output, output)
	setString(flags.Changed("backend"), &cfg.Backend, backend)

	if cfg.Backend == triplegraph.BackendSQLite {
		if cfg.Output == "" {
			return nil, cfg, fmt.Errorf("%w: output is required", triplegraph.ErrInvalidConfig)
		}
		db := filepath.Join(cfg.Output, triplegraph.DBFile)
		if _, err := os.Stat(db); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, cfg, fmt.Errorf("no graph at %s: %w", db, triplegraph.ErrInputNotFound)
			}
			return nil, cfg, err
		}
	}
	g, err := triplegraph.OpenStore(ctx, cfg)
	return g, cfg, err
}

func statsCmd(opts *globalOptions) *cobra.Command {
	var output, backend, xlsx string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize an imported graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			g, _, err := openGraph(ctx, opts, output, backend, cmd.Flags())
			if err != nil {
				return err
			}
			defer g.Close()

			insp, ok := g.(store.Inspector)
			if !ok {
				return fmt.Errorf("backend %T cannot report statistics", g)
			}
			stats, err := insp.Stats(ctx)
			if err != nil {
				return err
			}
			comps, err := graph.Components(ctx, insp)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, comps)

			if xlsx != "" {
				if err := report.WriteXLSX(ctx, insp, comps, xlsx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", xlsx)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory of the import")
	cmd.Flags().StringVar(&backend, "backend", triplegraph.BackendSQLite, "Graph store (sqlite)")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Also write an XLSX report to this path")
	return cmd
}

func printStats(w io.Writer, stats *store.Stats, comps []graph.Component) {
	fmt.Fprintf(w, "vertices:   %d\n", stats.Vertices)
	fmt.Fprintf(w, "edges:      %d\n", stats.Edges)
	labels := make([]string, 0, len(stats.EdgesByLabel))
	for l := range stats.EdgesByLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	for _, l := range labels {
		fmt.Fprintf(w, "  %-22s %d\n", l, stats.EdgesByLabel[l])
	}
	fmt.Fprintf(w, "signatures: %d\n", stats.Signatures)

	var level0, largest int
	for _, c := range comps {
		if c.Level != 0 {
			continue
		}
		level0++
		largest = max(largest, len(c.Vertices))
	}
	fmt.Fprintf(w, "components: %d (largest %d vertices)\n", level0, largest)
}
