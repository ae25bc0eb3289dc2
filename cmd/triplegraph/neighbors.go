package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bbiangul/triplegraph"
	"github.com/bbiangul/triplegraph/graph"
	"github.com/bbiangul/triplegraph/store"
)

func neighborsCmd(opts *globalOptions) *cobra.Command {
	var (
		output, backend string
		depth           int
	)

	cmd := &cobra.Command{
		Use:   "neighbors <uri>...",
		Short: "List the topics within a number of hops of the given topics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			g, _, err := openGraph(ctx, opts, output, backend, cmd.Flags())
			if err != nil {
				return err
			}
			defer g.Close()

			insp, ok := g.(store.Inspector)
			if !ok {
				return fmt.Errorf("backend %T cannot traverse the graph", g)
			}
			var seeds []store.VertexID
			for _, uri := range args {
				ids, err := g.FindVertices(ctx, graph.PropURI, uri)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					return fmt.Errorf("no vertex for %s: %w", uri, store.ErrNotFound)
				}
				seeds = append(seeds, ids...)
			}

			hops, err := graph.Neighborhood(ctx, insp, seeds, depth)
			if err != nil {
				return err
			}
			uris, err := insp.VertexStrings(ctx, graph.PropURI)
			if err != nil {
				return err
			}
			for _, h := range hops {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", h.Depth, uris[h.Vertex])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory of the import")
	cmd.Flags().StringVar(&backend, "backend", triplegraph.BackendSQLite, "Graph store (sqlite)")
	cmd.Flags().IntVarP(&depth, "depth", "d", 1, "Maximum number of hops")
	return cmd
}
