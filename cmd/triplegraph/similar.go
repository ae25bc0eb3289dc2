package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bbiangul/triplegraph"
	"github.com/bbiangul/triplegraph/graph"
	"github.com/bbiangul/triplegraph/store"
)

func similarCmd(opts *globalOptions) *cobra.Command {
	var (
		output, backend string
		k               int
	)

	cmd := &cobra.Command{
		Use:   "similar <uri>",
		Short: "List the topics whose types most resemble a topic's",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			g, cfg, err := openGraph(ctx, opts, output, backend, cmd.Flags())
			if err != nil {
				return err
			}
			defer g.Close()

			si, ok := g.(store.SignatureIndex)
			if !ok {
				return fmt.Errorf("backend %T has no signature index", g)
			}
			ids, err := g.FindVertices(ctx, graph.PropURI, args[0])
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no vertex for %s: %w", args[0], store.ErrNotFound)
			}
			raw, _, err := g.VertexProperty(ctx, ids[0], cfg.Vocabulary.TypePredicate)
			if err != nil {
				return err
			}
			types, _ := raw.([]string)
			sig := graph.Signature(types, si.SignatureDim())
			if sig == nil {
				return fmt.Errorf("%s has no types", args[0])
			}

			neighbors, err := si.NearestVertices(ctx, sig, k+1)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			shown := 0
			for _, n := range neighbors {
				if n.Vertex == ids[0] || shown == k {
					continue
				}
				uri, _, err := g.VertexProperty(ctx, n.Vertex, graph.PropURI)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", strconv.FormatFloat(n.Distance, 'f', 4, 64), uri)
				shown++
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory of the import")
	cmd.Flags().StringVar(&backend, "backend", triplegraph.BackendSQLite, "Graph store (sqlite)")
	cmd.Flags().IntVarP(&k, "limit", "k", 10, "Number of topics to list")
	return cmd
}
