package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbiangul/triplegraph"
)

func importCmd(opts *globalOptions) *cobra.Command {
	var (
		input, output, backend      string
		include, metricsAddr, order string
		graphPhase, relationPhase   bool
		workers, relWorkers, queue  int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Build the graph from an RDF file or directory",
		Long: `Import runs the vertex phase (-g) and then the relation phase (-r).
Without either flag both phases run. The relation phase only links
vertices that an earlier vertex phase committed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			setString(flags.Changed("input"), &cfg.Input, input)
			setString(flags.Changed("output"), &cfg.Output, output)
			setString(flags.Changed("backend"), &cfg.Backend, backend)
			setString(flags.Changed("include"), &cfg.Include, include)
			setString(flags.Changed("metrics-addr"), &cfg.MetricsAddr, metricsAddr)
			setString(flags.Changed("predicate-order"), &cfg.PredicateOrder, order)
			setInt(flags.Changed("workers"), &cfg.Workers, workers)
			setInt(flags.Changed("relation-workers"), &cfg.RelationWorkers, relWorkers)
			setInt(flags.Changed("queue"), &cfg.QueueCapacity, queue)
			if graphPhase || relationPhase {
				cfg.GenerateGraph, cfg.GenerateRelations = graphPhase, relationPhase
			}

			im, err := triplegraph.New(cfg)
			if err != nil {
				return err
			}
			began := time.Now()
			results, err := im.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%-9s %8d entities %8d vertices %8d edges created %8d edges updated  %s\n",
					r.Phase, r.Consumed, r.Vertices, r.EdgesCreated, r.EdgesUpdated, r.Elapsed.Round(time.Millisecond))
			}
			fmt.Fprintf(out, "Import finished in %s\n", time.Since(began).Round(time.Millisecond))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "Input file or directory")
	f.StringVarP(&output, "output", "o", "", "Output directory")
	f.BoolVarP(&graphPhase, "generate-graph", "g", false, "Run the vertex phase")
	f.BoolVarP(&relationPhase, "generate-relations", "r", false, "Run the relation phase")
	f.StringVar(&backend, "backend", triplegraph.BackendSQLite, "Graph store (sqlite, neo4j, memory)")
	f.IntVar(&workers, "workers", 0, "Vertex phase workers (default: number of CPUs)")
	f.IntVar(&relWorkers, "relation-workers", 1, "Relation phase workers")
	f.IntVar(&queue, "queue", 10, "Entity queue capacity")
	f.StringVar(&include, "include", "", "Glob selecting input files in a directory, e.g. '*.nt.gz'")
	f.StringVar(&order, "predicate-order", "lexical", "Predicate processing order (lexical, arrival)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func setString(changed bool, dst *string, v string) {
	if changed {
		*dst = v
	}
}

func setInt(changed bool, dst *int, v int) {
	if changed {
		*dst = v
	}
}
