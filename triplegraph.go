// Package triplegraph imports a subject-sorted RDF dump into a property
// graph in two phases: one vertex per topic subject, then edges inferred
// from the statements that connect them.
package triplegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bbiangul/triplegraph/entity"
	"github.com/bbiangul/triplegraph/graph"
	"github.com/bbiangul/triplegraph/metrics"
	"github.com/bbiangul/triplegraph/parser"
	"github.com/bbiangul/triplegraph/pipeline"
	"github.com/bbiangul/triplegraph/store"
	"github.com/bbiangul/triplegraph/store/neo4jstore"
)

// Phase names, in execution order.
const (
	PhaseVertices  = "vertices"
	PhaseRelations = "relations"
)

// PhaseResult reports one completed phase.
type PhaseResult struct {
	RunID    string        `json:"run_id"`
	Phase    string        `json:"phase"`
	Elapsed  time.Duration `json:"elapsed"`
	Produced int64         `json:"produced"`
	Consumed int64         `json:"consumed"`
	Commits  int64         `json:"commits"`
	graph.Counters
}

// Importer runs the configured phases over the input.
type Importer struct {
	cfg      Config
	order    entity.Order
	registry *parser.Registry
	metrics  *metrics.Metrics

	// mem backs the memory backend across phases.
	mem *store.MemGraph
}

// New validates cfg and returns an Importer.
func New(cfg Config) (*Importer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	order, err := entity.ParseOrder(cfg.PredicateOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	im := &Importer{
		cfg:      cfg,
		order:    order,
		registry: parser.NewRegistry(),
		metrics:  metrics.New(),
	}
	if cfg.Backend == BackendMemory {
		im.mem = store.NewMemGraph()
	}
	return im, nil
}

// Metrics returns the importer's metrics.
func (im *Importer) Metrics() *metrics.Metrics { return im.metrics }

// Memory returns the graph of the memory backend, nil for other backends.
func (im *Importer) Memory() *store.MemGraph { return im.mem }

// OpenStore opens the graph store selected by cfg.Backend. The memory
// backend returns a fresh, empty graph.
func OpenStore(ctx context.Context, cfg Config) (store.Graph, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		s, err := store.New(filepath.Join(cfg.Output, DBFile), cfg.SignatureDim)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendNeo4j:
		s, err := neo4jstore.Open(ctx, neo4jConfig(cfg))
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return store.NewMemGraph(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// neo4jConfig fills in the relationship types the relation phase writes,
// so their key indexes exist before the first edge.
func neo4jConfig(cfg Config) neo4jstore.Config {
	n := cfg.Neo4j
	if len(n.EdgeLabels) == 0 {
		n.EdgeLabels = []string{graph.LabelDirect, graph.LabelMediated}
	}
	return n
}

// Run executes the vertex phase and then the relation phase, each only
// when enabled. A phase starts after the previous one has committed and
// closed its store. The first failure ends the run.
func (im *Importer) Run(ctx context.Context) ([]PhaseResult, error) {
	files, err := im.prepare()
	if err != nil {
		return nil, err
	}
	if im.cfg.MetricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := im.metrics.Serve(mctx, im.cfg.MetricsAddr); err != nil {
				slog.Warn("triplegraph: metrics server stopped", "error", err)
			}
		}()
	}

	runID := uuid.NewString()
	slog.Info("triplegraph: import started", "run", runID, "input", im.cfg.Input,
		"files", len(files), "backend", im.cfg.Backend)

	var results []PhaseResult
	for _, phase := range []struct {
		name    string
		enabled bool
	}{
		{PhaseVertices, im.cfg.GenerateGraph},
		{PhaseRelations, im.cfg.GenerateRelations},
	} {
		if !phase.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := im.runPhase(ctx, runID, phase.name, files)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// prepare checks the input and output paths and resolves the input files.
func (im *Importer) prepare() ([]string, error) {
	if _, err := os.Stat(im.cfg.Input); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, im.cfg.Input)
		}
		return nil, fmt.Errorf("checking input: %w", err)
	}
	if im.cfg.Output != "" {
		info, err := os.Stat(im.cfg.Output)
		switch {
		case err == nil && !info.IsDir():
			return nil, fmt.Errorf("%w: %s", ErrOutputIsFile, im.cfg.Output)
		case errors.Is(err, os.ErrNotExist):
			if err := os.MkdirAll(im.cfg.Output, 0o755); err != nil {
				return nil, fmt.Errorf("creating output dir: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("checking output: %w", err)
		}
	}
	files, err := pipeline.ResolveInputs(im.cfg.Input, im.cfg.Include)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return files, nil
}

func (im *Importer) open(ctx context.Context) (store.Graph, error) {
	if im.mem != nil {
		im.mem.Reopen()
		return im.mem, nil
	}
	return OpenStore(ctx, im.cfg)
}

func (im *Importer) runPhase(ctx context.Context, runID, name string, files []string) (PhaseResult, error) {
	began := time.Now()
	fail := func(err error) (PhaseResult, error) {
		return PhaseResult{}, &PhaseError{Phase: name, Elapsed: time.Since(began), Err: err}
	}

	g, err := im.open(ctx)
	if err != nil {
		return fail(fmt.Errorf("opening store: %w", err))
	}
	vocab := im.cfg.Vocabulary
	h := graph.NewHandle(g, vocab, im.order, im.metrics)

	phase := &pipeline.Phase{
		Name:          name,
		QueueCapacity: im.cfg.QueueCapacity,
		Commit:        h.Commit,
		Observer:      im.metrics,
	}
	var bootstrap error
	switch name {
	case PhaseVertices:
		bootstrap = h.EnsureVertexIndex(ctx)
		phase.Workers = im.cfg.Workers
		phase.CommitEvery = im.cfg.VertexCommitEvery
		phase.Worker = graph.NewVertexBuilder(h)
	case PhaseRelations:
		bootstrap = h.EnsureEdgeIndex(ctx)
		phase.Workers = im.cfg.RelationWorkers
		phase.CommitEvery = im.cfg.RelationCommitEvery
		phase.Worker = graph.NewRelationBuilder(h)
	}
	if bootstrap != nil {
		h.Close()
		return fail(fmt.Errorf("bootstrapping index: %w", bootstrap))
	}

	prod := &pipeline.Producer{
		Phase:    name,
		Registry: im.registry,
		Accept:   func(e *entity.Entity) bool { return vocab.IsIdentifier(e.URI) },
		Observer: im.metrics,
	}

	slog.Info("triplegraph: phase started", "phase", name, "workers", phase.Workers)
	res, runErr := phase.Run(ctx, prod, files)
	elapsed := time.Since(began)
	result := PhaseResult{
		RunID:    runID,
		Phase:    name,
		Elapsed:  elapsed,
		Produced: res.Produced,
		Consumed: res.Consumed,
		Commits:  res.Commits,
		Counters: h.Counters(),
	}
	im.record(ctx, g, result, runErr)

	closeErr := h.Close()
	im.metrics.PhaseDone(name, elapsed)
	if err := errors.Join(runErr, closeErr); err != nil {
		return fail(err)
	}
	slog.Info("triplegraph: phase finished", "phase", name,
		"elapsed", elapsed.Round(time.Millisecond), "entities", result.Consumed,
		"vertices", result.Vertices, "edges_created", result.EdgesCreated,
		"edges_updated", result.EdgesUpdated)
	return result, nil
}

// record stores the phase outcome when the store keeps run bookkeeping.
func (im *Importer) record(ctx context.Context, g store.Graph, res PhaseResult, runErr error) {
	rr, ok := g.(store.RunRecorder)
	if !ok {
		return
	}
	run := store.Run{
		ID:           res.RunID,
		Phase:        res.Phase,
		Status:       "completed",
		StartedAt:    time.Now().Add(-res.Elapsed),
		Elapsed:      res.Elapsed,
		Entities:     res.Consumed,
		Vertices:     res.Vertices,
		EdgesCreated: res.EdgesCreated,
		EdgesUpdated: res.EdgesUpdated,
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	}
	if err := rr.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("triplegraph: recording run failed", "phase", res.Phase, "error", err)
	}
}
