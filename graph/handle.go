package graph

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bbiangul/triplegraph/entity"
	"github.com/bbiangul/triplegraph/store"
)

// edgeStripes is the number of locks guarding edge read-modify-write.
const edgeStripes = 256

// Observer receives build events. metrics.Metrics implements it.
type Observer interface {
	VertexCreated()
	EdgeCreated(label string)
	EdgeUpdated(label string)
}

// Counters summarizes what a handle has written.
type Counters struct {
	Vertices     int64 `json:"vertices"`
	EdgesCreated int64 `json:"edges_created"`
	EdgesUpdated int64 `json:"edges_updated"`
}

// Handle is one phase's view of the graph store. Vertex creation and
// index bootstrap run under a single lock; edge updates lock only the
// stripe of their vertex pair.
type Handle struct {
	g     store.Graph
	vocab Vocabulary
	order entity.Order
	obs   Observer

	mu      sync.Mutex
	stripes [edgeStripes]sync.Mutex

	vertices     atomic.Int64
	edgesCreated atomic.Int64
	edgesUpdated atomic.Int64
}

// NewHandle wraps g. A nil observer is allowed.
func NewHandle(g store.Graph, vocab Vocabulary, order entity.Order, obs Observer) *Handle {
	return &Handle{g: g, vocab: vocab, order: order, obs: obs}
}

// Graph returns the wrapped store.
func (h *Handle) Graph() store.Graph { return h.g }

func (h *Handle) Counters() Counters {
	return Counters{
		Vertices:     h.vertices.Load(),
		EdgesCreated: h.edgesCreated.Load(),
		EdgesUpdated: h.edgesUpdated.Load(),
	}
}

// Commit flushes the store's pending writes.
func (h *Handle) Commit(ctx context.Context) error {
	return h.g.Commit(ctx)
}

// Close commits and releases the store.
func (h *Handle) Close() error {
	return h.g.Close()
}

// EnsureVertexIndex declares URI as the vertex lookup key and commits.
func (h *Handle) EnsureVertexIndex(ctx context.Context) error {
	return h.ensureIndex(ctx, store.KindVertex, PropURI)
}

// EnsureEdgeIndex declares the pair key as the edge lookup key and commits.
func (h *Handle) EnsureEdgeIndex(ctx context.Context) error {
	return h.ensureIndex(ctx, store.KindEdge, PropConnected)
}

func (h *Handle) ensureIndex(ctx context.Context, kind store.ElementKind, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.g.EnsureKeyIndex(ctx, kind, key); err != nil {
		return fmt.Errorf("bootstrapping %s index %q: %w", kind, key, err)
	}
	if err := h.g.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s index %q: %w", kind, key, err)
	}
	slog.Debug("graph: key index ready", "kind", kind.String(), "key", key)
	return nil
}

// Lookup resolves a URI to its vertex.
func (h *Handle) Lookup(ctx context.Context, uri string) (store.VertexID, bool, error) {
	ids, err := h.g.FindVertices(ctx, PropURI, uri)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// endpoint is a resolved vertex with its URI.
type endpoint struct {
	uri string
	v   store.VertexID
}

// connect finds or creates the label edge between a and b and adds the
// predicates' weights to it. A non-empty mediator is recorded as
// connected-by.
func (h *Handle) connect(ctx context.Context, a, b endpoint, label, mediator string, predicates ...string) error {
	key := PairKey(a.uri, b.uri)
	mu := h.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	edges, err := h.g.FindEdges(ctx, PropConnected, key)
	if err != nil {
		return err
	}
	var (
		id    store.EdgeID
		found bool
	)
	for _, e := range edges {
		if e.Label == label {
			id, found = e.ID, true
			break
		}
	}

	if found {
		h.edgesUpdated.Add(1)
		if h.obs != nil {
			h.obs.EdgeUpdated(label)
		}
	} else {
		id, err = h.g.CreateEdge(ctx, a.v, b.v, label)
		if err != nil {
			return err
		}
		if err := h.g.SetEdgeProperty(ctx, id, PropConnected, key); err != nil {
			return err
		}
		h.edgesCreated.Add(1)
		if h.obs != nil {
			h.obs.EdgeCreated(label)
		}
	}

	if mediator != "" {
		if err := h.g.SetEdgeProperty(ctx, id, PropConnectedBy, mediator); err != nil {
			return err
		}
	}
	for _, p := range predicates {
		if err := UpdateEdgeWeights(ctx, h.g, id, p); err != nil {
			return fmt.Errorf("weighting edge %d with %s: %w", id, p, err)
		}
	}
	return nil
}

func (h *Handle) stripe(key string) *sync.Mutex {
	f := fnv.New32a()
	f.Write([]byte(key))
	return &h.stripes[f.Sum32()%edgeStripes]
}
