package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemGraph is a non-transactional in-memory Graph. Commit is a no-op.
type MemGraph struct {
	mu sync.RWMutex

	nextVertex VertexID
	nextEdge   EdgeID
	vertices   map[VertexID]map[string]any
	edges      map[EdgeID]*memEdge

	// indexes[kind][key][value] -> element ids
	indexes map[ElementKind]map[string]map[string][]int64
	closed  bool
}

type memEdge struct {
	Edge
	props map[string]any
}

var (
	_ Graph     = (*MemGraph)(nil)
	_ Inspector = (*MemGraph)(nil)
)

// NewMemGraph returns an empty in-memory graph.
func NewMemGraph() *MemGraph {
	return &MemGraph{
		vertices: make(map[VertexID]map[string]any),
		edges:    make(map[EdgeID]*memEdge),
		indexes: map[ElementKind]map[string]map[string][]int64{
			KindVertex: {},
			KindEdge:   {},
		},
	}
}

func (g *MemGraph) CreateVertex(ctx context.Context) (VertexID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	g.nextVertex++
	g.vertices[g.nextVertex] = make(map[string]any)
	return g.nextVertex, nil
}

func (g *MemGraph) VertexProperty(ctx context.Context, v VertexID, key string) (any, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, false, ErrClosed
	}
	props, ok := g.vertices[v]
	if !ok {
		return nil, false, nil
	}
	val, ok := props[key]
	return cloneValue(val), ok, nil
}

func (g *MemGraph) SetVertexProperty(ctx context.Context, v VertexID, key string, value any) error {
	n, err := normalizeValue(value)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	props, ok := g.vertices[v]
	if !ok {
		return fmt.Errorf("%w: vertex %d", ErrNotFound, v)
	}
	g.reindex(KindVertex, key, int64(v), props[key], n)
	props[key] = n
	return nil
}

func (g *MemGraph) FindVertices(ctx context.Context, key, value string) ([]VertexID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrClosed
	}
	var ids []VertexID
	if idx, ok := g.indexes[KindVertex][key]; ok {
		for _, id := range idx[value] {
			ids = append(ids, VertexID(id))
		}
		return ids, nil
	}
	for id, props := range g.vertices {
		if s, ok := props[key].(string); ok && s == value {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (g *MemGraph) CreateEdge(ctx context.Context, out, in VertexID, label string) (EdgeID, error) {
	if label == "" {
		return 0, errors.New("store: edge label is empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	if _, ok := g.vertices[out]; !ok {
		return 0, fmt.Errorf("%w: vertex %d", ErrNotFound, out)
	}
	if _, ok := g.vertices[in]; !ok {
		return 0, fmt.Errorf("%w: vertex %d", ErrNotFound, in)
	}
	g.nextEdge++
	g.edges[g.nextEdge] = &memEdge{
		Edge:  Edge{ID: g.nextEdge, Label: label, Out: out, In: in},
		props: make(map[string]any),
	}
	return g.nextEdge, nil
}

func (g *MemGraph) EdgeProperty(ctx context.Context, e EdgeID, key string) (any, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, false, ErrClosed
	}
	edge, ok := g.edges[e]
	if !ok {
		return nil, false, nil
	}
	val, ok := edge.props[key]
	return cloneValue(val), ok, nil
}

func (g *MemGraph) SetEdgeProperty(ctx context.Context, e EdgeID, key string, value any) error {
	n, err := normalizeValue(value)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	edge, ok := g.edges[e]
	if !ok {
		return fmt.Errorf("%w: edge %d", ErrNotFound, e)
	}
	g.reindex(KindEdge, key, int64(e), edge.props[key], n)
	edge.props[key] = n
	return nil
}

func (g *MemGraph) FindEdges(ctx context.Context, key, value string) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrClosed
	}
	var out []Edge
	if idx, ok := g.indexes[KindEdge][key]; ok {
		for _, id := range idx[value] {
			out = append(out, g.edges[EdgeID(id)].Edge)
		}
		return out, nil
	}
	for _, e := range g.edges {
		if s, ok := e.props[key].(string); ok && s == value {
			out = append(out, e.Edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// EnsureKeyIndex builds a value index over key, back-filling existing
// elements.
func (g *MemGraph) EnsureKeyIndex(ctx context.Context, kind ElementKind, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	byKey, ok := g.indexes[kind]
	if !ok {
		return fmt.Errorf("store: unknown element kind %d", kind)
	}
	if _, ok := byKey[key]; ok {
		return nil
	}
	idx := make(map[string][]int64)
	switch kind {
	case KindVertex:
		for id, props := range g.vertices {
			if s, ok := props[key].(string); ok {
				idx[s] = append(idx[s], int64(id))
			}
		}
	case KindEdge:
		for id, e := range g.edges {
			if s, ok := e.props[key].(string); ok {
				idx[s] = append(idx[s], int64(id))
			}
		}
	}
	for _, ids := range idx {
		slices.Sort(ids)
	}
	byKey[key] = idx
	return nil
}

func (g *MemGraph) Commit(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the graph closed. The data is kept so a closed graph can
// be handed to Reopen.
func (g *MemGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Reopen makes a closed graph usable again. Phases of one import each
// close their handle, so the memory backend reopens between phases.
func (g *MemGraph) Reopen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = false
}

// reindex moves id from prev to next in the key's index, if one exists.
// Caller holds g.mu.
func (g *MemGraph) reindex(kind ElementKind, key string, id int64, prev, next any) {
	idx, ok := g.indexes[kind][key]
	if !ok {
		return
	}
	if s, ok := prev.(string); ok {
		ids := idx[s]
		if i := slices.Index(ids, id); i >= 0 {
			idx[s] = slices.Delete(ids, i, i+1)
		}
		if len(idx[s]) == 0 {
			delete(idx, s)
		}
	}
	if s, ok := next.(string); ok {
		ids := idx[s]
		pos, found := slices.BinarySearch(ids, id)
		if !found {
			idx[s] = slices.Insert(ids, pos, id)
		}
	}
}

// --- Inspector ---

func (g *MemGraph) Stats(ctx context.Context) (*Stats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := &Stats{
		Vertices:     int64(len(g.vertices)),
		Edges:        int64(len(g.edges)),
		EdgesByLabel: make(map[string]int64),
	}
	for _, e := range g.edges {
		st.EdgesByLabel[e.Label]++
	}
	for kind, byKey := range g.indexes {
		for key := range byKey {
			st.KeyIndexes = append(st.KeyIndexes, kind.String()+":"+key)
		}
	}
	slices.Sort(st.KeyIndexes)
	return st, nil
}

func (g *MemGraph) AllEdges(ctx context.Context) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e.Edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *MemGraph) VertexStrings(ctx context.Context, key string) (map[VertexID]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[VertexID]string)
	for id, props := range g.vertices {
		if s, ok := props[key].(string); ok {
			out[id] = s
		}
	}
	return out, nil
}

func (g *MemGraph) EdgeProperties(ctx context.Context, e EdgeID) (map[string]any, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edge, ok := g.edges[e]
	if !ok {
		return nil, fmt.Errorf("%w: edge %d", ErrNotFound, e)
	}
	out := make(map[string]any, len(edge.props))
	for k, v := range edge.props {
		out[k] = cloneValue(v)
	}
	return out, nil
}

func cloneValue(v any) any {
	if s, ok := v.([]string); ok {
		return slices.Clone(s)
	}
	return v
}
