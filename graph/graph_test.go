package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbiangul/triplegraph/entity"
	"github.com/bbiangul/triplegraph/store"
)

const ns = "http://rdf.basekb.com/ns/"

var vocab = DefaultVocabulary()

// ent builds an entity from predicate/value pairs.
func ent(uri string, pv ...string) *entity.Entity {
	e := entity.New(uri)
	for i := 0; i+1 < len(pv); i += 2 {
		e.Add(pv[i], pv[i+1])
	}
	return e
}

func topic(uri string, pv ...string) *entity.Entity {
	return ent(uri, append([]string{vocab.TypePredicate, vocab.TopicType}, pv...)...)
}

func newHandle(t *testing.T) (*Handle, *store.MemGraph) {
	t.Helper()
	g := store.NewMemGraph()
	h := NewHandle(g, vocab, entity.OrderLexical, nil)
	require.NoError(t, h.EnsureVertexIndex(context.Background()))
	require.NoError(t, h.EnsureEdgeIndex(context.Background()))
	return h, g
}

// buildVertices runs the vertex phase over entities.
func buildVertices(t *testing.T, h *Handle, ents ...*entity.Entity) {
	t.Helper()
	b := NewVertexBuilder(h)
	for _, e := range ents {
		require.NoError(t, b.Process(context.Background(), e))
	}
}

func vertexProp(t *testing.T, h *Handle, uri, key string) any {
	t.Helper()
	ctx := context.Background()
	v, ok, err := h.Lookup(ctx, uri)
	require.NoError(t, err)
	require.True(t, ok, "no vertex for %s", uri)
	val, ok, err := h.Graph().VertexProperty(ctx, v, key)
	require.NoError(t, err)
	require.True(t, ok, "vertex %s has no %s", uri, key)
	return val
}

func edgeProps(t *testing.T, g *store.MemGraph, a, b, label string) (store.Edge, map[string]any) {
	t.Helper()
	ctx := context.Background()
	edges, err := g.FindEdges(ctx, PropConnected, PairKey(a, b))
	require.NoError(t, err)
	var matched []store.Edge
	for _, e := range edges {
		if e.Label == label {
			matched = append(matched, e)
		}
	}
	require.Len(t, matched, 1, "edges %s %s-%s", label, a, b)
	props, err := g.EdgeProperties(ctx, matched[0].ID)
	require.NoError(t, err)
	return matched[0], props
}

// ---------------------------------------------------------------------------
// Vocabulary
// ---------------------------------------------------------------------------

func TestVocabulary(t *testing.T) {
	assert.True(t, vocab.IsIdentifier(ns+"m.0abc"))
	assert.False(t, vocab.IsIdentifier(ns+"film.film"))
	assert.False(t, vocab.IsIdentifier("literal"))

	assert.True(t, vocab.IsTopic(topic(ns+"m.1")))
	assert.False(t, vocab.IsTopic(ent(ns+"m.1", vocab.TypePredicate, ns+"film.film")))

	assert.Equal(t, "film.film.directed_by", LocalName(ns+"film.film.directed_by"))
	assert.Equal(t, "plain", LocalName("plain"))

	assert.Equal(t, "a|b", PairKey("a", "b"))
	assert.Equal(t, "a|b", PairKey("b", "a"))

	assert.NoError(t, vocab.Validate())
	assert.Error(t, Vocabulary{}.Validate())
}

// ---------------------------------------------------------------------------
// Vertices
// ---------------------------------------------------------------------------

func TestVertexBuilderTopicGating(t *testing.T) {
	h, g := newHandle(t)
	buildVertices(t, h,
		ent(ns+"m.nontopic", vocab.TypePredicate, ns+"film.performance"),
		topic(ns+"m.topic"),
	)

	st, err := g.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Vertices)
	assert.EqualValues(t, 1, h.Counters().Vertices)
}

func TestVertexBuilderProperties(t *testing.T) {
	h, _ := newHandle(t)
	uri := ns + "m.film"
	buildVertices(t, h, topic(uri,
		vocab.TypePredicate, ns+"film.film",
		vocab.NamePredicate, "Blade Runner",
		vocab.NamePredicate, "Second Name",
		ns+"common.topic.image", ns+"m.img1",
		ns+"common.topic.image", ns+"m.img2",
	))

	assert.Equal(t, uri, vertexProp(t, h, uri, PropURI))
	assert.Equal(t, []string{vocab.TopicType, ns + "film.film"}, vertexProp(t, h, uri, vocab.TypePredicate))
	assert.Equal(t, "Blade Runner", vertexProp(t, h, uri, PropName))
	assert.Equal(t, "blade runner", vertexProp(t, h, uri, PropNameLower))
	assert.Equal(t, ns+"m.img1", vertexProp(t, h, uri, PropImage))
}

func TestVertexBuilderDefaultImage(t *testing.T) {
	h, g := newHandle(t)
	uri := ns + "m.noimg"
	buildVertices(t, h, topic(uri))

	assert.Equal(t, NoImage, vertexProp(t, h, uri, PropImage))

	v, _, _ := h.Lookup(context.Background(), uri)
	_, ok, err := g.VertexProperty(context.Background(), v, PropName)
	require.NoError(t, err)
	assert.False(t, ok, "name must be absent without a name predicate")
}

func TestVertexBuilderImageFollowsPredicateOrder(t *testing.T) {
	e := topic(ns+"m.x",
		ns+"z.image", "from-z",
		ns+"a.image", "from-a",
	)

	for _, tt := range []struct {
		order entity.Order
		want  string
	}{
		{entity.OrderLexical, "from-a"},
		{entity.OrderArrival, "from-z"},
	} {
		t.Run(string(tt.order), func(t *testing.T) {
			h := NewHandle(store.NewMemGraph(), vocab, tt.order, nil)
			buildVertices(t, h, e)
			assert.Equal(t, tt.want, vertexProp(t, h, e.URI, PropImage))
		})
	}
}

func TestVertexBuilderSkipsExistingTopic(t *testing.T) {
	h, g := newHandle(t)
	buildVertices(t, h, topic(ns+"m.dup"), topic(ns+"m.dup"))

	ids, err := g.FindVertices(context.Background(), PropURI, ns+"m.dup")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

type countingObserver struct {
	mu       sync.Mutex
	vertices int
	created  map[string]int
	updated  map[string]int
}

func (o *countingObserver) VertexCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.vertices++
}

func (o *countingObserver) EdgeCreated(label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created[label]++
}

func (o *countingObserver) EdgeUpdated(label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updated[label]++
}

// ---------------------------------------------------------------------------
// Relations
// ---------------------------------------------------------------------------

func TestDirectRelation(t *testing.T) {
	h, g := newHandle(t)
	a, b := ns+"m.a", ns+"m.b"
	pred := ns + "film.film.directed_by"
	ea := topic(a, pred, b)
	buildVertices(t, h, ea, topic(b))

	require.NoError(t, NewRelationBuilder(h).Process(context.Background(), ea))

	e, props := edgeProps(t, g, a, b, LabelDirect)
	va, _, _ := h.Lookup(context.Background(), a)
	vb, _, _ := h.Lookup(context.Background(), b)
	assert.Equal(t, va, e.Out)
	assert.Equal(t, vb, e.In)
	assert.Equal(t, map[string]any{
		PropConnected:           PairKey(a, b),
		"film":                  int64(1),
		"film.film":             int64(1),
		"film.film.directed_by": int64(1),
	}, props)
}

func TestDirectRelationIgnoresMultiValued(t *testing.T) {
	h, g := newHandle(t)
	a, b, c := ns+"m.a", ns+"m.b", ns+"m.c"
	ea := topic(a,
		ns+"film.film.starring", b,
		ns+"film.film.starring", c,
	)
	buildVertices(t, h, ea, topic(b), topic(c))

	require.NoError(t, NewRelationBuilder(h).Process(context.Background(), ea))

	st, _ := g.Stats(context.Background())
	assert.Zero(t, st.Edges)
}

func TestDirectRelationRequiresVertices(t *testing.T) {
	h, g := newHandle(t)
	a := ns + "m.a"
	ea := topic(a,
		ns+"film.film.sequel", ns+"m.missing",
		ns+"film.film.title", "not an identifier",
	)
	buildVertices(t, h, ea)

	require.NoError(t, NewRelationBuilder(h).Process(context.Background(), ea))
	// A topic with no vertex infers nothing either.
	require.NoError(t, NewRelationBuilder(h).Process(context.Background(), topic(ns+"m.ghost", ns+"x.y", a)))

	st, _ := g.Stats(context.Background())
	assert.Zero(t, st.Edges)
}

func TestEdgeIdentityIsIdempotent(t *testing.T) {
	h, g := newHandle(t)
	a, b := ns+"m.a", ns+"m.b"
	ea := topic(a, ns+"people.person.spouse", b)
	eb := topic(b, ns+"people.person.spouse", a)
	buildVertices(t, h, ea, eb)

	rb := NewRelationBuilder(h)
	ctx := context.Background()
	require.NoError(t, rb.Process(ctx, ea))
	require.NoError(t, rb.Process(ctx, eb))
	require.NoError(t, rb.Process(ctx, ea))

	_, props := edgeProps(t, g, a, b, LabelDirect)
	assert.Equal(t, int64(3), props["people"])
	assert.Equal(t, int64(3), props["people.person.spouse"])
	assert.Equal(t, Counters{Vertices: 2, EdgesCreated: 1, EdgesUpdated: 2}, h.Counters())
}

func TestSelfLoop(t *testing.T) {
	h, g := newHandle(t)
	a := ns + "m.a"
	ea := topic(a, ns+"base.self.ref", a)
	buildVertices(t, h, ea)

	require.NoError(t, NewRelationBuilder(h).Process(context.Background(), ea))

	e, _ := edgeProps(t, g, a, a, LabelDirect)
	assert.Equal(t, e.Out, e.In)
}

func TestMediatedRelations(t *testing.T) {
	obs := &countingObserver{created: map[string]int{}, updated: map[string]int{}}
	g := store.NewMemGraph()
	h := NewHandle(g, vocab, entity.OrderLexical, obs)

	t1, t2, t3 := ns+"m.t1", ns+"m.t2", ns+"m.t3"
	buildVertices(t, h, topic(t1), topic(t2), topic(t3))

	mediator := ent(ns+"m.cvt",
		vocab.TypePredicate, ns+"film.performance",
		ns+"c.z", t3,
		ns+"a.x", t1,
		ns+"b.y", t2,
		ns+"d.multi", t1,
		ns+"d.multi", t2,
	)
	require.NoError(t, NewRelationBuilder(h).Process(context.Background(), mediator))

	st, _ := g.Stats(context.Background())
	assert.EqualValues(t, 3, st.EdgesByLabel[LabelMediated])

	// Lexical order visits a.x, b.y, c.z: t2 pairs with t1, then t3 with t1 and t2.
	e12, p12 := edgeProps(t, g, t1, t2, LabelMediated)
	v1, _, _ := h.Lookup(context.Background(), t1)
	v2, _, _ := h.Lookup(context.Background(), t2)
	assert.Equal(t, v2, e12.Out)
	assert.Equal(t, v1, e12.In)
	assert.Equal(t, map[string]any{
		PropConnected:   PairKey(t1, t2),
		PropConnectedBy: mediator.URI,
		"a":             int64(1),
		"a.x":           int64(1),
		"b":             int64(1),
		"b.y":           int64(1),
	}, p12)

	_, p13 := edgeProps(t, g, t1, t3, LabelMediated)
	assert.Equal(t, int64(1), p13["c.z"])
	assert.Equal(t, int64(1), p13["a.x"])
	_, p23 := edgeProps(t, g, t2, t3, LabelMediated)
	assert.Equal(t, int64(1), p23["c.z"])
	assert.Equal(t, int64(1), p23["b.y"])
	assert.NotContains(t, p23, "d")

	assert.Equal(t, 3, obs.vertices)
	assert.Equal(t, 3, obs.created[LabelMediated])
}

func TestMediatedConnectedByIsLastMediator(t *testing.T) {
	h, g := newHandle(t)
	t1, t2 := ns+"m.t1", ns+"m.t2"
	buildVertices(t, h, topic(t1), topic(t2))

	rb := NewRelationBuilder(h)
	ctx := context.Background()
	require.NoError(t, rb.Process(ctx, ent(ns+"m.cvt1", ns+"a.x", t1, ns+"b.y", t2)))
	require.NoError(t, rb.Process(ctx, ent(ns+"m.cvt2", ns+"a.x", t1, ns+"b.y", t2)))

	_, props := edgeProps(t, g, t1, t2, LabelMediated)
	assert.Equal(t, ns+"m.cvt2", props[PropConnectedBy])
	assert.Equal(t, int64(2), props["a.x"])
}

func TestDirectAndMediatedAreDistinct(t *testing.T) {
	h, g := newHandle(t)
	t1, t2 := ns+"m.t1", ns+"m.t2"
	e1 := topic(t1, ns+"a.b", t2)
	buildVertices(t, h, e1, topic(t2))

	rb := NewRelationBuilder(h)
	ctx := context.Background()
	require.NoError(t, rb.Process(ctx, e1))
	require.NoError(t, rb.Process(ctx, ent(ns+"m.cvt", ns+"a.x", t1, ns+"b.y", t2)))

	st, _ := g.Stats(ctx)
	assert.EqualValues(t, 1, st.EdgesByLabel[LabelDirect])
	assert.EqualValues(t, 1, st.EdgesByLabel[LabelMediated])
}

func TestRelationsOnEmptyGraph(t *testing.T) {
	h, g := newHandle(t)
	rb := NewRelationBuilder(h)
	ctx := context.Background()
	require.NoError(t, rb.Process(ctx, topic(ns+"m.a", ns+"a.b", ns+"m.b")))
	require.NoError(t, rb.Process(ctx, ent(ns+"m.cvt", ns+"a.x", ns+"m.a", ns+"b.y", ns+"m.b")))

	st, _ := g.Stats(ctx)
	assert.Zero(t, st.Edges)
}

func TestConcurrentEdgeUpdates(t *testing.T) {
	h, g := newHandle(t)
	a, b := ns+"m.a", ns+"m.b"
	ea := topic(a, ns+"film.film.prequel", b)
	buildVertices(t, h, ea, topic(b))

	const workers, rounds = 8, 25
	rb := NewRelationBuilder(h)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				if err := rb.Process(context.Background(), ea); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, props := edgeProps(t, g, a, b, LabelDirect)
	assert.Equal(t, int64(workers*rounds), props["film.film.prequel"])
}

// ---------------------------------------------------------------------------
// Weights
// ---------------------------------------------------------------------------

func TestWeightKeys(t *testing.T) {
	tests := []struct {
		pred string
		want []string
	}{
		{ns + "music.recording.canonical_version", []string{"music", "music.recording", "music.recording.canonical_version"}},
		{ns + "single", []string{"single"}},
		{"no-slash.a", []string{"no-slash", "no-slash.a"}},
		{ns + "a..b", []string{"a", "a.", "a..b"}},
		{ns + "a.b.", []string{"a", "a.b"}},
		{ns, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.pred, func(t *testing.T) {
			assert.Equal(t, tt.want, WeightKeys(tt.pred))
		})
	}
}

func TestUpdateEdgeWeightsRejectsNonCounter(t *testing.T) {
	g := store.NewMemGraph()
	ctx := context.Background()
	a, _ := g.CreateVertex(ctx)
	e, _ := g.CreateEdge(ctx, a, a, LabelDirect)
	require.NoError(t, g.SetEdgeProperty(ctx, e, "film", "oops"))

	assert.Error(t, UpdateEdgeWeights(ctx, g, e, ns+"film.film"))
}

// ---------------------------------------------------------------------------
// Signatures
// ---------------------------------------------------------------------------

func TestSignature(t *testing.T) {
	assert.Nil(t, Signature(nil, 8))
	assert.Nil(t, Signature([]string{ns + "a"}, 0))

	s1 := Signature([]string{ns + "common.topic", ns + "film.film"}, 16)
	s2 := Signature([]string{ns + "film.film", ns + "common.topic"}, 16)
	require.Len(t, s1, 16)
	assert.Equal(t, s1, s2, "signature must not depend on type order")

	var norm float64
	for _, x := range s1 {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-6)
}

// ---------------------------------------------------------------------------
// Components
// ---------------------------------------------------------------------------

func TestComponents(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	ids := make([]store.VertexID, 9)
	for i := range ids {
		v, err := g.CreateVertex(ctx)
		require.NoError(t, err)
		require.NoError(t, g.SetVertexProperty(ctx, v, PropURI, fmt.Sprintf("%sm.%d", ns, i)))
		ids[i] = v
	}
	link := func(a, b int) {
		_, err := g.CreateEdge(ctx, ids[a], ids[b], LabelDirect)
		require.NoError(t, err)
	}
	// Two triangles joined by a bridge, a separate pair, an isolated vertex.
	link(0, 1)
	link(1, 2)
	link(0, 2)
	link(3, 4)
	link(4, 5)
	link(3, 5)
	link(2, 3)
	link(6, 7)

	comps, err := Components(ctx, g)
	require.NoError(t, err)

	var level0, level1 []Component
	for _, c := range comps {
		if c.Level == 0 {
			level0 = append(level0, c)
		} else {
			level1 = append(level1, c)
		}
	}
	require.Len(t, level0, 3)
	assert.Len(t, level0[0].Vertices, 6)
	assert.Equal(t, 7, level0[0].Edges)
	assert.Len(t, level0[1].Vertices, 2)
	assert.Equal(t, 1, level0[1].Edges)
	assert.Equal(t, []store.VertexID{ids[8]}, level0[2].Vertices)

	require.Len(t, level1, 2)
	assert.Equal(t, []store.VertexID{ids[0], ids[1], ids[2]}, level1[0].Vertices)
	assert.Equal(t, []store.VertexID{ids[3], ids[4], ids[5]}, level1[1].Vertices)
	assert.Equal(t, 0, level1[0].Parent)
}

func TestComponentsEmpty(t *testing.T) {
	comps, err := Components(context.Background(), store.NewMemGraph())
	require.NoError(t, err)
	assert.Empty(t, comps)
}

func TestNeighborhood(t *testing.T) {
	ctx := context.Background()
	g := store.NewMemGraph()
	ids := make([]store.VertexID, 5)
	for i := range ids {
		v, err := g.CreateVertex(ctx)
		require.NoError(t, err)
		ids[i] = v
	}
	// 0 -> 1 -> 2, 3 -> 1, 4 isolated
	for _, e := range [][2]int{{0, 1}, {1, 2}, {3, 1}} {
		_, err := g.CreateEdge(ctx, ids[e[0]], ids[e[1]], LabelMediated)
		require.NoError(t, err)
	}

	hops, err := Neighborhood(ctx, g, []store.VertexID{ids[2]}, 1)
	require.NoError(t, err)
	assert.Equal(t, []Hop{{ids[2], 0}, {ids[1], 1}}, hops)

	hops, err = Neighborhood(ctx, g, []store.VertexID{ids[2]}, 5)
	require.NoError(t, err)
	assert.Equal(t, []Hop{{ids[2], 0}, {ids[1], 1}, {ids[0], 2}, {ids[3], 2}}, hops)

	hops, err = Neighborhood(ctx, g, []store.VertexID{ids[4], ids[4]}, 3)
	require.NoError(t, err)
	assert.Equal(t, []Hop{{ids[4], 0}}, hops)

	hops, err = Neighborhood(ctx, g, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, hops)
}
