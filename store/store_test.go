//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	require.NoError(t, err, "creating store")
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 4, s.SignatureDim())
	assert.NotNil(t, s.DB())

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].version, v)
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"), 4)
	require.NoError(t, err)
	s.Close()
}

func TestNewRejectsBadDim(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "x.db"), 0)
	assert.Error(t, err)
}

func TestStoreContract(t *testing.T) {
	runGraphContract(t, func(t *testing.T) Graph { return newTestStore(t) })
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

func TestCommitPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	s, err := New(path, 4)
	require.NoError(t, err)
	v, err := s.CreateVertex(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetVertexProperty(ctx, v, "URI", "u1"))
	require.NoError(t, s.Commit(ctx))
	// Commit with nothing pending is a no-op.
	require.NoError(t, s.Commit(ctx))

	w, err := s.CreateVertex(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetVertexProperty(ctx, w, "URI", "u2"))
	// Close commits the tail.
	require.NoError(t, s.Close())

	s2, err := New(path, 4)
	require.NoError(t, err)
	defer s2.Close()
	for _, uri := range []string{"u1", "u2"} {
		ids, err := s2.FindVertices(ctx, "URI", uri)
		require.NoError(t, err)
		assert.Len(t, ids, 1, uri)
	}
}

func TestCanceledContextDoesNotLoseTx(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	v, err := s.CreateVertex(ctx)
	require.NoError(t, err)
	cancel()

	require.NoError(t, s.Commit(context.Background()))
	_, ok, err := s.VertexProperty(context.Background(), v, "URI")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Key indexes
// ---------------------------------------------------------------------------

func TestEnsureKeyIndexRecorded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 2 {
		require.NoError(t, s.EnsureKeyIndex(ctx, KindVertex, "URI"))
	}
	require.NoError(t, s.EnsureKeyIndex(ctx, KindEdge, "vertices.connected"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Len(t, st.KeyIndexes, 2)

	require.NoError(t, s.Commit(ctx))

	// The partial index is usable for lookups by the literal key.
	var plan string
	rows, err := s.DB().QueryContext(ctx,
		"EXPLAIN QUERY PLAN SELECT vertex_id FROM vertex_properties WHERE key = 'URI' AND value = ?", `"x"`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id, parent, notused int
		var detail string
		require.NoError(t, rows.Scan(&id, &parent, &notused, &detail))
		plan += detail + "\n"
	}
	assert.Contains(t, plan, indexName(KindVertex, "URI"))
}

func TestIndexNameSanitized(t *testing.T) {
	a := indexName(KindEdge, "vertices.connected")
	b := indexName(KindEdge, "vertices connected")
	assert.NotEqual(t, a, b, "distinct keys must get distinct index names")
	assert.Regexp(t, `^[a-z0-9_]+$`, a)
}

// ---------------------------------------------------------------------------
// Signatures
// ---------------------------------------------------------------------------

func TestSignatureSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateVertex(ctx)
	b, _ := s.CreateVertex(ctx)
	c, _ := s.CreateVertex(ctx)
	sigs := map[VertexID][]float32{
		a: {1, 0, 0, 0},
		b: {0.9, 0.1, 0, 0},
		c: {0, 0, 0, 1},
	}
	for v, sig := range sigs {
		require.NoError(t, s.SetVertexSignature(ctx, v, sig))
	}
	// Replacing a signature keeps one row per vertex.
	require.NoError(t, s.SetVertexSignature(ctx, c, []float32{0, 0, 1, 0}))

	got, err := s.NearestVertices(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].Vertex)
	assert.Equal(t, b, got[1].Vertex)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Signatures)

	assert.Error(t, s.SetVertexSignature(ctx, a, []float32{1, 2}), "dimension mismatch")
}

// ---------------------------------------------------------------------------
// Import runs
// ---------------------------------------------------------------------------

func TestRecordRunUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	started := time.Now().Add(-time.Minute).Truncate(time.Second)

	r := Run{ID: id, Phase: "vertices", Status: "running", StartedAt: started}
	require.NoError(t, s.RecordRun(ctx, r))
	r.Status = "done"
	r.Elapsed = 1500 * time.Millisecond
	r.Entities = 10
	r.Vertices = 4
	require.NoError(t, s.RecordRun(ctx, r))
	require.NoError(t, s.RecordRun(ctx, Run{ID: id, Phase: "relations", Status: "failed",
		StartedAt: started.Add(time.Second), Error: "boom"}))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "vertices", runs[0].Phase)
	assert.Equal(t, "done", runs[0].Status)
	assert.Equal(t, int64(4), runs[0].Vertices)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Elapsed)
	assert.Equal(t, "boom", runs[1].Error)
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestStatsAndEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateVertex(ctx)
	b, _ := s.CreateVertex(ctx)
	require.NoError(t, s.SetVertexProperty(ctx, a, "URI", "ua"))
	require.NoError(t, s.SetVertexProperty(ctx, b, "URI", "ub"))
	e1, err := s.CreateEdge(ctx, a, b, "direct-connection")
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, b, a, "mediated-connection")
	require.NoError(t, err)
	require.NoError(t, s.SetEdgeProperty(ctx, e1, "film", int64(1)))
	require.NoError(t, s.SetEdgeProperty(ctx, e1, "connected-by", "m"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Vertices)
	assert.Equal(t, int64(2), st.Edges)
	assert.Equal(t, int64(1), st.EdgesByLabel["mediated-connection"])

	edges, err := s.AllEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, e1, edges[0].ID)

	uris, err := s.VertexStrings(ctx, "URI")
	require.NoError(t, err)
	assert.Equal(t, "ua", uris[a])

	props, err := s.EdgeProperties(ctx, e1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), props["film"])
	assert.Equal(t, "m", props["connected-by"])
}
