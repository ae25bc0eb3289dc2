package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EntityProduced("vertices")
	m.EntityConsumed("vertices")
	m.Committed("vertices")
	m.QueueDepth("vertices", 3)
	m.PhaseDone("vertices", time.Second)
	m.VertexCreated()
	m.EdgeCreated("direct-connection")
	m.EdgeUpdated("direct-connection")
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.EntityProduced("relations")
	m.EntityProduced("relations")
	m.EntityConsumed("relations")
	m.VertexCreated()
	m.EdgeCreated("mediated-connection")
	m.EdgeUpdated("mediated-connection")
	m.EdgeUpdated("mediated-connection")
	m.QueueDepth("relations", 7)

	body := scrape(t, m)
	for _, want := range []string{
		`triplegraph_entities_produced_total{phase="relations"} 2`,
		`triplegraph_entities_consumed_total{phase="relations"} 1`,
		`triplegraph_vertices_created_total 1`,
		`triplegraph_edges_updated_total{label="mediated-connection"} 2`,
		`triplegraph_queue_depth{phase="relations"} 7`,
	} {
		assert.Contains(t, body, want)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestHandler(t *testing.T) {
	m := New()
	m.VertexCreated()

	assert.Contains(t, scrape(t, m), "# TYPE triplegraph_vertices_created_total counter")
}
