package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced vertex or edge does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrClosed is returned by operations on a closed graph.
	ErrClosed = errors.New("store: closed")
)

// VertexID identifies a vertex within one graph store.
type VertexID int64

// EdgeID identifies an edge within one graph store.
type EdgeID int64

// ElementKind selects vertices or edges for key indexes.
type ElementKind int

const (
	KindVertex ElementKind = iota
	KindEdge
)

func (k ElementKind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// Edge is a directed, labelled connection between two vertices.
type Edge struct {
	ID    EdgeID   `json:"id"`
	Label string   `json:"label"`
	Out   VertexID `json:"out"`
	In    VertexID `json:"in"`
}

// Graph is the property graph the importer writes into. Property values
// are string, []string or int64. Implementations must be safe for
// concurrent use; read-modify-write sequences spanning several calls are
// the caller's responsibility.
type Graph interface {
	CreateVertex(ctx context.Context) (VertexID, error)
	VertexProperty(ctx context.Context, v VertexID, key string) (any, bool, error)
	SetVertexProperty(ctx context.Context, v VertexID, key string, value any) error

	// FindVertices returns vertices whose key property equals value.
	FindVertices(ctx context.Context, key, value string) ([]VertexID, error)

	// FindEdges returns edges whose key property equals value.
	FindEdges(ctx context.Context, key, value string) ([]Edge, error)

	CreateEdge(ctx context.Context, out, in VertexID, label string) (EdgeID, error)
	EdgeProperty(ctx context.Context, e EdgeID, key string) (any, bool, error)
	SetEdgeProperty(ctx context.Context, e EdgeID, key string, value any) error

	// EnsureKeyIndex declares key as a lookup key for the given element
	// kind. Calling it again for the same key is a no-op.
	EnsureKeyIndex(ctx context.Context, kind ElementKind, key string) error

	// Commit makes everything written so far durable. Stores without
	// transactions treat it as a no-op.
	Commit(ctx context.Context) error
	Close() error
}

// Run records one phase of one import run.
type Run struct {
	ID           string        `json:"id"`
	Phase        string        `json:"phase"`
	Status       string        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	Entities     int64         `json:"entities"`
	Vertices     int64         `json:"vertices"`
	EdgesCreated int64         `json:"edges_created"`
	EdgesUpdated int64         `json:"edges_updated"`
	Error        string        `json:"error,omitempty"`
}

// RunRecorder is implemented by stores that keep import-run bookkeeping.
type RunRecorder interface {
	RecordRun(ctx context.Context, r Run) error
	Runs(ctx context.Context) ([]Run, error)
}

// Neighbor is one nearest-signature result.
type Neighbor struct {
	Vertex   VertexID `json:"vertex"`
	Distance float64  `json:"distance"`
}

// SignatureIndex is implemented by stores that can index a fixed-size
// vector per vertex and answer nearest-neighbour queries over it.
type SignatureIndex interface {
	SignatureDim() int
	SetVertexSignature(ctx context.Context, v VertexID, sig []float32) error
	NearestVertices(ctx context.Context, sig []float32, k int) ([]Neighbor, error)
}

// Stats summarizes the contents of a store.
type Stats struct {
	Vertices     int64            `json:"vertices"`
	Edges        int64            `json:"edges"`
	EdgesByLabel map[string]int64 `json:"edges_by_label"`
	Signatures   int64            `json:"signatures"`
	KeyIndexes   []string         `json:"key_indexes"`
}

// Inspector is implemented by stores that support whole-graph reads for
// reporting.
type Inspector interface {
	Stats(ctx context.Context) (*Stats, error)
	AllEdges(ctx context.Context) ([]Edge, error)
	VertexStrings(ctx context.Context, key string) (map[VertexID]string, error)
	EdgeProperties(ctx context.Context, e EdgeID) (map[string]any, error)
}
