package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/bbiangul/triplegraph/store"
)

// Hop is a vertex reached by Neighborhood and its distance from the
// nearest seed.
type Hop struct {
	Vertex store.VertexID `json:"vertex"`
	Depth  int            `json:"depth"`
}

// Neighborhood walks edges in both directions from the seeds, up to
// maxDepth hops, and returns every vertex reached including the seeds.
// Results are ordered by depth, then by vertex ID.
func Neighborhood(ctx context.Context, insp store.Inspector, seeds []store.VertexID, maxDepth int) ([]Hop, error) {
	if len(seeds) == 0 || maxDepth < 0 {
		return nil, nil
	}

	// Load the full graph into memory for fast traversal.
	edges, err := insp.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph.Neighborhood: loading edges: %w", err)
	}
	neighbours := make(map[store.VertexID][]store.VertexID)
	for _, e := range edges {
		neighbours[e.Out] = append(neighbours[e.Out], e.In)
		neighbours[e.In] = append(neighbours[e.In], e.Out)
	}

	visited := make(map[store.VertexID]bool)
	var hops []Hop
	queue := make([]store.VertexID, 0, len(seeds))
	for _, v := range seeds {
		if !visited[v] {
			visited[v] = true
			queue = append(queue, v)
			hops = append(hops, Hop{Vertex: v})
		}
	}

	for depth := 1; depth <= maxDepth && len(queue) > 0; depth++ {
		var next []store.VertexID
		for _, v := range queue {
			for _, n := range neighbours[v] {
				if !visited[n] {
					visited[n] = true
					next = append(next, n)
					hops = append(hops, Hop{Vertex: n, Depth: depth})
				}
			}
		}
		queue = next
	}

	slices.SortFunc(hops, func(a, b Hop) int {
		if c := cmp.Compare(a.Depth, b.Depth); c != 0 {
			return c
		}
		return cmp.Compare(a.Vertex, b.Vertex)
	})
	return hops, nil
}
