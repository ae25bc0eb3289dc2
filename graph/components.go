package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/bbiangul/triplegraph/store"
)

// Only level-0 components with at least minSplitSize and at most
// maxSplitSize vertices are split into level-1 groups.
const (
	minSplitSize = 6
	maxSplitSize = 200
	splitPasses  = 20
)

// Component is a group of vertices. Level 0 groups are connected
// components; level 1 groups split a level 0 component by modularity.
type Component struct {
	Level    int              `json:"level"`
	Parent   int              `json:"parent"` // index of the level-0 component, -1 at level 0
	Vertices []store.VertexID `json:"vertices"`
	Edges    int              `json:"edges"`
}

type arc struct {
	to     int
	weight float64
}

// Components groups the graph's vertices. Edge direction is ignored and
// every edge weighs 1, so parallel direct and mediated edges count twice.
// Level-0 components come first, largest first.
func Components(ctx context.Context, insp store.Inspector) ([]Component, error) {
	uris, err := insp.VertexStrings(ctx, PropURI)
	if err != nil {
		return nil, fmt.Errorf("loading vertices: %w", err)
	}
	edges, err := insp.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	if len(uris) == 0 {
		return nil, nil
	}

	ids := make([]store.VertexID, 0, len(uris))
	for id := range uris {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	idIndex := make(map[store.VertexID]int, len(ids))
	for i, id := range ids {
		idIndex[id] = i
	}

	adj := make([][]arc, len(ids))
	totalWeight := 0.0
	for _, e := range edges {
		si, okS := idIndex[e.Out]
		ti, okT := idIndex[e.In]
		if !okS || !okT {
			continue
		}
		adj[si] = append(adj[si], arc{to: ti, weight: 1})
		if si != ti {
			adj[ti] = append(adj[ti], arc{to: si, weight: 1})
		}
		totalWeight++
	}

	comps := connected(adj)
	sort.SliceStable(comps, func(i, j int) bool { return len(comps[i]) > len(comps[j]) })

	slog.Info("graph: components found",
		"vertices", len(ids), "edges", len(edges),
		"components", len(comps), "largest", len(comps[0]))

	result := make([]Component, 0, len(comps))
	for _, comp := range comps {
		result = append(result, Component{
			Level:    0,
			Parent:   -1,
			Vertices: vertexIDs(comp, ids),
			Edges:    internalEdges(comp, adj),
		})
	}

	for parent, comp := range comps {
		if len(comp) < minSplitSize || len(comp) > maxSplitSize || totalWeight == 0 {
			continue
		}
		subs := newPartition(comp, adj, totalWeight).split()
		if len(subs) <= 1 {
			continue
		}
		for _, sub := range subs {
			result = append(result, Component{
				Level:    1,
				Parent:   parent,
				Vertices: vertexIDs(sub, ids),
				Edges:    internalEdges(sub, adj),
			})
		}
	}
	return result, nil
}

// connected labels the vertices of adj breadth first and returns one
// slice of indices per connected component.
func connected(adj [][]arc) [][]int {
	seen := make([]bool, len(adj))
	var comps [][]int
	for root := range adj {
		if seen[root] {
			continue
		}
		seen[root] = true
		comp := []int{root}
		for head := 0; head < len(comp); head++ {
			for _, a := range adj[comp[head]] {
				if !seen[a.to] {
					seen[a.to] = true
					comp = append(comp, a.to)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

func vertexIDs(comp []int, ids []store.VertexID) []store.VertexID {
	out := make([]store.VertexID, len(comp))
	for i, idx := range comp {
		out[i] = ids[idx]
	}
	slices.Sort(out)
	return out
}

// internalEdges counts edges with both ends in comp.
func internalEdges(comp []int, adj [][]arc) int {
	in := make(map[int]bool, len(comp))
	for _, n := range comp {
		in[n] = true
	}
	var twice, loops int
	for _, n := range comp {
		for _, e := range adj[n] {
			if !in[e.to] {
				continue
			}
			if e.to == n {
				loops++
			} else {
				twice++
			}
		}
	}
	return twice/2 + loops
}

// partition is a greedy single-level modularity optimisation over one
// connected component. Every vertex starts in its own group and moves to
// the neighbouring group with the best positive gain until a pass moves
// nothing.
type partition struct {
	comp   []int
	adj    [][]arc
	local  map[int]int // adjacency index -> position in comp
	group  []int
	degree []float64
	total  map[int]float64 // summed degree per group
	m2     float64
}

func newPartition(comp []int, adj [][]arc, totalWeight float64) *partition {
	p := &partition{
		comp:   comp,
		adj:    adj,
		local:  make(map[int]int, len(comp)),
		group:  make([]int, len(comp)),
		degree: make([]float64, len(comp)),
		total:  make(map[int]float64, len(comp)),
		m2:     2 * totalWeight,
	}
	for i, v := range comp {
		p.local[v] = i
		p.group[i] = i
	}
	for i, v := range comp {
		for _, a := range adj[v] {
			if _, ok := p.local[a.to]; ok {
				p.degree[i] += a.weight
			}
		}
		p.total[i] += p.degree[i]
	}
	return p
}

// links sums the weight from member i to each neighbouring group.
func (p *partition) links(i int) map[int]float64 {
	out := make(map[int]float64)
	for _, a := range p.adj[p.comp[i]] {
		j, ok := p.local[a.to]
		if !ok || j == i {
			continue
		}
		out[p.group[j]] += a.weight
	}
	return out
}

// score is the modularity contribution of member i joining a group with
// linkWeight edges to it and summed degree sigma.
func (p *partition) score(i int, linkWeight, sigma float64) float64 {
	return linkWeight/p.m2 - sigma*p.degree[i]/(p.m2*p.m2)
}

// relocate moves member i to the best neighbouring group and reports
// whether it moved.
func (p *partition) relocate(i int) bool {
	links := p.links(i)
	from := p.group[i]
	leave := p.score(i, links[from], p.total[from]-p.degree[i])

	targets := make([]int, 0, len(links))
	for g := range links {
		if g != from {
			targets = append(targets, g)
		}
	}
	// Fixed order so ties resolve the same way.
	slices.Sort(targets)

	best, bestGain := from, 0.0
	for _, g := range targets {
		if gain := p.score(i, links[g], p.total[g]) - leave; gain > bestGain {
			best, bestGain = g, gain
		}
	}
	if best == from {
		return false
	}
	p.total[from] -= p.degree[i]
	p.total[best] += p.degree[i]
	p.group[i] = best
	return true
}

// split runs the optimisation and returns the groups in order of first
// appearance, or the whole component when no split improves modularity.
func (p *partition) split() [][]int {
	if len(p.comp) < minSplitSize {
		return [][]int{p.comp}
	}
	for range splitPasses {
		moved := false
		for i := range p.comp {
			if p.relocate(i) {
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	index := make(map[int]int)
	var groups [][]int
	for i, v := range p.comp {
		k, ok := index[p.group[i]]
		if !ok {
			k = len(groups)
			index[p.group[i]] = k
			groups = append(groups, nil)
		}
		groups[k] = append(groups[k], v)
	}
	if len(groups) <= 1 {
		return [][]int{p.comp}
	}
	return groups
}
