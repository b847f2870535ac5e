// Package pkggraph models the output of dependency resolution: the chosen
// package versions and the realized dependency edges between them.
//
// Nodes are interned into a dense arena and referenced by integer index;
// edges are index pairs. String keys appear only at the API boundary, so
// iteration order is explicit everywhere and never depends on map order.
package pkggraph

import (
	"errors"
	"slices"
	"sort"

	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/source"
)

var (
	// ErrDuplicatePackage is returned by [Graph.AddNode] when the exact
	// package identity is already present.
	ErrDuplicatePackage = errors.New("duplicate package")

	// ErrUnknownNode is returned by [Graph.AddEdge] when an endpoint index
	// is out of range.
	ErrUnknownNode = errors.New("unknown node index")
)

// Node is one resolved package: its identity, the manifest it was
// resolved from, and the manifest checksum when the source provides one.
type Node struct {
	Pkg      source.PackageID
	Manifest *manifest.Manifest
	Checksum string
}

// Edge is one realized dependency between resolved packages. From and To
// are node indices. Features lists the features the dependent enables on
// the dependency, in declaration order.
type Edge struct {
	From, To int
	Kind     manifest.DepKind
	Optional bool
	Features []string
}

// Graph is the resolved dependency graph. It is append-only: the resolver
// builds it and everything downstream reads it.
//
// The zero value is not usable; use [New]. Graph is not safe for concurrent
// mutation.
type Graph struct {
	nodes    []Node
	edges    []Edge
	outgoing [][]int // node index -> edge indices, declaration order
	incoming [][]int
	byName   map[string][]int
	root     int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byName: make(map[string][]int)}
}

// AddNode interns a resolved package and returns its index. The same
// identity (name, version, source) may appear only once.
func (g *Graph) AddNode(n Node) (int, error) {
	for _, i := range g.byName[n.Pkg.Name] {
		if g.nodes[i].Pkg.Compare(n.Pkg) == 0 {
			return 0, ErrDuplicatePackage
		}
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.outgoing = append(g.outgoing, nil)
	g.incoming = append(g.incoming, nil)
	g.byName[n.Pkg.Name] = append(g.byName[n.Pkg.Name], idx)
	return idx, nil
}

// AddEdge records a realized dependency between two interned packages.
func (g *Graph) AddEdge(e Edge) error {
	if e.From < 0 || e.From >= len(g.nodes) {
		return ErrUnknownNode
	}
	if e.To < 0 || e.To >= len(g.nodes) {
		return ErrUnknownNode
	}
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.outgoing[e.From] = append(g.outgoing[e.From], idx)
	g.incoming[e.To] = append(g.incoming[e.To], idx)
	return nil
}

// SetRoot marks the node the resolution was rooted at.
func (g *Graph) SetRoot(i int) { g.root = i }

// Root returns the index of the root package.
func (g *Graph) Root() int { return g.root }

// Len returns the number of resolved packages.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of realized dependency edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the package at the given index.
func (g *Graph) Node(i int) Node { return g.nodes[i] }

// Dependencies returns the outgoing edges of a node in the order the
// dependent declared them.
func (g *Graph) Dependencies(i int) []Edge {
	out := make([]Edge, len(g.outgoing[i]))
	for k, e := range g.outgoing[i] {
		out[k] = g.edges[e]
	}
	return out
}

// Dependents returns the incoming edges of a node.
func (g *Graph) Dependents(i int) []Edge {
	out := make([]Edge, len(g.incoming[i]))
	for k, e := range g.incoming[i] {
		out[k] = g.edges[e]
	}
	return out
}

// ByName returns the indices of all resolved packages with the given name,
// in ascending version order. More than one index only occurs when the
// resolver ran with multiple major versions allowed.
func (g *Graph) ByName(name string) []int {
	idxs := slices.Clone(g.byName[name])
	sort.Slice(idxs, func(a, b int) bool {
		return g.nodes[idxs[a]].Pkg.Version.Less(g.nodes[idxs[b]].Pkg.Version)
	})
	return idxs
}

// Sorted returns all node indices ordered by package identity
// (name, then version, then source). This is the canonical iteration
// order for lockfiles and listings.
func (g *Graph) Sorted() []int {
	idxs := make([]int, len(g.nodes))
	for i := range idxs {
		idxs[i] = i
	}
	sort.Slice(idxs, func(a, b int) bool {
		return g.nodes[idxs[a]].Pkg.Compare(g.nodes[idxs[b]].Pkg) < 0
	})
	return idxs
}

// Packages returns all resolved package identities in canonical order.
func (g *Graph) Packages() []source.PackageID {
	idxs := g.Sorted()
	out := make([]source.PackageID, len(idxs))
	for k, i := range idxs {
		out[k] = g.nodes[i].Pkg
	}
	return out
}

// FindCycle searches for a dependency cycle among edges accepted by the
// filter and returns the node indices along one such cycle, ordered so
// that each node depends on the next and the last depends on the first.
// Returns nil when the filtered graph is acyclic. A nil filter considers
// every edge.
//
// Traversal visits nodes in index order and edges in declaration order,
// so the reported cycle is deterministic.
func (g *Graph) FindCycle(include func(Edge) bool) []int {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(g.nodes))
	var stack []int
	var cycle []int

	var dfs func(i int) bool
	dfs = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, ei := range g.outgoing[i] {
			e := g.edges[ei]
			if include != nil && !include(e) {
				continue
			}
			switch color[e.To] {
			case white:
				if dfs(e.To) {
					return true
				}
			case gray:
				// Slice the stack from the first occurrence of the target.
				at := slices.Index(stack, e.To)
				cycle = slices.Clone(stack[at:])
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && dfs(i) {
			return cycle
		}
	}
	return nil
}
