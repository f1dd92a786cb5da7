// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"sort"

	"github.com/emicklei/dot"
	"github.com/pkg/errors"
)

// NodeID is a dense arena index into a Graph. Edges are id→id pairs;
// Package records hold no references to one another, which keeps the
// conceptual DAG free of pointer cycles and makes traversal and
// serialization straightforward.
type NodeID int32

// Graph is the resolved dependency graph: vertices are packages keyed
// by (name, version), edges point from depender to dependency. The
// root is the single distinguished vertex the resolution started from.
type Graph struct {
	pkgs []*Package
	byID map[string]NodeID // Package.ID() → node
	out  [][]NodeID        // dependencies
	in   [][]NodeID        // dependers
	root NodeID
}

func newGraph() *Graph {
	return &Graph{byID: make(map[string]NodeID), root: -1}
}

func (g *Graph) addVertex(p *Package) NodeID {
	if id, ok := g.byID[p.ID()]; ok {
		return id
	}
	id := NodeID(len(g.pkgs))
	g.pkgs = append(g.pkgs, p)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.byID[p.ID()] = id
	if g.root < 0 {
		g.root = id
	}
	return id
}

// addEdge inserts from→to, refusing edges that would close a cycle.
// The returned path runs from `to` back around to `from` when a cycle
// is detected.
func (g *Graph) addEdge(from, to NodeID) (cycle []NodeID, err error) {
	if from == to {
		return []NodeID{to, from}, errors.New("self dependency")
	}
	if path := g.path(to, from); path != nil {
		return path, errors.New("edge would introduce a cycle")
	}
	for _, d := range g.out[from] {
		if d == to {
			return nil, nil
		}
	}
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
	return nil, nil
}

// path returns the vertex sequence from..to along dependency edges, or
// nil when unreachable.
func (g *Graph) path(from, to NodeID) []NodeID {
	if from == to {
		return []NodeID{from}
	}
	seen := make([]bool, len(g.pkgs))
	var dfs func(NodeID) []NodeID
	dfs = func(at NodeID) []NodeID {
		if at == to {
			return []NodeID{at}
		}
		seen[at] = true
		for _, nxt := range g.out[at] {
			if seen[nxt] {
				continue
			}
			if p := dfs(nxt); p != nil {
				return append([]NodeID{at}, p...)
			}
		}
		return nil
	}
	return dfs(from)
}

// Root returns the distinguished root package.
func (g *Graph) Root() *Package { return g.pkgs[g.root] }

// RootID returns the root's node id.
func (g *Graph) RootID() NodeID { return g.root }

// Package returns the package at id.
func (g *Graph) Package(id NodeID) *Package { return g.pkgs[id] }

// Lookup finds a vertex by name@version identity.
func (g *Graph) Lookup(name, version string) (NodeID, bool) {
	id, ok := g.byID[name+"@"+version]
	return id, ok
}

// Len is the vertex count.
func (g *Graph) Len() int { return len(g.pkgs) }

// EdgeCount is the number of direct dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, es := range g.out {
		n += len(es)
	}
	return n
}

// Dependencies returns the direct dependencies of id, in insertion
// order (the order requirements were resolved, which is deterministic).
func (g *Graph) Dependencies(id NodeID) []NodeID {
	return append([]NodeID(nil), g.out[id]...)
}

// Dependers returns the direct dependers of id.
func (g *Graph) Dependers(id NodeID) []NodeID {
	return append([]NodeID(nil), g.in[id]...)
}

// TransitiveDependencies returns every vertex reachable from id,
// breadth-first, direct dependencies before transitive ones,
// deduplicated by first occurrence.
func (g *Graph) TransitiveDependencies(id NodeID) []NodeID {
	var order []NodeID
	seen := make([]bool, len(g.pkgs))
	queue := append([]NodeID(nil), g.out[id]...)
	for len(queue) > 0 {
		at := queue[0]
		queue = queue[1:]
		if seen[at] {
			continue
		}
		seen[at] = true
		order = append(order, at)
		queue = append(queue, g.out[at]...)
	}
	return order
}

// TopoOrder returns a dependency-first ordering (every vertex after
// all of its dependencies) via Kahn's algorithm. Ties break on package
// identity so the order is deterministic.
func (g *Graph) TopoOrder() []NodeID {
	indeg := make([]int, len(g.pkgs))
	for id := range g.pkgs {
		// Count outgoing edges: a package is ready once everything it
		// depends on has been emitted.
		indeg[id] = len(g.out[id])
	}
	var ready []NodeID
	for id := range g.pkgs {
		if indeg[id] == 0 {
			ready = append(ready, NodeID(id))
		}
	}
	sortNodes(g, ready)

	var order []NodeID
	for len(ready) > 0 {
		at := ready[0]
		ready = ready[1:]
		order = append(order, at)
		var newly []NodeID
		for _, dep := range g.in[at] {
			indeg[dep]--
			if indeg[dep] == 0 {
				newly = append(newly, dep)
			}
		}
		sortNodes(g, newly)
		ready = append(ready, newly...)
	}
	return order
}

func sortNodes(g *Graph, ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return g.pkgs[ids[i]].ID() < g.pkgs[ids[j]].ID()
	})
}

// Dot renders the graph in Graphviz DOT form for inspection tooling.
func (g *Graph) Dot() string {
	dg := dot.NewGraph(dot.Directed)
	nodes := make([]dot.Node, len(g.pkgs))
	for id, p := range g.pkgs {
		n := dg.Node(p.ID())
		if NodeID(id) == g.root {
			n.Attr("shape", "box")
		}
		nodes[id] = n
	}
	for from, es := range g.out {
		for _, to := range es {
			dg.Edge(nodes[from], nodes[to])
		}
	}
	return dg.String()
}
