// Package graph implements the Dependency Graph Store: an in-memory
// directed graph whose vertices are absolute file paths carrying a
// last-seen-modified timestamp, and whose edges mean "textually
// depends on" (include / behaviour / transform / import /
// file-origin).
//
// Vertex identity is the absolute path string itself: rather than the
// numeric vertex IDs a generic graph library would use, each path is
// looked up directly and both adjacency directions are maintained
// explicitly, so ancestor and descendant queries are O(reachable set)
// with no second traversal structure.
package graph

import (
	"os"
	"sort"

	art "github.com/kralicky/go-adaptive-radix-tree"
)

// Timestamp is a monotonic file-modification value. The sentinel
// NoTimestamp means "file does not exist". It is an internal
// optimization for detecting stale vertices only -- never used
// directly to decide whether to recompile a target.
type Timestamp int64

// NoTimestamp is the sentinel recorded for a vertex whose file has
// disappeared.
const NoTimestamp Timestamp = 0

// Stat returns the live modification timestamp of path, or
// NoTimestamp if it cannot be stat'd.
func Stat(path string) Timestamp {
	info, err := os.Stat(path)
	if err != nil {
		return NoTimestamp
	}
	ts := Timestamp(info.ModTime().UnixNano())
	if ts == NoTimestamp {
		// An implausible but not impossible mtime of exactly the Unix
		// epoch would otherwise be indistinguishable from "does not
		// exist"; nudge it so the sentinel stays unambiguous.
		ts = 1
	}
	return ts
}

type vertex struct {
	path    string
	modTime Timestamp
	out     map[string]struct{} // this vertex depends on
	in      map[string]struct{} // depends on this vertex
}

// Edge is a directed (dependent, dependency) pair: From references To
// via an include / behaviour / transform / import / file attribute.
type Edge struct {
	From string
	To   string
}

// Graph is the Dependency Graph Store. The vertex table is an
// adaptive radix tree keyed by absolute path, the same structure the
// teacher's linker uses to key its symbol table by name
// (linker.Result's descriptors field), which gives stable,
// lexicographically ordered iteration for free -- the property
// planning needs to be deterministic across runs.
type Graph struct {
	tree art.Tree
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{tree: art.New()}
}

func (g *Graph) get(path string) (*vertex, bool) {
	v, found := g.tree.Search(art.Key(path))
	if !found {
		return nil, false
	}
	return v.(*vertex), true
}

// Has reports whether path is a vertex.
func (g *Graph) Has(path string) bool {
	_, ok := g.get(path)
	return ok
}

// ModTime returns the mtime recorded for path as of the last Upsert,
// or NoTimestamp if path is not a vertex.
func (g *Graph) ModTime(path string) Timestamp {
	v, ok := g.get(path)
	if !ok {
		return NoTimestamp
	}
	return v.modTime
}

// Upsert adds path as a vertex if absent, or updates its recorded
// mtime if present.
func (g *Graph) Upsert(path string, ts Timestamp) {
	if v, ok := g.get(path); ok {
		v.modTime = ts
		return
	}
	g.tree.Insert(art.Key(path), &vertex{
		path:    path,
		modTime: ts,
		out:     map[string]struct{}{},
		in:      map[string]struct{}{},
	})
}

// AddEdge records that from depends on to. Both must already be
// vertices: an updater always upserts a referenced file as a vertex
// before linking the edge to it.
func (g *Graph) AddEdge(from, to string) {
	fv, ok := g.get(from)
	if !ok {
		return
	}
	tv, ok := g.get(to)
	if !ok {
		return
	}
	fv.out[to] = struct{}{}
	tv.in[from] = struct{}{}
}

// ClearOutgoing removes every outgoing edge of path, e.g. before
// re-scanning a changed source for its current references.
func (g *Graph) ClearOutgoing(path string) {
	v, ok := g.get(path)
	if !ok {
		return
	}
	for to := range v.out {
		if tv, ok := g.get(to); ok {
			delete(tv.in, path)
		}
	}
	v.out = map[string]struct{}{}
}

// Delete removes path and every edge touching it, cascading.
func (g *Graph) Delete(path string) {
	v, ok := g.get(path)
	if !ok {
		return
	}
	for to := range v.out {
		if tv, ok := g.get(to); ok {
			delete(tv.in, path)
		}
	}
	for from := range v.in {
		if fv, ok := g.get(from); ok {
			delete(fv.out, path)
		}
	}
	g.tree.Delete(art.Key(path))
}

// Vertices returns every vertex path in the radix tree's natural
// (lexicographic) order.
func (g *Graph) Vertices() []string {
	var paths []string
	g.tree.ForEach(func(n art.Node) bool {
		paths = append(paths, string(n.Key()))
		return true
	})
	return paths
}

// Edges returns every edge, ordered by (From, To).
func (g *Graph) Edges() []Edge {
	var edges []Edge
	g.tree.ForEach(func(n art.Node) bool {
		v := n.Value().(*vertex)
		tos := make([]string, 0, len(v.out))
		for to := range v.out {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			edges = append(edges, Edge{From: v.path, To: to})
		}
		return true
	})
	return edges
}

// Descendants returns every vertex reachable from path by following
// outgoing edges: the files path transitively depends on -- its
// "parents", per the glossary.
func (g *Graph) Descendants(path string) map[string]struct{} {
	return g.reachable(path, func(v *vertex) map[string]struct{} { return v.out })
}

// Ancestors returns every vertex that can reach path by following
// outgoing edges: the files that transitively depend on path -- its
// "dependents"/"children", per the glossary.
func (g *Graph) Ancestors(path string) map[string]struct{} {
	return g.reachable(path, func(v *vertex) map[string]struct{} { return v.in })
}

func (g *Graph) reachable(path string, next func(*vertex) map[string]struct{}) map[string]struct{} {
	// visited guards against revisiting path itself (a cycle back to
	// the origin is not a member of its own reachable set) as well as
	// any other already-processed vertex.
	visited := map[string]struct{}{path: {}}
	result := map[string]struct{}{}
	var stack []string
	if v, ok := g.get(path); ok {
		for p := range next(v) {
			stack = append(stack, p)
		}
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[p]; ok {
			continue
		}
		visited[p] = struct{}{}
		result[p] = struct{}{}
		if v, ok := g.get(p); ok {
			for q := range next(v) {
				if _, ok := visited[q]; !ok {
					stack = append(stack, q)
				}
			}
		}
	}
	return result
}
