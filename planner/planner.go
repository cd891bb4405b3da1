// Package planner implements the Compile Planner: given the updated
// dependency graph, the full discovered source list, and a
// user-configured priority list, it produces a single stable compile
// order.
package planner

import (
	"sort"

	"github.com/kralicky/forgec/graph"
)

// Plan is the ordered sequence of sources to compile, already merged
// from ExplicitFirst, OrderedImplicit and Tail.
type Plan []string

// Graph is the subset of graph.Graph's API the planner depends on,
// narrowed so planner tests can supply a fake without pulling in a
// full Graph.
type Graph interface {
	Descendants(path string) map[string]struct{}
	Ancestors(path string) map[string]struct{}
}

var _ Graph = (*graph.Graph)(nil)

// Compute produces the final compile order from g, the full
// discovered source set allSources (in discovery order), and the
// user-configured firstFiles (in user order). isSource reports
// whether a path carries the configured source extension,
// distinguishing compiled sources from headers when walking
// Dependents/Parents.
func Compute(g Graph, allSources []string, firstFiles []string, isSource func(string) bool) Plan {
	inAllSources := make(map[string]struct{}, len(allSources))
	for _, s := range allSources {
		inAllSources[s] = struct{}{}
	}

	var explicitFirst []string
	explicitSet := map[string]struct{}{}
	for _, f := range firstFiles {
		if _, ok := inAllSources[f]; !ok {
			continue // stale entry in the user's configured list
		}
		if _, dup := explicitSet[f]; dup {
			continue
		}
		explicitSet[f] = struct{}{}
		explicitFirst = append(explicitFirst, f)
	}

	var rest []string
	for _, s := range allSources {
		if _, ok := explicitSet[s]; ok {
			continue
		}
		rest = append(rest, s)
	}

	var implicitFirst []string
	var tail []string
	for _, f := range rest {
		if len(dependents(g, f, isSource)) > 0 {
			implicitFirst = append(implicitFirst, f)
		} else {
			tail = append(tail, f)
		}
	}

	var parentsFlat []string
	for _, f := range implicitFirst {
		ps := topoSortParents(g, parents(g, f, isSource), isSource)
		parentsFlat = append(parentsFlat, ps...)
	}
	orderedImplicit := uoMerge(parentsFlat, implicitFirst)

	// An explicitly placed file always wins: drop it from the implicit
	// ordering if it snuck in via another file's Parents set.
	orderedImplicit = without(orderedImplicit, explicitSet)

	plan := make(Plan, 0, len(explicitFirst)+len(orderedImplicit)+len(tail))
	plan = append(plan, explicitFirst...)
	plan = append(plan, orderedImplicit...)
	plan = append(plan, tail...)
	return plan
}

// dependents returns { x : x reaches f in g, x has source-extension },
// i.e. the source files that transitively depend on f -- f's
// "children" in the glossary, reached by following g's incoming
// edges (Ancestors).
func dependents(g Graph, f string, isSource func(string) bool) map[string]struct{} {
	return filterSources(g.Ancestors(f), isSource)
}

// parents returns { x : f reaches x in g, x has source-extension },
// i.e. the source files f itself transitively depends on -- f's
// "parents" in the glossary, reached by following g's outgoing edges
// (Descendants).
func parents(g Graph, f string, isSource func(string) bool) map[string]struct{} {
	return filterSources(g.Descendants(f), isSource)
}

func filterSources(set map[string]struct{}, isSource func(string) bool) map[string]struct{} {
	out := map[string]struct{}{}
	for p := range set {
		if isSource(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

func sortedSourceSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// topoSortParents orders a node's parent set so that a parent which
// itself depends on another member of the same set is placed after
// it -- a plain lexicographic sort over the set is not enough when
// the parents fan out and also depend on each other. It walks each
// member's own parents (restricted to the set) before emitting it,
// falling back to lexicographic order to break ties and to seed
// traversal order deterministically.
func topoSortParents(g Graph, set map[string]struct{}, isSource func(string) bool) []string {
	order := sortedSourceSet(set)
	visited := map[string]struct{}{}
	out := make([]string, 0, len(order))
	var visit func(n string)
	visit = func(n string) {
		if _, ok := visited[n]; ok {
			return
		}
		visited[n] = struct{}{}
		for _, d := range sortedSourceSet(parents(g, n, isSource)) {
			if _, ok := set[d]; ok {
				visit(d)
			}
		}
		out = append(out, n)
	}
	for _, n := range order {
		visit(n)
	}
	return out
}

// UOMerge deduplicates a preserving its order, then appends each
// element of b, in order, that is not already present.
func UOMerge(a, b []string) []string {
	return uoMerge(a, b)
}

func uoMerge(a, b []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(a)+len(b))
	for _, x := range a {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	for _, x := range b {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

func without(ss []string, drop map[string]struct{}) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := drop[s]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}
