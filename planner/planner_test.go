package planner_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kralicky/forgec/planner"
)

// fakeGraph is a minimal in-memory Graph double for planner tests,
// built directly from an edge list rather than going through the
// graph package's persistence/update machinery.
type fakeGraph struct {
	out map[string]map[string]struct{}
	in  map[string]map[string]struct{}
}

func newFakeGraph(edges [][2]string) *fakeGraph {
	g := &fakeGraph{out: map[string]map[string]struct{}{}, in: map[string]map[string]struct{}{}}
	for _, e := range edges {
		from, to := e[0], e[1]
		if g.out[from] == nil {
			g.out[from] = map[string]struct{}{}
		}
		if g.in[to] == nil {
			g.in[to] = map[string]struct{}{}
		}
		g.out[from][to] = struct{}{}
		g.in[to][from] = struct{}{}
	}
	return g
}

func (g *fakeGraph) Descendants(path string) map[string]struct{} { return g.reach(path, g.out) }
func (g *fakeGraph) Ancestors(path string) map[string]struct{}   { return g.reach(path, g.in) }

func (g *fakeGraph) reach(path string, adj map[string]map[string]struct{}) map[string]struct{} {
	seen := map[string]struct{}{}
	var stack []string
	for p := range adj[path] {
		stack = append(stack, p)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		for q := range adj[p] {
			if _, ok := seen[q]; !ok {
				stack = append(stack, q)
			}
		}
	}
	return seen
}

func isSrc(p string) bool { return strings.HasSuffix(p, ".src") }

func TestComputeOrdersTransformBeforeItsUser(t *testing.T) {
	g := newFakeGraph([][2]string{{"a.src", "t.src"}})
	plan := planner.Compute(g, []string{"a.src", "b.src", "t.src"}, nil, isSrc)

	ti := indexOf(plan, "t.src")
	ai := indexOf(plan, "a.src")
	assert.True(t, ti < ai, "t.src must precede a.src, got %v", plan)
	assert.ElementsMatch(t, []string{"a.src", "b.src", "t.src"}, []string(plan))
}

func TestComputeIsIdempotent(t *testing.T) {
	g := newFakeGraph([][2]string{{"a.src", "t.src"}, {"c.src", "t.src"}})
	first := planner.Compute(g, []string{"a.src", "b.src", "c.src", "t.src"}, nil, isSrc)
	second := planner.Compute(g, []string(first), nil, isSrc)
	assert.Equal(t, []string(first), []string(second))
}

func TestComputeExplicitFirstWinsOverImplicit(t *testing.T) {
	g := newFakeGraph([][2]string{{"a.src", "t.src"}})
	plan := planner.Compute(g, []string{"a.src", "t.src"}, []string{"t.src"}, isSrc)
	assert.Equal(t, []string{"t.src", "a.src"}, []string(plan))
}

func TestComputeDropsExplicitFileFromImplicitParentsToAvoidDuplicate(t *testing.T) {
	g := newFakeGraph([][2]string{{"f.src", "e.src"}, {"h.src", "f.src"}})
	plan := planner.Compute(g, []string{"e.src", "f.src", "h.src"}, []string{"e.src"}, isSrc)
	assert.Equal(t, []string{"e.src", "f.src", "h.src"}, []string(plan))
}

func TestComputeIgnoresStaleExplicitEntry(t *testing.T) {
	g := newFakeGraph(nil)
	plan := planner.Compute(g, []string{"a.src"}, []string{"gone.src", "a.src"}, isSrc)
	assert.Equal(t, []string{"a.src"}, []string(plan))
}

func TestComputeEveryEdgeBetweenSourcesOrdersDependencyFirst(t *testing.T) {
	g := newFakeGraph([][2]string{{"a.src", "b.src"}, {"b.src", "c.src"}})
	plan := planner.Compute(g, []string{"a.src", "b.src", "c.src"}, nil, isSrc)
	assert.True(t, indexOf(plan, "b.src") < indexOf(plan, "a.src"))
	assert.True(t, indexOf(plan, "c.src") < indexOf(plan, "b.src"))
}

func TestComputeOrdersFanOutParentsAmongThemselvesByTheirOwnDependencies(t *testing.T) {
	g := newFakeGraph([][2]string{
		{"top.src", "f.src"},
		{"f.src", "g.src"},
		{"f.src", "h.src"},
		{"g.src", "h.src"},
	})
	plan := planner.Compute(g, []string{"top.src", "f.src", "g.src", "h.src"}, nil, isSrc)

	assert.True(t, indexOf(plan, "h.src") < indexOf(plan, "g.src"), "h.src must precede g.src (g.src depends on h.src), got %v", plan)
	assert.True(t, indexOf(plan, "g.src") < indexOf(plan, "f.src"), "g.src must precede f.src, got %v", plan)
	assert.True(t, indexOf(plan, "h.src") < indexOf(plan, "f.src"), "h.src must precede f.src, got %v", plan)
	assert.True(t, indexOf(plan, "f.src") < indexOf(plan, "top.src"), "f.src must precede top.src, got %v", plan)
}

func TestUOMergePreservesFirstOccurrenceOrderAndUnion(t *testing.T) {
	got := planner.UOMerge([]string{"x", "y", "x"}, []string{"z", "y", "w"})
	assert.Equal(t, []string{"x", "y", "z", "w"}, got)
}

func indexOf(plan planner.Plan, s string) int {
	for i, p := range plan {
		if p == s {
			return i
		}
	}
	return -1
}
