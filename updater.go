package forgec

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kralicky/forgec/graph"
	"github.com/kralicky/forgec/scanner"
)

// Updater brings a Graph into sync with the filesystem given a set of
// discovered sources and the current include roots, scanning and
// recursively resolving transitively reachable headers as it goes.
//
// It lives in the root package rather than alongside graph.Graph
// because it needs both the scanner and a FileResolver, and the
// driver package already needs to import graph -- putting the updater
// inside graph would close that import loop.
type Updater struct {
	Resolver  *FileResolver
	SourceExt string
	Logger    *slog.Logger
}

// UpdateGraph restores g's persisted copy from cachePath (if one
// exists and matches includeRoots), brings it in sync with sources on
// disk, and persists it again if anything changed. It returns the
// graph to use for planning.
func (u *Updater) UpdateGraph(cachePath string, includeRoots []string, sources []string) *graph.Graph {
	g := graph.Load(u.Logger, cachePath, includeRoots)

	// The candidate directory list used to resolve every include in
	// this pass is wider than any single source's own configured
	// include roots -- it also folds in every other discovered
	// source's directory, so a header colocated with a different
	// source still resolves.
	u.Resolver.IncludeRoots = candidateDirs(includeRoots, sources)

	modified := false
	for _, s := range sources {
		if u.updateVertex(g, s) {
			modified = true
		}
	}

	// Drop every vertex whose file no longer exists, including headers
	// that no source reaches any more after a rescan.
	for _, v := range g.Vertices() {
		if graph.Stat(v) == graph.NoTimestamp {
			g.Delete(v)
			modified = true
		}
	}

	if modified {
		if err := graph.Save(cachePath, g, includeRoots); err != nil {
			u.Logger.Error("failed to persist build graph", "path", cachePath, "error", err)
		}
	}
	return g
}

// candidateDirs computes the deduplicated search-directory list used
// for includes: "include", every configured include root, then every
// source's own directory, in that order.
func candidateDirs(includeRoots []string, sources []string) []string {
	seen := map[string]struct{}{}
	var dirs []string
	add := func(d string) {
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		dirs = append(dirs, d)
	}
	add(fixedIncludeDir)
	for _, r := range includeRoots {
		add(r)
	}
	for _, s := range sources {
		add(filepath.Dir(s))
	}
	return dirs
}

// updateVertex brings a single vertex up to date and reports whether
// it modified the graph. The candidate directory list is held on
// u.Resolver for the duration of the pass rather than threaded as a
// parameter.
func (u *Updater) updateVertex(g *graph.Graph, f string) bool {
	if !g.Has(f) {
		u.discover(g, f)
		return true
	}

	live := graph.Stat(f)
	if live == graph.NoTimestamp {
		g.Delete(f)
		return true
	}

	if live > g.ModTime(f) {
		u.rescan(g, f, live)
		return true
	}

	// Unchanged mtime: assume the same references and don't recurse.
	// Transitive headers may still have changed; that's why recompile
	// decisions re-read live mtimes of transitive parents instead of
	// trusting this vertex's timestamp.
	return false
}

// discover handles a file seen for the first time: record it, scan
// it, and recursively bring each resolved reference up to date before
// linking the edge.
func (u *Updater) discover(g *graph.Graph, f string) {
	g.Upsert(f, graph.Stat(f))
	u.linkReferences(g, f)
}

// rescan handles a known vertex whose mtime has advanced: replace its
// outgoing edges with whatever the current contents reference. The
// timestamp is recorded before recursing, matching discover, so that
// a cyclic reference back to f during the same pass sees it as
// already up to date instead of recursing forever.
func (u *Updater) rescan(g *graph.Graph, f string, live graph.Timestamp) {
	g.Upsert(f, live)
	g.ClearOutgoing(f)
	u.linkReferences(g, f)
}

func (u *Updater) linkReferences(g *graph.Graph, f string) {
	src, err := os.ReadFile(f)
	if err != nil {
		u.Logger.Warn("could not read source while updating build graph", "file", f, "error", err)
		return
	}

	refs, errs := scanner.Scan(src)
	for _, e := range errs {
		u.Logger.Warn("skipped malformed form while scanning", "file", f, "error", e)
	}

	sourceDir := filepath.Dir(f)
	for _, ref := range refs {
		resolved, ok := u.Resolver.Resolve(ref, sourceDir, u.SourceExt)
		if !ok {
			continue
		}
		u.updateVertex(g, resolved)
		g.AddEdge(f, resolved)
	}
}
