// Package runner implements the Build Runner: given the final compile
// plan, it decides per-source whether recompilation is needed from
// live filesystem mtimes and invokes the underlying (black-box)
// compiler.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/kralicky/forgec/reporter"
)

// Graph is the subset of graph.Graph the runner depends on: the
// transitive dependency set of a source (its "parents", per the
// glossary), used for the live-mtime recompile check.
type Graph interface {
	Descendants(path string) map[string]struct{}
}

// CompileOptions is what gets passed to the compiler for a single
// invocation: accumulated project options plus the per-invocation
// outdir/include-dir.
type CompileOptions struct {
	OutDir     string
	IncludeDir string
	Extra      []string
}

// CompileFunc is the black-box compiler, treated as an external
// collaborator: compile(source, options) -> ok | warnings | errors,
// reported through the returned Handler.
type CompileFunc func(source, target string, opts CompileOptions) *reporter.Handler

// Runner is the Build Runner.
type Runner struct {
	Graph Graph

	OutDir     string
	IncludeDir string
	TargetExt  string
	SourceExt  string
	Options    []string

	Compile CompileFunc

	// Parallel enables bounded concurrency within the Tail partition of
	// the plan only: every file before tailStart in Run still runs
	// strictly in order. Off by default, matching the reference design.
	Parallel       bool
	MaxParallelism int

	Logger *slog.Logger
}

// TargetPath computes the target path for source: the basename
// (minus the source extension) may contain "." separators denoting
// nested module namespaces, each becoming a path separator.
func (r *Runner) TargetPath(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), r.SourceExt)
	parts := strings.Split(base, ".")
	rel := filepath.Join(parts...) + r.TargetExt
	return filepath.Join(r.OutDir, rel)
}

// needsCompile reports whether target is stale: its live mtime is
// strictly less than the live mtime of S or any of its transitive
// parents. A missing target has mtime 0, so it is always out of date.
// The strict comparison is deliberate: on filesystems with one-second
// mtime resolution, a same-second write must still force a recompile.
func needsCompile(target string, sources []string) bool {
	targetTime := mtime(target)
	for _, s := range sources {
		if targetTime < mtime(s) {
			return true
		}
	}
	return false
}

func mtime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// parentsOf returns S's transitive dependencies from the graph, per
// the glossary's unfiltered "Parent of S" -- every include, behaviour,
// transform, import or file-origin dependency, not just other sources.
func (r *Runner) parentsOf(s string) []string {
	set := r.Graph.Descendants(s)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// Run executes plan in order. Every entry before tailStart runs
// strictly sequentially; entries from tailStart onward (the plan's
// Tail partition) run with bounded concurrency if r.Parallel is set.
func (r *Runner) Run(ctx context.Context, plan []string, tailStart int) (*reporter.Handler, error) {
	all := reporter.NewHandler()

	for _, s := range plan[:tailStart] {
		h, err := r.compileOne(s)
		if err != nil {
			return all, err
		}
		all.Merge(h)
	}

	tail := plan[tailStart:]
	var tailErr error
	if !r.Parallel || len(tail) < 2 {
		for _, s := range tail {
			h, err := r.compileOne(s)
			if err != nil {
				tailErr = multierror.Append(tailErr, err)
				continue
			}
			all.Merge(h)
		}
	} else {
		all2, err := r.runTailParallel(ctx, tail)
		all.Merge(all2)
		tailErr = err
	}

	if tailErr != nil {
		return all, tailErr
	}
	if all.HasErrors() {
		return all, reporter.ErrBuildFailed
	}
	return all, nil
}

func (r *Runner) runTailParallel(ctx context.Context, tail []string) (*reporter.Handler, error) {
	n := r.MaxParallelism
	if n <= 0 {
		n = runtime.GOMAXPROCS(-1)
	}
	sem := semaphore.NewWeighted(int64(n))

	handlers := make([]*reporter.Handler, len(tail))
	errs := make([]error, len(tail))
	var wg sync.WaitGroup
	for i, s := range tail {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			defer sem.Release(1)
			h, err := r.compileOne(s)
			handlers[i] = h
			errs[i] = err
		}(i, s)
	}
	wg.Wait()

	all := reporter.NewHandler()
	var merr error
	for i := range tail {
		if errs[i] != nil {
			merr = multierror.Append(merr, errs[i])
			continue
		}
		all.Merge(handlers[i])
	}
	return all, merr
}

func (r *Runner) compileOne(source string) (*reporter.Handler, error) {
	target := r.TargetPath(source)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("preparing output directory for %s: %w", source, err)
	}

	sources := append([]string{source}, r.parentsOf(source)...)
	if !needsCompile(target, sources) {
		r.Logger.Debug("up to date, skipping", "source", source, "target", target)
		return reporter.NewHandler(), nil
	}

	opts := CompileOptions{
		OutDir:     filepath.Dir(target),
		IncludeDir: r.IncludeDir,
		Extra:      r.Options,
	}
	h := r.Compile(source, target, opts)
	if h == nil {
		h = reporter.NewHandler()
	}
	switch h.Status() {
	case reporter.StatusError:
		r.Logger.Error("compile failed", "source", source)
	case reporter.StatusWarnings:
		r.Logger.Warn("compiled with warnings", "source", source)
	default:
		r.Logger.Info("compiled", "source", source)
	}
	return h, nil
}
