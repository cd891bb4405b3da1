// Package forgec is the root package: it wires the Attribute Scanner,
// Include Resolver, Dependency Graph Store, Graph Updater, Compile
// Planner, and Build Runner into the top-level glue -- source
// discovery, graph update and persistence, output-directory
// preparation, and load-path adjustment.
package forgec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kralicky/forgec/config"
	"github.com/kralicky/forgec/planner"
	"github.com/kralicky/forgec/reporter"
	"github.com/kralicky/forgec/runner"
)

// SourceExt is the source file extension this driver recognizes.
const SourceExt = ".erl"

// TargetExt is the compiled output extension.
const TargetExt = ".beam"

// Driver is the top-level orchestration object: one per build
// invocation, constructed by cmd/forgec from a loaded config.Options.
type Driver struct {
	ProjectDir string
	Options    *config.Options
	Libs       LibDirLookup

	Compile         runner.CompileFunc
	GeneratorCompile runner.CompileFunc

	LoadPath *LoadPath
	Logger   *slog.Logger
}

// cachePath returns the single per-project persisted-graph file path:
// one file per project at .<project>/<cache-file-name>.
func (d *Driver) cachePath() string {
	name := d.Options.CacheFileName
	if name == "" {
		name = "forgec.cache"
	}
	project := d.ProjectDir
	if abs, err := filepath.Abs(project); err == nil {
		project = abs
	}
	return filepath.Join(d.ProjectDir, "."+filepath.Base(project), name)
}

// DiscoverSources finds every SourceExt file directly under each
// configured source directory, in a stable (directory order, then
// lexicographic within a directory) order.
func (d *Driver) DiscoverSources() ([]string, error) {
	var sources []string
	for _, dir := range d.Options.SourceDirs {
		abs := filepath.Join(d.ProjectDir, dir)
		entries, err := os.ReadDir(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("discovering sources under %s: %w", abs, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), SourceExt) {
				continue
			}
			found = append(found, filepath.Join(abs, e.Name()))
		}
		sort.Strings(found)
		sources = append(sources, found...)
	}
	return sources, nil
}

// Run executes one full build: update the graph (persisting it there
// if it changed), plan, compile, and run the generator pipelines.
func (d *Driver) Run(ctx context.Context, cmd config.Command) (*reporter.Handler, error) {
	sources, err := d.DiscoverSources()
	if err != nil {
		return nil, err
	}
	absSources := make([]string, len(sources))
	for i, s := range sources {
		abs, err := filepath.Abs(s)
		if err != nil {
			return nil, fmt.Errorf("resolving absolute path for %s: %w", s, err)
		}
		absSources[i] = abs
	}

	includeRoots := absDirs(d.ProjectDir, d.Options.IncludeDirs)

	resolver := &FileResolver{IncludeRoots: includeRoots, Libs: d.Libs}
	updater := &Updater{Resolver: resolver, SourceExt: SourceExt, Logger: d.Logger}

	g := updater.UpdateGraph(d.cachePath(), includeRoots, absSources)

	outDir := d.outputDir(cmd)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("preparing output directory: %w", err)
	}

	release := d.LoadPath.Acquire(outDir)
	defer release()

	plan := planner.Compute(g, absSources, d.Options.FirstFiles(cmd), isSourceFile)
	tailStart := len(plan) // the reference design does not parallelize; callers opting into
	// parallelism would compute tailStart from ExplicitFirst+OrderedImplicit's length instead.

	rb := &runner.Runner{
		Graph:      g,
		OutDir:     outDir,
		IncludeDir: fixedIncludeDir,
		TargetExt:  TargetExt,
		SourceExt:  SourceExt,
		Options:    d.Options.CompileOpts(cmd),
		Compile:    d.Compile,
		Logger:     d.Logger,
	}

	h, err := rb.Run(ctx, plan, tailStart)
	if err != nil {
		return h, err
	}

	if err := d.runGeneratorPipelines(outDir); err != nil {
		return h, err
	}

	return h, nil
}

// runGeneratorPipelines runs the xrl/yrl/mib generator pipelines
// concurrently -- they are independent of each other and of the main
// build's dependency graph, so there is no ordering constraint
// between them, unlike the Build Runner's Tail partition.
func (d *Driver) runGeneratorPipelines(outDir string) error {
	pipelines := []runner.PipelineConfig{
		{
			SourceDir:  filepath.Join(d.ProjectDir, "src"),
			SourceExt:  ".xrl",
			OutputDir:  outDir,
			OutputExt:  ".erl",
			IncludeDir: fixedIncludeDir,
			FirstFiles: d.Options.XrlFirstFiles,
			Options:    d.Options.XrlOpts,
			Compile:    d.GeneratorCompile,
		},
		{
			SourceDir:  filepath.Join(d.ProjectDir, "src"),
			SourceExt:  ".yrl",
			OutputDir:  outDir,
			OutputExt:  ".erl",
			IncludeDir: fixedIncludeDir,
			FirstFiles: d.Options.YrlFirstFiles,
			Options:    d.Options.YrlOpts,
			Compile:    d.GeneratorCompile,
		},
		{
			SourceDir:  filepath.Join(d.ProjectDir, "mibs"),
			SourceExt:  ".mib",
			OutputDir:  filepath.Join(d.ProjectDir, "priv", "mibs", "bin"),
			OutputExt:  ".bin",
			IncludeDir: fixedIncludeDir,
			FirstFiles: d.Options.MibFirstFiles,
			Options:    d.Options.MibOpts,
			Compile:    d.GeneratorCompile,
		},
	}

	var eg errgroup.Group
	for _, cfg := range pipelines {
		cfg := cfg
		eg.Go(func() error {
			return runner.RunPipeline(cfg)
		})
	}
	return eg.Wait()
}

func (d *Driver) outputDir(cmd config.Command) string {
	base := d.Options.OutputDir
	if base == "" {
		base = "ebin"
	}
	if cmd == config.Test {
		base = filepath.Join(".eunit", base)
	}
	return filepath.Join(d.ProjectDir, base)
}

func isSourceFile(path string) bool {
	return strings.HasSuffix(path, SourceExt)
}

func absDirs(projectDir string, dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if filepath.IsAbs(d) {
			out = append(out, d)
		} else {
			out = append(out, filepath.Join(projectDir, d))
		}
	}
	return out
}
