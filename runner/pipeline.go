package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/kralicky/forgec/reporter"
)

// PipelineConfig describes one generator pipeline: a uniform
// "source-extension -> target-extension with first-files list" stage
// the core delegates to, used for the xrl/yrl/mib-style generators.
type PipelineConfig struct {
	SourceDir  string
	SourceExt  string
	OutputDir  string
	OutputExt  string
	IncludeDir string
	FirstFiles []string
	Options    []string
	Compile    CompileFunc
}

// RunPipeline finds every source with SourceExt directly under
// SourceDir, orders it by FirstFiles (aborting if a declared first
// file is missing), and compiles each whose target is stale -- using
// the same mtime check as the main runner but with an empty parent
// set, since generator sources don't participate in the dependency
// graph.
func RunPipeline(cfg PipelineConfig) error {
	discovered, err := discoverSources(cfg.SourceDir, cfg.SourceExt)
	if err != nil {
		return fmt.Errorf("discovering %s sources under %s: %w", cfg.SourceExt, cfg.SourceDir, err)
	}

	order, err := orderWithFirstFiles(discovered, cfg.FirstFiles)
	if err != nil {
		return err
	}

	for _, source := range order {
		target := filepath.Join(cfg.OutputDir, strings.TrimSuffix(filepath.Base(source), cfg.SourceExt)+cfg.OutputExt)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("preparing output directory for %s: %w", source, err)
		}
		if !needsCompile(target, []string{source}) {
			continue
		}
		opts := CompileOptions{OutDir: filepath.Dir(target), IncludeDir: cfg.IncludeDir, Extra: cfg.Options}
		h := cfg.Compile(source, target, opts)
		if h != nil && h.HasErrors() {
			return fmt.Errorf("generating %s: %w", target, diagnosticsError(h))
		}
	}
	return nil
}

func discoverSources(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ext) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// orderWithFirstFiles puts firstFiles ahead of the rest of discovered,
// in the user's order, aborting with a configuration error if any
// declared first file is absent from discovered.
func orderWithFirstFiles(discovered []string, firstFiles []string) ([]string, error) {
	present := make(map[string]struct{}, len(discovered))
	for _, d := range discovered {
		present[d] = struct{}{}
	}
	seen := map[string]struct{}{}
	order := make([]string, 0, len(discovered))
	for _, f := range firstFiles {
		if _, ok := present[f]; !ok {
			return nil, fmt.Errorf("declared first file %q does not exist", f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		order = append(order, f)
	}
	for _, d := range discovered {
		if _, ok := seen[d]; ok {
			continue
		}
		order = append(order, d)
	}
	return order, nil
}

func diagnosticsError(h *reporter.Handler) error {
	var merr error
	for _, d := range h.Diagnostics() {
		if d.Severity == reporter.SeverityError {
			merr = multierror.Append(merr, d)
		}
	}
	return merr
}
