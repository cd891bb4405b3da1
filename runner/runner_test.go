package runner_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kralicky/forgec/reporter"
	"github.com/kralicky/forgec/runner"
)

type fakeGraph map[string][]string

func (g fakeGraph) Descendants(path string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range g[path] {
		out[p] = struct{}{}
	}
	return out
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRunner(t *testing.T, dir string, g runner.Graph, compile runner.CompileFunc) *runner.Runner {
	return &runner.Runner{
		Graph:      g,
		OutDir:     dir,
		IncludeDir: "include",
		TargetExt:  ".out",
		SourceExt:  ".src",
		Compile:    compile,
		Logger:     discardLogger(),
	}
}

func TestRunCompilesOnlyStaleSources(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.src")
	require.NoError(t, os.WriteFile(a, []byte("src"), 0o644))

	var calls []string
	r := newRunner(t, dir, fakeGraph{}, func(source, target string, opts runner.CompileOptions) *reporter.Handler {
		calls = append(calls, source)
		require.NoError(t, os.WriteFile(target, []byte("compiled"), 0o644))
		return reporter.NewHandler()
	})

	_, err := r.Run(context.Background(), []string{a}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, calls)

	// Second run: target now newer than source, should be skipped.
	_, err = r.Run(context.Background(), []string{a}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, calls, "unchanged source must not be recompiled")
}

func TestRunRecompilesWhenParentTouched(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.src")
	hrl := filepath.Join(dir, "a.hrl")
	require.NoError(t, os.WriteFile(a, []byte("src"), 0o644))
	require.NoError(t, os.WriteFile(hrl, []byte("hdr"), 0o644))

	var calls int
	r := newRunner(t, dir, fakeGraph{a: {hrl}}, func(source, target string, opts runner.CompileOptions) *reporter.Handler {
		calls++
		require.NoError(t, os.WriteFile(target, []byte("compiled"), 0o644))
		return reporter.NewHandler()
	})

	_, err := r.Run(context.Background(), []string{a}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(hrl, future, future))

	_, err = r.Run(context.Background(), []string{a}, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "touching a parent header must force recompilation")
}

func TestRunSurfacesCompileErrorsAsBuildFailed(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.src")
	require.NoError(t, os.WriteFile(a, []byte("src"), 0o644))

	r := newRunner(t, dir, fakeGraph{}, func(source, target string, opts runner.CompileOptions) *reporter.Handler {
		h := reporter.NewHandler()
		h.Errorf(source, 1, "syntax error")
		return h
	})

	h, err := r.Run(context.Background(), []string{a}, 1)
	require.ErrorIs(t, err, reporter.ErrBuildFailed)
	assert.Equal(t, reporter.StatusError, h.Status())
}

func TestTargetPathTranslatesDottedModuleToPathSeparators(t *testing.T) {
	r := &runner.Runner{OutDir: "ebin", SourceExt: ".src", TargetExt: ".out"}
	got := r.TargetPath(filepath.Join("src", "pkg.sub.module.src"))
	want := filepath.Join("ebin", "pkg", "sub", "module.out")
	assert.Equal(t, want, got)
}
