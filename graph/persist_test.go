package graph_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kralicky/forgec/graph"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "forgec.db")
	roots := []string{"/project/include"}

	g := graph.New()
	g.Upsert("a.erl", 10)
	g.Upsert("b.hrl", 20)
	g.AddEdge("a.erl", "b.hrl")

	require.NoError(t, graph.Save(cachePath, g, roots))

	loaded := graph.Load(discardLogger(), cachePath, roots)
	assert.ElementsMatch(t, []string{"a.erl", "b.hrl"}, loaded.Vertices())
	assert.Equal(t, graph.Timestamp(10), loaded.ModTime("a.erl"))
	assert.Contains(t, loaded.Descendants("a.erl"), "b.hrl")
}

func TestLoadDiscardsCacheBuiltUnderDifferentIncludeRoots(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "forgec.db")

	g := graph.New()
	g.Upsert("a.erl", 1)
	require.NoError(t, graph.Save(cachePath, g, []string{"/old/include"}))

	loaded := graph.Load(discardLogger(), cachePath, []string{"/new/include"})
	assert.Empty(t, loaded.Vertices())
}

func TestLoadOfMissingFileReturnsEmptyGraphWithoutError(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "does-not-exist.db")

	loaded := graph.Load(discardLogger(), cachePath, nil)
	assert.Empty(t, loaded.Vertices())
}

func TestLoadOfCorruptFileDiscardsAndReturnsEmptyGraph(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "forgec.db")
	require.NoError(t, os.WriteFile(cachePath, []byte("not a bbolt file"), 0o644))

	loaded := graph.Load(discardLogger(), cachePath, nil)
	assert.Empty(t, loaded.Vertices())
	_, err := os.Stat(cachePath)
	assert.True(t, os.IsNotExist(err), "corrupt cache should be removed")
}
