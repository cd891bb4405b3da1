package graph

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion guards against loading a cache written by an
// incompatible version of this tool. It is part of the cache's
// identity alongside the vertex/edge set and include_roots.
const SchemaVersion = 1

var bucketName = []byte("graph")
var stateKey = []byte("state")

type persistedVertex struct {
	Path    string    `json:"path"`
	ModTime Timestamp `json:"mod_time"`
}

type persistedEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type persisted struct {
	SchemaVersion int               `json:"schema_version"`
	IncludeRoots  []string          `json:"include_roots"`
	Vertices      []persistedVertex `json:"vertices"`
	Edges         []persistedEdge   `json:"edges"`
}

// Load restores a graph previously persisted at cachePath, provided it
// was built under the same includeRoots. Loading is a recoverable
// operation: a missing file, corrupt contents, a schema mismatch, or
// a different include_roots all just discard the cache and return an
// empty graph, never an error.
func Load(logger *slog.Logger, cachePath string, includeRoots []string) *Graph {
	db, err := bolt.Open(cachePath, 0o644, &bolt.Options{ReadOnly: true})
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("discarding unreadable build graph cache", "path", cachePath, "error", err)
			_ = os.Remove(cachePath)
		}
		return New()
	}
	defer db.Close()

	var raw []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return errors.New("no graph bucket")
		}
		v := b.Get(stateKey)
		if v == nil {
			return errors.New("no graph state")
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		logger.Warn("discarding empty build graph cache", "path", cachePath, "error", err)
		_ = os.Remove(cachePath)
		return New()
	}

	p, err := decode(raw)
	if err != nil {
		logger.Warn("discarding corrupt build graph cache", "path", cachePath, "error", err)
		_ = os.Remove(cachePath)
		return New()
	}

	if p.SchemaVersion != SchemaVersion || !sameRoots(p.IncludeRoots, includeRoots) {
		logger.Warn("discarding build graph cache built under different parameters", "path", cachePath)
		_ = os.Remove(cachePath)
		return New()
	}

	g := New()
	for _, v := range p.Vertices {
		g.Upsert(v.Path, v.ModTime)
	}
	for _, e := range p.Edges {
		g.AddEdge(e.From, e.To)
	}
	return g
}

// Save persists g to cachePath under includeRoots, overwriting
// whatever was there before. The write happens inside a single bbolt
// transaction, so a process killed mid-save leaves either the old or
// the new contents in place; a torn write would simply fail to decode
// on the next Load and be treated like any other corrupt cache.
func Save(cachePath string, g *Graph, includeRoots []string) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return fmt.Errorf("creating build graph cache directory: %w", err)
	}
	p := persisted{
		SchemaVersion: SchemaVersion,
		IncludeRoots:  includeRoots,
	}
	for _, path := range g.Vertices() {
		p.Vertices = append(p.Vertices, persistedVertex{Path: path, ModTime: g.ModTime(path)})
	}
	for _, e := range g.Edges() {
		p.Edges = append(p.Edges, persistedEdge{From: e.From, To: e.To})
	}
	raw, err := encode(p)
	if err != nil {
		return fmt.Errorf("encoding build graph: %w", err)
	}

	db, err := bolt.Open(cachePath, 0o644, nil)
	if err != nil {
		return fmt.Errorf("opening build graph cache: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(stateKey, raw)
	})
}

func encode(p persisted) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gw).Encode(p); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) (persisted, error) {
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return persisted{}, err
	}
	defer gr.Close()
	var p persisted
	if err := json.NewDecoder(gr).Decode(&p); err != nil {
		return persisted{}, err
	}
	return p, nil
}

func sameRoots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
