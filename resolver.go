package forgec

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kralicky/forgec/scanner"
)

// LibDirLookup resolves a library name to the root of its install
// directory. It is an external collaborator: this driver never
// searches for libraries itself, it only asks. A nil LibDirLookup
// means library-relative references never resolve, which is the same
// outcome as one that always returns ok=false.
type LibDirLookup interface {
	LibDir(lib string) (root string, ok bool)
}

// LibDirLookupFunc adapts a plain function to LibDirLookup.
type LibDirLookupFunc func(lib string) (string, bool)

func (f LibDirLookupFunc) LibDir(lib string) (string, bool) { return f(lib) }

// fixedIncludeDir is the literal "include" directory: searched after a
// source's own directory and before the configured include roots, and
// passed to the compiler as its include directory.
const fixedIncludeDir = "include"

// FileResolver implements the Include Resolver: it maps a raw
// scanner.Reference to zero or one absolute path.
type FileResolver struct {
	// IncludeRoots are the caller-configured extra search directories,
	// tried in order after the source's own directory and "include".
	IncludeRoots []string
	// Libs resolves library-relative references (scanner.KindIncludeLib).
	// May be nil.
	Libs LibDirLookup

	// stat is overridable for tests; defaults to os.Stat.
	stat func(string) (os.FileInfo, error)
}

func (r *FileResolver) statFn() func(string) (os.FileInfo, error) {
	if r.stat != nil {
		return r.stat
	}
	return os.Stat
}

func (r *FileResolver) isRegularFile(path string) bool {
	info, err := r.statFn()(path)
	return err == nil && info.Mode().IsRegular()
}

func (r *FileResolver) abs(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	return abs, true
}

// Resolve maps ref to an absolute path, or reports ok=false if it
// drops silently (no candidate path exists anywhere in the search
// order). sourceDir is the directory of the file that contains ref;
// sourceExt is appended to module atoms (import/behaviour/
// parse_transform/core_transform references) to turn them into file
// names.
func (r *FileResolver) Resolve(ref scanner.Reference, sourceDir, sourceExt string) (string, bool) {
	raw := ref.Raw
	if ref.IsModuleAtom() {
		raw += sourceExt
	}

	// Rule 1: the reference already resolves as given.
	if r.isRegularFile(raw) {
		if abs, ok := r.abs(raw); ok {
			return abs, true
		}
	}

	// Rule 2: search the source's own directory, "include", then each
	// configured include root, in that order.
	candidateDirs := make([]string, 0, 2+len(r.IncludeRoots))
	candidateDirs = append(candidateDirs, sourceDir, fixedIncludeDir)
	candidateDirs = append(candidateDirs, r.IncludeRoots...)
	for _, dir := range candidateDirs {
		candidate := filepath.Join(dir, raw)
		if r.isRegularFile(candidate) {
			if abs, ok := r.abs(candidate); ok {
				return abs, true
			}
		}
	}

	// Rule 3: library-relative references consult the external lookup.
	if ref.Kind == scanner.KindIncludeLib {
		if abs, ok := r.resolveLib(raw); ok {
			return abs, true
		}
	}

	// Rule 4: drop silently. A reference to a standard-library header
	// (e.g. a generic behaviour) would never resolve in the project
	// tree, and the real compiler will find it on its own library path.
	return "", false
}

func (r *FileResolver) resolveLib(raw string) (string, bool) {
	if r.Libs == nil {
		return "", false
	}
	lib, rest, ok := strings.Cut(raw, "/")
	if !ok || rest == "" {
		return "", false
	}
	root, ok := r.Libs.LibDir(lib)
	if !ok {
		return "", false
	}
	candidate := filepath.Join(root, rest)
	if !r.isRegularFile(candidate) {
		return "", false
	}
	return r.abs(candidate)
}
