package forgec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kralicky/forgec/scanner"
)

// fakeFS lets tests declare which paths "exist" without touching disk.
type fakeFS map[string]bool

func (f fakeFS) stat(path string) (os.FileInfo, error) {
	if f[path] {
		return fakeFileInfo{}, nil
	}
	return nil, os.ErrNotExist
}

type fakeFileInfo struct{ os.FileInfo }

func (fakeFileInfo) Mode() os.FileMode { return 0o644 }

func TestResolveRule1WinsOverIncludeDir(t *testing.T) {
	fs := fakeFS{
		"a.hrl":         true,
		"include/a.hrl": true,
	}
	r := &FileResolver{stat: fs.stat}
	got, ok := r.Resolve(scanner.Reference{Kind: scanner.KindInclude, Raw: "a.hrl"}, "src", ".src")
	require.True(t, ok)
	want, _ := r.abs("a.hrl")
	assert.Equal(t, want, got)
}

func TestResolveSearchesSourceDirThenIncludeThenRoots(t *testing.T) {
	fs := fakeFS{
		"extra/b.hrl": true,
	}
	r := &FileResolver{IncludeRoots: []string{"extra"}, stat: fs.stat}
	got, ok := r.Resolve(scanner.Reference{Kind: scanner.KindInclude, Raw: "b.hrl"}, "src", ".src")
	require.True(t, ok)
	want, _ := r.abs("extra/b.hrl")
	assert.Equal(t, want, got)
}

func TestResolveModuleAtomGetsSourceExtension(t *testing.T) {
	fs := fakeFS{"src/t.src": true}
	r := &FileResolver{stat: fs.stat}
	got, ok := r.Resolve(scanner.Reference{Kind: scanner.KindParseTransform, Raw: "t"}, "src", ".src")
	require.True(t, ok)
	want, _ := r.abs("src/t.src")
	assert.Equal(t, want, got)
}

func TestResolveLibReference(t *testing.T) {
	fs := fakeFS{"/libs/kernel-1.0/include/file.hrl": true}
	r := &FileResolver{
		stat: fs.stat,
		Libs: LibDirLookupFunc(func(lib string) (string, bool) {
			if lib == "kernel" {
				return "/libs/kernel-1.0", true
			}
			return "", false
		}),
	}
	got, ok := r.Resolve(scanner.Reference{Kind: scanner.KindIncludeLib, Raw: "kernel/include/file.hrl"}, "src", ".src")
	require.True(t, ok)
	assert.Equal(t, "/libs/kernel-1.0/include/file.hrl", got)
}

func TestResolveMissDropsSilently(t *testing.T) {
	r := &FileResolver{stat: fakeFS{}.stat}
	_, ok := r.Resolve(scanner.Reference{Kind: scanner.KindInclude, Raw: "nope.hrl"}, "src", ".src")
	assert.False(t, ok)
}
