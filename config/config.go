// Package config implements the project configuration surface: the
// recognized options and their effects, loaded with
// github.com/spf13/viper. The cobra CLI in cmd/forgec takes only the
// project directory and release string as flags; no Options field is
// set from a flag.
//
// Per-command option keys (<cmd>-first-files, <cmd>-compile-opts) are
// modeled as a fixed enum with a lookup table rather than constructed
// dynamically at runtime.
package config

import (
	"fmt"
	"regexp"

	"github.com/spf13/viper"
)

// Command identifies which build variant a set of first-files/
// compile-opts applies to.
type Command int

const (
	// Compile is the default build.
	Compile Command = iota
	// Test is the test-build variant: compiled into a distinct output
	// directory, with no-debug-info dropped from its options. Sources
	// are not copied anywhere.
	Test
)

func (c Command) String() string {
	switch c {
	case Test:
		return "test"
	default:
		return "compile"
	}
}

// commandKeys is the fixed lookup table the design note asks for:
// each command's first-files/compile-opts config keys, known at
// compile time instead of built by string concatenation at runtime.
// Load and FirstFiles do not consult it; they name the same keys and
// fields directly.
var commandKeys = map[Command]struct{ firstFiles, compileOpts string }{
	Compile: {firstFiles: "erl-first-files", compileOpts: "compiler-options"},
	Test:    {firstFiles: "test-first-files", compileOpts: "test-compile-opts"},
}

// PlatformDefine is one `platform-define(regex, name[, value])`
// entry: if Regex matches the platform string, Name (and optional
// Value) is added as a compiler define.
type PlatformDefine struct {
	Regex *regexp.Regexp
	Name  string
	Value string
}

// Matches reports whether d applies to platform, the caller-supplied
// "otp-release-sysarch-wordsize" string.
func (d PlatformDefine) Matches(platform string) bool {
	return d.Regex.MatchString(platform)
}

// Options is the full set of recognized project configuration.
type Options struct {
	CompilerOptions []string
	PlatformDefines []PlatformDefine

	IncludeDirs []string
	SourceDirs  []string
	OutputDir   string

	ErlFirstFiles []string

	XrlFirstFiles []string
	YrlFirstFiles []string
	MibFirstFiles []string
	XrlOpts       []string
	YrlOpts       []string
	MibOpts       []string

	TestFirstFiles  []string
	TestCompileOpts []string
	NoDebugInfo     bool
	CacheFileName   string
}

// FirstFiles returns the priority-files list for cmd: TestFirstFiles
// for Test, ErlFirstFiles otherwise.
func (o *Options) FirstFiles(cmd Command) []string {
	switch cmd {
	case Test:
		return o.TestFirstFiles
	default:
		return o.ErlFirstFiles
	}
}

// CompileOpts returns the accumulated compiler options for cmd: the
// base CompilerOptions, any matching platform-define entries as `-D`
// flags, plus any `<cmd>-compile-opts`, with `no-debug-info` filtered
// out for the Test command ("Debug info always present in
// test-variant builds").
func (o *Options) CompileOpts(cmd Command) []string {
	opts := append([]string{}, o.CompilerOptions...)
	opts = append(opts, platformDefineFlags(o.PlatformDefines)...)
	switch cmd {
	case Test:
		opts = append(opts, o.TestCompileOpts...)
		opts = filterOut(opts, "no-debug-info")
	}
	return opts
}

// platformDefineFlags renders each already-matched PlatformDefine as
// the `-D` flag erlc expects: `-DName` when Value is empty, else
// `-DName=Value`.
func platformDefineFlags(defines []PlatformDefine) []string {
	flags := make([]string, 0, len(defines))
	for _, d := range defines {
		if d.Value == "" {
			flags = append(flags, "-D"+d.Name)
		} else {
			flags = append(flags, "-D"+d.Name+"="+d.Value)
		}
	}
	return flags
}

func filterOut(opts []string, drop string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if o == drop {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Load populates Options from the forgec config file in projectDir,
// applying defaults when no such file exists. No user-level config
// file and no environment variables are read.
func Load(v *viper.Viper, projectDir string) (*Options, error) {
	v.SetConfigName("forgec")
	v.AddConfigPath(projectDir)
	v.SetDefault("source-dirs", []string{"src"})
	v.SetDefault("output-dir", "ebin")
	v.SetDefault("cache-file-name", "forgec.cache")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading forgec config: %w", err)
		}
	}

	opts := &Options{
		CompilerOptions: v.GetStringSlice("compiler-options"),
		IncludeDirs:     v.GetStringSlice("include-dirs"),
		SourceDirs:      v.GetStringSlice("source-dirs"),
		OutputDir:       v.GetString("output-dir"),
		ErlFirstFiles:   v.GetStringSlice("erl-first-files"),
		XrlFirstFiles:   v.GetStringSlice("xrl-first-files"),
		YrlFirstFiles:   v.GetStringSlice("yrl-first-files"),
		MibFirstFiles:   v.GetStringSlice("mib-first-files"),
		XrlOpts:         v.GetStringSlice("xrl-opts"),
		YrlOpts:         v.GetStringSlice("yrl-opts"),
		MibOpts:         v.GetStringSlice("mib-opts"),
		TestFirstFiles:  v.GetStringSlice("test-first-files"),
		TestCompileOpts: v.GetStringSlice("test-compile-opts"),
		NoDebugInfo:     v.GetBool("no-debug-info"),
		CacheFileName:   v.GetString("cache-file-name"),
	}

	for _, raw := range v.GetStringSlice("platform-defines") {
		// Each entry is read from the project file as a "regex=name" or
		// "regex=name=value" string; the regex part must not contain '='.
		re, name, value, err := parsePlatformDefine(raw)
		if err != nil {
			return nil, err
		}
		opts.PlatformDefines = append(opts.PlatformDefines, PlatformDefine{Regex: re, Name: name, Value: value})
	}

	return opts, nil
}

func parsePlatformDefine(raw string) (*regexp.Regexp, string, string, error) {
	parts := splitN(raw, '=', 3)
	if len(parts) < 2 {
		return nil, "", "", fmt.Errorf("malformed platform-define %q: expected regex=name[=value]", raw)
	}
	re, err := regexp.Compile(parts[0])
	if err != nil {
		return nil, "", "", fmt.Errorf("platform-define %q: %w", raw, err)
	}
	value := ""
	if len(parts) == 3 {
		value = parts[2]
	}
	return re, parts[1], value, nil
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
