// Package scanner implements the Attribute Scanner: it reads a
// source file's leading declarations and extracts the raw references
// those declarations make to other files and modules, without
// resolving or validating them.
//
// The scanner is deliberately naive about syntax it doesn't care
// about. It does not implement a full grammar for the source
// language; it only needs to recognize a handful of top-level
// attribute forms and pull the file/module atoms out of their
// argument lists, in the spirit of the line-oriented, regexp-driven
// directive scanning used for a similar purpose in
// keurnel-assembler's preprocessor (pre_processing.go,
// PreProcessingHandleIncludes) rather than the full tokenizing lexer
// a real grammar would need.
package scanner

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies which attribute produced a Reference, and therefore
// how the reference must be turned into a file name.
type Kind int

const (
	// KindInclude is a literal header path from `-include("path").`
	KindInclude Kind = iota
	// KindIncludeLib is a library-relative path from
	// `-include_lib("lib/path").`, flagged for library expansion.
	KindIncludeLib
	// KindImport names a module imported with `-import(mod, [...]).`
	KindImport
	// KindBehaviour names a module implemented with `-behaviour(mod).`
	KindBehaviour
	// KindFile is a literal path from a `-file("path", Line).` annotation.
	KindFile
	// KindParseTransform names a module used as
	// `-compile({parse_transform, M}).`
	KindParseTransform
	// KindCoreTransform names a module used as
	// `-compile({core_transform, M}).`
	KindCoreTransform
)

func (k Kind) String() string {
	switch k {
	case KindInclude:
		return "include"
	case KindIncludeLib:
		return "include_lib"
	case KindImport:
		return "import"
	case KindBehaviour:
		return "behaviour"
	case KindFile:
		return "file"
	case KindParseTransform:
		return "parse_transform"
	case KindCoreTransform:
		return "core_transform"
	default:
		return "unknown"
	}
}

// Reference is one raw, unresolved reference extracted from a form.
// Raw is either a literal path (Kind one of Include, IncludeLib,
// File) or a bare module atom (Kind one of Import, Behaviour,
// ParseTransform, CoreTransform) that the caller must append the
// configured source extension to.
type Reference struct {
	Kind Kind
	Raw  string
	Line int
}

// IsModuleAtom reports whether Raw names a module (and therefore needs
// the source extension appended) as opposed to a literal path.
func (r Reference) IsModuleAtom() bool {
	switch r.Kind {
	case KindImport, KindBehaviour, KindParseTransform, KindCoreTransform:
		return true
	default:
		return false
	}
}

var attrHeadRe = regexp.MustCompile(`^-\s*([A-Za-z_]\w*)\s*\(`)

// Scan extracts every reference from src's top-level attribute forms.
// Malformed individual forms are skipped, not fatal: the returned
// errs slice records what was skipped, for the caller to log. Scan
// never follows a reference; it is pure with respect to src's bytes.
func Scan(src []byte) (refs []Reference, errs []error) {
	forms := splitForms(string(src))
	for _, f := range forms {
		head := attrHeadRe.FindStringSubmatch(f.text)
		if head == nil {
			continue
		}
		name := head[1]
		argsStart := len(head[0])
		args, ok := balancedArgs(f.text, argsStart)
		if !ok {
			errs = append(errs, fmt.Errorf("line %d: unterminated %q attribute", f.line, name))
			continue
		}
		switch name {
		case "include":
			if path, ok := firstString(args); ok {
				refs = append(refs, Reference{Kind: KindInclude, Raw: path, Line: f.line})
			} else {
				errs = append(errs, fmt.Errorf("line %d: include: expected a string literal", f.line))
			}
		case "include_lib":
			if path, ok := firstString(args); ok {
				refs = append(refs, Reference{Kind: KindIncludeLib, Raw: path, Line: f.line})
			} else {
				errs = append(errs, fmt.Errorf("line %d: include_lib: expected a string literal", f.line))
			}
		case "file":
			if path, ok := firstString(args); ok {
				refs = append(refs, Reference{Kind: KindFile, Raw: path, Line: f.line})
			} else {
				errs = append(errs, fmt.Errorf("line %d: file: expected a string literal", f.line))
			}
		case "import":
			if mod, ok := firstAtom(args); ok {
				refs = append(refs, Reference{Kind: KindImport, Raw: mod, Line: f.line})
			} else {
				errs = append(errs, fmt.Errorf("line %d: import: expected a module atom", f.line))
			}
		case "behaviour", "behavior":
			if mod, ok := firstAtom(args); ok {
				refs = append(refs, Reference{Kind: KindBehaviour, Raw: mod, Line: f.line})
			} else {
				errs = append(errs, fmt.Errorf("line %d: behaviour: expected a module atom", f.line))
			}
		case "compile":
			refs = append(refs, scanCompileTransforms(args, f.line)...)
		}
	}
	return refs, errs
}

var transformRe = regexp.MustCompile(`\{\s*(parse_transform|core_transform)\s*,\s*([A-Za-z_]\w*)\s*\}`)

// scanCompileTransforms pulls every {parse_transform, M} and
// {core_transform, M} tuple out of a -compile(...) argument list,
// whether it is a single tuple or a list of them.
func scanCompileTransforms(args string, line int) []Reference {
	var refs []Reference
	for _, m := range transformRe.FindAllStringSubmatch(args, -1) {
		kind := KindParseTransform
		if m[1] == "core_transform" {
			kind = KindCoreTransform
		}
		refs = append(refs, Reference{Kind: kind, Raw: m[2], Line: line})
	}
	return refs
}

type form struct {
	text string
	line int
}

// splitForms breaks src into top-level "-name(...)." forms, tracking
// line numbers and skipping over string literals and comments so
// that parens and dots inside them don't confuse depth tracking.
// Scanning stops at end-of-file; an unterminated trailing form is
// simply dropped.
func splitForms(src string) []form {
	var forms []form
	line := 1
	i := 0
	n := len(src)
	for i < n {
		// advance to the next top-level '-' that starts a form
		for i < n && !(src[i] == '-' && atLineStart(src, i)) {
			if src[i] == '\n' {
				line++
			}
			i++
		}
		if i >= n {
			break
		}
		start := i
		startLine := line
		depth := 0
		inString := false
		seenOpen := false
		for i < n {
			c := src[i]
			switch {
			case inString:
				if c == '\\' && i+1 < n {
					i++
				} else if c == '"' {
					inString = false
				}
			case c == '%':
				// line comment: skip to end of line
				for i < n && src[i] != '\n' {
					i++
				}
				continue
			case c == '"':
				inString = true
			case c == '(':
				depth++
				seenOpen = true
			case c == ')':
				depth--
			case c == '.' && seenOpen && depth == 0:
				forms = append(forms, form{text: src[start : i+1], line: startLine})
				i++
				goto next
			case c == '\n':
				line++
			}
			i++
		}
		// unterminated form at EOF: drop it, per "scanning stops at EOF"
		return forms
	next:
	}
	return forms
}

func atLineStart(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case ' ', '\t':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return true
}

// balancedArgs returns the substring between the parenthesis opened at
// argsStart-1 and its match, exclusive of both parens.
func balancedArgs(text string, argsStart int) (string, bool) {
	depth := 1
	inString := false
	i := argsStart
	for i < len(text) {
		c := text[i]
		switch {
		case inString:
			if c == '\\' && i+1 < len(text) {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return text[argsStart:i], true
			}
		}
		i++
	}
	return "", false
}

var stringLitRe = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

func firstString(args string) (string, bool) {
	m := stringLitRe.FindStringSubmatch(args)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], `\"`, `"`), true
}

var atomRe = regexp.MustCompile(`^\s*'?([A-Za-z_][\w@]*)'?`)

func firstAtom(args string) (string, bool) {
	m := atomRe.FindStringSubmatch(args)
	if m == nil {
		return "", false
	}
	return m[1], true
}
