// Package glob compiles include/exclude pattern sets for watch roots. It
// is a thin, engine-specific layer over gobwas/glob: patterns are always
// anchored to the watch root (no config-file loading, no negation
// precedence rules beyond "any matching exclude wins over a matching
// include") since the full ignore-file grammar is out of this engine's
// scope.
package glob

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludes are applied to every watch root in addition to any
// caller-supplied excludes, matching the defaults most JS bundlers expect.
var DefaultExcludes = []string{"**/node_modules/**", "**/.git/**"}

// Set is a compiled include/exclude pattern pair for one watch root.
// A relative path (forward-slash separated, relative to the watch root)
// is included when it matches no exclude pattern, and either the include
// set is empty or it matches at least one include pattern.
type Set struct {
	includes []glob.Glob
	excludes []glob.Glob
}

// Compile builds a Set from raw glob strings. Invalid patterns are
// reported with the offending pattern in the error.
func Compile(includes, excludes []string) (*Set, error) {
	s := &Set{}
	for _, p := range includes {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &PatternError{Pattern: p, Err: err}
		}
		s.includes = append(s.includes, g)
	}
	all := append(append([]string(nil), excludes...), DefaultExcludes...)
	for _, p := range all {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &PatternError{Pattern: p, Err: err}
		}
		s.excludes = append(s.excludes, g)
	}
	return s, nil
}

// PatternError wraps a glob compilation failure with the source pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "glob: invalid pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error { return e.Err }

// Match reports whether rel (a path relative to the watch root, using
// forward slashes) should be observed.
func (s *Set) Match(rel string) bool {
	rel = toSlash(rel)
	// gobwas/glob's "**/x/**" compiles to a literal contains("/x/") test,
	// so a segment named x at depth zero (rel == "x/..." with no leading
	// slash) never matches. Testing the root-anchored form alongside the
	// bare relative form makes "**/node_modules/**" exclude a top-level
	// node_modules the same as a nested one.
	anchored := "/" + rel
	if anyMatch(s.excludes, rel) || anyMatch(s.excludes, anchored) {
		return false
	}
	if len(s.includes) == 0 {
		return true
	}
	return anyMatch(s.includes, rel) || anyMatch(s.includes, anchored)
}

func anyMatch(patterns []glob.Glob, p string) bool {
	for _, g := range patterns {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// MatchAbs is a convenience wrapper that first makes abs relative to root
// using path semantics (both must already be slash-separated and
// cleaned).
func (s *Set) MatchAbs(root, abs string) bool {
	rel, err := relSlash(root, abs)
	if err != nil {
		return s.Match(abs)
	}
	return s.Match(rel)
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func relSlash(root, abs string) (string, error) {
	root = toSlash(root)
	abs = toSlash(abs)
	if !strings.HasPrefix(abs, root) {
		return "", errNotPrefixed
	}
	rel := strings.TrimPrefix(abs, root)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = "."
	}
	return path.Clean(rel), nil
}

var errNotPrefixed = &relError{}

type relError struct{}

func (*relError) Error() string { return "glob: path is not under root" }
