package fs

import (
	"path/filepath"
	"strings"
)

// excludePattern is a parsed exclude pattern with its matching strategy.
type excludePattern struct {
	glob      string
	matchPath bool // match the path relative to the subject instead of the basename
}

// ExcludeMatcher decides which entries a backup walk leaves out.
// Patterns without '/' match the entry's basename at any depth. Patterns
// containing '/' match the whole path relative to the subject, and a
// leading '/' is ignored. An excluded directory is not descended into.
type ExcludeMatcher struct {
	patterns []excludePattern
}

// NewExcludeMatcher parses raw patterns, skipping blanks and '#' comments.
// Malformed globs are dropped.
func NewExcludeMatcher(raw []string) *ExcludeMatcher {
	var patterns []excludePattern
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		p = strings.TrimSuffix(p, "/")
		if _, err := filepath.Match(p, ""); err != nil {
			continue
		}
		if strings.Contains(p, "/") {
			patterns = append(patterns, excludePattern{glob: strings.TrimPrefix(p, "/"), matchPath: true})
			continue
		}
		patterns = append(patterns, excludePattern{glob: p})
	}
	return &ExcludeMatcher{patterns: patterns}
}

// Match reports whether relativePath is excluded. The subject itself ("."
// or "") is never excluded.
func (m *ExcludeMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 || relativePath == "" || relativePath == "." {
		return false
	}

	rel := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)
	for _, p := range m.patterns {
		target := base
		if p.matchPath {
			target = rel
		}
		if ok, _ := filepath.Match(p.glob, target); ok {
			return true
		}
	}
	return false
}
