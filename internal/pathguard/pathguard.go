// Package pathguard enforces the filesystem allow-list consulted before any
// filesystem tool executes.
package pathguard

import (
	"os"
	"path/filepath"
	"strings"
)

// Checker answers whether a path may be touched by agent tools. A path is
// allowed when it resolves under one of the configured roots or matches one
// of the extra glob patterns.
type Checker struct {
	roots    []string
	patterns []string
}

// New builds a Checker. Roots are resolved to absolute paths up front;
// patterns are filepath.Match globs applied to the resolved path.
func New(roots, patterns []string) *Checker {
	c := &Checker{patterns: patterns}
	for _, r := range roots {
		if abs, err := filepath.Abs(expandHome(r)); err == nil {
			c.roots = append(c.roots, abs)
		}
	}
	return c
}

// Resolve expands ~ and returns the absolute form of path.
func Resolve(path string) (string, error) {
	return filepath.Abs(expandHome(path))
}

// IsAllowed reports whether the given path may be read or written.
// An unresolvable path is never allowed.
func (c *Checker) IsAllowed(path string) bool {
	resolved, err := Resolve(path)
	if err != nil {
		return false
	}
	for _, root := range c.roots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return true
		}
	}
	for _, pat := range c.patterns {
		if ok, err := filepath.Match(pat, resolved); err == nil && ok {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
