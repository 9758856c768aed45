package source

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter evaluates a relative path against a job's glob exclusion rules. It
// is a pure value with no state beyond the normalized pattern list.
type Filter struct {
	patterns []excludePattern
}

type excludePattern struct {
	glob    string
	dirOnly bool
}

func NewFilter(patterns []string) *Filter {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.ReplaceAll(p, "\\", "/")
		if p == "" {
			continue
		}
		f.patterns = append(f.patterns, excludePattern{
			glob:    strings.TrimSuffix(p, "/"),
			dirOnly: strings.HasSuffix(p, "/"),
		})
	}
	return f
}

// Excluded reports whether the slash-separated relative path matches any
// rule. Patterns are matched against the full relative path and against the
// basename; a trailing "/" restricts the rule to directories. The literal
// pattern ".*" excludes dotfile basenames.
func (f *Filter) Excluded(relPath string, isDir bool) bool {
	if relPath == "." || relPath == ".." || relPath == "" {
		return false
	}
	base := path.Base(relPath)

	for _, p := range f.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if p.glob == ".*" {
			if strings.HasPrefix(base, ".") {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(p.glob, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(p.glob, base); ok {
			return true
		}
	}
	return false
}
