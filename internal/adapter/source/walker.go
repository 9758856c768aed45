package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/arkiva/internal/domain"
)

// Walker yields the entries a run should archive. The walk is lexical, so
// for an unchanged tree the output order is deterministic and manifests are
// reproducible. Excluded directories are pruned before descent.
type Walker struct {
	root   string
	filter *Filter
}

func NewWalker(root string, filter *Filter) *Walker {
	return &Walker{root: root, filter: filter}
}

// Walk streams entries to fn. A zero `since` selects every readable regular
// file (full run); otherwise only files whose mtime is strictly after
// `since` (differential run). Unreadable entries and broken links are
// collected as skip warnings, never errors: a single bad entry must not
// abort the run. An error returned by fn aborts the walk immediately.
func (w *Walker) Walk(since time.Time, fn func(domain.Entry) error) (skipped []string, err error) {
	walkErr := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", p, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.filter.Excluded(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if w.filter.Excluded(rel, false) {
			return nil
		}

		info, ok := w.statEntry(p, d, &skipped)
		if !ok {
			return nil
		}
		if !since.IsZero() && !info.ModTime().After(since) {
			return nil
		}

		return fn(domain.Entry{
			AbsPath: p,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
	if walkErr != nil {
		return skipped, walkErr
	}
	return skipped, nil
}

// statEntry resolves one directory entry to archivable file info. Symlinks
// are followed; a broken link or anything that is not a regular file after
// resolution is skipped.
func (w *Walker) statEntry(p string, d fs.DirEntry, skipped *[]string) (os.FileInfo, bool) {
	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(p)
		if err != nil {
			*skipped = append(*skipped, fmt.Sprintf("%s: broken symlink (%v)", p, err))
			return nil, false
		}
		if !info.Mode().IsRegular() {
			return nil, false
		}
		return info, true
	}
	if !d.Type().IsRegular() {
		return nil, false
	}
	info, err := d.Info()
	if err != nil {
		*skipped = append(*skipped, fmt.Sprintf("%s: %v", p, err))
		return nil, false
	}
	return info, true
}
