// Package fs provides file system adapters for walking, resolving and hashing files.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker provides file walking functionality.
type Walker struct {
	ignores []string
}

// NewWalker creates a new Walker that skips entries matching any of the ignore patterns,
// in addition to VCS metadata and the incr state directory.
func NewWalker(ignores ...string) *Walker {
	return &Walker{ignores: ignores}
}

// WalkFiles yields all regular files below root. Yielded paths include root as prefix.
func (w *Walker) WalkFiles(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if path != root && (skippedDirs[d.Name()] || w.ignored(d.Name())) {
					return filepath.SkipDir
				}
				return nil
			}

			if w.ignored(d.Name()) {
				return nil
			}

			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// skippedDirs are never inputs: VCS metadata and the incr state directory.
var skippedDirs = map[string]bool{
	".git":  true,
	".jj":   true,
	".incr": true,
}

func (w *Walker) ignored(name string) bool {
	for _, pattern := range w.ignores {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
