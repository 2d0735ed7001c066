package fs

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.InputResolver = (*Resolver)(nil)

// Resolver implements the InputResolver interface using filepath.Glob.
type Resolver struct {
	walker *Walker
}

// NewResolver creates a new Resolver.
func NewResolver(walker *Walker) *Resolver {
	return &Resolver{walker: walker}
}

// ResolveInputs resolves the given input patterns to a sorted list of root-relative file paths.
func (r *Resolver) ResolveInputs(inputs []string, root string) ([]string, error) {
	uniquePaths := make(map[string]bool)
	add := func(abs string) error {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to relativize input"), "path", abs)
		}
		uniquePaths[filepath.ToSlash(rel)] = true
		return nil
	}

	for _, input := range inputs {
		path := filepath.Join(root, input)

		if !hasMeta(input) {
			info, err := os.Stat(path)
			switch {
			case err == nil && info.IsDir():
				for file := range r.walker.WalkFiles(path) {
					if err := add(file); err != nil {
						return nil, err
					}
				}
			case err == nil || os.IsNotExist(err):
				// A declared file that is missing is still an input; its absence is part
				// of what gets fingerprinted.
				if err := add(path); err != nil {
					return nil, err
				}
			default:
				return nil, zerr.With(zerr.Wrap(err, "failed to stat input"), "path", path)
			}
			continue
		}

		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to glob path"), "path", path)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to stat input"), "path", match)
			}
			if info.IsDir() {
				for file := range r.walker.WalkFiles(match) {
					if err := add(file); err != nil {
						return nil, err
					}
				}
				continue
			}
			if err := add(match); err != nil {
				return nil, err
			}
		}
	}

	result := make([]string, 0, len(uniquePaths))
	for path := range uniquePaths {
		result = append(result, path)
	}
	slices.Sort(result)

	return result, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}
