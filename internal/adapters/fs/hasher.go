package fs

import (
	"encoding/binary"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher fingerprints file contents with xxhash.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "path", path)
	}

	return hasher.Sum64(), nil
}

// HashFile fingerprints one file. A missing file yields domain.MissingFileFingerprint.
func (h *Hasher) HashFile(path string) (domain.Fingerprint, error) {
	if _, err := os.Stat(path); errors.Is(err, iofs.ErrNotExist) {
		return domain.MissingFileFingerprint, nil
	}

	sum, err := h.ComputeFileHash(path)
	if err != nil {
		return domain.Fingerprint{}, err
	}

	var b domain.FingerprintBuilder
	b.WriteString("file")
	b.Write(binary.BigEndian.AppendUint64(nil, sum))
	return b.Sum(), nil
}

// HashOutputs fingerprints the outputs of a task. Output directories are expanded to the
// files below them, and each file contributes its root-relative path and its content.
// Missing outputs contribute a marker, so a deleted output changes the fingerprint.
func (h *Hasher) HashOutputs(root string, outputs []string) (domain.Fingerprint, error) {
	sorted := slices.Clone(outputs)
	slices.Sort(sorted)

	var b domain.FingerprintBuilder
	for _, output := range sorted {
		path := filepath.Join(root, output)

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				b.WriteString(output)
				b.WriteFingerprint(domain.MissingFileFingerprint)
				continue
			}
			return domain.Fingerprint{}, zerr.With(zerr.Wrap(err, "failed to stat output file"), "path", path)
		}

		files := []string{path}
		if info.IsDir() {
			files = slices.Sorted(h.walker.WalkFiles(path))
		}
		for _, file := range files {
			fp, err := h.HashFile(file)
			if err != nil {
				return domain.Fingerprint{}, err
			}
			rel, err := filepath.Rel(root, file)
			if err != nil {
				return domain.Fingerprint{}, zerr.With(zerr.Wrap(err, "failed to relativize output"), "path", file)
			}
			b.WriteString(filepath.ToSlash(rel))
			b.WriteFingerprint(fp)
		}
	}
	return b.Sum(), nil
}
