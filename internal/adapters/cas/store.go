// Package cas persists the dependency graph of the last run.
//
// The file starts with a fixed header: magic, format version, flags, the payload
// length and an xxhash checksum of the payload. The payload is a JSON document,
// lz4 block compressed unless compression does not pay off.
package cas

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"
	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.GraphStore = (*Store)(nil)

const (
	// FormatVersion is bumped whenever the layout of the graph file changes.
	FormatVersion uint16 = 1

	headerSize = 20
	flagLZ4    = 1 << 0
	dirPerm    = 0o750
	filePerm   = 0o644
)

var magic = [4]byte{'I', 'N', 'C', 'R'}

// graphFile is the JSON payload.
type graphFile struct {
	Nodes []nodeRecord `json:"nodes"`
}

type nodeRecord struct {
	Kind        domain.DepKind     `json:"kind"`
	Hash        domain.Fingerprint `json:"hash"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	Edges       []domain.PrevIndex `json:"edges,omitempty"`
}

// Store implements ports.GraphStore on a single file.
type Store struct{}

// NewStore creates a new graph store.
func NewStore() *Store {
	return &Store{}
}

// Load reads the graph at path. A missing file is an empty graph.
func (s *Store) Load(path string) (*domain.SerializedGraph, error) {
	//nolint:gosec // Path comes from the workspace configuration
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.EmptySerializedGraph(), nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "file", path)
	}

	graph, err := Decode(data)
	if err != nil {
		return nil, zerr.With(err, "file", path)
	}
	return graph, nil
}

// Save writes graph to path. The file is replaced atomically, so a crash leaves
// either the old or the new graph behind.
func (s *Store) Save(path string, graph *domain.SerializedGraph) error {
	data, err := Encode(graph)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "dir", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "dir", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "file", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "file", tmpName)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "file", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "file", path)
	}
	return nil
}

// Clear removes the graph at path. Removing a missing graph is not an error.
func (s *Store) Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "file", path)
	}
	return nil
}

// Encode renders graph in the on-disk format.
func Encode(graph *domain.SerializedGraph) ([]byte, error) {
	file := graphFile{Nodes: make([]nodeRecord, 0, graph.Len())}
	for i, node := range graph.Nodes() {
		file.Nodes = append(file.Nodes, nodeRecord{
			Kind:        node.Kind,
			Hash:        node.Hash,
			Fingerprint: graph.Fingerprint(i),
			Edges:       graph.EdgesFrom(i),
		})
	}

	payload, err := json.Marshal(file)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}

	var flags uint16
	body := payload
	compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, compressed, nil)
	if err == nil && written > 0 && written < len(payload) {
		flags |= flagLZ4
		body = compressed[:written]
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out[0:4], magic[:])
	binary.BigEndian.PutUint16(out[4:6], FormatVersion)
	binary.BigEndian.PutUint16(out[6:8], flags)
	binary.BigEndian.PutUint32(out[8:12], uint32(len(payload))) //nolint:gosec // Graph files stay far below 4 GiB
	binary.BigEndian.PutUint64(out[12:20], xxhash.Sum64(payload))
	return append(out, body...), nil
}

// maxLZ4Expansion bounds how much an lz4 block can grow when decompressed.
const maxLZ4Expansion = 255

// Decode parses data written by Encode.
func Decode(data []byte) (*domain.SerializedGraph, error) {
	if len(data) < headerSize || [4]byte(data[0:4]) != magic {
		return nil, zerr.With(domain.ErrGraphVersionMismatch, "reason", "bad magic")
	}
	if version := binary.BigEndian.Uint16(data[4:6]); version != FormatVersion {
		return nil, zerr.With(domain.ErrGraphVersionMismatch, "version", version)
	}
	flags := binary.BigEndian.Uint16(data[6:8])
	size := binary.BigEndian.Uint32(data[8:12])
	checksum := binary.BigEndian.Uint64(data[12:20])
	body := data[headerSize:]

	payload := body
	if flags&flagLZ4 != 0 {
		if uint64(size) > uint64(len(body))*maxLZ4Expansion {
			return nil, zerr.With(zerr.Wrap(domain.ErrStoreReadFailed, "implausible payload size"), "size", size)
		}
		payload = make([]byte, size)
		n, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
		}
		payload = payload[:n]
	}
	if uint32(len(payload)) != size || xxhash.Sum64(payload) != checksum { //nolint:gosec // Bounded by size
		return nil, zerr.With(domain.ErrStoreReadFailed, "reason", "checksum mismatch")
	}

	var file graphFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	nodes := make([]domain.DepNode, len(file.Nodes))
	fps := make([]domain.Fingerprint, len(file.Nodes))
	edges := make([][]domain.PrevIndex, len(file.Nodes))
	for i, rec := range file.Nodes {
		nodes[i] = domain.DepNode{Kind: rec.Kind, Hash: rec.Hash}
		fps[i] = rec.Fingerprint
		edges[i] = rec.Edges
	}

	graph, err := domain.NewSerializedGraph(nodes, fps, edges)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}
	return graph, nil
}
