package hnsw

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/veclite-io/veclite/internal/vector"
)

const onDiskVersion = 1

type nodeRecord struct {
	ID          vector.ID              `json:"id"`
	Level       int                    `json:"level"`
	Connections map[string][]vector.ID `json:"connections"` // level (as string) -> neighbor ids
	Deleted     bool                   `json:"deleted"`
}

type indexFile struct {
	Version        int                  `json:"version"`
	M              int                  `json:"m"`
	EfConstruction int                  `json:"efConstruction"`
	EfSearch       int                  `json:"efSearch"`
	DimensionAware bool                 `json:"dimensionAware"`
	MaxLevel       int                  `json:"maxLevel"`
	GlobalEntry    *vector.ID           `json:"globalEntry,omitempty"`
	DimEntry       map[string]vector.ID `json:"dimensionEntryPoints,omitempty"`
	Nodes          []nodeRecord         `json:"nodes"`
}

func indexPath(path string, compress bool) string {
	if compress {
		return path + ".gz"
	}
	return path
}

// SaveIndex serializes the graph to path as JSON: entry point, nodes,
// per-level adjacency, deletion set, and construction/search parameters.
func (idx *Index) SaveIndex(path string, compress bool) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f := indexFile{
		Version:        onDiskVersion,
		M:              idx.cfg.M,
		EfConstruction: idx.cfg.EfConstruction,
		EfSearch:       idx.cfg.EfSearch,
		DimensionAware: idx.cfg.DimensionAware,
		MaxLevel:       idx.maxLevel,
	}
	if idx.hasGlobalEntry {
		e := idx.globalEntry
		f.GlobalEntry = &e
	}
	if len(idx.dimEntry) > 0 {
		f.DimEntry = make(map[string]vector.ID, len(idx.dimEntry))
		for dim, id := range idx.dimEntry {
			f.DimEntry[fmt.Sprintf("%d", dim)] = id
		}
	}
	for _, n := range idx.nodes {
		rec := nodeRecord{ID: n.id, Level: n.level, Deleted: n.deleted, Connections: make(map[string][]vector.ID, len(n.connections))}
		for level, ids := range n.connections {
			rec.Connections[fmt.Sprintf("%d", level)] = ids
		}
		f.Nodes = append(f.Nodes, rec)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating hnsw directory: %w", err)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling hnsw index: %w", err)
	}
	return writeMaybeGzipped(indexPath(path, compress), data, compress)
}

// LoadIndex restores the graph from path. A load failure empties the
// in-memory state and returns the error; the caller decides whether to
// rebuild via BuildIndex.
func (idx *Index) LoadIndex(path string, compress bool) error {
	data, err := readMaybeGzipped(indexPath(path, compress), compress)
	if err != nil {
		idx.Close()
		return fmt.Errorf("reading hnsw index %s: %w", path, err)
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		idx.Close()
		return fmt.Errorf("parsing hnsw index: %w", err)
	}
	if f.Version != onDiskVersion {
		idx.Close()
		return fmt.Errorf("unsupported hnsw index version %d", f.Version)
	}

	nodes := make(map[string]*node, len(f.Nodes))
	for _, rec := range f.Nodes {
		n := newNode(rec.ID, rec.Level)
		n.deleted = rec.Deleted
		for levelStr, ids := range rec.Connections {
			var level int
			fmt.Sscanf(levelStr, "%d", &level)
			n.connections[level] = ids
		}
		nodes[rec.ID.Key()] = n
	}

	idx.mu.Lock()
	idx.nodes = nodes
	idx.maxLevel = f.MaxLevel
	idx.cfg.M = f.M
	idx.cfg.EfConstruction = f.EfConstruction
	idx.cfg.EfSearch = f.EfSearch
	idx.cfg.DimensionAware = f.DimensionAware
	idx.hasGlobalEntry = f.GlobalEntry != nil
	if f.GlobalEntry != nil {
		idx.globalEntry = *f.GlobalEntry
	}
	idx.dimEntry = make(map[int]vector.ID, len(f.DimEntry))
	for dimStr, id := range f.DimEntry {
		var dim int
		fmt.Sscanf(dimStr, "%d", &dim)
		idx.dimEntry[dim] = id
	}
	idx.mu.Unlock()
	return nil
}

func writeMaybeGzipped(path string, data []byte, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if !compress {
		_, err := f.Write(data)
		return err
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func readMaybeGzipped(path string, compress bool) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !compress {
		return io.ReadAll(f)
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
