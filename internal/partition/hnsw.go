package partition

import (
	"fmt"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/hnsw"
)

// hnswFindOptions adapts a cross-partition FindOptions into the shape the
// HNSW index's FindNearest expects.
func hnswFindOptions(opts FindOptions, ef int) hnsw.FindOptions {
	return hnsw.FindOptions{Filter: opts.Filter, Ef: ef}
}

// BuildOptions configures buildIndexHNSW.
type BuildOptions struct {
	ProgressCallback func(done, total int)
}

// BuildIndexHNSW builds (or rebuilds, discarding the prior graph) the HNSW
// index for one partition from its currently resident vectors.
func (m *Manager) BuildIndexHNSW(partitionID string, opts BuildOptions) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	r, err := m.loadPartition(partitionID)
	if err != nil {
		return err
	}

	idx := hnsw.New(hnsw.DefaultConfig(), r.store, m.log)
	err = idx.BuildIndex(hnsw.BuildOptions{
		ProgressCallback: func(d, t int) {
			if opts.ProgressCallback != nil {
				opts.ProgressCallback(d, t)
			}
			m.emitter.Emit(events.PartitionIndexProg, map[string]any{"id": partitionID, "done": d, "total": t})
		},
	})
	if err != nil {
		return fmt.Errorf("building hnsw index for %q: %w", partitionID, err)
	}

	m.hnswMu.Lock()
	m.hnswIndices[partitionID] = idx
	m.hnswMu.Unlock()

	path := r.dir + "/hnsw/hnsw_index.json"
	if err := idx.SaveIndex(path, m.cfg.UseCompression); err != nil {
		return fmt.Errorf("saving hnsw index for %q: %w", partitionID, err)
	}

	m.emitter.Emit(events.PartitionIndexed, map[string]any{"id": partitionID, "nodes": idx.GetNodeCount()})
	return nil
}

// GetHNSWIndex returns the resident HNSW index for a partition, if built.
func (m *Manager) GetHNSWIndex(partitionID string) (*hnsw.Index, bool) {
	m.hnswMu.Lock()
	defer m.hnswMu.Unlock()
	idx, ok := m.hnswIndices[partitionID]
	return idx, ok
}
