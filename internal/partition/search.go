package partition

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

// FindOptions configures a cross-partition search. An empty PartitionIDs
// searches every currently resident partition.
type FindOptions struct {
	PartitionIDs []string
	Filter       store.FilterFunc
	Metric       vector.Metric
}

// targetPartitions resolves the search scope: the requested ids, or every
// currently resident partition when none are requested. It deliberately
// does not fall back to every configured partition — that would force-load
// (and evict-while-in-use) every on-disk partition on a bare search.
func (m *Manager) targetPartitions(ids []string) []string {
	if len(ids) > 0 {
		return ids
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resident.Keys()
}

// FindNearest runs a Clustered Store search against each target partition
// concurrently and merges the per-partition top-k into one global top-k.
// A partition that fails to load is logged and skipped; it never aborts
// the others.
func (m *Manager) FindNearest(query []float32, k int, opts FindOptions) []vector.Result {
	targets := m.targetPartitions(opts.PartitionIDs)
	if len(targets) == 0 || k <= 0 {
		return nil
	}

	g, _ := errgroup.WithContext(context.Background())
	var mu sync.Mutex
	var merged []vector.Result

	for _, pid := range targets {
		pid := pid
		g.Go(func() error {
			r, err := m.loadPartition(pid)
			if err != nil {
				m.log.Warn("skipping partition in search", slog.String("id", pid), slog.Any("error", err))
				return nil
			}
			results := r.store.FindNearest(query, k, store.FindOptions{Metric: opts.Metric, Filter: opts.Filter})
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	vector.SortResults(merged)
	if k < len(merged) {
		merged = merged[:k]
	}
	return merged
}

// FindNearestHNSW runs the HNSW graph search against each target
// partition's index, concurrently, loading the index from disk if it
// isn't already in memory. Partitions with no built index (no index file
// on disk) are skipped; the index is never built lazily on search.
func (m *Manager) FindNearestHNSW(query []float32, k int, opts FindOptions, ef int) []vector.Result {
	targets := m.targetPartitions(opts.PartitionIDs)
	if len(targets) == 0 || k <= 0 {
		return nil
	}

	g, _ := errgroup.WithContext(context.Background())
	var mu sync.Mutex
	var merged []vector.Result

	for _, pid := range targets {
		pid := pid
		g.Go(func() error {
			if _, err := m.loadPartition(pid); err != nil {
				m.log.Warn("skipping partition in hnsw search", slog.String("id", pid), slog.Any("error", err))
				return nil
			}
			m.hnswMu.Lock()
			idx, ok := m.hnswIndices[pid]
			m.hnswMu.Unlock()
			if !ok {
				if err := m.loadHNSW(pid); err != nil {
					m.log.Warn("skipping partition in hnsw search", slog.String("id", pid), slog.Any("error", err))
					return nil
				}
				m.hnswMu.Lock()
				idx, ok = m.hnswIndices[pid]
				m.hnswMu.Unlock()
				if !ok {
					return nil
				}
			}
			results := idx.FindNearest(query, k, hnswFindOptions(opts, ef))
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	vector.SortResults(merged)
	if k < len(merged) {
		merged = merged[:k]
	}
	return merged
}
