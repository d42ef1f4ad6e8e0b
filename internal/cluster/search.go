package cluster

import (
	"log/slog"
	"sort"

	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

// rankedCentroid pairs a cluster with its distance to the query, for
// nearest-first traversal during search.
type rankedCentroid struct {
	cluster *Cluster
	dist    float32
}

// FindNearest ranks centroids by distance to query, walks them nearest
// first accumulating candidate ids, then runs exact distance over the
// candidate set with the optional filter. Falls back to the base store's
// linear scan when no clusters exist; returns empty when no centroid is
// dimension-compatible with the query.
func (s *Store) FindNearest(query []float32, k int, opts store.FindOptions) []vector.Result {
	if k <= 0 {
		return nil
	}
	if opts.Metric == "" {
		opts.Metric = vector.MetricEuclidean
	}

	s.mu.RLock()
	if len(s.clusters) == 0 {
		s.mu.RUnlock()
		return s.base.FindNearest(query, k, opts)
	}
	var corrupt []*Cluster
	for _, c := range s.clusters {
		if centroidCorrupt(c) {
			corrupt = append(corrupt, c)
		}
	}
	s.mu.RUnlock()

	if len(corrupt) > 0 {
		s.mu.Lock()
		for _, c := range corrupt {
			if centroidCorrupt(c) {
				s.log.Warn("corrupt centroid detected during search, recomputing", slog.Any("key", c.Key))
				s.recomputeCentroidLocked(c)
			}
		}
		s.mu.Unlock()
	}

	s.mu.RLock()
	ranked := make([]rankedCentroid, 0, len(s.clusters))
	for _, c := range s.clusters {
		if !vector.DimensionCompatible(opts.Metric, len(query), c.Dimension) {
			continue
		}
		ranked = append(ranked, rankedCentroid{cluster: c, dist: vector.Distance(opts.Metric, query, c.Centroid)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	seen := make(map[string]struct{})
	candidates := make([]vector.ID, 0)
	for _, rc := range ranked {
		for _, m := range rc.cluster.Members {
			if _, dup := seen[m.Key()]; dup {
				continue
			}
			seen[m.Key()] = struct{}{}
			candidates = append(candidates, m)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil
	}

	results := make([]vector.Result, 0, len(candidates))
	for _, id := range candidates {
		v, ok := s.base.GetVector(id)
		if !ok {
			continue
		}
		if opts.Filter != nil {
			md, _ := s.base.GetMetadata(id)
			if !opts.Filter(id, md) {
				continue
			}
		}
		if !vector.DimensionCompatible(opts.Metric, len(query), len(v)) {
			continue
		}
		results = append(results, vector.Result{ID: id, Distance: vector.Distance(opts.Metric, query, v)})
	}
	vector.SortResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results
}
