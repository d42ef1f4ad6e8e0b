package cluster

import (
	"log/slog"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/vector"
)

// RunKMeans clusters the current vector population into k centroids
// (default: the current cluster count, minimum 1). On convergence or
// iteration exhaustion it atomically rebuilds the cluster/centroid maps,
// re-assigns every vector to its nearest resulting centroid, and drops any
// centroid that ended with zero members. Long-running by design; callers
// that need cancellation should race it externally per the concurrency
// model's voluntary-yield note.
func (s *Store) RunKMeans(k int, maxIter int) error {
	s.mu.Lock()
	if k <= 0 {
		k = len(s.clusters)
	}
	if k <= 0 {
		k = 1
	}
	if maxIter <= 0 {
		maxIter = s.cfg.KMeansMaxIterations
	}

	entries := s.base.Snapshot()
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	s.emitter.Emit(events.KMeansStart, map[string]any{"k": k, "vectors": len(entries)})

	if k > len(entries) {
		k = len(entries)
	}

	dim := len(entries[0].Vector)
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), entries[i*len(entries)/k].Vector...)
	}

	assignment := make([]int, len(entries))
	metric := s.cfg.DistanceMetric

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for idx, e := range entries {
			if len(e.Vector) != dim {
				continue
			}
			best, bestDist := 0, vector.Distance(metric, e.Vector, centroids[0])
			for ci := 1; ci < k; ci++ {
				d := vector.Distance(metric, e.Vector, centroids[ci])
				if d < bestDist {
					best, bestDist = ci, d
				}
			}
			if assignment[idx] != best {
				assignment[idx] = best
				changed = true
			}
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for ci := range sums {
			sums[ci] = make([]float32, dim)
		}
		for idx, e := range entries {
			if len(e.Vector) != dim {
				continue
			}
			ci := assignment[idx]
			counts[ci]++
			for d, x := range e.Vector {
				sums[ci][d] += x
			}
		}
		for ci := range centroids {
			if counts[ci] == 0 {
				continue
			}
			for d := range sums[ci] {
				sums[ci][d] /= float32(counts[ci])
			}
			centroids[ci] = sums[ci]
		}

		if !changed && iter > 0 {
			break
		}
	}

	s.mu.Lock()
	newClusters := make(map[uint32]*Cluster)
	newMemberOf := make(map[string]uint32)
	for ci := 0; ci < k; ci++ {
		var members []vector.ID
		for idx, e := range entries {
			if assignment[idx] == ci {
				members = append(members, e.ID)
			}
		}
		if len(members) == 0 {
			continue
		}
		key := s.nextClusterKey()
		c := &Cluster{Key: key, Centroid: centroids[ci], Dimension: dim, Members: members}
		newClusters[key] = c
		for _, m := range members {
			newMemberOf[m.Key()] = key
		}
	}
	s.clusters = newClusters
	s.memberOf = newMemberOf
	s.mu.Unlock()

	s.log.Info("k-means complete", slog.Int("clusters", len(newClusters)), slog.Int("iterations", maxIter))
	s.emitter.Emit(events.KMeansComplete, map[string]any{"clusters": len(newClusters)})
	return nil
}
