package cluster

import (
	"log/slog"

	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/store"
	"github.com/veclite-io/veclite/internal/vector"
)

// AddVector inserts into the underlying Vector Store and then assigns the
// vector to a cluster per the four-step assignment rule: seed the first
// cluster, otherwise find the nearest centroid, open a new cluster when
// it is overfull or too far, otherwise fold the vector in and update the
// centroid incrementally.
func (s *Store) AddVector(id *vector.ID, v []float32, md metadata.Metadata) (vector.ID, error) {
	assigned, err := s.base.AddVector(id, v, md)
	if err != nil {
		return vector.ID{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignLocked(assigned, v)
	return assigned, nil
}

func (s *Store) assignLocked(id vector.ID, v []float32) {
	if len(s.clusters) == 0 {
		s.createClusterLocked(id, v)
		return
	}

	best, minDist, found := s.nearestCentroidLocked(v)
	if !found {
		s.createClusterLocked(id, v)
		return
	}

	overfull := float64(len(best.Members)) >= float64(s.cfg.TargetClusterSize)*s.cfg.NewClusterThresholdFactor
	tooFar := minDist > s.cfg.NewClusterDistanceThreshold
	if len(s.clusters) < s.cfg.MaxClusters && (overfull || tooFar) {
		s.createClusterLocked(id, v)
		return
	}

	s.appendToClusterLocked(best, id, v)
}

// nearestCentroidLocked returns the cluster with the minimum distance to v,
// skipping clusters whose centroid dimension is incompatible with the
// configured metric.
func (s *Store) nearestCentroidLocked(v []float32) (*Cluster, float32, bool) {
	var best *Cluster
	var minDist float32
	for _, c := range s.clusters {
		if !vector.DimensionCompatible(s.cfg.DistanceMetric, len(v), c.Dimension) {
			continue
		}
		d := vector.Distance(s.cfg.DistanceMetric, v, c.Centroid)
		if best == nil || d < minDist {
			best, minDist = c, d
		}
	}
	return best, minDist, best != nil
}

func (s *Store) appendToClusterLocked(c *Cluster, id vector.ID, v []float32) {
	if c.Dimension != len(v) {
		c.Members = append(c.Members, id)
		s.memberOf[id.Key()] = c.Key
		s.recomputeCentroidLocked(c)
		return
	}

	n := len(c.Members)
	for i := range c.Centroid {
		c.Centroid[i] = (c.Centroid[i]*float32(n) + v[i]) / float32(n+1)
	}
	c.Members = append(c.Members, id)
	s.memberOf[id.Key()] = c.Key
}

// BulkAdd inserts a batch into the underlying Vector Store and assigns
// each successfully-added vector to a cluster.
func (s *Store) BulkAdd(batch []store.BulkItem) (int, []vector.ID) {
	added, ids := s.base.BulkAdd(batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		v := batch[i].Vector
		if len(v) == 0 || !s.base.HasVector(id) {
			continue
		}
		s.assignLocked(id, v)
	}
	return added, ids
}

// UpdateVector fully replaces the stored vector and re-assigns it to a
// cluster, since its old centroid membership may no longer be valid.
func (s *Store) UpdateVector(id vector.ID, v []float32) error {
	old, hadOld := s.base.GetVector(id)

	s.mu.Lock()
	if key, found := s.clusterFor(id); found && hadOld {
		s.removeFromClusterLocked(key, id, old)
	}
	s.mu.Unlock()

	if err := s.base.UpdateVector(id, v); err != nil {
		return err
	}

	s.mu.Lock()
	s.assignLocked(id, v)
	s.mu.Unlock()
	return nil
}

// recomputeCentroidLocked fully recomputes c's centroid from its stored
// members, used when an incremental update is impossible (dimension
// mismatch) or when corruption is detected.
func (s *Store) recomputeCentroidLocked(c *Cluster) {
	dim := 0
	sums := make([]float32, 0)
	counted := 0
	for _, mid := range c.Members {
		v, ok := s.base.GetVector(mid)
		if !ok {
			continue
		}
		if counted == 0 {
			dim = len(v)
			sums = make([]float32, dim)
		}
		if len(v) != dim {
			s.log.Warn("skipping member with inconsistent dimension during centroid recompute",
				slog.String("id", mid.String()), slog.Int("expected", dim), slog.Int("got", len(v)))
			continue
		}
		for i, x := range v {
			sums[i] += x
		}
		counted++
	}
	if counted == 0 {
		return
	}
	for i := range sums {
		sums[i] /= float32(counted)
	}
	c.Centroid = sums
	validateCentroidDimension(c)
}

// centroidCorrupt reports whether c's centroid holds a NaN or has drifted
// away from its declared dimension.
func centroidCorrupt(c *Cluster) bool {
	if len(c.Centroid) != c.Dimension {
		return true
	}
	for _, x := range c.Centroid {
		if x != x { // NaN check without importing math
			return true
		}
	}
	return false
}
