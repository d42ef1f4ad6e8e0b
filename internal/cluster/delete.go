package cluster

import "github.com/veclite-io/veclite/internal/vector"

// DeleteVector removes id from its owning cluster (splicing the member out
// and updating the centroid incrementally) and from the underlying Vector
// Store. A cluster that reaches zero members is deleted.
func (s *Store) DeleteVector(id vector.ID) bool {
	v, ok := s.base.GetVector(id)
	if !ok {
		return false
	}

	s.mu.Lock()
	if key, found := s.clusterFor(id); found {
		s.removeFromClusterLocked(key, id, v)
	}
	s.mu.Unlock()

	return s.base.DeleteVector(id)
}

func (s *Store) removeFromClusterLocked(key uint32, id vector.ID, v []float32) {
	c, ok := s.clusters[key]
	if !ok {
		return
	}
	idx := -1
	for i, m := range c.Members {
		if vector.Equal(m, id) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	c.Members = append(c.Members[:idx], c.Members[idx+1:]...)
	delete(s.memberOf, id.Key())

	n := len(c.Members) + 1
	if c.Dimension == len(v) && n > 1 {
		for i := range c.Centroid {
			c.Centroid[i] = (c.Centroid[i]*float32(n) - v[i]) / float32(n-1)
		}
	}

	if len(c.Members) == 0 {
		s.deleteClusterLocked(key)
	}
}
