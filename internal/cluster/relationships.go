package cluster

import "github.com/veclite-io/veclite/internal/vector"

// Relationship is one pair of vectors within threshold distance of each
// other, as returned by extractRelationships.
type Relationship struct {
	ID1, ID2 vector.ID
	Distance float32
}

// ExtractRelationships returns all unordered pairs of live vectors whose
// distance is <= threshold. Dimension-mismatched pairs are skipped.
func (s *Store) ExtractRelationships(threshold float32, metric vector.Metric) []Relationship {
	s.mu.RLock()
	ids := s.allMemberIDsLocked()
	s.mu.RUnlock()

	vecs := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if v, ok := s.base.GetVector(id); ok {
			vecs[id.Key()] = v
		}
	}

	var out []Relationship
	for i := 0; i < len(ids); i++ {
		vi, ok := vecs[ids[i].Key()]
		if !ok {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			vj, ok := vecs[ids[j].Key()]
			if !ok || !vector.DimensionCompatible(metric, len(vi), len(vj)) {
				continue
			}
			d := vector.Distance(metric, vi, vj)
			if d <= threshold {
				out = append(out, Relationship{ID1: ids[i], ID2: ids[j], Distance: d})
			}
		}
	}
	return out
}

// Community is a connected component of size >= 2 in the relationship
// graph at a given threshold.
type Community struct {
	Members []vector.ID
}

// ExtractCommunities builds the undirected relationship graph and returns
// its connected components of size >= 2. As an optimization it first finds
// which cluster centroids are within 2*threshold of each other (triangle
// inequality: if centroids are farther apart than that, no member pair
// between the two clusters can be within threshold) and only pairs members
// of inter-reachable clusters.
func (s *Store) ExtractCommunities(threshold float32, metric vector.Metric) []Community {
	s.mu.RLock()
	clusters := make([]*Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		clusters = append(clusters, c)
	}
	reach := make(map[[2]uint32]bool)
	bound := threshold * 2
	for i := 0; i < len(clusters); i++ {
		for j := i; j < len(clusters); j++ {
			a, b := clusters[i], clusters[j]
			if i == j {
				reach[[2]uint32{a.Key, a.Key}] = true
				continue
			}
			if !vector.DimensionCompatible(metric, a.Dimension, b.Dimension) {
				continue
			}
			if vector.Distance(metric, a.Centroid, b.Centroid) <= bound {
				reach[[2]uint32{a.Key, b.Key}] = true
				reach[[2]uint32{b.Key, a.Key}] = true
			}
		}
	}
	s.mu.RUnlock()

	nodeByKey := make(map[string]vector.ID)
	adjacency := make(map[string]map[string]struct{})
	addEdge := func(a, b vector.ID) {
		nodeByKey[a.Key()], nodeByKey[b.Key()] = a, b
		if adjacency[a.Key()] == nil {
			adjacency[a.Key()] = make(map[string]struct{})
		}
		if adjacency[b.Key()] == nil {
			adjacency[b.Key()] = make(map[string]struct{})
		}
		adjacency[a.Key()][b.Key()] = struct{}{}
		adjacency[b.Key()][a.Key()] = struct{}{}
	}

	for i := 0; i < len(clusters); i++ {
		for j := i; j < len(clusters); j++ {
			a, b := clusters[i], clusters[j]
			if !reach[[2]uint32{a.Key, b.Key}] {
				continue
			}
			s.pairClusterMembers(a, b, i == j, threshold, metric, addEdge)
		}
	}

	visited := make(map[string]bool)
	var communities []Community
	for key := range adjacency {
		if visited[key] {
			continue
		}
		var members []vector.ID
		stack := []string{key}
		visited[key] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, nodeByKey[cur])
			for nk := range adjacency[cur] {
				if !visited[nk] {
					visited[nk] = true
					stack = append(stack, nk)
				}
			}
		}
		if len(members) >= 2 {
			communities = append(communities, Community{Members: members})
		}
	}
	return communities
}

func (s *Store) pairClusterMembers(a, b *Cluster, same bool, threshold float32, metric vector.Metric, addEdge func(vector.ID, vector.ID)) {
	for i, m1 := range a.Members {
		v1, ok := s.base.GetVector(m1)
		if !ok {
			continue
		}
		start := 0
		if same {
			start = i + 1
		}
		members := b.Members
		for j := start; j < len(members); j++ {
			m2 := members[j]
			if same && j <= i {
				continue
			}
			v2, ok := s.base.GetVector(m2)
			if !ok || !vector.DimensionCompatible(metric, len(v1), len(v2)) {
				continue
			}
			if vector.Distance(metric, v1, v2) <= threshold {
				addEdge(m1, m2)
			}
		}
	}
}

func (s *Store) allMemberIDsLocked() []vector.ID {
	var ids []vector.ID
	for _, c := range s.clusters {
		ids = append(ids, c.Members...)
	}
	return ids
}
