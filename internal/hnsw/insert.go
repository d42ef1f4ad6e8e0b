package hnsw

import (
	"math"

	"github.com/veclite-io/veclite/internal/vector"
)

// AddPoint incrementally inserts one vector into the graph.
func (idx *Index) AddPoint(v []float32, id vector.ID) error {
	level := idx.drawLevel()
	n := newNode(id, level)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, hasEntry := idx.entryPointLocked(len(v))
	idx.nodes[id.Key()] = n

	if !hasEntry {
		idx.setEntryPointLocked(id, len(v))
		if level > idx.maxLevel {
			idx.maxLevel = level
		}
		return nil
	}

	// Step 2: greedy descent from the entry point down to level+1,
	// picking the single best neighbor at each layer.
	cur := entry
	curDist := idx.distTo(v, cur)
	for l := idx.maxLevel; l > level; l-- {
		cur, curDist = idx.greedyStep(v, cur, curDist, l)
	}

	// Step 3: beam search + connect from level down to 0.
	for l := minInt(level, idx.maxLevel); l >= 0; l-- {
		results := idx.searchLayer(v, cur, l, idx.cfg.EfConstruction)
		if len(results) > 0 {
			cur = results[0].id
		}
		neighbors := results
		if len(neighbors) > idx.cfg.M {
			neighbors = neighbors[:idx.cfg.M]
		}
		for _, c := range neighbors {
			n.addNeighbor(l, c.id)
			if other := idx.nodes[c.id.Key()]; other != nil {
				other.addNeighbor(l, id)
				idx.pruneNeighborsLocked(other, l)
			}
		}
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.setEntryPointLocked(id, len(v))
	}
	return nil
}

// pruneNeighborsLocked trims n's neighbor list at level back to M,
// keeping the nearest ones to n.
func (idx *Index) pruneNeighborsLocked(n *node, level int) {
	list := n.neighbors(level)
	if len(list) <= idx.cfg.M {
		return
	}
	nv, ok := idx.source.GetVector(n.id)
	if !ok {
		return
	}
	scored := make([]candidate, 0, len(list))
	for _, nb := range list {
		scored = append(scored, candidate{id: nb, distance: idx.distTo(nv, nb)})
	}
	sortCandidates(scored)
	if len(scored) > idx.cfg.M {
		scored = scored[:idx.cfg.M]
	}
	kept := make([]vector.ID, len(scored))
	for i, c := range scored {
		kept[i] = c.id
	}
	n.setNeighbors(level, kept)
}

// greedyStep advances from cur to its single best neighbor at level, if
// any neighbor improves on curDist.
func (idx *Index) greedyStep(v []float32, cur vector.ID, curDist float32, level int) (vector.ID, float32) {
	n := idx.nodes[cur.Key()]
	if n == nil {
		return cur, curDist
	}
	best, bestDist := cur, curDist
	for _, nb := range n.neighbors(level) {
		d := idx.distTo(v, nb)
		if d < bestDist {
			best, bestDist = nb, d
		}
	}
	return best, bestDist
}

func (idx *Index) distTo(v []float32, other vector.ID) float32 {
	ov, ok := idx.source.GetVector(other)
	if !ok {
		return math.MaxFloat32
	}
	if !vector.DimensionCompatible(idx.cfg.Metric, len(v), len(ov)) {
		return math.MaxFloat32
	}
	return vector.Distance(idx.cfg.Metric, v, ov)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sortCandidates(c []candidate) {
	// insertion sort: candidate lists here are bounded by M/efConstruction,
	// small enough that this beats importing sort for a stable ascending
	// ordering by distance.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].distance < c[j-1].distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
