package hnsw

import (
	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/vector"
)

func (idx *Index) entryPointLocked(dim int) (vector.ID, bool) {
	if idx.cfg.DimensionAware {
		if id, ok := idx.dimEntry[dim]; ok {
			return id, true
		}
		return vector.ID{}, false
	}
	if idx.hasGlobalEntry {
		return idx.globalEntry, true
	}
	return vector.ID{}, false
}

func (idx *Index) setEntryPointLocked(id vector.ID, dim int) {
	if idx.cfg.DimensionAware {
		idx.dimEntry[dim] = id
	}
	idx.globalEntry = id
	idx.hasGlobalEntry = true
}

// searchLayer runs a bounded-width beam search at level starting from
// entry, over the set of nodes reachable through level's connections.
// Deleted nodes are traversed (kept as transit nodes) but never placed in
// the returned candidate list.
func (idx *Index) searchLayer(v []float32, entry vector.ID, level int, ef int) []candidate {
	visited := map[string]struct{}{entry.Key(): {}}
	entryDist := idx.distTo(v, entry)

	best := newCandidateHeap(ef)

	if n := idx.nodes[entry.Key()]; n == nil || !n.deleted {
		best.AddCandidate(candidate{id: entry, distance: entryDist}, ef)
	}

	frontier := []candidate{{id: entry, distance: entryDist}}
	for len(frontier) > 0 {
		// pop the globally closest unexplored frontier candidate
		sortCandidates(frontier)
		cur := frontier[0]
		frontier = frontier[1:]

		if best.Len() >= ef {
			worst := best.Peek()
			if cur.distance > worst.distance {
				break
			}
		}

		n := idx.nodes[cur.id.Key()]
		if n == nil {
			continue
		}
		for _, nb := range n.neighbors(level) {
			if _, seen := visited[nb.Key()]; seen {
				continue
			}
			visited[nb.Key()] = struct{}{}
			d := idx.distTo(v, nb)
			frontier = append(frontier, candidate{id: nb, distance: d})
			if other := idx.nodes[nb.Key()]; other == nil || !other.deleted {
				best.AddCandidate(candidate{id: nb, distance: d}, ef)
			}
		}
	}

	return best.ExtractTop(best.Len())
}

// FindOptions configures FindNearest.
type FindOptions struct {
	Filter          func(vector.ID, metadata.Metadata) bool
	Ef              int
	ExactDimensions bool
}

// FindNearest performs a greedy descent from the entry point to layer 1,
// then a beam search of width max(ef,k) at layer 0, emitting the best k
// undeleted ids passing filter. Falls back to a linear scan over the
// underlying store when no viable entry point exists.
func (idx *Index) FindNearest(query []float32, k int, opts FindOptions) []vector.Result {
	if k <= 0 {
		return nil
	}
	ef := opts.Ef
	if ef <= 0 {
		ef = idx.cfg.EfSearch
	}
	if ef < k {
		ef = k
	}

	idx.mu.RLock()
	entry, ok := idx.entryPointLocked(len(query))
	if !ok || idx.allDeletedLocked() {
		idx.mu.RUnlock()
		return idx.linearScanFallback(query, k, opts)
	}

	cur := entry
	curDist := idx.distTo(query, cur)
	for l := idx.maxLevel; l >= 1; l-- {
		cur, curDist = idx.greedyStep(query, cur, curDist, l)
	}

	results := idx.searchLayer(query, cur, 0, ef)
	idx.mu.RUnlock()

	out := make([]vector.Result, 0, k)
	for _, c := range results {
		n := idx.nodes[c.id.Key()]
		if n == nil || n.deleted {
			continue
		}
		if opts.Filter != nil {
			md, _ := idx.source.GetMetadata(c.id)
			if !opts.Filter(c.id, md) {
				continue
			}
		}
		out = append(out, vector.Result{ID: c.id, Distance: c.distance})
		if len(out) >= k {
			break
		}
	}
	vector.SortResults(out)
	return out
}

func (idx *Index) allDeletedLocked() bool {
	if len(idx.nodes) == 0 {
		return false
	}
	for _, n := range idx.nodes {
		if !n.deleted {
			return false
		}
	}
	return true
}

func (idx *Index) linearScanFallback(query []float32, k int, opts FindOptions) []vector.Result {
	ids := idx.source.AllIDs()
	out := make([]vector.Result, 0, len(ids))
	for _, id := range ids {
		v, ok := idx.source.GetVector(id)
		if !ok || !vector.DimensionCompatible(idx.cfg.Metric, len(query), len(v)) {
			continue
		}
		idx.mu.RLock()
		n := idx.nodes[id.Key()]
		idx.mu.RUnlock()
		if n != nil && n.deleted {
			continue
		}
		if opts.Filter != nil {
			md, _ := idx.source.GetMetadata(id)
			if !opts.Filter(id, md) {
				continue
			}
		}
		out = append(out, vector.Result{ID: id, Distance: vector.Distance(idx.cfg.Metric, query, v)})
	}
	vector.SortResults(out)
	if k < len(out) {
		out = out[:k]
	}
	return out
}
