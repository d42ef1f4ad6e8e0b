package hnsw

import "github.com/veclite-io/veclite/internal/vector"

// MarkDelete soft-deletes id: the node stays as a structural transit node
// (its connections are preserved so search still reaches live neighbors
// through it) but is suppressed from results. If the deleted node was an
// entry point, the highest-level live neighbor is promoted in its place;
// if none exists, the entry point is cleared.
func (idx *Index) MarkDelete(id vector.ID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n, ok := idx.nodes[id.Key()]
	if !ok || n.deleted {
		return false
	}
	n.deleted = true

	if idx.hasGlobalEntry && idx.globalEntry.Key() == id.Key() {
		idx.promoteEntryLocked(n, -1)
	}
	if idx.cfg.DimensionAware {
		v, ok := idx.source.GetVector(id)
		if ok {
			if cur, has := idx.dimEntry[len(v)]; has && cur.Key() == id.Key() {
				idx.promoteEntryLocked(n, len(v))
			}
		}
	}
	return true
}

// promoteEntryLocked finds the highest-level live neighbor of n (searching
// from n's own level downward) and installs it as the entry point; dim < 0
// means "update the global entry point only."
func (idx *Index) promoteEntryLocked(n *node, dim int) {
	var candidateID vector.ID
	bestLevel := -1
	found := false
	for l := n.level; l >= 0 && !found; l-- {
		for _, nb := range n.neighbors(l) {
			other := idx.nodes[nb.Key()]
			if other == nil || other.deleted {
				continue
			}
			if other.level > bestLevel {
				candidateID, bestLevel, found = other.id, other.level, true
			}
		}
	}

	if !found {
		if dim < 0 {
			idx.hasGlobalEntry = false
		} else {
			delete(idx.dimEntry, dim)
		}
		return
	}

	if dim < 0 {
		idx.globalEntry = candidateID
		idx.hasGlobalEntry = true
	} else {
		idx.dimEntry[dim] = candidateID
	}
}
