package hnsw

import "github.com/veclite-io/veclite/internal/vector"

// node is one HNSWNode: it owns its per-level neighbor lists, and its level
// is drawn once at insertion time.
type node struct {
	id          vector.ID
	level       int
	connections map[int][]vector.ID // level -> ordered neighbor ids
	deleted     bool
}

func newNode(id vector.ID, level int) *node {
	return &node{id: id, level: level, connections: make(map[int][]vector.ID, level+1)}
}

func (n *node) neighbors(level int) []vector.ID {
	return n.connections[level]
}

func (n *node) addNeighbor(level int, id vector.ID) {
	n.connections[level] = append(n.connections[level], id)
}

func (n *node) setNeighbors(level int, ids []vector.ID) {
	n.connections[level] = ids
}

func (n *node) removeNeighbor(level int, id vector.ID) {
	list := n.connections[level]
	for i, nb := range list {
		if vector.Equal(nb, id) {
			n.connections[level] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
