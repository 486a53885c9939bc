package graph

// state is the mutable graph owned by a Store.
type state struct {
	nodes []Node
	edges []Edge
}

func (s *state) nodeIndex(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) edgeIndex(id string) int {
	for i := range s.edges {
		if s.edges[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) edgeKeyIndex(k EdgeKey) int {
	for i := range s.edges {
		if s.edges[i].Key() == k {
			return i
		}
	}
	return -1
}

func (s *state) snapshot() Graph {
	return Graph{Nodes: s.nodes, Edges: s.edges}.Clone()
}

func insertAt[T any](s []T, i int, v T) []T {
	s = append(s, v)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}

// change is one recorded mutation. apply and revert must be exact inverses
// when run against the state the change was recorded on, which the
// undo/redo stack discipline guarantees.
type change interface {
	apply(s *state)
	revert(s *state)
}

type insertNode struct {
	index int
	node  Node
}

func (c insertNode) apply(s *state)  { s.nodes = insertAt(s.nodes, c.index, c.node.clone()) }
func (c insertNode) revert(s *state) { s.nodes = removeAt(s.nodes, c.index) }

type setNode struct {
	index         int
	before, after Node
}

func (c setNode) apply(s *state)  { s.nodes[c.index] = c.after.clone() }
func (c setNode) revert(s *state) { s.nodes[c.index] = c.before.clone() }

type indexedEdge struct {
	index int
	edge  Edge
}

// removeNode deletes a node and the edges touching it. edges is ordered by
// ascending index as they sat before the removal.
type removeNode struct {
	index int
	node  Node
	edges []indexedEdge
}

func (c removeNode) apply(s *state) {
	for i := len(c.edges) - 1; i >= 0; i-- {
		s.edges = removeAt(s.edges, c.edges[i].index)
	}
	s.nodes = removeAt(s.nodes, c.index)
}

func (c removeNode) revert(s *state) {
	s.nodes = insertAt(s.nodes, c.index, c.node.clone())
	for _, ie := range c.edges {
		s.edges = insertAt(s.edges, ie.index, ie.edge.clone())
	}
}

// putEdge inserts (before == nil) or replaces the edge at index.
type putEdge struct {
	index  int
	before *Edge
	after  Edge
}

func (c putEdge) apply(s *state) {
	if c.before == nil {
		s.edges = insertAt(s.edges, c.index, c.after.clone())
		return
	}
	s.edges[c.index] = c.after.clone()
}

func (c putEdge) revert(s *state) {
	if c.before == nil {
		s.edges = removeAt(s.edges, c.index)
		return
	}
	s.edges[c.index] = c.before.clone()
}

type removeEdge struct {
	index int
	edge  Edge
}

func (c removeEdge) apply(s *state)  { s.edges = removeAt(s.edges, c.index) }
func (c removeEdge) revert(s *state) { s.edges = insertAt(s.edges, c.index, c.edge.clone()) }

// changes applies its parts in order and reverts them in reverse.
type changes []change

func (cs changes) apply(s *state) {
	for _, c := range cs {
		c.apply(s)
	}
}

func (cs changes) revert(s *state) {
	for i := len(cs) - 1; i >= 0; i-- {
		cs[i].revert(s)
	}
}

// history is an inverse-operation log. Only the changes are kept, never
// whole-graph copies.
type history struct {
	undo  []change
	redo  []change
	limit int // <= 0 means unbounded
}

// record pushes a change that has already been applied and clears redo.
func (h *history) record(c change) {
	h.undo = append(h.undo, c)
	h.redo = h.redo[:0]
	if h.limit > 0 && len(h.undo) > h.limit {
		drop := len(h.undo) - h.limit
		h.undo = append(h.undo[:0], h.undo[drop:]...)
	}
}

func (h *history) stepBack(s *state) bool {
	if len(h.undo) == 0 {
		return false
	}
	c := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	c.revert(s)
	h.redo = append(h.redo, c)
	return true
}

func (h *history) stepForward(s *state) bool {
	if len(h.redo) == 0 {
		return false
	}
	c := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	c.apply(s)
	h.undo = append(h.undo, c)
	return true
}

func (h *history) reset() {
	h.undo = nil
	h.redo = nil
}
