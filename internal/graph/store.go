package graph

import (
	"log/slog"
	"sync"
	"time"
)

// Store owns the authoritative node and edge collections of one roadmap
// together with the selection and the undo/redo log. Panels, toolbars and
// the session request changes through its methods; nothing else mutates
// the collections. Safe for concurrent use; the change callback runs
// outside the lock.
type Store struct {
	mu        sync.RWMutex
	st        state
	hist      history
	selected  string
	validator *Validator
	connType  ConnectionType
	readOnly  bool
	revision  uint64

	logger   *slog.Logger
	onChange func(Graph)
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithValidator replaces the connection validator.
func WithValidator(v *Validator) Option {
	return func(s *Store) { s.validator = v }
}

// WithLogger sets the logger used for repair and debug messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOnChange registers a callback that receives a snapshot after every
// successful mutation, undo, redo and Replace.
func WithOnChange(fn func(Graph)) Option {
	return func(s *Store) { s.onChange = fn }
}

// WithClock overrides the time source used for ids and completion stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides synthetic node id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithHistoryLimit caps the number of undoable steps. Zero means unbounded.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.hist.limit = n }
}

// WithReadOnly makes every mutation fail with ErrReadOnly.
func WithReadOnly(ro bool) Option {
	return func(s *Store) { s.readOnly = ro }
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		validator: NewValidator(),
		connType:  ConnectionArrow,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newID == nil {
		s.newID = func() string { return NewNodeID(s.now()) }
	}
	if s.validator.Logger == nil {
		s.validator.Logger = s.logger
	}
	return s
}

// --- Reads ---

// Graph returns a deep copy of the current nodes and edges.
func (s *Store) Graph() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.snapshot()
}

// Node returns the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.st.nodeIndex(id)
	if i < 0 {
		return Node{}, false
	}
	return s.st.nodes[i].clone(), true
}

// Edge returns the edge with the given id.
func (s *Store) Edge(id string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.st.edgeIndex(id)
	if i < 0 {
		return Edge{}, false
	}
	return s.st.edges[i].clone(), true
}

// Revision increases by one on every applied change, including undo, redo
// and Replace. A zero revision means the store was never touched.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// ReadOnly reports whether mutations are rejected.
func (s *Store) ReadOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readOnly
}

// SetReadOnly toggles read-only mode.
func (s *Store) SetReadOnly(ro bool) {
	s.mu.Lock()
	s.readOnly = ro
	s.mu.Unlock()
}

// CanUndo reports whether Undo would change anything.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hist.undo) > 0
}

// CanRedo reports whether Redo would change anything.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hist.redo) > 0
}

// --- Edge style configuration ---

// SetEdgeStyle changes the style applied to edges created from now on.
func (s *Store) SetEdgeStyle(style EdgeStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator.Style = style
}

// EdgeStyle returns the style applied to new edges.
func (s *Store) EdgeStyle() EdgeStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validator.Style
}

// SetConnectionType changes the default connection type for UpsertEdge
// calls that pass an empty type.
func (s *Store) SetConnectionType(ct ConnectionType) {
	if !ct.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connType = ct
}

// ConnectionType returns the default connection type.
func (s *Store) ConnectionType() ConnectionType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connType
}

// --- Selection ---

// Select marks the node as the active one. It returns false if no such
// node exists, leaving the selection unchanged.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.nodeIndex(id) < 0 {
		return false
	}
	s.selected = id
	return true
}

// Selected returns the active node, if any.
func (s *Store) Selected() (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return Node{}, false
	}
	i := s.st.nodeIndex(s.selected)
	if i < 0 {
		return Node{}, false
	}
	return s.st.nodes[i].clone(), true
}

// ClearSelection drops the active node.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// --- Mutations ---

// commit applies c, records it and returns the snapshot for the change
// callback. Caller holds the write lock.
func (s *Store) commit(c change) Graph {
	c.apply(&s.st)
	s.hist.record(c)
	s.revision++
	return s.st.snapshot()
}

func (s *Store) notify(g Graph) {
	if s.onChange != nil {
		s.onChange(g)
	}
}

// AddNode appends a node, assigning a synthetic id when draft has none.
func (s *Store) AddNode(draft Node) (Node, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return Node{}, ErrReadOnly
	}
	n := draft.clone()
	if n.ID == "" {
		n.ID = s.newID()
	}
	if s.st.nodeIndex(n.ID) >= 0 {
		s.mu.Unlock()
		return Node{}, invalidNode(n.ID, "duplicate id")
	}
	g := s.commit(insertNode{index: len(s.st.nodes), node: n})
	s.mu.Unlock()

	s.notify(g)
	return n.clone(), nil
}

// NodePatch lists node data fields to overwrite. Nil fields are left alone.
type NodePatch struct {
	Label       *string     `json:"label,omitempty"`
	Code        *string     `json:"code,omitempty"`
	Description *string     `json:"description,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Difficulty  *string     `json:"difficulty,omitempty"`
	Credits     *float64    `json:"credits,omitempty"`
	Completed   *bool       `json:"completed,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	NodeColor   *string     `json:"nodeColor,omitempty"`
	NodeBgColor *string     `json:"nodeBgColor,omitempty"`
	TextColor   *string     `json:"textColor,omitempty"`
	FontSize    *string     `json:"fontSize,omitempty"`
	Documents   *[]Document `json:"documents,omitempty"`
}

// merge returns d with the patch applied. Marking a node complete without
// an explicit timestamp stamps it with now; marking it incomplete clears
// the timestamp.
func (p NodePatch) merge(d NodeData, now time.Time) NodeData {
	out := d.clone()
	setString(&out.Label, p.Label)
	setString(&out.Code, p.Code)
	setString(&out.Description, p.Description)
	setString(&out.Category, p.Category)
	setString(&out.Difficulty, p.Difficulty)
	setString(&out.NodeColor, p.NodeColor)
	setString(&out.NodeBgColor, p.NodeBgColor)
	setString(&out.TextColor, p.TextColor)
	if p.FontSize != nil {
		out.FontSize = FontSize(*p.FontSize)
	}
	if p.Credits != nil {
		out.Credits = Credits(*p.Credits)
	}
	if p.Documents != nil {
		out.Documents = append([]Document(nil), (*p.Documents)...)
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
		if !out.Completed {
			out.CompletedAt = nil
		} else if out.CompletedAt == nil {
			t := now
			out.CompletedAt = &t
		}
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// UpdateNode merges patch into the node's data. It is a no-op returning
// false when the node does not exist.
func (s *Store) UpdateNode(id string, patch NodePatch) (bool, error) {
	return s.replaceNode(id, func(n Node) Node {
		n.Data = patch.merge(n.Data, s.now())
		return n
	})
}

// MoveNode records a drag-end at pos.
func (s *Store) MoveNode(id string, pos Position) (bool, error) {
	return s.replaceNode(id, func(n Node) Node {
		n.Position = pos
		return n
	})
}

// ToggleCompleted flips the node's completion flag, stamping or clearing
// completedAt accordingly.
func (s *Store) ToggleCompleted(id string) (bool, error) {
	return s.replaceNode(id, func(n Node) Node {
		done := !n.Data.Completed
		n.Data = NodePatch{Completed: &done}.merge(n.Data, s.now())
		return n
	})
}

func (s *Store) replaceNode(id string, fn func(Node) Node) (bool, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return false, ErrReadOnly
	}
	i := s.st.nodeIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	before := s.st.nodes[i].clone()
	after := fn(before.clone())
	after.ID = before.ID
	g := s.commit(setNode{index: i, before: before, after: after})
	s.mu.Unlock()

	s.notify(g)
	return true, nil
}

// DeleteNode removes the node and every edge that starts or ends at it.
func (s *Store) DeleteNode(id string) (bool, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return false, ErrReadOnly
	}
	i := s.st.nodeIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	c := removeNode{index: i, node: s.st.nodes[i].clone()}
	for j, e := range s.st.edges {
		if e.Source == id || e.Target == id {
			c.edges = append(c.edges, indexedEdge{index: j, edge: e.clone()})
		}
	}
	g := s.commit(c)
	if s.selected == id {
		s.selected = ""
	}
	s.mu.Unlock()

	s.logger.Debug("node deleted", "node", id, "cascadedEdges", len(c.edges))
	s.notify(g)
	return true, nil
}

// UpsertEdge validates the connection and stores the resulting edge,
// replacing any edge with the same identity tuple or id. If the tuple and
// the id match two different edges, both are replaced by the new one. Both endpoints
// must exist. An empty ct uses the store's default connection type.
func (s *Store) UpsertEdge(c Connection, ct ConnectionType) (Edge, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return Edge{}, ErrReadOnly
	}
	if ct == "" {
		ct = s.connType
	}
	e, err := s.validator.Propose(c, ct)
	if err != nil {
		s.mu.Unlock()
		return Edge{}, err
	}
	if s.st.nodeIndex(e.Source) < 0 {
		s.mu.Unlock()
		return Edge{}, invalidEdge(e.ID, "unknown source node "+e.Source)
	}
	if s.st.nodeIndex(e.Target) < 0 {
		s.mu.Unlock()
		return Edge{}, invalidEdge(e.ID, "unknown target node "+e.Target)
	}

	put := putEdge{index: len(s.st.edges), after: e}
	var ch change = put
	ki, ii := s.st.edgeKeyIndex(e.Key()), s.st.edgeIndex(e.ID)
	switch {
	case ki >= 0 && ii >= 0 && ki != ii:
		// Tuple and id match different edges: replace the earlier slot and
		// remove the later one as a single undoable change.
		keep, drop := min(ki, ii), max(ki, ii)
		before := s.st.edges[keep].clone()
		put.index = keep
		put.before = &before
		ch = changes{put, removeEdge{index: drop, edge: s.st.edges[drop].clone()}}
	case ki >= 0 || ii >= 0:
		i := ki
		if i < 0 {
			i = ii
		}
		before := s.st.edges[i].clone()
		put.index = i
		put.before = &before
		ch = put
	}
	g := s.commit(ch)
	s.mu.Unlock()

	s.notify(g)
	return e.clone(), nil
}

// DeleteEdge removes the edge with the given id.
func (s *Store) DeleteEdge(id string) (bool, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return false, ErrReadOnly
	}
	i := s.st.edgeIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	g := s.commit(removeEdge{index: i, edge: s.st.edges[i].clone()})
	s.mu.Unlock()

	s.notify(g)
	return true, nil
}

// Undo reverts the most recent recorded change.
func (s *Store) Undo() bool {
	return s.step((*history).stepBack)
}

// Redo re-applies the most recently undone change.
func (s *Store) Redo() bool {
	return s.step((*history).stepForward)
}

func (s *Store) step(fn func(*history, *state) bool) bool {
	s.mu.Lock()
	if s.readOnly || !fn(&s.hist, &s.st) {
		s.mu.Unlock()
		return false
	}
	s.revision++
	if s.selected != "" && s.st.nodeIndex(s.selected) < 0 {
		s.selected = ""
	}
	g := s.st.snapshot()
	s.mu.Unlock()

	s.notify(g)
	return true
}

// Replace swaps in a whole graph, typically a freshly decoded one. The
// graph is sanitized first, the history is cleared and the selection is
// dropped. Replace works on read-only stores so they can be hydrated.
func (s *Store) Replace(g Graph) SanitizeReport {
	rep, _ := s.replace(g, func() bool { return true })
	return rep
}

// ReplaceAt is Replace guarded by revision: g is swapped in only if the
// store is still at rev, so a late load never overwrites local edits. It
// reports whether the swap happened.
func (s *Store) ReplaceAt(rev uint64, g Graph) (SanitizeReport, bool) {
	return s.replace(g, func() bool { return s.revision == rev })
}

func (s *Store) replace(g Graph, guard func() bool) (SanitizeReport, bool) {
	clean, rep := Sanitize(g, s.newID)

	s.mu.Lock()
	if !guard() {
		s.mu.Unlock()
		return rep, false
	}
	s.st = state{nodes: clean.Nodes, edges: clean.Edges}
	s.hist.reset()
	s.selected = ""
	s.revision++
	snap := s.st.snapshot()
	s.mu.Unlock()

	if !rep.Clean() {
		s.logger.Warn("graph repaired on replace",
			"duplicateNodes", rep.DuplicateNodes,
			"unnamedNodes", rep.UnnamedNodes,
			"danglingEdges", rep.DanglingEdges,
			"orphanEdges", rep.OrphanEdges,
			"duplicateEdges", rep.DuplicateEdges,
			"remirrored", rep.Remirrored,
		)
	}
	s.notify(snap)
	return rep, true
}
