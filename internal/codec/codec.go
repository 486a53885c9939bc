package codec

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dusk-indust/roadmap/internal/graph"
)

// Codec encodes graphs into records and decodes records back.
// The zero value is not usable; call New.
type Codec struct {
	logger *slog.Logger
	newID  func() string
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for repair messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithIDGenerator overrides the synthetic id source for nodes without one.
func WithIDGenerator(fn func() string) Option {
	return func(c *Codec) { c.newID = fn }
}

// New returns a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		logger: slog.Default(),
		newID:  func() string { return graph.NewNodeID(time.Now()) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------- Nodes ----------

// EncodeNode converts a node into its record. If the data cannot be
// serialized, only the label is kept and a SerializationError is returned
// alongside the degraded record.
func (c *Codec) EncodeNode(roadmapID *int64, n graph.Node) (NodeRecord, error) {
	rec := NodeRecord{
		NodeIdentifier: n.ID,
		PositionX:      finite(n.Position.X),
		PositionY:      finite(n.Position.Y),
		CourseID:       copyInt(n.CourseID),
		RoadmapID:      copyInt(roadmapID),
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		fallback, _ := json.Marshal(map[string]string{"label": n.Data.Label})
		rec.Data = string(fallback)
		return rec, &SerializationError{Entity: "node", ID: n.ID, Field: "data", Err: err}
	}
	rec.Data = string(data)
	return rec, nil
}

// EncodeNodes encodes every node. Nodes without an id are dropped.
func (c *Codec) EncodeNodes(roadmapID *int64, nodes []graph.Node) ([]NodeRecord, Report) {
	var rep Report
	out := make([]NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			rep.DroppedNodes++
			rep.add(&graph.ValidationError{Entity: "node", Reason: "missing id"})
			c.logger.Warn("dropping node without id from payload", "label", n.Data.Label)
			continue
		}
		rec, err := c.EncodeNode(roadmapID, n)
		if err != nil {
			rep.RepairedNodes++
			rep.add(err)
			c.logger.Warn("node data degraded to label", "node", n.ID, "err", err)
		}
		out = append(out, rec)
	}
	return out, rep
}

// DecodeNode converts a record into a node. It never fails: data that is
// not a JSON object degrades to a node labelled with the raw text, a field
// of the wrong type reads as its zero value, a missing position reads as
// the origin and a missing id is generated. Any repair is returned as the
// error.
func (c *Codec) DecodeNode(rec NodeRecord) (graph.Node, error) {
	n := graph.Node{
		ID:       rec.NodeIdentifier,
		Position: graph.Position{X: finite(rec.PositionX), Y: finite(rec.PositionY)},
		CourseID: copyInt(rec.CourseID),
	}
	var problem error
	if n.ID == "" {
		n.ID = c.newID()
		problem = &graph.ValidationError{Entity: "node", ID: n.ID, Reason: "missing id, generated"}
	}
	data, fieldErrs, err := decodeNodeData(n.ID, rec.Data)
	if err != nil {
		data = graph.NodeData{Label: rec.Data}
		problem = errors.Join(problem, &SerializationError{Entity: "node", ID: n.ID, Field: "data", Err: err})
	}
	n.Data = data
	return n, errors.Join(problem, fieldErrs)
}

// DecodeNodes decodes every record.
func (c *Codec) DecodeNodes(records []NodeRecord) ([]graph.Node, Report) {
	var rep Report
	out := make([]graph.Node, 0, len(records))
	for _, rec := range records {
		n, err := c.DecodeNode(rec)
		if err != nil {
			rep.RepairedNodes++
			rep.add(err)
			c.logger.Warn("node record repaired", "node", n.ID, "err", err)
		}
		out = append(out, n)
	}
	return out, rep
}

// ---------- Edges ----------

// EncodeEdges encodes the edges whose endpoints are both present in nodes.
// Edges with a missing endpoint id or an endpoint outside the node set are
// dropped and logged; a stale data mirror is rewritten.
func (c *Codec) EncodeEdges(roadmapID *int64, nodes []graph.Node, edges []graph.Edge) ([]EdgeRecord, Report) {
	var rep Report
	ids := graph.Graph{Nodes: nodes}.NodeIDs()
	out := make([]EdgeRecord, 0, len(edges))

	for _, e := range edges {
		if e.Source == "" || e.Target == "" {
			rep.DroppedEdges++
			rep.add(&graph.ValidationError{Entity: "edge", ID: e.ID, Reason: "missing source or target"})
			c.logger.Warn("dropping edge without endpoints from payload", "edge", e.ID)
			continue
		}
		if missing := missingEndpoint(e.Source, e.Target, ids); missing != "" {
			rep.DroppedEdges++
			rep.add(&InconsistencyError{EdgeID: e.ID, Missing: missing})
			c.logger.Warn("dropping orphan edge from payload", "edge", e.ID, "missing", missing)
			continue
		}
		if e.ID == "" {
			e.ID = graph.EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
			rep.RepairedEdges++
		}
		if !e.Mirrored() {
			e.SyncData()
			rep.RepairedEdges++
		}
		rec, err := c.encodeEdge(roadmapID, e)
		if err != nil {
			rep.RepairedEdges++
			rep.add(err)
		}
		out = append(out, rec)
	}
	return out, rep
}

func (c *Codec) encodeEdge(roadmapID *int64, e graph.Edge) (EdgeRecord, error) {
	rec := EdgeRecord{
		EdgeIdentifier: e.ID,
		Source:         e.Source,
		Target:         e.Target,
		SourceHandle:   nullable(e.SourceHandle),
		TargetHandle:   nullable(e.TargetHandle),
		Type:           e.Type,
		Animated:       e.Animated,
		RoadmapID:      copyInt(roadmapID),
	}
	var problem error

	style, err := json.Marshal(e.Style)
	if err != nil {
		style, _ = json.Marshal(graph.DefaultEdgeStyle())
		problem = &SerializationError{Entity: "edge", ID: e.ID, Field: "style", Err: err}
	}
	rec.Style = string(style)

	data, err := json.Marshal(e.Data)
	if err != nil {
		data = []byte("{}")
		problem = errors.Join(problem, &SerializationError{Entity: "edge", ID: e.ID, Field: "data", Err: err})
	}
	rec.Data = string(data)
	return rec, problem
}

// DecodeEdges decodes records against the set of node ids loaded alongside
// them. Records whose endpoints are not in nodeIDs are dropped.
func (c *Codec) DecodeEdges(records []EdgeRecord, nodeIDs map[string]bool) ([]graph.Edge, Report) {
	var rep Report
	out := make([]graph.Edge, 0, len(records))
	for _, rec := range records {
		e, repaired, problems := c.decodeEdge(rec)
		for _, p := range problems {
			rep.add(p)
		}
		if e.Source == "" || e.Target == "" {
			rep.DroppedEdges++
			rep.add(&graph.ValidationError{Entity: "edge", ID: rec.EdgeIdentifier, Reason: "missing source or target"})
			c.logger.Warn("dropping edge record without endpoints", "edge", rec.EdgeIdentifier)
			continue
		}
		if missing := missingEndpoint(e.Source, e.Target, nodeIDs); missing != "" {
			rep.DroppedEdges++
			rep.add(&InconsistencyError{EdgeID: e.ID, Missing: missing})
			c.logger.Debug("purging orphan edge", "edge", e.ID, "missing", missing)
			continue
		}
		if repaired {
			rep.RepairedEdges++
		}
		out = append(out, e)
	}
	return out, rep
}

// decodeEdge parses one record. Style falls back to the default stroke and
// data to an empty object; endpoints and handles missing at the top level
// are recovered from the data mirror; non-empty handles are normalized.
func (c *Codec) decodeEdge(rec EdgeRecord) (graph.Edge, bool, []error) {
	var problems []error
	repaired := false

	style := graph.DefaultEdgeStyle()
	if s := strings.TrimSpace(rec.Style); s != "" && s != "null" {
		var parsed graph.EdgeStyle
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			problems = append(problems, &SerializationError{Entity: "edge", ID: rec.EdgeIdentifier, Field: "style", Err: err})
			repaired = true
		} else {
			style = parsed
			if style.Stroke == "" {
				style.Stroke = graph.DefaultStroke
			}
			if style.StrokeWidth <= 0 {
				style.StrokeWidth = graph.DefaultStrokeWidth
			}
		}
	}

	var data graph.EdgeData
	if d := strings.TrimSpace(rec.Data); d != "" && d != "null" {
		if err := json.Unmarshal([]byte(d), &data); err != nil {
			data = graph.EdgeData{}
			problems = append(problems, &SerializationError{Entity: "edge", ID: rec.EdgeIdentifier, Field: "data", Err: err})
			repaired = true
		}
	}

	e := graph.Edge{
		ID:           rec.EdgeIdentifier,
		Source:       rec.Source,
		Target:       rec.Target,
		SourceHandle: deref(rec.SourceHandle),
		TargetHandle: deref(rec.TargetHandle),
		Type:         rec.Type,
		Animated:     rec.Animated,
		Style:        style,
	}
	if e.Source == "" && data.SourceID != "" {
		e.Source = data.SourceID
		repaired = true
	}
	if e.Target == "" && data.TargetID != "" {
		e.Target = data.TargetID
		repaired = true
	}
	if e.SourceHandle == "" && data.SourceHandle != "" {
		e.SourceHandle = data.SourceHandle
		repaired = true
	}
	if e.TargetHandle == "" && data.TargetHandle != "" {
		e.TargetHandle = data.TargetHandle
		repaired = true
	}
	if e.SourceHandle != "" {
		if h := graph.NormalizeHandle(e.SourceHandle, graph.RoleSource); h != e.SourceHandle {
			e.SourceHandle = h
			repaired = true
		}
	}
	if e.TargetHandle != "" {
		if h := graph.NormalizeHandle(e.TargetHandle, graph.RoleTarget); h != e.TargetHandle {
			e.TargetHandle = h
			repaired = true
		}
	}
	if e.Type == "" {
		e.Type = graph.DefaultEdgeType
	}
	if e.ID == "" && e.Source != "" && e.Target != "" {
		e.ID = graph.EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
		repaired = true
	}

	ct := data.ConnectionType
	if !ct.Valid() {
		ct = graph.ConnectionArrow
	}
	e.Data = graph.EdgeData{ConnectionType: ct}
	if ct == graph.ConnectionArrow {
		e.MarkerEnd = &graph.Marker{Type: graph.MarkerArrowClosed, Color: style.Stroke}
	}
	if !(graph.Edge{Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle, Data: data}).Mirrored() {
		repaired = true
	}
	e.SyncData()
	return e, repaired, problems
}

// ---------- Whole graph ----------

// Encode converts a graph into a payload for the roadmap with the given id.
func (c *Codec) Encode(roadmapID *int64, g graph.Graph) (Payload, Report) {
	nodes, rep := c.EncodeNodes(roadmapID, g.Nodes)
	edges, edgeRep := c.EncodeEdges(roadmapID, g.Nodes, g.Edges)
	rep.merge(edgeRep)
	return Payload{Nodes: nodes, Edges: edges}, rep
}

// Decode converts loaded records into a graph that satisfies every
// structural invariant: unique node ids, no orphan or duplicate edges and
// in-sync data mirrors.
func (c *Codec) Decode(nodes []NodeRecord, edges []EdgeRecord) (graph.Graph, Report) {
	decodedNodes, rep := c.DecodeNodes(nodes)
	decodedEdges, edgeRep := c.DecodeEdges(edges, graph.Graph{Nodes: decodedNodes}.NodeIDs())
	rep.merge(edgeRep)

	g, san := graph.Sanitize(graph.Graph{Nodes: decodedNodes, Edges: decodedEdges}, c.newID)
	rep.DroppedNodes += san.DuplicateNodes
	rep.DroppedEdges += san.DuplicateEdges + san.OrphanEdges + san.DanglingEdges
	if !san.Clean() {
		c.logger.Warn("decoded graph sanitized",
			"duplicateNodes", san.DuplicateNodes,
			"duplicateEdges", san.DuplicateEdges,
			"orphanEdges", san.OrphanEdges,
		)
	}
	return g, rep
}

// ---------- helpers ----------

func missingEndpoint(source, target string, ids map[string]bool) string {
	if !ids[source] {
		return source
	}
	if !ids[target] {
		return target
	}
	return ""
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func copyInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
