package graph

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// --- Enums ---

// ConnectionType controls whether an edge is drawn with a directional marker.
type ConnectionType string

const (
	ConnectionArrow ConnectionType = "arrow"
	ConnectionNone  ConnectionType = "none"
)

// Valid reports whether c is one of the known connection types.
func (c ConnectionType) Valid() bool {
	return c == ConnectionArrow || c == ConnectionNone
}

// MarkerArrowClosed is the only marker shape the editor draws.
const MarkerArrowClosed = "arrowclosed"

// Default edge presentation, used when nothing else is configured and when a
// persisted style cannot be parsed.
const (
	DefaultStroke      = "#6d28d9"
	DefaultStrokeWidth = 1.0
	DefaultEdgeType    = "smoothstep"
)

// DefaultEdgeStyle returns the fallback stroke style.
func DefaultEdgeStyle() EdgeStyle {
	return EdgeStyle{Stroke: DefaultStroke, StrokeWidth: DefaultStrokeWidth}
}

// --- Models ---

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Document is a resource attached to a course node.
type Document struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// NodeData is the course payload carried by a node.
type NodeData struct {
	Label       string     `json:"label"`
	Code        string     `json:"code,omitempty"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Difficulty  string     `json:"difficulty,omitempty"`
	Credits     Credits    `json:"credits"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	NodeColor   string     `json:"nodeColor,omitempty"`
	NodeBgColor string     `json:"nodeBgColor,omitempty"`
	TextColor   string     `json:"textColor,omitempty"`
	FontSize    FontSize   `json:"fontSize,omitempty"`
	Documents   []Document `json:"documents,omitempty"`
}

// clone returns a copy of d that shares no slices or pointers with it.
func (d NodeData) clone() NodeData {
	out := d
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		out.CompletedAt = &t
	}
	if d.Documents != nil {
		out.Documents = make([]Document, len(d.Documents))
		copy(out.Documents, d.Documents)
	}
	return out
}

// Node is a course on the roadmap canvas.
type Node struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
	// CourseID links the node to a catalog course; nil for free-standing nodes.
	CourseID *int64 `json:"courseId,omitempty"`
}

func (n Node) clone() Node {
	out := n
	out.Data = n.Data.clone()
	if n.CourseID != nil {
		id := *n.CourseID
		out.CourseID = &id
	}
	return out
}

// EdgeStyle is the stroke configuration of an edge.
type EdgeStyle struct {
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// Marker is the directional marker drawn at an edge's end.
type Marker struct {
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
}

// EdgeData mirrors the top-level endpoint fields of an Edge. Older clients
// read endpoints from here, so it must always match the Edge it belongs to.
type EdgeData struct {
	ConnectionType ConnectionType `json:"connectionType"`
	SourceID       string         `json:"sourceId"`
	TargetID       string         `json:"targetId"`
	SourceHandle   string         `json:"sourceHandle"`
	TargetHandle   string         `json:"targetHandle"`
}

// Edge is a directed prerequisite relationship between two nodes.
// An empty handle means the edge has no explicit anchor.
type Edge struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Target       string    `json:"target"`
	SourceHandle string    `json:"sourceHandle"`
	TargetHandle string    `json:"targetHandle"`
	Type         string    `json:"type"`
	Animated     bool      `json:"animated"`
	Style        EdgeStyle `json:"style"`
	MarkerEnd    *Marker   `json:"markerEnd,omitempty"`
	Data         EdgeData  `json:"data"`
}

func (e Edge) clone() Edge {
	out := e
	if e.MarkerEnd != nil {
		m := *e.MarkerEnd
		out.MarkerEnd = &m
	}
	return out
}

// Key returns the identity tuple used for upserts.
func (e Edge) Key() EdgeKey {
	return EdgeKey{
		Source:       e.Source,
		SourceHandle: e.SourceHandle,
		Target:       e.Target,
		TargetHandle: e.TargetHandle,
	}
}

// SyncData rewrites the data mirror from the top-level endpoint fields.
func (e *Edge) SyncData() {
	e.Data.SourceID = e.Source
	e.Data.TargetID = e.Target
	e.Data.SourceHandle = e.SourceHandle
	e.Data.TargetHandle = e.TargetHandle
}

// Mirrored reports whether the data mirror matches the top-level fields.
func (e Edge) Mirrored() bool {
	return e.Data.SourceID == e.Source &&
		e.Data.TargetID == e.Target &&
		e.Data.SourceHandle == e.SourceHandle &&
		e.Data.TargetHandle == e.TargetHandle
}

// EdgeKey is the (source, sourceHandle, target, targetHandle) identity tuple.
type EdgeKey struct {
	Source       string
	SourceHandle string
	Target       string
	TargetHandle string
}

// Graph is a value snapshot of the editor's nodes and edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.clone()
	}
	for i, e := range g.Edges {
		out.Edges[i] = e.clone()
	}
	return out
}

// NodeIDs returns the set of node ids present in g.
func (g Graph) NodeIDs() map[string]bool {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	return ids
}

// GraphStats summarizes a roadmap graph.
type GraphStats struct {
	NodeCount      int `json:"nodeCount"`
	EdgeCount      int `json:"edgeCount"`
	CompletedCount int `json:"completedCount"`
	SelfLoopCount  int `json:"selfLoopCount"`
}

// Stats computes summary counts for g.
func (g Graph) Stats() GraphStats {
	s := GraphStats{NodeCount: len(g.Nodes), EdgeCount: len(g.Edges)}
	for _, n := range g.Nodes {
		if n.Data.Completed {
			s.CompletedCount++
		}
	}
	for _, e := range g.Edges {
		if e.Source == e.Target {
			s.SelfLoopCount++
		}
	}
	return s
}

// --- Lenient scalar types ---
// Legacy payloads store credits and font sizes as either numbers or strings.

// Credits is a course credit count that decodes from a number or a numeric string.
type Credits float64

// UnmarshalJSON accepts 3, 3.5, "3", "" and null.
func (c *Credits) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*c = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*c = Credits(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Credits(f)
	return nil
}

// FontSize is a CSS font size that decodes from a number (pixels) or a string.
type FontSize string

// UnmarshalJSON accepts "14px", 14 and null.
func (f *FontSize) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FontSize(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FontSize(strconv.FormatFloat(n, 'f', -1, 64) + "px")
	return nil
}
