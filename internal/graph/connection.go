package graph

import (
	"log/slog"
	"strings"
)

// Connection is a raw connect proposal from a drag or two-click gesture.
// Handles may be empty or in any legacy spelling.
type Connection struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// EdgeID derives the deterministic id for an edge. Empty handles are
// spelled "default".
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return strings.Join([]string{
		"edge",
		source,
		orDefault(sourceHandle),
		target,
		orDefault(targetHandle),
	}, "-")
}

func orDefault(h string) string {
	if h == "" {
		return "default"
	}
	return h
}

// Validator turns connection proposals into well-formed edges using the
// current edge style configuration. It never touches a Store.
type Validator struct {
	Style       EdgeStyle
	EdgeType    string
	MarkerColor string
	Logger      *slog.Logger
}

// NewValidator returns a Validator with the default style.
func NewValidator() *Validator {
	return &Validator{
		Style:    DefaultEdgeStyle(),
		EdgeType: DefaultEdgeType,
	}
}

// Propose builds the edge for c. Both handles are normalized before the id
// is derived, so every spelling of the same anchors yields the same edge.
func (v *Validator) Propose(c Connection, ct ConnectionType) (Edge, error) {
	source := strings.TrimSpace(c.Source)
	target := strings.TrimSpace(c.Target)
	if source == "" || target == "" {
		return Edge{}, invalidEdge("", "connection needs both source and target")
	}
	if !ct.Valid() {
		ct = ConnectionArrow
	}

	sh := NormalizeHandle(c.SourceHandle, RoleSource)
	th := NormalizeHandle(c.TargetHandle, RoleTarget)

	if source == target {
		// Self-loops are allowed.
		v.logger().Debug("self-loop connection", "node", source, "sourceHandle", sh, "targetHandle", th)
	}

	style := v.Style
	if style.Stroke == "" {
		style = DefaultEdgeStyle()
	}
	edgeType := v.EdgeType
	if edgeType == "" {
		edgeType = DefaultEdgeType
	}

	e := Edge{
		ID:           EdgeID(source, sh, target, th),
		Source:       source,
		Target:       target,
		SourceHandle: sh,
		TargetHandle: th,
		Type:         edgeType,
		Style:        style,
		Data:         EdgeData{ConnectionType: ct},
	}
	if ct == ConnectionArrow {
		e.MarkerEnd = v.marker(style)
	}
	e.SyncData()
	return e, nil
}

func (v *Validator) marker(style EdgeStyle) *Marker {
	color := v.MarkerColor
	if color == "" {
		color = style.Stroke
	}
	return &Marker{Type: MarkerArrowClosed, Color: color}
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
