package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/graph"
)

// RoadmapExport is the top-level JSON export structure.
type RoadmapExport struct {
	Roadmap    codec.Roadmap    `json:"roadmap"`
	ExportedAt string           `json:"exportedAt"`
	Stats      graph.GraphStats `json:"stats"`
	Nodes      []graph.Node     `json:"nodes"`
	Edges      []graph.Edge     `json:"edges"`
	Plan       [][]string       `json:"plan,omitempty"`
}

// Build assembles a RoadmapExport. The study plan is included when the
// prerequisite graph is acyclic.
func Build(meta codec.Roadmap, g graph.Graph, now time.Time) *RoadmapExport {
	exp := &RoadmapExport{
		Roadmap:    meta,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Stats:      g.Stats(),
		Nodes:      g.Nodes,
		Edges:      g.Edges,
	}
	if exp.Nodes == nil {
		exp.Nodes = []graph.Node{}
	}
	if exp.Edges == nil {
		exp.Edges = []graph.Edge{}
	}
	if p, err := StudyPlan(g); err == nil {
		for _, term := range p {
			ids := make([]string, len(term))
			for i, n := range term {
				ids[i] = n.ID
			}
			exp.Plan = append(exp.Plan, ids)
		}
	}
	return exp
}

// WriteJSON writes exp as indented JSON.
func WriteJSON(w io.Writer, exp *RoadmapExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exp)
}

// ReadGraph reads a graph from r. It accepts a RoadmapExport document or a
// bare {"nodes": [...], "edges": [...]} object and returns the roadmap
// metadata when present.
func ReadGraph(r io.Reader) (codec.Roadmap, graph.Graph, error) {
	var doc struct {
		Roadmap *codec.Roadmap `json:"roadmap"`
		Nodes   []graph.Node   `json:"nodes"`
		Edges   []graph.Edge   `json:"edges"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return codec.Roadmap{}, graph.Graph{}, fmt.Errorf("read graph: %w", err)
	}
	if doc.Nodes == nil && doc.Edges == nil {
		return codec.Roadmap{}, graph.Graph{}, errors.New("read graph: no nodes or edges")
	}
	var meta codec.Roadmap
	if doc.Roadmap != nil {
		meta = *doc.Roadmap
	}
	return meta, graph.Graph{Nodes: doc.Nodes, Edges: doc.Edges}, nil
}
