package mcptools

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/roadmap/internal/export"
	"github.com/dusk-indust/roadmap/internal/graph"
	"github.com/dusk-indust/roadmap/internal/session"
)

// EditorService exposes an editing session to MCP tool handlers.
type EditorService struct {
	sess   *session.Session
	logger *slog.Logger
}

// NewEditorService creates an EditorService for sess.
func NewEditorService(sess *session.Session, logger *slog.Logger) *EditorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditorService{sess: sess, logger: logger}
}

func (s *EditorService) store() *graph.Store { return s.sess.Store() }

// GetGraph returns the current graph with its session state.
func (s *EditorService) GetGraph(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ GetGraphInput,
) (*mcp.CallToolResult, GetGraphOutput, error) {
	st := s.store()
	g := st.Graph()
	out := GetGraphOutput{
		Nodes:   g.Nodes,
		Edges:   g.Edges,
		Stats:   g.Stats(),
		State:   s.sess.State().String(),
		Dirty:   s.sess.Dirty(),
		CanUndo: st.CanUndo(),
		CanRedo: st.CanRedo(),
	}
	if n, ok := st.Selected(); ok {
		out.Selected = n.ID
	}
	return nil, out, nil
}

// AddCourse places a new course node on the canvas.
func (s *EditorService) AddCourse(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input AddCourseInput,
) (*mcp.CallToolResult, CourseOutput, error) {
	if strings.TrimSpace(input.Label) == "" {
		return nil, CourseOutput{}, fmt.Errorf("label is required")
	}
	n, err := s.store().AddNode(graph.Node{
		ID:       input.ID,
		Position: graph.Position{X: input.X, Y: input.Y},
		CourseID: input.CourseID,
		Data: graph.NodeData{
			Label:       input.Label,
			Code:        input.Code,
			Description: input.Description,
			Category:    input.Category,
			Difficulty:  input.Difficulty,
			Credits:     graph.Credits(input.Credits),
		},
	})
	if err != nil {
		return nil, CourseOutput{}, fmt.Errorf("add course: %w", err)
	}
	return nil, CourseOutput{Node: n}, nil
}

// UpdateCourse merges the given fields into a course's data.
func (s *EditorService) UpdateCourse(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input UpdateCourseInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	if input.ID == "" {
		return nil, ChangedOutput{}, fmt.Errorf("id is required")
	}
	ok, err := s.store().UpdateNode(input.ID, input.patch())
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("update course: %w", err)
	}
	return nil, ChangedOutput{Changed: ok}, nil
}

// MoveCourse records a drag-end at the given position.
func (s *EditorService) MoveCourse(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input MoveCourseInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	ok, err := s.store().MoveNode(input.ID, graph.Position{X: input.X, Y: input.Y})
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("move course: %w", err)
	}
	return nil, ChangedOutput{Changed: ok}, nil
}

// DeleteCourse removes a course and every edge touching it.
func (s *EditorService) DeleteCourse(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input NodeIDInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	ok, err := s.store().DeleteNode(input.ID)
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("delete course: %w", err)
	}
	return nil, ChangedOutput{Changed: ok}, nil
}

// SelectCourse marks a course as the active one.
func (s *EditorService) SelectCourse(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input NodeIDInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	if input.ID == "" {
		s.store().ClearSelection()
		return nil, ChangedOutput{Changed: true}, nil
	}
	return nil, ChangedOutput{Changed: s.store().Select(input.ID)}, nil
}

// ConnectCourses validates a connection proposal and upserts the edge.
func (s *EditorService) ConnectCourses(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ConnectInput,
) (*mcp.CallToolResult, EdgeOutput, error) {
	ct := graph.ConnectionType(strings.ToLower(strings.TrimSpace(input.ConnectionType)))
	if ct != "" && !ct.Valid() {
		return nil, EdgeOutput{}, fmt.Errorf("connectionType must be arrow or none, got %q", input.ConnectionType)
	}
	e, err := s.store().UpsertEdge(graph.Connection{
		Source:       input.Source,
		SourceHandle: input.SourceHandle,
		Target:       input.Target,
		TargetHandle: input.TargetHandle,
	}, ct)
	if err != nil {
		return nil, EdgeOutput{}, fmt.Errorf("connect courses: %w", err)
	}
	return nil, EdgeOutput{Edge: e}, nil
}

// Disconnect removes an edge by id.
func (s *EditorService) Disconnect(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input DisconnectInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	ok, err := s.store().DeleteEdge(input.EdgeID)
	if err != nil {
		return nil, ChangedOutput{}, fmt.Errorf("disconnect: %w", err)
	}
	return nil, ChangedOutput{Changed: ok}, nil
}

// Undo reverts the most recent change.
func (s *EditorService) Undo(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ HistoryInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	return nil, ChangedOutput{Changed: s.store().Undo()}, nil
}

// Redo re-applies the most recently undone change.
func (s *EditorService) Redo(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ HistoryInput,
) (*mcp.CallToolResult, ChangedOutput, error) {
	return nil, ChangedOutput{Changed: s.store().Redo()}, nil
}

// SaveRoadmap persists the current graph through the session's saver.
// A failed save is reported as a tool error; local edits are kept.
func (s *EditorService) SaveRoadmap(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ SaveInput,
) (*mcp.CallToolResult, SaveOutput, error) {
	if err := s.sess.Save(ctx); err != nil {
		return nil, SaveOutput{}, fmt.Errorf("save roadmap: %w", err)
	}
	return nil, SaveOutput{State: s.sess.State().String()}, nil
}

// NormalizeHandle maps an anchor id to its canonical spelling.
func (s *EditorService) NormalizeHandle(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input NormalizeHandleInput,
) (*mcp.CallToolResult, NormalizeHandleOutput, error) {
	return nil, NormalizeHandleOutput{
		Handle: graph.NormalizeHandle(input.Handle, graph.ParseRole(input.Role)),
	}, nil
}

// ExportRoadmap renders the current graph as a diagram or study plan.
func (s *EditorService) ExportRoadmap(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ExportInput,
) (*mcp.CallToolResult, ExportOutput, error) {
	g := s.store().Graph()
	switch strings.ToLower(input.Format) {
	case "", "mermaid":
		return nil, ExportOutput{Format: "mermaid", Text: export.Mermaid(g)}, nil
	case "plan":
		var buf bytes.Buffer
		if err := export.WritePlan(&buf, input.Title, g); err != nil {
			return nil, ExportOutput{}, fmt.Errorf("export plan: %w", err)
		}
		return nil, ExportOutput{Format: "plan", Text: buf.String()}, nil
	default:
		return nil, ExportOutput{}, fmt.Errorf("unknown format %q (use mermaid or plan)", input.Format)
	}
}
