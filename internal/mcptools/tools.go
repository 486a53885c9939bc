package mcptools

import "github.com/dusk-indust/roadmap/internal/graph"

// --- MCP Tool Input/Output Types ---
// These structs define the JSON schema for each MCP tool.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// GetGraphInput is the input for the get_graph MCP tool.
type GetGraphInput struct{}

// GetGraphOutput is the result of the get_graph MCP tool.
type GetGraphOutput struct {
	Nodes    []graph.Node     `json:"nodes"`
	Edges    []graph.Edge     `json:"edges"`
	Stats    graph.GraphStats `json:"stats"`
	State    string           `json:"state"`
	Dirty    bool             `json:"dirty"`
	CanUndo  bool             `json:"canUndo"`
	CanRedo  bool             `json:"canRedo"`
	Selected string           `json:"selected,omitempty"`
}

// AddCourseInput is the input for the add_course MCP tool.
type AddCourseInput struct {
	ID          string  `json:"id,omitempty" jsonschema:"node id (default: generated)"`
	Label       string  `json:"label" jsonschema:"course title shown on the canvas"`
	Code        string  `json:"code,omitempty" jsonschema:"course code, e.g. CS101"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Difficulty  string  `json:"difficulty,omitempty"`
	Credits     float64 `json:"credits,omitempty"`
	X           float64 `json:"x" jsonschema:"canvas x coordinate"`
	Y           float64 `json:"y" jsonschema:"canvas y coordinate"`
	CourseID    *int64  `json:"courseId,omitempty" jsonschema:"catalog course id"`
}

// CourseOutput is the result of the add_course MCP tool.
type CourseOutput struct {
	Node graph.Node `json:"node"`
}

// UpdateCourseInput is the input for the update_course MCP tool. Omitted
// fields are left unchanged.
type UpdateCourseInput struct {
	ID          string   `json:"id" jsonschema:"node id"`
	Label       *string  `json:"label,omitempty"`
	Code        *string  `json:"code,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Difficulty  *string  `json:"difficulty,omitempty"`
	Credits     *float64 `json:"credits,omitempty"`
	Completed   *bool    `json:"completed,omitempty" jsonschema:"marking complete stamps completedAt"`
	NodeColor   *string  `json:"nodeColor,omitempty"`
	NodeBgColor *string  `json:"nodeBgColor,omitempty"`
	TextColor   *string  `json:"textColor,omitempty"`
	FontSize    *string  `json:"fontSize,omitempty"`
}

func (in UpdateCourseInput) patch() graph.NodePatch {
	return graph.NodePatch{
		Label:       in.Label,
		Code:        in.Code,
		Description: in.Description,
		Category:    in.Category,
		Difficulty:  in.Difficulty,
		Credits:     in.Credits,
		Completed:   in.Completed,
		NodeColor:   in.NodeColor,
		NodeBgColor: in.NodeBgColor,
		TextColor:   in.TextColor,
		FontSize:    in.FontSize,
	}
}

// MoveCourseInput is the input for the move_course MCP tool.
type MoveCourseInput struct {
	ID string  `json:"id" jsonschema:"node id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// NodeIDInput names a single node.
type NodeIDInput struct {
	ID string `json:"id" jsonschema:"node id"`
}

// ConnectInput is the input for the connect_courses MCP tool.
type ConnectInput struct {
	Source         string `json:"source" jsonschema:"prerequisite node id"`
	SourceHandle   string `json:"sourceHandle,omitempty" jsonschema:"anchor on the source node: top, right, bottom or left"`
	Target         string `json:"target" jsonschema:"dependent node id"`
	TargetHandle   string `json:"targetHandle,omitempty" jsonschema:"anchor on the target node"`
	ConnectionType string `json:"connectionType,omitempty" jsonschema:"arrow or none (default: arrow)"`
}

// EdgeOutput is the result of the connect_courses MCP tool.
type EdgeOutput struct {
	Edge graph.Edge `json:"edge"`
}

// DisconnectInput is the input for the disconnect MCP tool.
type DisconnectInput struct {
	EdgeID string `json:"edgeId" jsonschema:"edge id"`
}

// HistoryInput is the input for the undo and redo MCP tools.
type HistoryInput struct{}

// ChangedOutput reports whether a mutation changed the graph.
type ChangedOutput struct {
	Changed bool `json:"changed"`
}

// SaveInput is the input for the save_roadmap MCP tool.
type SaveInput struct{}

// SaveOutput is the result of the save_roadmap MCP tool.
type SaveOutput struct {
	State string `json:"state"`
}

// NormalizeHandleInput is the input for the normalize_handle MCP tool.
type NormalizeHandleInput struct {
	Handle string `json:"handle" jsonschema:"anchor id in any legacy spelling"`
	Role   string `json:"role,omitempty" jsonschema:"source or target (default: source)"`
}

// NormalizeHandleOutput is the result of the normalize_handle MCP tool.
type NormalizeHandleOutput struct {
	Handle string `json:"handle"`
}

// ExportInput is the input for the export_roadmap MCP tool.
type ExportInput struct {
	Format string `json:"format,omitempty" jsonschema:"mermaid or plan (default: mermaid)"`
	Title  string `json:"title,omitempty" jsonschema:"heading for the plan format"`
}

// ExportOutput is the result of the export_roadmap MCP tool.
type ExportOutput struct {
	Format string `json:"format"`
	Text   string `json:"text"`
}
