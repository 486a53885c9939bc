package mcptools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/roadmap/internal/graph"
	"github.com/dusk-indust/roadmap/internal/logging"
	"github.com/dusk-indust/roadmap/internal/session"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestService creates an EditorService over an editable session seeded
// with two courses.
func newTestService(t *testing.T, opts ...func(*session.Options)) *EditorService {
	t.Helper()
	o := session.Options{
		InitialNodes: []graph.Node{
			{ID: "intro", Position: graph.Position{X: 0, Y: 0}, Data: graph.NodeData{Label: "Intro"}},
			{ID: "ds", Position: graph.Position{X: 200, Y: 0}, Data: graph.NodeData{Label: "Data Structures"}},
		},
		IsEditing: true,
		Logger:    logging.Discard(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	sess := session.New(o)
	t.Cleanup(sess.Close)
	return NewEditorService(sess, logging.Discard())
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGetGraph(t *testing.T) {
	svc := newTestService(t)
	_, out, err := svc.GetGraph(context.Background(), nil, GetGraphInput{})
	require.NoError(t, err)

	assert.Len(t, out.Nodes, 2)
	assert.Empty(t, out.Edges)
	assert.Equal(t, 2, out.Stats.NodeCount)
	assert.Equal(t, "ready", out.State)
	assert.False(t, out.Dirty)
	assert.False(t, out.CanUndo)
}

func TestAddCourse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, out, err := svc.AddCourse(ctx, nil, AddCourseInput{Label: "Algorithms", Code: "CS201", Credits: 4, X: 400, Y: 0, CourseID: ptr(int64(7))})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Node.ID)
	assert.Equal(t, "CS201", out.Node.Data.Code)
	assert.Equal(t, graph.Credits(4), out.Node.Data.Credits)
	require.NotNil(t, out.Node.CourseID)
	assert.Equal(t, int64(7), *out.Node.CourseID)

	_, _, err = svc.AddCourse(ctx, nil, AddCourseInput{Label: "  "})
	assert.ErrorContains(t, err, "label is required")

	_, _, err = svc.AddCourse(ctx, nil, AddCourseInput{ID: "intro", Label: "Dup"})
	var verr *graph.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, g, _ := svc.GetGraph(ctx, nil, GetGraphInput{})
	assert.Equal(t, "editing", g.State)
	assert.True(t, g.Dirty)
	assert.True(t, g.CanUndo)
}

func TestUpdateCourse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, out, err := svc.UpdateCourse(ctx, nil, UpdateCourseInput{ID: "intro", Label: ptr("Intro to CS"), Completed: ptr(true)})
	require.NoError(t, err)
	assert.True(t, out.Changed)

	n, ok := svc.store().Node("intro")
	require.True(t, ok)
	assert.Equal(t, "Intro to CS", n.Data.Label)
	assert.True(t, n.Data.Completed)
	assert.NotNil(t, n.Data.CompletedAt)

	_, out, err = svc.UpdateCourse(ctx, nil, UpdateCourseInput{ID: "missing", Label: ptr("x")})
	require.NoError(t, err)
	assert.False(t, out.Changed)

	_, _, err = svc.UpdateCourse(ctx, nil, UpdateCourseInput{})
	assert.Error(t, err)
}

func TestMoveAndDeleteCourse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", Target: "ds"})
	require.NoError(t, err)

	_, out, err := svc.MoveCourse(ctx, nil, MoveCourseInput{ID: "ds", X: 250, Y: 50})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	n, _ := svc.store().Node("ds")
	assert.Equal(t, graph.Position{X: 250, Y: 50}, n.Position)

	_, out, err = svc.DeleteCourse(ctx, nil, NodeIDInput{ID: "intro"})
	require.NoError(t, err)
	assert.True(t, out.Changed)

	g := svc.store().Graph()
	assert.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Edges, "edges touching a deleted course are removed")
}

func TestSelectCourse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, out, err := svc.SelectCourse(ctx, nil, NodeIDInput{ID: "ds"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	_, g, _ := svc.GetGraph(ctx, nil, GetGraphInput{})
	assert.Equal(t, "ds", g.Selected)

	_, out, _ = svc.SelectCourse(ctx, nil, NodeIDInput{ID: "nope"})
	assert.False(t, out.Changed)

	_, _, _ = svc.SelectCourse(ctx, nil, NodeIDInput{})
	_, g, _ = svc.GetGraph(ctx, nil, GetGraphInput{})
	assert.Empty(t, g.Selected)
}

func TestConnectCourses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, out, err := svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", SourceHandle: "right", Target: "ds", TargetHandle: "left-target"})
	require.NoError(t, err)
	assert.Equal(t, "edge-intro-right-source-ds-left", out.Edge.ID)
	assert.Equal(t, graph.ConnectionArrow, out.Edge.Data.ConnectionType)
	assert.NotNil(t, out.Edge.MarkerEnd)

	_, out, err = svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", SourceHandle: "right-source", Target: "ds", TargetHandle: "left", ConnectionType: "NONE"})
	require.NoError(t, err)
	assert.Nil(t, out.Edge.MarkerEnd)
	assert.Len(t, svc.store().Graph().Edges, 1, "same anchors replace the edge")

	_, _, err = svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", Target: "ds", ConnectionType: "dotted"})
	assert.ErrorContains(t, err, "connectionType")

	_, _, err = svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", Target: "ghost"})
	assert.Error(t, err)
}

func TestDisconnectUndoRedo(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, edge, err := svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", Target: "ds"})
	require.NoError(t, err)

	_, out, err := svc.Disconnect(ctx, nil, DisconnectInput{EdgeID: edge.Edge.ID})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Empty(t, svc.store().Graph().Edges)

	_, out, _ = svc.Undo(ctx, nil, HistoryInput{})
	assert.True(t, out.Changed)
	assert.Len(t, svc.store().Graph().Edges, 1)

	_, out, _ = svc.Redo(ctx, nil, HistoryInput{})
	assert.True(t, out.Changed)
	assert.Empty(t, svc.store().Graph().Edges)

	_, out, _ = svc.Redo(ctx, nil, HistoryInput{})
	assert.False(t, out.Changed)
}

func TestReadOnlySessionRejectsEdits(t *testing.T) {
	svc := newTestService(t, func(o *session.Options) { o.ReadOnly = true })
	_, _, err := svc.AddCourse(context.Background(), nil, AddCourseInput{Label: "x"})
	assert.ErrorIs(t, err, graph.ErrReadOnly)
}

func TestSaveRoadmap(t *testing.T) {
	var saved []graph.Graph
	fail := false
	svc := newTestService(t, func(o *session.Options) {
		o.OnSave = func(_ context.Context, g graph.Graph) error {
			if fail {
				return errors.New("server unavailable")
			}
			saved = append(saved, g)
			return nil
		}
	})
	ctx := context.Background()

	_, _, err := svc.MoveCourse(ctx, nil, MoveCourseInput{ID: "ds", X: 1, Y: 1})
	require.NoError(t, err)

	_, out, err := svc.SaveRoadmap(ctx, nil, SaveInput{})
	require.NoError(t, err)
	assert.Equal(t, "ready", out.State)
	require.Len(t, saved, 1)

	fail = true
	_, _, err = svc.SaveRoadmap(ctx, nil, SaveInput{})
	assert.ErrorContains(t, err, "server unavailable")
}

func TestSaveRoadmap_NoSaver(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.SaveRoadmap(context.Background(), nil, SaveInput{})
	assert.ErrorIs(t, err, session.ErrNoSaver)
}

func TestNormalizeHandle(t *testing.T) {
	svc := newTestService(t)
	tests := []struct {
		in, role, want string
	}{
		{"right", "source", "right-source"},
		{"bottom-source-source", "", "bottom-source"},
		{"top-source", "target", "top"},
		{"", "target", "left"},
	}
	for _, tt := range tests {
		_, out, err := svc.NormalizeHandle(context.Background(), nil, NormalizeHandleInput{Handle: tt.in, Role: tt.role})
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.Handle, "normalize %q as %q", tt.in, tt.role)
	}
}

func TestExportRoadmap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.ConnectCourses(ctx, nil, ConnectInput{Source: "intro", Target: "ds"})
	require.NoError(t, err)

	_, out, err := svc.ExportRoadmap(ctx, nil, ExportInput{})
	require.NoError(t, err)
	assert.Equal(t, "mermaid", out.Format)
	assert.Contains(t, out.Text, "N0 --> N1")

	_, out, err = svc.ExportRoadmap(ctx, nil, ExportInput{Format: "plan", Title: "CS"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "## Term 2\n\n- [ ] Data Structures")

	_, _, err = svc.ExportRoadmap(ctx, nil, ExportInput{Format: "svg"})
	assert.Error(t, err)
}
