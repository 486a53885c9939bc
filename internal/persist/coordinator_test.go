package persist

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/roadmap/internal/api"
	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/graph"
	"github.com/dusk-indust/roadmap/internal/logging"
	"github.com/dusk-indust/roadmap/internal/repo"
)

var errBoom = errors.New("boom")

// fakeClient implements api.Client over a MemRepository with injectable
// failures.
type fakeClient struct {
	mem *repo.MemRepository

	mu            sync.Mutex
	calls         []string
	failCreate    error
	failUpdate    error
	failNodes     error
	failPutEdges  func(edges []codec.EdgeRecord) error
	failAppend    func(edges []codec.EdgeRecord) error
	blockCreate   chan struct{}
	createStarted chan struct{}
}

var _ api.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{mem: repo.NewMemRepository()}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) GetRoadmap(ctx context.Context, id int64) (*codec.Roadmap, error) {
	m, err := f.mem.GetRoadmap(ctx, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (f *fakeClient) CreateRoadmap(ctx context.Context, meta codec.Roadmap) (*codec.Roadmap, error) {
	f.record("create")
	if f.createStarted != nil {
		close(f.createStarted)
	}
	if f.blockCreate != nil {
		<-f.blockCreate
	}
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	m, err := f.mem.CreateRoadmap(ctx, meta)
	return &m, err
}

func (f *fakeClient) UpdateRoadmap(ctx context.Context, id int64, meta codec.Roadmap) (*codec.Roadmap, error) {
	f.record("update")
	if f.failUpdate != nil {
		return nil, f.failUpdate
	}
	m, err := f.mem.UpdateRoadmap(ctx, id, meta)
	return &m, err
}

func (f *fakeClient) GetNodes(ctx context.Context, id int64) ([]codec.NodeRecord, error) {
	return f.mem.Nodes(ctx, id)
}

func (f *fakeClient) PutNodes(ctx context.Context, id int64, nodes []codec.NodeRecord) error {
	f.record("put-nodes")
	if f.failNodes != nil {
		return f.failNodes
	}
	return f.mem.ReplaceNodes(ctx, id, nodes)
}

func (f *fakeClient) GetEdges(ctx context.Context, id int64) ([]codec.EdgeRecord, error) {
	return f.mem.Edges(ctx, id)
}

func (f *fakeClient) PutEdges(ctx context.Context, id int64, edges []codec.EdgeRecord) error {
	f.record(fmt.Sprintf("put-edges:%d", len(edges)))
	if f.failPutEdges != nil {
		if err := f.failPutEdges(edges); err != nil {
			return err
		}
	}
	return f.mem.ReplaceEdges(ctx, id, edges)
}

func (f *fakeClient) AppendEdges(ctx context.Context, id int64, edges []codec.EdgeRecord) error {
	f.record(fmt.Sprintf("append-edges:%d", len(edges)))
	if f.failAppend != nil {
		if err := f.failAppend(edges); err != nil {
			return err
		}
	}
	return f.mem.AppendEdges(ctx, id, edges)
}

// chainGraph builds n nodes connected in a chain, n-1 edges.
func chainGraph(t *testing.T, n int) graph.Graph {
	t.Helper()
	s := graph.NewStore(graph.WithLogger(logging.Discard()))
	for i := range n {
		_, err := s.AddNode(graph.Node{
			ID:       fmt.Sprintf("N%02d", i),
			Position: graph.Position{X: float64(i * 100)},
			Data:     graph.NodeData{Label: fmt.Sprintf("Course %d", i)},
		})
		require.NoError(t, err)
	}
	for i := 1; i < n; i++ {
		_, err := s.UpsertEdge(graph.Connection{
			Source:       fmt.Sprintf("N%02d", i-1),
			SourceHandle: "right",
			Target:       fmt.Sprintf("N%02d", i),
			TargetHandle: "left",
		}, graph.ConnectionArrow)
		require.NoError(t, err)
	}
	return s.Graph()
}

func newCoordinator(client api.Client, opts ...Option) *Coordinator {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(client, opts...)
}

func TestSave_CreatesRoadmap(t *testing.T) {
	fc := newFakeClient()
	c := newCoordinator(fc)

	res, err := c.Save(context.Background(), SaveRequest{
		Metadata: codec.Roadmap{Title: "CS Degree"},
		Graph:    chainGraph(t, 3),
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.True(t, res.Created)
	assert.NotZero(t, res.RoadmapID)
	assert.False(t, res.Batched)
	assert.Equal(t, []string{"create", "put-nodes", "put-edges:2"}, fc.Calls())

	nodes, err := fc.mem.Nodes(context.Background(), res.RoadmapID)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	edges, err := fc.mem.Edges(context.Background(), res.RoadmapID)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestSave_UpdatesExistingRoadmap(t *testing.T) {
	fc := newFakeClient()
	m, err := fc.mem.CreateRoadmap(context.Background(), codec.Roadmap{Title: "Old"})
	require.NoError(t, err)

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{
		RoadmapID: &m.ID,
		Metadata:  codec.Roadmap{Title: "New"},
		Graph:     chainGraph(t, 2),
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, m.ID, res.RoadmapID)
	assert.Equal(t, "update", fc.Calls()[0])

	got, err := fc.mem.GetRoadmap(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
}

func TestSave_CreateFailureSkipsCollections(t *testing.T) {
	fc := newFakeClient()
	fc.failCreate = errBoom

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{Graph: chainGraph(t, 2)})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, res.Metadata.Err, errBoom)
	assert.True(t, res.Nodes.Skipped)
	assert.True(t, res.Edges.Skipped)
	assert.Zero(t, res.RoadmapID)
	assert.Equal(t, []string{"create"}, fc.Calls())
}

func TestSave_PartialFailureIsNotRolledBack(t *testing.T) {
	fc := newFakeClient()
	m, err := fc.mem.CreateRoadmap(context.Background(), codec.Roadmap{Title: "Kept"})
	require.NoError(t, err)
	fc.failNodes = errBoom

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{
		RoadmapID: &m.ID,
		Metadata:  codec.Roadmap{Title: "Updated"},
		Graph:     chainGraph(t, 3),
	})
	require.Error(t, err)
	assert.True(t, res.Metadata.OK())
	assert.ErrorIs(t, res.Nodes.Err, errBoom)
	assert.True(t, res.Edges.OK(), "edges are written independently")

	got, err := fc.mem.GetRoadmap(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title, "metadata stays saved")
}

func TestSave_MetadataUpdateFailureStillWritesCollections(t *testing.T) {
	fc := newFakeClient()
	m, err := fc.mem.CreateRoadmap(context.Background(), codec.Roadmap{Title: "Kept"})
	require.NoError(t, err)
	fc.failUpdate = errBoom

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{RoadmapID: &m.ID, Graph: chainGraph(t, 2)})
	require.Error(t, err)
	assert.ErrorIs(t, res.Metadata.Err, errBoom)
	assert.True(t, res.Nodes.OK())
	assert.True(t, res.Edges.OK())
}

func TestSave_BatchedEdgeFallback(t *testing.T) {
	fc := newFakeClient()
	fc.failPutEdges = func(edges []codec.EdgeRecord) error {
		if len(edges) > DefaultBatchSize {
			return errBoom
		}
		return nil
	}

	g := chainGraph(t, 13) // 12 edges -> batches of 5, 5, 2
	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{Graph: g})
	require.NoError(t, err)
	assert.True(t, res.Batched)
	assert.Equal(t, 3, res.BatchesSucceeded)
	assert.Zero(t, res.BatchesFailed)
	assert.True(t, res.Edges.OK())
	assert.Equal(t, []string{
		"create", "put-nodes",
		"put-edges:12", "put-edges:5", "append-edges:5", "append-edges:2",
	}, fc.Calls())

	stored, err := fc.mem.Edges(context.Background(), res.RoadmapID)
	require.NoError(t, err)
	require.Len(t, stored, 12)
	for i, e := range stored {
		assert.Equal(t, g.Edges[i].ID, e.EdgeIdentifier, "order kept at index %d", i)
	}
}

func TestSave_BatchedEdgeFallbackPartialFailure(t *testing.T) {
	fc := newFakeClient()
	fc.failPutEdges = func(edges []codec.EdgeRecord) error {
		if len(edges) > DefaultBatchSize {
			return errBoom
		}
		return nil
	}
	fc.failAppend = func(edges []codec.EdgeRecord) error {
		if len(edges) == 2 {
			return errBoom
		}
		return nil
	}

	res, err := newCoordinator(fc, WithBatchConcurrency(2)).Save(context.Background(), SaveRequest{Graph: chainGraph(t, 13)})
	require.Error(t, err)
	assert.True(t, res.Batched)
	assert.Equal(t, 2, res.BatchesSucceeded)
	assert.Equal(t, 1, res.BatchesFailed)
	assert.ErrorIs(t, res.Edges.Err, errBoom)
	assert.True(t, res.Nodes.OK())
}

func TestSave_FirstBatchFailureFailsAll(t *testing.T) {
	fc := newFakeClient()
	fc.failPutEdges = func([]codec.EdgeRecord) error { return errBoom }

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{Graph: chainGraph(t, 13)})
	require.Error(t, err)
	assert.Zero(t, res.BatchesSucceeded)
	assert.Equal(t, 3, res.BatchesFailed)
	assert.NotContains(t, fc.Calls(), "append-edges:5")
}

func TestSave_SmallEdgeSetIsNotBatched(t *testing.T) {
	fc := newFakeClient()
	fc.failPutEdges = func([]codec.EdgeRecord) error { return errBoom }

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{Graph: chainGraph(t, 6)})
	require.Error(t, err)
	assert.False(t, res.Batched)
	assert.ErrorIs(t, res.Edges.Err, errBoom)
	assert.Equal(t, []string{"create", "put-nodes", "put-edges:5"}, fc.Calls())
}

func TestSave_CustomBatchSize(t *testing.T) {
	fc := newFakeClient()
	fc.failPutEdges = func(edges []codec.EdgeRecord) error {
		if len(edges) > 2 {
			return errBoom
		}
		return nil
	}

	res, err := newCoordinator(fc, WithBatchSize(2)).Save(context.Background(), SaveRequest{Graph: chainGraph(t, 6)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.BatchesSucceeded)
}

func TestSave_RejectsConcurrentSave(t *testing.T) {
	fc := newFakeClient()
	fc.blockCreate = make(chan struct{})
	fc.createStarted = make(chan struct{})
	c := newCoordinator(fc)

	done := make(chan error, 1)
	go func() {
		_, err := c.Save(context.Background(), SaveRequest{Graph: chainGraph(t, 2)})
		done <- err
	}()
	<-fc.createStarted

	res, err := c.Save(context.Background(), SaveRequest{Graph: chainGraph(t, 2)})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSaveInFlight)

	close(fc.blockCreate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first save did not finish")
	}

	// The slot is free again.
	fc.blockCreate = nil
	fc.createStarted = nil
	_, err = c.Save(context.Background(), SaveRequest{Graph: chainGraph(t, 2)})
	assert.NoError(t, err)
}

func TestSave_OrphanEdgeExcludedFromPayload(t *testing.T) {
	fc := newFakeClient()
	g := chainGraph(t, 3)
	g.Nodes = g.Nodes[:2] // N02 gone, edge N01->N02 is now an orphan

	res, err := newCoordinator(fc).Save(context.Background(), SaveRequest{Graph: g})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Encode.DroppedEdges)

	stored, err := fc.mem.Edges(context.Background(), res.RoadmapID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "N00", stored[0].Source)
}

func TestSave_ProgressEvents(t *testing.T) {
	fc := newFakeClient()
	var events []ProgressEvent
	c := newCoordinator(fc, WithProgress(func(ev ProgressEvent) { events = append(events, ev) }))

	_, err := c.Save(context.Background(), SaveRequest{Graph: chainGraph(t, 2)})
	require.NoError(t, err)

	want := []ProgressEvent{
		{Step: StepMetadata, Status: ProgressWorking},
		{Step: StepMetadata, Status: ProgressComplete},
		{Step: StepNodes, Status: ProgressWorking},
		{Step: StepNodes, Status: ProgressComplete},
		{Step: StepEdges, Status: ProgressWorking},
		{Step: StepEdges, Status: ProgressComplete},
	}
	assert.Equal(t, want, events)
}

// blankClient is a server that answers without ids or metadata.
type blankClient struct{ *fakeClient }

func (b blankClient) CreateRoadmap(_ context.Context, meta codec.Roadmap) (*codec.Roadmap, error) {
	b.record("create")
	return &codec.Roadmap{Title: meta.Title}, nil
}

func (b blankClient) GetRoadmap(context.Context, int64) (*codec.Roadmap, error) {
	return nil, nil
}

func TestSave_CreateWithoutIDReportsFailure(t *testing.T) {
	fc := newFakeClient()
	var events []ProgressEvent
	c := newCoordinator(blankClient{fc}, WithProgress(func(ev ProgressEvent) { events = append(events, ev) }))

	res, err := c.Save(context.Background(), SaveRequest{Graph: chainGraph(t, 2)})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Created)
	assert.ErrorContains(t, res.Metadata.Err, "no roadmap id")
	assert.True(t, res.Nodes.Skipped)

	want := []ProgressEvent{
		{Step: StepMetadata, Status: ProgressWorking},
		{Step: StepMetadata, Status: ProgressFailed, Message: "server returned no roadmap id"},
		{Step: StepNodes, Status: ProgressSkipped, Message: "no roadmap id"},
		{Step: StepEdges, Status: ProgressSkipped, Message: "no roadmap id"},
	}
	assert.Equal(t, want, events)
	assert.Equal(t, []string{"create"}, fc.Calls())
}

func TestLoad_MissingMetadata(t *testing.T) {
	fc := newFakeClient()
	_, err := fc.mem.CreateRoadmap(context.Background(), codec.Roadmap{Title: "CS"})
	require.NoError(t, err)

	_, _, _, err = newCoordinator(blankClient{fc}).Load(context.Background(), 1)
	assert.ErrorContains(t, err, "server returned no roadmap")
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "  ✓ nodes saved", FormatProgress(ProgressEvent{Step: StepNodes, Status: ProgressComplete}))
	assert.Equal(t, "  ✗ edges batch 2 failed: boom",
		FormatProgress(ProgressEvent{Step: StepEdges, Status: ProgressFailed, Batch: 2, Message: "boom"}))
	assert.Equal(t, "  ○ nodes skipped: no roadmap id",
		FormatProgress(ProgressEvent{Step: StepNodes, Status: ProgressSkipped, Message: "no roadmap id"}))
}

func TestPartition(t *testing.T) {
	got := partition([]int{1, 2, 3, 4, 5, 6, 7}, 3)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, got)
	assert.Nil(t, partition([]int{}, 3))
}

func TestSaveThenLoad_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(repo.NewMemRepository(), api.WithLogger(logging.Discard())).Handler())
	defer srv.Close()
	c := newCoordinator(api.NewHTTPClient(srv.URL))
	ctx := context.Background()

	s := graph.NewStore(graph.WithLogger(logging.Discard()))
	_, err := s.AddNode(graph.Node{ID: "A", Position: graph.Position{X: 0, Y: 0}, Data: graph.NodeData{Label: "Intro"}})
	require.NoError(t, err)
	_, err = s.AddNode(graph.Node{ID: "B", Position: graph.Position{X: 100, Y: 100}, Data: graph.NodeData{Label: "Next"}})
	require.NoError(t, err)
	_, err = s.UpsertEdge(graph.Connection{Source: "A", SourceHandle: "right", Target: "B", TargetHandle: "left"}, graph.ConnectionArrow)
	require.NoError(t, err)
	want := s.Graph()

	res, err := c.Save(ctx, SaveRequest{Metadata: codec.Roadmap{Title: "Scenario C"}, Graph: want})
	require.NoError(t, err)

	meta, got, rep, err := c.Load(ctx, res.RoadmapID)
	require.NoError(t, err)
	assert.True(t, rep.Clean())
	assert.Equal(t, "Scenario C", meta.Title)
	require.Len(t, got.Nodes, 2)
	require.Len(t, got.Edges, 1)
	assert.Equal(t, "edge-A-right-source-B-left", got.Edges[0].ID)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("reloaded graph mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_UnknownRoadmap(t *testing.T) {
	srv := httptest.NewServer(api.NewServer(repo.NewMemRepository(), api.WithLogger(logging.Discard())).Handler())
	defer srv.Close()

	_, _, _, err := newCoordinator(api.NewHTTPClient(srv.URL)).Load(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, 404))
}
