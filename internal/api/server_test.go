package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/logging"
	"github.com/dusk-indust/roadmap/internal/repo"
)

func ptr[T any](v T) *T { return &v }

// newTestServer serves a fresh memory repository and returns a client for it.
func newTestServer(t *testing.T, opts ...ServerOption) (*httptest.Server, *HTTPClient) {
	t.Helper()
	opts = append([]ServerOption{WithLogger(logging.Discard())}, opts...)
	srv := httptest.NewServer(NewServer(repo.NewMemRepository(), opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, NewHTTPClient(srv.URL)
}

func TestServer_RoundTripThroughClient(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	created, err := c.CreateRoadmap(ctx, codec.Roadmap{Title: "CS Degree", Category: "engineering"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	updated, err := c.UpdateRoadmap(ctx, created.ID, codec.Roadmap{Title: "CS Degree 2025", IsPublished: true})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := c.GetRoadmap(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "CS Degree 2025", got.Title)
	assert.True(t, got.IsPublished)

	nodes := []codec.NodeRecord{
		{NodeIdentifier: "A", PositionX: 0, PositionY: 0, Data: `{"label":"Intro"}`},
		{NodeIdentifier: "B", PositionX: 100, PositionY: 100, Data: `{"label":"Next"}`},
	}
	require.NoError(t, c.PutNodes(ctx, created.ID, nodes))

	edges := []codec.EdgeRecord{{
		EdgeIdentifier: "edge-A-right-source-B-left",
		Source:         "A",
		Target:         "B",
		SourceHandle:   ptr("right-source"),
		TargetHandle:   ptr("left"),
	}}
	require.NoError(t, c.PutEdges(ctx, created.ID, edges))
	require.NoError(t, c.AppendEdges(ctx, created.ID, []codec.EdgeRecord{{EdgeIdentifier: "extra", Source: "B", Target: "A"}}))

	gotNodes, err := c.GetNodes(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, gotNodes, 2)
	assert.Equal(t, "A", gotNodes[0].NodeIdentifier)

	gotEdges, err := c.GetEdges(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, gotEdges, 2)
	assert.Equal(t, "right-source", *gotEdges[0].SourceHandle)
	assert.Equal(t, "extra", gotEdges[1].EdgeIdentifier)
}

func TestServer_EmptyCollectionsAreArrays(t *testing.T) {
	srv, c := newTestServer(t)
	created, err := c.CreateRoadmap(context.Background(), codec.Roadmap{Title: "Empty"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + roadmapPath(created.ID) + "/nodes")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func TestServer_NotFound(t *testing.T) {
	_, c := newTestServer(t)
	_, err := c.GetRoadmap(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))

	err = c.PutNodes(context.Background(), 404, nil)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestServer_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/roadmaps/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/roadmaps", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CORS(t *testing.T) {
	t.Run("Wildcard", func(t *testing.T) {
		srv, _ := newTestServer(t)
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/roadmaps/1/nodes", nil)
		req.Header.Set("Origin", "https://editor.example.edu")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PUT")
	})

	t.Run("AllowList", func(t *testing.T) {
		srv, _ := newTestServer(t, WithAllowedOrigins("https://editor.example.edu"))

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
		req.Header.Set("Origin", "https://editor.example.edu")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "https://editor.example.edu", resp.Header.Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "https://evil.example.com")
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_Prerequisites(t *testing.T) {
	srv, c := newTestServer(t)
	ctx := context.Background()
	m, err := c.CreateRoadmap(ctx, codec.Roadmap{Title: "Chain"})
	require.NoError(t, err)
	require.NoError(t, c.PutNodes(ctx, m.ID, []codec.NodeRecord{{NodeIdentifier: "A"}, {NodeIdentifier: "B"}, {NodeIdentifier: "C"}}))
	require.NoError(t, c.PutEdges(ctx, m.ID, []codec.EdgeRecord{
		{EdgeIdentifier: "ab", Source: "A", Target: "B"},
		{EdgeIdentifier: "bc", Source: "B", Target: "C"},
	}))

	resp, err := http.Get(srv.URL + roadmapPath(m.ID) + "/nodes/C/prerequisites")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	assert.Equal(t, []string{"B", "A"}, ids)

	resp2, err := http.Get(srv.URL + roadmapPath(m.ID) + "/nodes/C/prerequisites?depth=x")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

// failingRepo fails every write with a storage error.
type failingRepo struct {
	*repo.MemRepository
}

func (failingRepo) ReplaceNodes(context.Context, int64, []codec.NodeRecord) error {
	return errors.New("disk full")
}

func TestServer_InternalErrorIsLoggedNotLeaked(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	mem := repo.NewMemRepository()
	m, err := mem.CreateRoadmap(context.Background(), codec.Roadmap{Title: "x"})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(failingRepo{mem}, WithLogger(logger)).Handler())
	defer srv.Close()

	err = NewHTTPClient(srv.URL).PutNodes(context.Background(), m.ID, nil)
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusInternalServerError, ne.StatusCode)
	assert.NotContains(t, ne.Body, "disk full")
	assert.Contains(t, logs.String(), "disk full")
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(repo.NewMemRepository(), WithLogger(logging.Discard()))
	require.NoError(t, s.Start(context.Background(), "127.0.0.1:0"))

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
