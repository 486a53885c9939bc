package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/roadmap/internal/codec"
)

func TestHTTPClient_GetRoadmap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/roadmaps/7", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(codec.Roadmap{ID: 7, Title: "CS Degree"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL + "/api/")
	got, err := c.GetRoadmap(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "CS Degree", got.Title)
}

func TestHTTPClient_CreateRoadmapSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/roadmaps", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in codec.Roadmap
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = 11
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	got, err := c.CreateRoadmap(context.Background(), codec.Roadmap{Title: "New"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, "New", got.Title)
}

func TestHTTPClient_PutNodesEmptyIsArray(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/roadmaps/3/nodes", r.URL.Path)
		var body json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	require.NoError(t, c.PutNodes(context.Background(), 3, nil))
	assert.Equal(t, "[]", raw)
}

func TestHTTPClient_EdgeMethods(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode([]codec.EdgeRecord{{EdgeIdentifier: "e1", Source: "A", Target: "B"}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	ctx := context.Background()
	edges, err := c.GetEdges(ctx, 5)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Nil(t, edges[0].SourceHandle)

	require.NoError(t, c.PutEdges(ctx, 5, edges))
	require.NoError(t, c.AppendEdges(ctx, 5, edges))

	assert.Equal(t, []string{
		"GET /roadmaps/5/edges",
		"PUT /roadmaps/5/edges",
		"POST /roadmaps/5/edges",
	}, calls)
}

func TestHTTPClient_HTTPErrorIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.GetNodes(context.Background(), 1)
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.MethodGet, ne.Method)
	assert.Equal(t, "/roadmaps/1/nodes", ne.Path)
	assert.Equal(t, http.StatusServiceUnavailable, ne.StatusCode)
	assert.Equal(t, "database unavailable", ne.Body)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestHTTPClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url)
	err := c.PutEdges(context.Background(), 1, nil)
	require.Error(t, err)

	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Zero(t, ne.StatusCode)
	assert.NotNil(t, ne.Err)
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPClient(srv.URL)
	_, err := c.GetRoadmap(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHTTPClient_Options(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "editor", r.Header.Get("X-Client"))
		json.NewEncoder(w).Encode([]codec.NodeRecord{})
	}))
	defer srv.Close()

	hc := &http.Client{}
	c := NewHTTPClient(srv.URL,
		WithHTTPClient(hc),
		WithTimeout(2*time.Second),
		WithHeader("Authorization", "Bearer token"),
		WithHeader("X-Client", "editor"),
	)
	assert.Equal(t, 2*time.Second, hc.Timeout)

	nodes, err := c.GetNodes(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestHTTPClient_BadResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.GetRoadmap(context.Background(), 1)
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Contains(t, err.Error(), "decode response")
}
