package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// maxErrorBody caps how much of a failed response is kept in a NetworkError.
const maxErrorBody = 4 << 10

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	headers http.Header
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		c.headers.Add(key, value)
	}
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRoadmap fetches roadmap metadata via GET /roadmaps/{id}.
func (c *HTTPClient) GetRoadmap(ctx context.Context, id int64) (*codec.Roadmap, error) {
	var out codec.Roadmap
	if err := c.do(ctx, http.MethodGet, roadmapPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRoadmap creates a roadmap via POST /roadmaps.
func (c *HTTPClient) CreateRoadmap(ctx context.Context, meta codec.Roadmap) (*codec.Roadmap, error) {
	var out codec.Roadmap
	if err := c.do(ctx, http.MethodPost, "/roadmaps", meta, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRoadmap replaces roadmap metadata via PUT /roadmaps/{id}.
func (c *HTTPClient) UpdateRoadmap(ctx context.Context, id int64, meta codec.Roadmap) (*codec.Roadmap, error) {
	var out codec.Roadmap
	if err := c.do(ctx, http.MethodPut, roadmapPath(id), meta, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNodes fetches the node collection via GET /roadmaps/{id}/nodes.
func (c *HTTPClient) GetNodes(ctx context.Context, roadmapID int64) ([]codec.NodeRecord, error) {
	var out []codec.NodeRecord
	if err := c.do(ctx, http.MethodGet, roadmapPath(roadmapID)+"/nodes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutNodes replaces the node collection via PUT /roadmaps/{id}/nodes.
func (c *HTTPClient) PutNodes(ctx context.Context, roadmapID int64, nodes []codec.NodeRecord) error {
	return c.do(ctx, http.MethodPut, roadmapPath(roadmapID)+"/nodes", nonNil(nodes), nil)
}

// GetEdges fetches the edge collection via GET /roadmaps/{id}/edges.
func (c *HTTPClient) GetEdges(ctx context.Context, roadmapID int64) ([]codec.EdgeRecord, error) {
	var out []codec.EdgeRecord
	if err := c.do(ctx, http.MethodGet, roadmapPath(roadmapID)+"/edges", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutEdges replaces the edge collection via PUT /roadmaps/{id}/edges.
func (c *HTTPClient) PutEdges(ctx context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	return c.do(ctx, http.MethodPut, roadmapPath(roadmapID)+"/edges", nonNil(edges), nil)
}

// AppendEdges adds edges via POST /roadmaps/{id}/edges.
func (c *HTTPClient) AppendEdges(ctx context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	return c.do(ctx, http.MethodPost, roadmapPath(roadmapID)+"/edges", nonNil(edges), nil)
}

func roadmapPath(id int64) string {
	return fmt.Sprintf("/roadmaps/%d", id)
}

// nonNil makes an empty collection encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// do performs one JSON request. Any transport failure or non-2xx status is
// returned as a *NetworkError.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &NetworkError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return &NetworkError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
