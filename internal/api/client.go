// Package api is the remote surface of the roadmap service: a JSON/HTTP
// client used by the editor and a reference server backed by a
// repo.Repository.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// Client is the set of remote calls the editor makes. Every write is a full
// replace of the addressed resource except AppendEdges.
type Client interface {
	// GetRoadmap fetches roadmap metadata.
	GetRoadmap(ctx context.Context, id int64) (*codec.Roadmap, error)

	// CreateRoadmap creates a roadmap and returns it with its assigned id.
	CreateRoadmap(ctx context.Context, meta codec.Roadmap) (*codec.Roadmap, error)

	// UpdateRoadmap replaces roadmap metadata.
	UpdateRoadmap(ctx context.Context, id int64, meta codec.Roadmap) (*codec.Roadmap, error)

	GetNodes(ctx context.Context, roadmapID int64) ([]codec.NodeRecord, error)
	PutNodes(ctx context.Context, roadmapID int64, nodes []codec.NodeRecord) error

	GetEdges(ctx context.Context, roadmapID int64) ([]codec.EdgeRecord, error)
	PutEdges(ctx context.Context, roadmapID int64, edges []codec.EdgeRecord) error

	// AppendEdges adds edges without clearing the existing collection.
	AppendEdges(ctx context.Context, roadmapID int64, edges []codec.EdgeRecord) error
}

// NetworkError is returned when a remote call fails, either in transport
// (Err set) or with a non-2xx status (StatusCode and Body set).
type NetworkError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api: %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("api: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap returns the transport error, if any.
func (e *NetworkError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a NetworkError with the given status code.
func IsStatus(err error, code int) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.StatusCode == code
}
