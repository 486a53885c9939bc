// Package repo stores roadmap metadata and the flat node and edge records
// that make up a roadmap graph. Records are stored exactly as received; the
// editor owns structural validation.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// ErrNotFound is returned for an unknown roadmap id.
var ErrNotFound = errors.New("repo: roadmap not found")

// Repository is the server-side persistence for roadmaps.
//
// Replace operations swap the whole collection for a roadmap, so repeating
// one is always safe. AppendEdges adds records to the collection, replacing
// any record with the same edge identifier.
type Repository interface {
	CreateRoadmap(ctx context.Context, meta codec.Roadmap) (codec.Roadmap, error)
	GetRoadmap(ctx context.Context, id int64) (codec.Roadmap, error)
	UpdateRoadmap(ctx context.Context, id int64, meta codec.Roadmap) (codec.Roadmap, error)

	Nodes(ctx context.Context, roadmapID int64) ([]codec.NodeRecord, error)
	ReplaceNodes(ctx context.Context, roadmapID int64, nodes []codec.NodeRecord) error

	Edges(ctx context.Context, roadmapID int64) ([]codec.EdgeRecord, error)
	ReplaceEdges(ctx context.Context, roadmapID int64, edges []codec.EdgeRecord) error
	AppendEdges(ctx context.Context, roadmapID int64, edges []codec.EdgeRecord) error

	Close() error
}

// PrerequisiteFinder is implemented by repositories that can walk the
// prerequisite chain of a course node.
type PrerequisiteFinder interface {
	// Prerequisites returns the identifiers of every node that must be
	// completed before nodeIdentifier, nearest first. maxDepth <= 0 means
	// unbounded.
	Prerequisites(ctx context.Context, roadmapID int64, nodeIdentifier string, maxDepth int) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendKuzu   = "kuzu"
)

// Open returns the repository for the named backend. path is ignored by the
// memory backend.
func Open(backend, path string) (Repository, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemRepository(), nil
	case BackendBadger:
		return NewBadgerRepository(path)
	case BackendKuzu:
		return openKuzu(path)
	default:
		return nil, fmt.Errorf("repo: unknown backend %q", backend)
	}
}

// stampNodes returns a copy of nodes owned by roadmapID.
func stampNodes(roadmapID int64, nodes []codec.NodeRecord) []codec.NodeRecord {
	out := make([]codec.NodeRecord, len(nodes))
	for i, n := range nodes {
		id := roadmapID
		n.RoadmapID = &id
		out[i] = n
	}
	return out
}

// stampEdges returns a copy of edges owned by roadmapID.
func stampEdges(roadmapID int64, edges []codec.EdgeRecord) []codec.EdgeRecord {
	out := make([]codec.EdgeRecord, len(edges))
	for i, e := range edges {
		id := roadmapID
		e.RoadmapID = &id
		out[i] = e
	}
	return out
}

// mergeEdges appends add to existing. A record whose identifier is already
// present replaces it in place.
func mergeEdges(existing, add []codec.EdgeRecord) []codec.EdgeRecord {
	out := make([]codec.EdgeRecord, len(existing), len(existing)+len(add))
	copy(out, existing)
	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.EdgeIdentifier] = i
	}
	for _, e := range add {
		if i, ok := index[e.EdgeIdentifier]; ok && e.EdgeIdentifier != "" {
			out[i] = e
			continue
		}
		index[e.EdgeIdentifier] = len(out)
		out = append(out, e)
	}
	return out
}

// prerequisites walks edges backwards from start, breadth first.
func prerequisites(edges []codec.EdgeRecord, start string, maxDepth int) []string {
	incoming := make(map[string][]string)
	for _, e := range edges {
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	type entry struct {
		id    string
		depth int
	}
	visited := map[string]bool{start: true}
	queue := []entry{{id: start}}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		for _, src := range incoming[cur.id] {
			if visited[src] {
				continue
			}
			visited[src] = true
			out = append(out, src)
			queue = append(queue, entry{id: src, depth: cur.depth + 1})
		}
	}
	return out
}
