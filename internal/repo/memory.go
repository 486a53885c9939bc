package repo

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// Compile-time assertions.
var (
	_ Repository         = (*MemRepository)(nil)
	_ PrerequisiteFinder = (*MemRepository)(nil)
)

// MemRepository implements Repository using Go maps. Thread-safe via sync.RWMutex.
type MemRepository struct {
	mu       sync.RWMutex
	nextID   int64
	roadmaps map[int64]codec.Roadmap
	nodes    map[int64][]codec.NodeRecord
	edges    map[int64][]codec.EdgeRecord
	now      func() time.Time
}

// NewMemRepository returns an initialized MemRepository ready for use.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		roadmaps: make(map[int64]codec.Roadmap),
		nodes:    make(map[int64][]codec.NodeRecord),
		edges:    make(map[int64][]codec.EdgeRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoadmap stores meta under the next free id.
func (m *MemRepository) CreateRoadmap(_ context.Context, meta codec.Roadmap) (codec.Roadmap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	meta.ID = m.nextID
	meta.CreatedAt = m.now()
	meta.UpdatedAt = meta.CreatedAt
	meta.Tags = slices.Clone(meta.Tags)
	m.roadmaps[meta.ID] = meta
	return meta, nil
}

// GetRoadmap returns the metadata for id.
func (m *MemRepository) GetRoadmap(_ context.Context, id int64) (codec.Roadmap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roadmaps[id]
	if !ok {
		return codec.Roadmap{}, ErrNotFound
	}
	r.Tags = slices.Clone(r.Tags)
	return r, nil
}

// UpdateRoadmap replaces the metadata for id, keeping its creation time.
func (m *MemRepository) UpdateRoadmap(_ context.Context, id int64, meta codec.Roadmap) (codec.Roadmap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.roadmaps[id]
	if !ok {
		return codec.Roadmap{}, ErrNotFound
	}
	meta.ID = id
	meta.CreatedAt = old.CreatedAt
	meta.UpdatedAt = m.now()
	meta.Tags = slices.Clone(meta.Tags)
	m.roadmaps[id] = meta
	return meta, nil
}

// Nodes returns the node records of a roadmap in stored order.
func (m *MemRepository) Nodes(_ context.Context, roadmapID int64) ([]codec.NodeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roadmaps[roadmapID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(m.nodes[roadmapID]), nil
}

// ReplaceNodes swaps the node collection of a roadmap.
func (m *MemRepository) ReplaceNodes(_ context.Context, roadmapID int64, nodes []codec.NodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roadmaps[roadmapID]; !ok {
		return ErrNotFound
	}
	m.nodes[roadmapID] = stampNodes(roadmapID, nodes)
	return nil
}

// Edges returns the edge records of a roadmap in stored order.
func (m *MemRepository) Edges(_ context.Context, roadmapID int64) ([]codec.EdgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roadmaps[roadmapID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(m.edges[roadmapID]), nil
}

// ReplaceEdges swaps the edge collection of a roadmap.
func (m *MemRepository) ReplaceEdges(_ context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roadmaps[roadmapID]; !ok {
		return ErrNotFound
	}
	m.edges[roadmapID] = stampEdges(roadmapID, edges)
	return nil
}

// AppendEdges merges edges into the collection of a roadmap.
func (m *MemRepository) AppendEdges(_ context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roadmaps[roadmapID]; !ok {
		return ErrNotFound
	}
	m.edges[roadmapID] = mergeEdges(m.edges[roadmapID], stampEdges(roadmapID, edges))
	return nil
}

// Prerequisites performs a BFS on the stored edges of a roadmap.
func (m *MemRepository) Prerequisites(_ context.Context, roadmapID int64, nodeIdentifier string, maxDepth int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.roadmaps[roadmapID]; !ok {
		return nil, ErrNotFound
	}
	return prerequisites(m.edges[roadmapID], nodeIdentifier, maxDepth), nil
}

// Close is a no-op for the in-memory repository.
func (m *MemRepository) Close() error { return nil }
