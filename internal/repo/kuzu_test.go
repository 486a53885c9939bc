//go:build cgo

package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// newTestKuzu creates a fresh in-memory KuzuRepository.
// It registers a cleanup function to close it when the test finishes.
func newTestKuzu(t *testing.T) *KuzuRepository {
	t.Helper()
	r, err := NewKuzuRepository("")
	require.NoError(t, err, "NewKuzuRepository should not fail")
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestKuzuRepository(t *testing.T) {
	runContract(t, func(t *testing.T) Repository {
		return newTestKuzu(t)
	})
}

func TestKuzuRepository_SchemaIsIdempotent(t *testing.T) {
	r := newTestKuzu(t)
	// Second call should be idempotent (IF NOT EXISTS).
	require.NoError(t, r.initSchema())
}

func TestKuzuRepository_EdgeToMissingNodeStoredWithoutLink(t *testing.T) {
	r := newTestKuzu(t)
	ctx := context.Background()

	m, err := r.CreateRoadmap(ctx, codec.Roadmap{Title: "Loose"})
	require.NoError(t, err)
	require.NoError(t, r.ReplaceNodes(ctx, m.ID, sampleNodes()))
	require.NoError(t, r.ReplaceEdges(ctx, m.ID, []codec.EdgeRecord{
		{EdgeIdentifier: "ghost", Source: "Z", Target: "A"},
	}))

	edges, err := r.Edges(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1, "records are stored as received")

	prereqs, err := r.Prerequisites(ctx, m.ID, "A", 0)
	require.NoError(t, err)
	assert.Empty(t, prereqs)
}

func TestKuzuRepository_ReplaceNodesRelinks(t *testing.T) {
	r := newTestKuzu(t)
	ctx := context.Background()

	m, err := r.CreateRoadmap(ctx, codec.Roadmap{Title: "Relink"})
	require.NoError(t, err)
	require.NoError(t, r.ReplaceNodes(ctx, m.ID, sampleNodes()))
	require.NoError(t, r.ReplaceEdges(ctx, m.ID, sampleEdges()))

	// Replacing nodes drops and recreates CourseNode rows; relationships
	// must be rebuilt from the stored edge rows.
	require.NoError(t, r.ReplaceNodes(ctx, m.ID, sampleNodes()))

	prereqs, err := r.Prerequisites(ctx, m.ID, "B", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, prereqs)
}

func TestKuzuRepository_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "roadmap.kuzu")

	r, err := NewKuzuRepository(path)
	require.NoError(t, err)
	m, err := r.CreateRoadmap(ctx, codec.Roadmap{Title: "On disk", Tags: []string{"x"}})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r, err = NewKuzuRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	got, err := r.GetRoadmap(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "On disk", got.Title)
	assert.Equal(t, []string{"x"}, got.Tags)
}
