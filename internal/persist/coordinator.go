// Package persist sequences the remote writes that save a roadmap and the
// reads that load one.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/roadmap/internal/api"
	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/graph"
)

// ErrSaveInFlight is returned by Save while another save is running on the
// same Coordinator.
var ErrSaveInFlight = errors.New("persist: save already in flight")

// Defaults for the batched edge fallback.
const (
	DefaultBatchSize        = 5
	DefaultBatchConcurrency = 1
)

// Coordinator saves and loads roadmaps through an api.Client. Each of the
// three writes replaces a whole resource, so retrying a save is always safe.
// There is no rollback: a failed step leaves the others as written.
type Coordinator struct {
	client      api.Client
	codec       *codec.Codec
	batchSize   int
	concurrency int
	logger      *slog.Logger
	onProgress  func(ProgressEvent)

	progressMu sync.Mutex
	inFlight   atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBatchSize sets the edge count above which a failed bulk edge write is
// retried in batches, and the size of those batches.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithBatchConcurrency sets how many append batches run at once.
func WithBatchConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithCodec replaces the record codec.
func WithCodec(cd *codec.Codec) Option {
	return func(c *Coordinator) { c.codec = cd }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithProgress registers a callback for step transitions. Calls are
// serialized but may come from batch goroutines.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(c *Coordinator) { c.onProgress = fn }
}

// New creates a Coordinator that talks to client.
func New(client api.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:      client,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultBatchConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codec == nil {
		c.codec = codec.New(codec.WithLogger(c.logger))
	}
	return c
}

// SaveRequest is the input to Save. A nil RoadmapID creates a new roadmap.
type SaveRequest struct {
	RoadmapID *int64
	Metadata  codec.Roadmap
	Graph     graph.Graph
}

// StepResult is the outcome of one write. Skipped is set when the step could
// not run because no roadmap id was available.
type StepResult struct {
	Err     error
	Skipped bool
}

// OK reports whether the step ran and succeeded.
func (s StepResult) OK() bool { return s.Err == nil && !s.Skipped }

// Result reports each step of a save individually.
type Result struct {
	// RoadmapID is the id written to, or zero if creation failed.
	RoadmapID int64
	Created   bool
	Metadata  StepResult
	Nodes     StepResult
	Edges     StepResult

	// Batched is set when the bulk edge write failed and edges were retried
	// in batches.
	Batched          bool
	BatchesSucceeded int
	BatchesFailed    int

	// Encode reports records repaired or dropped while encoding the graph.
	Encode codec.Report
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool {
	return r.Metadata.OK() && r.Nodes.OK() && r.Edges.OK()
}

// Err joins the step errors, or returns nil.
func (r *Result) Err() error {
	var errs []error
	if r.Metadata.Err != nil {
		errs = append(errs, fmt.Errorf("metadata: %w", r.Metadata.Err))
	}
	if r.Nodes.Err != nil {
		errs = append(errs, fmt.Errorf("nodes: %w", r.Nodes.Err))
	}
	if r.Edges.Err != nil {
		errs = append(errs, fmt.Errorf("edges: %w", r.Edges.Err))
	}
	return errors.Join(errs...)
}

// Save writes metadata, nodes and edges in that order. It always returns a
// Result unless another save is in flight; the error is non-nil when any
// step failed.
func (c *Coordinator) Save(ctx context.Context, req SaveRequest) (*Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSaveInFlight
	}
	defer c.inFlight.Store(false)

	res := &Result{}
	id, hasID := c.saveMetadata(ctx, req, res)

	if !hasID {
		const reason = "no roadmap id"
		res.Nodes = StepResult{Skipped: true}
		res.Edges = StepResult{Skipped: true}
		c.emit(ProgressEvent{Step: StepNodes, Status: ProgressSkipped, Message: reason})
		c.emit(ProgressEvent{Step: StepEdges, Status: ProgressSkipped, Message: reason})
		return res, fmt.Errorf("persist: save: %w", res.Err())
	}
	res.RoadmapID = id

	payload, rep := c.codec.Encode(&id, req.Graph)
	res.Encode = rep
	if !rep.Clean() {
		c.logger.Warn("graph repaired while encoding",
			"roadmap", id,
			"droppedNodes", rep.DroppedNodes,
			"droppedEdges", rep.DroppedEdges,
		)
	}

	c.emit(ProgressEvent{Step: StepNodes, Status: ProgressWorking})
	if err := c.client.PutNodes(ctx, id, payload.Nodes); err != nil {
		res.Nodes.Err = err
		c.logger.Error("saving nodes failed", "roadmap", id, "err", err)
		c.emit(ProgressEvent{Step: StepNodes, Status: ProgressFailed, Message: err.Error()})
	} else {
		c.emit(ProgressEvent{Step: StepNodes, Status: ProgressComplete})
	}

	c.saveEdges(ctx, id, payload.Edges, res)

	if err := res.Err(); err != nil {
		return res, fmt.Errorf("persist: save roadmap %d: %w", id, err)
	}
	return res, nil
}

var errNoRoadmapID = errors.New("server returned no roadmap id")

// saveMetadata creates or updates the roadmap row and returns the id to
// write the collections under.
func (c *Coordinator) saveMetadata(ctx context.Context, req SaveRequest, res *Result) (int64, bool) {
	c.emit(ProgressEvent{Step: StepMetadata, Status: ProgressWorking})

	var (
		saved *codec.Roadmap
		err   error
	)
	if req.RoadmapID == nil {
		saved, err = c.client.CreateRoadmap(ctx, req.Metadata)
		res.Created = err == nil
	} else {
		saved, err = c.client.UpdateRoadmap(ctx, *req.RoadmapID, req.Metadata)
	}

	if err != nil {
		res.Metadata.Err = err
		c.logger.Error("saving roadmap metadata failed", "err", err)
		c.emit(ProgressEvent{Step: StepMetadata, Status: ProgressFailed, Message: err.Error()})
		if req.RoadmapID != nil {
			return *req.RoadmapID, true
		}
		return 0, false
	}

	id := req.RoadmapID
	if saved != nil && saved.ID != 0 {
		id = &saved.ID
	}
	if id == nil {
		res.Created = false
		res.Metadata.Err = errNoRoadmapID
		c.logger.Error("saving roadmap metadata failed", "err", errNoRoadmapID)
		c.emit(ProgressEvent{Step: StepMetadata, Status: ProgressFailed, Message: errNoRoadmapID.Error()})
		return 0, false
	}
	c.emit(ProgressEvent{Step: StepMetadata, Status: ProgressComplete})
	return *id, true
}

// saveEdges writes the edge collection in one call. When that fails and the
// collection is larger than one batch, it retries batch by batch: the first
// batch replaces the collection and the rest are appended.
func (c *Coordinator) saveEdges(ctx context.Context, id int64, edges []codec.EdgeRecord, res *Result) {
	c.emit(ProgressEvent{Step: StepEdges, Status: ProgressWorking})

	bulkErr := c.client.PutEdges(ctx, id, edges)
	if bulkErr == nil {
		c.emit(ProgressEvent{Step: StepEdges, Status: ProgressComplete})
		return
	}
	if len(edges) <= c.batchSize {
		res.Edges.Err = bulkErr
		c.logger.Error("saving edges failed", "roadmap", id, "err", bulkErr)
		c.emit(ProgressEvent{Step: StepEdges, Status: ProgressFailed, Message: bulkErr.Error()})
		return
	}

	batches := partition(edges, c.batchSize)
	res.Batched = true
	c.logger.Warn("bulk edge save failed, retrying in batches",
		"roadmap", id,
		"edges", len(edges),
		"batches", len(batches),
		"err", bulkErr,
	)

	c.emit(ProgressEvent{Step: StepEdges, Status: ProgressWorking, Batch: 1})
	if err := c.client.PutEdges(ctx, id, batches[0]); err != nil {
		// Appending onto the stale collection would mix old and new edges.
		res.BatchesFailed = len(batches)
		res.Edges.Err = fmt.Errorf("first edge batch: %w", err)
		c.emit(ProgressEvent{Step: StepEdges, Status: ProgressFailed, Batch: 1, Message: err.Error()})
		return
	}
	c.emit(ProgressEvent{Step: StepEdges, Status: ProgressComplete, Batch: 1})

	var (
		mu        sync.Mutex
		failures  []error
		succeeded = 1
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, batch := range batches[1:] {
		n := i + 2
		g.Go(func() error {
			c.emit(ProgressEvent{Step: StepEdges, Status: ProgressWorking, Batch: n})
			err := c.client.AppendEdges(gctx, id, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("edge batch %d: %w", n, err))
				c.emit(ProgressEvent{Step: StepEdges, Status: ProgressFailed, Batch: n, Message: err.Error()})
				// Batches are independent; keep going.
				return nil
			}
			succeeded++
			c.emit(ProgressEvent{Step: StepEdges, Status: ProgressComplete, Batch: n})
			return nil
		})
	}
	_ = g.Wait()

	res.BatchesSucceeded = succeeded
	res.BatchesFailed = len(failures)
	if len(failures) > 0 {
		res.Edges.Err = errors.Join(failures...)
		c.logger.Error("edge batches failed", "roadmap", id, "succeeded", succeeded, "failed", len(failures))
	}
}

// partition splits records into consecutive batches of at most size.
func partition[T any](records []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// Load fetches a roadmap's metadata and collections concurrently and decodes
// them into a graph that satisfies every structural invariant.
func (c *Coordinator) Load(ctx context.Context, id int64) (codec.Roadmap, graph.Graph, codec.Report, error) {
	var (
		meta  *codec.Roadmap
		nodes []codec.NodeRecord
		edges []codec.EdgeRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meta, err = c.client.GetRoadmap(gctx, id)
		if err == nil && meta == nil {
			err = errors.New("server returned no roadmap")
		}
		return err
	})
	g.Go(func() error {
		var err error
		nodes, err = c.client.GetNodes(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = c.client.GetEdges(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return codec.Roadmap{}, graph.Graph{}, codec.Report{}, fmt.Errorf("persist: load roadmap %d: %w", id, err)
	}

	decoded, rep := c.codec.Decode(nodes, edges)
	if !rep.Clean() {
		c.logger.Warn("loaded roadmap repaired",
			"roadmap", id,
			"droppedNodes", rep.DroppedNodes,
			"repairedNodes", rep.RepairedNodes,
			"droppedEdges", rep.DroppedEdges,
			"repairedEdges", rep.RepairedEdges,
		)
	}
	return *meta, decoded, rep, nil
}

// emit sends a progress event if a callback is registered.
func (c *Coordinator) emit(ev ProgressEvent) {
	if c.onProgress == nil {
		return
	}
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	c.onProgress(ev)
}
