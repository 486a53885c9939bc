// Package session drives one editing session of a roadmap: the one-time
// hydration from the server, debounced change notifications to the host and
// single-slot saves.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"

	"github.com/dusk-indust/roadmap/internal/codec"
	"github.com/dusk-indust/roadmap/internal/graph"
	"github.com/dusk-indust/roadmap/internal/persist"
)

// DefaultDebounceWindow is how long mutations must settle before the host
// is notified.
const DefaultDebounceWindow = 500 * time.Millisecond

var (
	// ErrAlreadyLoaded is returned by Load once the session has been hydrated
	// or while a load is running.
	ErrAlreadyLoaded = errors.New("session: already loaded")

	// ErrNotLoaded is returned by Save before the session has been hydrated.
	ErrNotLoaded = errors.New("session: not loaded")

	// ErrNoSaver is returned by Save when no OnSave handler is configured.
	ErrNoSaver = errors.New("session: no save handler")
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle      State = iota // nothing loaded yet
	StateLoading                // initial load in flight
	StateReady                  // hydrated, no unsaved changes
	StateEditing                // local changes not yet saved
	StateSaving                 // save in flight
	StateSaveError              // last save failed; changes still local
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	case StateSaveError:
		return "save-error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options is the contract with the host application.
type Options struct {
	// InitialNodes and InitialEdges hydrate the session immediately when
	// either is non-nil; Load is then refused.
	InitialNodes []graph.Node
	InitialEdges []graph.Edge

	// IsEditing enables mutations. ReadOnly forbids them for the lifetime of
	// the session regardless of IsEditing.
	IsEditing bool
	ReadOnly  bool

	// DebounceWindow defaults to DefaultDebounceWindow.
	DebounceWindow time.Duration

	// OnSave persists a snapshot. See CoordinatorSaver.
	OnSave func(ctx context.Context, g graph.Graph) error

	// OnInternalUpdate receives the settled graph after local mutations.
	OnInternalUpdate func(g graph.Graph)

	Logger *slog.Logger

	// StoreOptions are passed to graph.NewStore.
	StoreOptions []graph.Option
}

// Loader fetches the persisted graph.
type Loader func(ctx context.Context) (graph.Graph, error)

// Session owns a graph.Store and tracks its lifecycle.
type Session struct {
	store    *graph.Store
	opts     Options
	logger   *slog.Logger
	debounce func(func())

	hydrating atomic.Bool
	saving    atomic.Bool

	mu      sync.Mutex
	state   State
	loaded  bool
	closed  bool
	lastErr error
}

// New creates a session. Mutations go through Store().
func New(opts Options) *Session {
	s := &Session{opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	window := opts.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	s.debounce = debounce.New(window)

	storeOpts := append([]graph.Option{graph.WithLogger(s.logger)}, opts.StoreOptions...)
	storeOpts = append(storeOpts,
		graph.WithReadOnly(opts.ReadOnly || !opts.IsEditing),
		graph.WithOnChange(s.changed),
	)
	s.store = graph.NewStore(storeOpts...)

	if opts.InitialNodes != nil || opts.InitialEdges != nil {
		s.hydrating.Store(true)
		s.store.Replace(graph.Graph{Nodes: opts.InitialNodes, Edges: opts.InitialEdges})
		s.hydrating.Store(false)
		s.loaded = true
		s.state = StateReady
	}
	return s
}

// Store returns the graph store. All mutations go through it.
func (s *Session) Store() *graph.Store { return s.store }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed load or save.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Dirty reports whether there are local changes that have not been saved.
func (s *Session) Dirty() bool {
	st := s.State()
	return st == StateEditing || st == StateSaveError
}

// SetEditing switches edit mode. It fails on a read-only session.
func (s *Session) SetEditing(on bool) error {
	if on && s.opts.ReadOnly {
		return graph.ErrReadOnly
	}
	s.store.SetReadOnly(!on)
	return nil
}

// Load hydrates the session once. If the store was mutated while loader
// ran, the response is discarded so it cannot overwrite those edits; Load
// then reports false. A failed load can be retried.
func (s *Session) Load(ctx context.Context, loader Loader) (bool, error) {
	s.mu.Lock()
	if s.loaded || s.state != StateIdle {
		s.mu.Unlock()
		return false, ErrAlreadyLoaded
	}
	s.state = StateLoading
	rev := s.store.Revision()
	s.mu.Unlock()

	g, err := loader(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.lastErr = err
		s.mu.Unlock()
		return false, fmt.Errorf("session: load: %w", err)
	}

	s.hydrating.Store(true)
	_, applied := s.store.ReplaceAt(rev, g)
	s.hydrating.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.lastErr = nil
	if !applied {
		s.state = StateEditing
		s.logger.Info("discarding load response, graph changed locally while loading")
		return false, nil
	}
	s.state = StateReady
	return true, nil
}

// Save hands a snapshot to OnSave. Only one save runs at a time; a second
// call while one is in flight returns persist.ErrSaveInFlight.
func (s *Session) Save(ctx context.Context) error {
	if s.opts.OnSave == nil {
		return ErrNoSaver
	}
	if !s.saving.CompareAndSwap(false, true) {
		return persist.ErrSaveInFlight
	}
	defer s.saving.Store(false)

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	s.state = StateSaving
	rev := s.store.Revision()
	g := s.store.Graph()
	s.mu.Unlock()

	err := s.opts.OnSave(ctx, g)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		s.state = StateSaveError
		s.lastErr = err
		s.logger.Error("save failed", "err", err)
	case s.store.Revision() != rev:
		// Edited while saving; the newer changes are still unsaved.
		s.state = StateEditing
		s.lastErr = nil
	default:
		s.state = StateReady
		s.lastErr = nil
	}
	return err
}

// Flush cancels any pending notification and delivers the current graph
// to OnInternalUpdate immediately.
func (s *Session) Flush() {
	s.debounce(func() {})
	if s.opts.OnInternalUpdate != nil {
		s.opts.OnInternalUpdate(s.store.Graph())
	}
}

// Close cancels any pending notification. Later mutations are not reported.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.debounce(func() {})
}

// changed is the store's change callback.
func (s *Session) changed(graph.Graph) {
	if s.hydrating.Load() {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateReady, StateSaveError:
		s.state = StateEditing
	}
	s.mu.Unlock()

	if s.opts.OnInternalUpdate == nil {
		return
	}
	s.debounce(func() {
		s.opts.OnInternalUpdate(s.store.Graph())
	})
}

// CoordinatorSaver returns an OnSave handler that saves through c. When
// roadmapID is nil the first successful save creates the roadmap and later
// saves update it.
func CoordinatorSaver(c *persist.Coordinator, roadmapID *int64, meta codec.Roadmap) func(context.Context, graph.Graph) error {
	var mu sync.Mutex
	var id *int64
	if roadmapID != nil {
		v := *roadmapID
		id = &v
	}
	return func(ctx context.Context, g graph.Graph) error {
		mu.Lock()
		req := persist.SaveRequest{RoadmapID: id, Metadata: meta, Graph: g}
		mu.Unlock()

		res, err := c.Save(ctx, req)
		if res != nil && res.RoadmapID != 0 {
			mu.Lock()
			v := res.RoadmapID
			id = &v
			mu.Unlock()
		}
		return err
	}
}

// CoordinatorLoader returns a Loader that fetches roadmap id through c.
func CoordinatorLoader(c *persist.Coordinator, id int64) Loader {
	return func(ctx context.Context) (graph.Graph, error) {
		_, g, _, err := c.Load(ctx, id)
		return g, err
	}
}
