package repo

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// Key prefixes for the BadgerDB key scheme.
const (
	keySeqRoadmap = "seq:roadmap"
	prefixRoadmap = "r:"
	prefixNodes   = "n:"
	prefixEdges   = "e:"
)

// Compile-time assertions.
var (
	_ Repository         = (*BadgerRepository)(nil)
	_ PrerequisiteFinder = (*BadgerRepository)(nil)
)

// BadgerRepository implements Repository on BadgerDB. Each record is stored
// under its roadmap's prefix with a zero-padded position suffix so a prefix
// scan returns records in stored order.
type BadgerRepository struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerRepository opens (or creates) a BadgerDB at path. An empty path
// opens an in-memory database.
func NewBadgerRepository(path string) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // suppress badger logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("repo: open badger db: %w", err)
	}
	return &BadgerRepository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func roadmapKey(id int64) []byte { return []byte(fmt.Sprintf("%s%020d", prefixRoadmap, id)) }

func collectionPrefix(prefix string, roadmapID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefix, roadmapID))
}

func recordKey(prefix string, roadmapID int64, pos int) []byte {
	return []byte(fmt.Sprintf("%s%020d:%08d", prefix, roadmapID, pos))
}

// CreateRoadmap allocates the next id and stores meta under it.
func (s *BadgerRepository) CreateRoadmap(_ context.Context, meta codec.Roadmap) (codec.Roadmap, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		next, err := nextSequence(txn)
		if err != nil {
			return err
		}
		meta.ID = next
		meta.CreatedAt = s.now()
		meta.UpdatedAt = meta.CreatedAt
		return setJSON(txn, roadmapKey(meta.ID), meta)
	})
	if err != nil {
		return codec.Roadmap{}, fmt.Errorf("repo: create roadmap: %w", err)
	}
	return meta, nil
}

func nextSequence(txn *badger.Txn) (int64, error) {
	var cur uint64
	item, err := txn.Get([]byte(keySeqRoadmap))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		if err := item.Value(func(val []byte) error {
			cur = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	}
	cur++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, cur)
	if err := txn.Set([]byte(keySeqRoadmap), buf); err != nil {
		return 0, err
	}
	return int64(cur), nil
}

// GetRoadmap returns the metadata for id.
func (s *BadgerRepository) GetRoadmap(_ context.Context, id int64) (codec.Roadmap, error) {
	var meta codec.Roadmap
	err := s.db.View(func(txn *badger.Txn) error {
		return getRoadmapInTxn(txn, id, &meta)
	})
	return meta, err
}

func getRoadmapInTxn(txn *badger.Txn, id int64, meta *codec.Roadmap) error {
	item, err := txn.Get(roadmapKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("repo: get roadmap %d: %w", id, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, meta)
	})
}

// UpdateRoadmap replaces the metadata for id, keeping its creation time.
func (s *BadgerRepository) UpdateRoadmap(_ context.Context, id int64, meta codec.Roadmap) (codec.Roadmap, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		var old codec.Roadmap
		if err := getRoadmapInTxn(txn, id, &old); err != nil {
			return err
		}
		meta.ID = id
		meta.CreatedAt = old.CreatedAt
		meta.UpdatedAt = s.now()
		return setJSON(txn, roadmapKey(id), meta)
	})
	if err != nil {
		return codec.Roadmap{}, err
	}
	return meta, nil
}

// Nodes returns the node records of a roadmap in stored order.
func (s *BadgerRepository) Nodes(_ context.Context, roadmapID int64) ([]codec.NodeRecord, error) {
	var out []codec.NodeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var meta codec.Roadmap
		if err := getRoadmapInTxn(txn, roadmapID, &meta); err != nil {
			return err
		}
		var err error
		out, err = scanJSON[codec.NodeRecord](txn, collectionPrefix(prefixNodes, roadmapID))
		return err
	})
	return out, err
}

// ReplaceNodes swaps the node collection of a roadmap in one transaction.
func (s *BadgerRepository) ReplaceNodes(_ context.Context, roadmapID int64, nodes []codec.NodeRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var meta codec.Roadmap
		if err := getRoadmapInTxn(txn, roadmapID, &meta); err != nil {
			return err
		}
		return rewrite(txn, prefixNodes, roadmapID, stampNodes(roadmapID, nodes))
	})
}

// Edges returns the edge records of a roadmap in stored order.
func (s *BadgerRepository) Edges(_ context.Context, roadmapID int64) ([]codec.EdgeRecord, error) {
	var out []codec.EdgeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var meta codec.Roadmap
		if err := getRoadmapInTxn(txn, roadmapID, &meta); err != nil {
			return err
		}
		var err error
		out, err = scanJSON[codec.EdgeRecord](txn, collectionPrefix(prefixEdges, roadmapID))
		return err
	})
	return out, err
}

// ReplaceEdges swaps the edge collection of a roadmap in one transaction.
func (s *BadgerRepository) ReplaceEdges(_ context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var meta codec.Roadmap
		if err := getRoadmapInTxn(txn, roadmapID, &meta); err != nil {
			return err
		}
		return rewrite(txn, prefixEdges, roadmapID, stampEdges(roadmapID, edges))
	})
}

// AppendEdges merges edges into the collection of a roadmap.
func (s *BadgerRepository) AppendEdges(_ context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var meta codec.Roadmap
		if err := getRoadmapInTxn(txn, roadmapID, &meta); err != nil {
			return err
		}
		existing, err := scanJSON[codec.EdgeRecord](txn, collectionPrefix(prefixEdges, roadmapID))
		if err != nil {
			return err
		}
		return rewrite(txn, prefixEdges, roadmapID, mergeEdges(existing, stampEdges(roadmapID, edges)))
	})
}

// Prerequisites performs a BFS on the stored edges of a roadmap.
func (s *BadgerRepository) Prerequisites(ctx context.Context, roadmapID int64, nodeIdentifier string, maxDepth int) ([]string, error) {
	edges, err := s.Edges(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	return prerequisites(edges, nodeIdentifier, maxDepth), nil
}

// Close closes the underlying database.
func (s *BadgerRepository) Close() error {
	return s.db.Close()
}

// ---------- Internal helpers ----------

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// rewrite deletes every key under the roadmap's collection prefix and writes
// records at positions 0..n-1.
func rewrite[T any](txn *badger.Txn, prefix string, roadmapID int64, records []T) error {
	p := collectionPrefix(prefix, roadmapID)
	var stale [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = p
	it := txn.NewIterator(opts)
	for it.Seek(p); it.Valid(); it.Next() {
		stale = append(stale, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range stale {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	for i, rec := range records {
		if err := setJSON(txn, recordKey(prefix, roadmapID, i), rec); err != nil {
			return err
		}
	}
	return nil
}

func scanJSON[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	out := []T{}
	for it.Seek(prefix); it.Valid(); it.Next() {
		var rec T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, fmt.Errorf("repo: decode %s: %w", it.Item().Key(), err)
		}
		out = append(out, rec)
	}
	return out, nil
}
