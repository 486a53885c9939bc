//go:build cgo

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/roadmap/internal/codec"
)

// KuzuRepository implements Repository using KuzuDB. Node records become
// CourseNode rows, edge records are kept verbatim as EdgeRow rows, and every
// edge whose endpoints both exist is mirrored as a PREREQUISITE relationship
// for traversal queries. It requires CGO because the go-kuzu driver wraps
// KuzuDB's C library.
type KuzuRepository struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
	now  func() time.Time
}

// Compile-time assertions.
var (
	_ Repository         = (*KuzuRepository)(nil)
	_ PrerequisiteFinder = (*KuzuRepository)(nil)
)

func openKuzu(path string) (Repository, error) {
	return NewKuzuRepository(path)
}

// NewKuzuRepository opens a KuzuDB at dbPath and creates the schema. An
// empty path opens an in-memory database. KuzuDB creates the leaf directory
// itself for new databases.
func NewKuzuRepository(dbPath string) (*KuzuRepository, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	db, err := kuzu.OpenDatabase(dbPath, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	r := &KuzuRepository{db: db, conn: conn, now: func() time.Time { return time.Now().UTC() }}
	if err := r.initSchema(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the KuzuDB connection and database.
func (r *KuzuRepository) Close() error {
	if r.conn != nil {
		r.conn.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by initSchema.
// Order matters: node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Roadmap(
		id INT64,
		title STRING,
		description STRING,
		category STRING,
		tags STRING,
		is_published BOOLEAN,
		created_at STRING,
		updated_at STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS CourseNode(
		key STRING,
		roadmap_id INT64,
		seq INT64,
		identifier STRING,
		position_x DOUBLE,
		position_y DOUBLE,
		data STRING,
		course_id INT64,
		has_course BOOLEAN,
		PRIMARY KEY(key)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS EdgeRow(
		key STRING,
		roadmap_id INT64,
		seq INT64,
		identifier STRING,
		source STRING,
		target STRING,
		source_handle STRING,
		has_source_handle BOOLEAN,
		target_handle STRING,
		has_target_handle BOOLEAN,
		type STRING,
		animated BOOLEAN,
		style STRING,
		data STRING,
		PRIMARY KEY(key)
	)`,
	`CREATE REL TABLE IF NOT EXISTS PREREQUISITE(FROM CourseNode TO CourseNode, roadmap_id INT64)`,
}

func (r *KuzuRepository) initSchema() error {
	for _, stmt := range ddlStatements {
		res, err := r.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

func nodeKey(roadmapID int64, identifier string) string {
	return fmt.Sprintf("%d/%s", roadmapID, identifier)
}

func edgeRowKey(roadmapID int64, seq int) string {
	return fmt.Sprintf("%d/%d", roadmapID, seq)
}

// ---------- Roadmaps ----------

// CreateRoadmap stores meta under max(id)+1.
func (r *KuzuRepository) CreateRoadmap(_ context.Context, meta codec.Roadmap) (codec.Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.query("MATCH (m:Roadmap) RETURN max(m.id)", nil)
	if err != nil {
		return codec.Roadmap{}, err
	}
	var maxID int64
	if len(rows) > 0 && len(rows[0]) > 0 {
		maxID = toInt64(rows[0][0])
	}
	meta.ID = maxID + 1
	meta.CreatedAt = r.now()
	meta.UpdatedAt = meta.CreatedAt

	params, err := roadmapParams(meta)
	if err != nil {
		return codec.Roadmap{}, err
	}
	err = r.exec(`CREATE (m:Roadmap {
		id: $id, title: $title, description: $description, category: $category,
		tags: $tags, is_published: $published, created_at: $created, updated_at: $updated
	})`, params)
	if err != nil {
		return codec.Roadmap{}, err
	}
	return meta, nil
}

// GetRoadmap returns the metadata for id.
func (r *KuzuRepository) GetRoadmap(_ context.Context, id int64) (codec.Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getRoadmap(id)
}

func (r *KuzuRepository) getRoadmap(id int64) (codec.Roadmap, error) {
	rows, err := r.query(
		`MATCH (m:Roadmap {id: $id})
		 RETURN m.id, m.title, m.description, m.category, m.tags, m.is_published, m.created_at, m.updated_at`,
		map[string]any{"id": id},
	)
	if err != nil {
		return codec.Roadmap{}, err
	}
	if len(rows) == 0 {
		return codec.Roadmap{}, ErrNotFound
	}
	return rowToRoadmap(rows[0])
}

// UpdateRoadmap replaces the metadata for id, keeping its creation time.
func (r *KuzuRepository) UpdateRoadmap(_ context.Context, id int64, meta codec.Roadmap) (codec.Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.getRoadmap(id)
	if err != nil {
		return codec.Roadmap{}, err
	}
	meta.ID = id
	meta.CreatedAt = old.CreatedAt
	meta.UpdatedAt = r.now()

	params, err := roadmapParams(meta)
	if err != nil {
		return codec.Roadmap{}, err
	}
	err = r.exec(`MATCH (m:Roadmap {id: $id})
		SET m.title = $title, m.description = $description, m.category = $category,
			m.tags = $tags, m.is_published = $published, m.created_at = $created, m.updated_at = $updated`,
		params)
	if err != nil {
		return codec.Roadmap{}, err
	}
	return meta, nil
}

func roadmapParams(meta codec.Roadmap) (map[string]any, error) {
	tags, err := json.Marshal(meta.Tags)
	if err != nil {
		return nil, fmt.Errorf("kuzu: marshal tags: %w", err)
	}
	return map[string]any{
		"id":          meta.ID,
		"title":       meta.Title,
		"description": meta.Description,
		"category":    meta.Category,
		"tags":        string(tags),
		"published":   meta.IsPublished,
		"created":     meta.CreatedAt.Format(time.RFC3339Nano),
		"updated":     meta.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

// rowToRoadmap converts an 8-column result row into a Roadmap.
// Column order: id, title, description, category, tags, is_published,
// created_at, updated_at.
func rowToRoadmap(row []any) (codec.Roadmap, error) {
	meta := codec.Roadmap{
		ID:          toInt64(row[0]),
		Title:       toString(row[1]),
		Description: toString(row[2]),
		Category:    toString(row[3]),
		IsPublished: toBool(row[5]),
	}
	if raw := toString(row[4]); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &meta.Tags); err != nil {
			return codec.Roadmap{}, fmt.Errorf("kuzu: decode tags: %w", err)
		}
	}
	meta.CreatedAt, _ = time.Parse(time.RFC3339Nano, toString(row[6]))
	meta.UpdatedAt, _ = time.Parse(time.RFC3339Nano, toString(row[7]))
	return meta, nil
}

// ---------- Nodes ----------

// Nodes returns the node records of a roadmap in stored order.
func (r *KuzuRepository) Nodes(_ context.Context, roadmapID int64) ([]codec.NodeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoadmap(roadmapID); err != nil {
		return nil, err
	}
	rows, err := r.query(
		`MATCH (n:CourseNode) WHERE n.roadmap_id = $rid
		 RETURN n.identifier, n.position_x, n.position_y, n.data, n.course_id, n.has_course, n.seq
		 ORDER BY n.seq`,
		map[string]any{"rid": roadmapID},
	)
	if err != nil {
		return nil, err
	}
	out := make([]codec.NodeRecord, 0, len(rows))
	for _, row := range rows {
		rid := roadmapID
		rec := codec.NodeRecord{
			NodeIdentifier: toString(row[0]),
			PositionX:      toFloat64(row[1]),
			PositionY:      toFloat64(row[2]),
			Data:           toString(row[3]),
			RoadmapID:      &rid,
		}
		if toBool(row[5]) {
			course := toInt64(row[4])
			rec.CourseID = &course
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReplaceNodes swaps the node collection of a roadmap and rebuilds its
// prerequisite relationships.
func (r *KuzuRepository) ReplaceNodes(_ context.Context, roadmapID int64, nodes []codec.NodeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoadmap(roadmapID); err != nil {
		return err
	}
	return r.inTx(func() error {
		if err := r.exec("MATCH (n:CourseNode) WHERE n.roadmap_id = $rid DETACH DELETE n",
			map[string]any{"rid": roadmapID}); err != nil {
			return err
		}
		seen := make(map[string]bool, len(nodes))
		for i, n := range nodes {
			// The primary key rejects duplicates; the first record wins.
			if seen[n.NodeIdentifier] {
				continue
			}
			seen[n.NodeIdentifier] = true
			var course int64
			if n.CourseID != nil {
				course = *n.CourseID
			}
			err := r.exec(`CREATE (n:CourseNode {
				key: $key, roadmap_id: $rid, seq: $seq, identifier: $ident,
				position_x: $x, position_y: $y, data: $data,
				course_id: $course, has_course: $hasCourse
			})`, map[string]any{
				"key":       nodeKey(roadmapID, n.NodeIdentifier),
				"rid":       roadmapID,
				"seq":       int64(i),
				"ident":     n.NodeIdentifier,
				"x":         n.PositionX,
				"y":         n.PositionY,
				"data":      n.Data,
				"course":    course,
				"hasCourse": n.CourseID != nil,
			})
			if err != nil {
				return err
			}
		}
		return r.relink(roadmapID)
	})
}

// ---------- Edges ----------

// Edges returns the edge records of a roadmap in stored order.
func (r *KuzuRepository) Edges(_ context.Context, roadmapID int64) ([]codec.EdgeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoadmap(roadmapID); err != nil {
		return nil, err
	}
	return r.edges(roadmapID)
}

func (r *KuzuRepository) edges(roadmapID int64) ([]codec.EdgeRecord, error) {
	rows, err := r.query(
		`MATCH (e:EdgeRow) WHERE e.roadmap_id = $rid
		 RETURN e.identifier, e.source, e.target, e.source_handle, e.has_source_handle,
		        e.target_handle, e.has_target_handle, e.type, e.animated, e.style, e.data, e.seq
		 ORDER BY e.seq`,
		map[string]any{"rid": roadmapID},
	)
	if err != nil {
		return nil, err
	}
	out := make([]codec.EdgeRecord, 0, len(rows))
	for _, row := range rows {
		rid := roadmapID
		rec := codec.EdgeRecord{
			EdgeIdentifier: toString(row[0]),
			Source:         toString(row[1]),
			Target:         toString(row[2]),
			Type:           toString(row[7]),
			Animated:       toBool(row[8]),
			Style:          toString(row[9]),
			Data:           toString(row[10]),
			RoadmapID:      &rid,
		}
		if toBool(row[4]) {
			h := toString(row[3])
			rec.SourceHandle = &h
		}
		if toBool(row[6]) {
			h := toString(row[5])
			rec.TargetHandle = &h
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReplaceEdges swaps the edge collection of a roadmap.
func (r *KuzuRepository) ReplaceEdges(_ context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoadmap(roadmapID); err != nil {
		return err
	}
	return r.inTx(func() error {
		return r.writeEdges(roadmapID, edges)
	})
}

// AppendEdges merges edges into the collection of a roadmap.
func (r *KuzuRepository) AppendEdges(_ context.Context, roadmapID int64, edges []codec.EdgeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoadmap(roadmapID); err != nil {
		return err
	}
	existing, err := r.edges(roadmapID)
	if err != nil {
		return err
	}
	return r.inTx(func() error {
		return r.writeEdges(roadmapID, mergeEdges(existing, edges))
	})
}

func (r *KuzuRepository) writeEdges(roadmapID int64, edges []codec.EdgeRecord) error {
	if err := r.exec("MATCH (e:EdgeRow) WHERE e.roadmap_id = $rid DELETE e",
		map[string]any{"rid": roadmapID}); err != nil {
		return err
	}
	for i, e := range edges {
		err := r.exec(`CREATE (e:EdgeRow {
			key: $key, roadmap_id: $rid, seq: $seq, identifier: $ident,
			source: $src, target: $dst,
			source_handle: $sh, has_source_handle: $hasSH,
			target_handle: $th, has_target_handle: $hasTH,
			type: $type, animated: $animated, style: $style, data: $data
		})`, map[string]any{
			"key":      edgeRowKey(roadmapID, i),
			"rid":      roadmapID,
			"seq":      int64(i),
			"ident":    e.EdgeIdentifier,
			"src":      e.Source,
			"dst":      e.Target,
			"sh":       derefString(e.SourceHandle),
			"hasSH":    e.SourceHandle != nil,
			"th":       derefString(e.TargetHandle),
			"hasTH":    e.TargetHandle != nil,
			"type":     e.Type,
			"animated": e.Animated,
			"style":    e.Style,
			"data":     e.Data,
		})
		if err != nil {
			return err
		}
	}
	return r.relink(roadmapID)
}

// relink rebuilds the PREREQUISITE relationships of a roadmap from its edge
// rows. Rows whose endpoints are missing get no relationship.
func (r *KuzuRepository) relink(roadmapID int64) error {
	params := map[string]any{"rid": roadmapID}
	if err := r.exec(
		`MATCH (:CourseNode)-[p:PREREQUISITE]->(:CourseNode) WHERE p.roadmap_id = $rid DELETE p`,
		params,
	); err != nil {
		return err
	}
	return r.exec(
		`MATCH (e:EdgeRow), (a:CourseNode), (b:CourseNode)
		 WHERE e.roadmap_id = $rid
		   AND a.roadmap_id = $rid AND a.identifier = e.source
		   AND b.roadmap_id = $rid AND b.identifier = e.target
		 CREATE (a)-[:PREREQUISITE {roadmap_id: $rid}]->(b)`,
		params,
	)
}

// ---------- Graph traversal ----------

// Prerequisites performs a BFS over PREREQUISITE relationships, walking
// from nodeIdentifier towards its sources.
func (r *KuzuRepository) Prerequisites(_ context.Context, roadmapID int64, nodeIdentifier string, maxDepth int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoadmap(roadmapID); err != nil {
		return nil, err
	}

	type bfsEntry struct {
		id    string
		depth int
	}
	visited := map[string]bool{nodeIdentifier: true}
	queue := []bfsEntry{{id: nodeIdentifier}}
	var out []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		rows, err := r.query(
			`MATCH (a:CourseNode)-[:PREREQUISITE]->(b:CourseNode {key: $key})
			 RETURN a.identifier, a.seq ORDER BY a.seq`,
			map[string]any{"key": nodeKey(roadmapID, cur.id)},
		)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			src := toString(row[0])
			if visited[src] {
				continue
			}
			visited[src] = true
			out = append(out, src)
			queue = append(queue, bfsEntry{id: src, depth: cur.depth + 1})
		}
	}
	return out, nil
}

// ---------- Internal helpers ----------

// inTx runs fn inside an explicit write transaction.
func (r *KuzuRepository) inTx(fn func() error) error {
	if err := r.exec("BEGIN TRANSACTION", nil); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = r.exec("ROLLBACK", nil)
		return err
	}
	return r.exec("COMMIT", nil)
}

// exec runs a Cypher statement that produces no result rows.
func (r *KuzuRepository) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := r.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: query: %w", err)
		}
		res.Close()
		return nil
	}
	stmt, err := r.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := r.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (r *KuzuRepository) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = r.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = r.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = r.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string) or nil for
// NULL. These helpers coerce any -> concrete type.

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
