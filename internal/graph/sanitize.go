package graph

// SanitizeReport counts what Sanitize had to repair or drop.
type SanitizeReport struct {
	DuplicateNodes int `json:"duplicateNodes"`
	UnnamedNodes   int `json:"unnamedNodes"`
	DanglingEdges  int `json:"danglingEdges"` // missing source or target id
	OrphanEdges    int `json:"orphanEdges"`   // endpoint not in the node set
	DuplicateEdges int `json:"duplicateEdges"`
	Remirrored     int `json:"remirrored"`
}

// Clean reports whether nothing had to be changed.
func (r SanitizeReport) Clean() bool {
	return r == SanitizeReport{}
}

// Sanitize enforces the structural invariants on g and returns a new graph:
// every node has a unique id, every edge references existing nodes, no two
// edges share an identity tuple or id (later wins, keeping the earlier slot),
// and every edge's data mirror matches its top-level fields.
// newID supplies ids for nodes that have none.
func Sanitize(g Graph, newID func() string) (Graph, SanitizeReport) {
	var rep SanitizeReport
	out := Graph{
		Nodes: make([]Node, 0, len(g.Nodes)),
		Edges: make([]Edge, 0, len(g.Edges)),
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		n = n.clone()
		if n.ID == "" {
			n.ID = newID()
			rep.UnnamedNodes++
		}
		if seen[n.ID] {
			rep.DuplicateNodes++
			continue
		}
		seen[n.ID] = true
		out.Nodes = append(out.Nodes, n)
	}

	// Slots that lose a duplicate-id collision are tombstoned and compacted
	// at the end so map indexes stay valid.
	edges := make([]Edge, 0, len(g.Edges))
	var dead []bool
	byKey := make(map[EdgeKey]int, len(g.Edges))
	byID := make(map[string]int, len(g.Edges))
	evict := func(i int) {
		delete(byKey, edges[i].Key())
		delete(byID, edges[i].ID)
	}
	for _, e := range g.Edges {
		e = e.clone()
		if e.Source == "" || e.Target == "" {
			rep.DanglingEdges++
			continue
		}
		if !seen[e.Source] || !seen[e.Target] {
			rep.OrphanEdges++
			continue
		}
		if e.ID == "" {
			e.ID = EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
		}
		if !e.Mirrored() {
			e.SyncData()
			rep.Remirrored++
		}

		ki, hasKey := byKey[e.Key()]
		ii, hasID := byID[e.ID]
		var idx int
		switch {
		case hasKey && hasID && ki != ii:
			// The tuple and the id match different edges: both are replaced.
			rep.DuplicateEdges += 2
			evict(ki)
			evict(ii)
			idx = min(ki, ii)
			dead[max(ki, ii)] = true
			edges[idx] = e
		case hasKey || hasID:
			rep.DuplicateEdges++
			idx = ki
			if !hasKey {
				idx = ii
			}
			evict(idx)
			edges[idx] = e
		default:
			idx = len(edges)
			edges = append(edges, e)
			dead = append(dead, false)
		}
		byKey[e.Key()] = idx
		byID[e.ID] = idx
	}
	for i, e := range edges {
		if !dead[i] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out, rep
}
