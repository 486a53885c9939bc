package codec

import "fmt"

// SerializationError reports a field that could not be encoded or decoded.
// The codec substitutes a safe default and carries on.
type SerializationError struct {
	Entity string // "node" or "edge"
	ID     string
	Field  string
	Err    error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("codec: %s %q: field %s: %v", e.Entity, e.ID, e.Field, e.Err)
}

// Unwrap returns the underlying JSON error.
func (e *SerializationError) Unwrap() error { return e.Err }

// InconsistencyError reports an edge whose endpoint is not in the node set.
// Such edges are purged silently; the error is only recorded in a Report.
type InconsistencyError struct {
	EdgeID  string
	Missing string
}

// Error implements the error interface.
func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("codec: edge %q references missing node %q", e.EdgeID, e.Missing)
}

// Report summarizes what a codec pass repaired or dropped.
type Report struct {
	DroppedNodes  int     `json:"droppedNodes"`
	RepairedNodes int     `json:"repairedNodes"`
	DroppedEdges  int     `json:"droppedEdges"`
	RepairedEdges int     `json:"repairedEdges"`
	Problems      []error `json:"-"`
}

// Clean reports whether the pass changed nothing.
func (r Report) Clean() bool {
	return r.DroppedNodes == 0 && r.RepairedNodes == 0 &&
		r.DroppedEdges == 0 && r.RepairedEdges == 0
}

func (r *Report) add(err error) {
	r.Problems = append(r.Problems, err)
}

func (r *Report) merge(o Report) {
	r.DroppedNodes += o.DroppedNodes
	r.RepairedNodes += o.RepairedNodes
	r.DroppedEdges += o.DroppedEdges
	r.RepairedEdges += o.RepairedEdges
	r.Problems = append(r.Problems, o.Problems...)
}
