package graph

import (
	"errors"
	"fmt"
)

// ErrReadOnly is returned by mutations on a store opened read-only.
var ErrReadOnly = errors.New("graph: store is read-only")

// ValidationError reports a malformed node or edge. Callers repair or drop
// the offending element; it never aborts an editing session.
type ValidationError struct {
	Entity string // "node" or "edge"
	ID     string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("graph: invalid %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("graph: invalid %s %q: %s", e.Entity, e.ID, e.Reason)
}

func invalidNode(id, reason string) error {
	return &ValidationError{Entity: "node", ID: id, Reason: reason}
}

func invalidEdge(id, reason string) error {
	return &ValidationError{Entity: "edge", ID: id, Reason: reason}
}
