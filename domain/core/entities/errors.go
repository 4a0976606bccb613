package entities

import (
	"fmt"
	"strings"

	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/errors"
)

// Engine error kinds. Callers compare with errors.Is.
var (
	ErrSelfReference    = errors.ErrSelfReference
	ErrNodeNotFound     = errors.ErrConceptNotFound
	ErrEdgeNotFound     = errors.ErrEdgeNotFound
	ErrWouldCreateCycle = errors.ErrWouldCreateCycle
	ErrCycleDetected    = errors.ErrCycleDetected
)

// NodeNotFound returns ErrNodeNotFound carrying the missing ID
func NodeNotFound(id valueobjects.ConceptID) error {
	return errors.ErrConceptNotFound.Clone().WithDetail("node_id", id.String())
}

// CycleError rejects a proposed prerequisite edge. Path runs from the
// proposed target back to the proposed source along existing edges.
type CycleError struct {
	Source valueobjects.ConceptID
	Target valueobjects.ConceptID
	Path   []valueobjects.ConceptID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("prerequisite %s -> %s would create a cycle: %s",
		e.Source, e.Target, FormatPath(e.Path))
}

// Unwrap lets errors.Is match ErrWouldCreateCycle
func (e *CycleError) Unwrap() error {
	return ErrWouldCreateCycle
}

// CycleDetectedError reports that no complete learning order exists.
// Remaining holds the nodes still blocked when the ready set drained.
type CycleDetectedError struct {
	Remaining []valueobjects.ConceptID
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("cycle detected among %d concepts: %s",
		len(e.Remaining), strings.Join(valueobjects.ConceptIDStrings(e.Remaining), ", "))
}

// Unwrap lets errors.Is match ErrCycleDetected
func (e *CycleDetectedError) Unwrap() error {
	return ErrCycleDetected
}

// FormatPath renders a concept path as "a -> b -> c"
func FormatPath(path []valueobjects.ConceptID) string {
	return strings.Join(valueobjects.ConceptIDStrings(path), " -> ")
}
