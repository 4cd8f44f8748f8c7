package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownClass is returned when no factory is registered for a class tag.
	ErrUnknownClass = errors.New("unknown node class")
	// ErrStaleRestore signals that restoring a scene view would delete nodes.
	ErrStaleRestore = errors.New("scene view restore would delete nodes")
	// ErrNodeNotFound is returned when an ID does not resolve in the scene.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeAttached is returned when an operation needs a detached node.
	ErrNodeAttached = errors.New("node already attached to a scene")
	// ErrNotInScene is returned when a node is not owned by the scene.
	ErrNotInScene = errors.New("node is not in the scene")
	// ErrSelfParent is returned when a hierarchy node is made its own parent.
	ErrSelfParent = errors.New("hierarchy node cannot be its own parent")
	// ErrHierarchyCycle is returned when a reparent would create a cycle.
	ErrHierarchyCycle = errors.New("reparent would create a hierarchy cycle")
	// ErrIndexOutOfRange is returned for sibling moves outside the parent.
	ErrIndexOutOfRange = errors.New("index outside parent range")
	// ErrNotHierarchical is returned when a hierarchy operation targets a
	// node without parent/child capability.
	ErrNotHierarchical = errors.New("node is not a hierarchy node")
	// ErrNothingStored is returned when restoring a scene view that was never stored.
	ErrNothingStored = errors.New("scene view has no stored scene")
)

// UnknownClassError wraps ErrUnknownClass with the offending tag.
func UnknownClassError(tag string) error {
	return fmt.Errorf("%w: %q", ErrUnknownClass, tag)
}

// NotFoundError reports an unresolved node ID.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("node %q not found", e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNodeNotFound }

// StaleRestoreConflictError lists the nodes a forced restore would delete.
type StaleRestoreConflictError struct {
	NodeIDs []string
}

func (e *StaleRestoreConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStaleRestore, strings.Join(e.NodeIDs, ", "))
}

func (e *StaleRestoreConflictError) Unwrap() error { return ErrStaleRestore }
