package flow

import (
	"fmt"
	"strings"
)

// NodeError ties an error to the node it was detected on.
type NodeError struct {
	NodeID string
	Slug   string
	Err    error
}

func (e *NodeError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Slug, e.Err)
	}
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// FieldError reports a form field that should hold JSON text but does not.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrMalformedJSONField, e.Field, e.Err)
}

func (e *FieldError) Is(target error) bool { return target == ErrMalformedJSONField }

func (e *FieldError) Unwrap() error { return e.Err }

// CycleError is returned when task dependencies cannot be ordered. Slugs
// lists the tasks that were left unordered.
type CycleError struct {
	Slugs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Slugs, ", "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCyclicDependency }
