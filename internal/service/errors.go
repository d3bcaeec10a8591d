package service

import "fmt"

// ExtractionError means the language model returned output we could not
// turn into ticket fields. Fatal before a ticket exists.
type ExtractionError struct {
	Err error
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e ExtractionError) Unwrap() error { return e.Err }

// ValidationError carries a user-actionable reason, never an internal error
// string.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

// DependencyError wraps transport failures from embeddings, search,
// geocoding or notification. Recoverable at whole-workflow granularity.
type DependencyError struct {
	Op  string
	Err error
}

func (e DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e DependencyError) Unwrap() error { return e.Err }

// MergeConflict means a merge would violate the single-level parent
// invariant: self-merge, a parent that is itself a child, or a child
// already linked elsewhere.
type MergeConflict struct {
	ChildID  string
	ParentID string
	Reason   string
}

func (e MergeConflict) Error() string {
	return fmt.Sprintf("merge conflict for %s -> %s: %s", e.ChildID, e.ParentID, e.Reason)
}

// RecoveryExhausted reports a failure event whose resubmission failed again;
// the event stays unprocessed for the next batch.
type RecoveryExhausted struct {
	EventID string
	Err     error
}

func (e RecoveryExhausted) Error() string {
	return fmt.Sprintf("recovery of event %s failed again: %v", e.EventID, e.Err)
}

func (e RecoveryExhausted) Unwrap() error { return e.Err }
