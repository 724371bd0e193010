package core

import "fmt"

// IngestError reports an artifact that could not be turned into text.
type IngestError struct {
	Artifact string
	Reason   string
	Err      error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest %s: %s: %v", e.Artifact, e.Reason, e.Err)
	}
	return fmt.Sprintf("ingest %s: %s", e.Artifact, e.Reason)
}

func (e *IngestError) Unwrap() error { return e.Err }

// TransportError reports an unreachable inference service or a non-success response.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError reports a reference to a session name that is not in the store.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.Name)
}

// PersistenceError reports a failed write to durable history. It never invalidates in-memory state.
type PersistenceError struct {
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist history (%s): %v", e.Backend, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
