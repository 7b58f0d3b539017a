package migrate

import "fmt"

// TransportError reports a failed store call (connection, timeout, server error).
type TransportError struct {
	Op    string // "query", "count" or "upsert"
	Store string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WriteError reports a batch whose bulk write failed on a destination.
// The whole batch is considered unwritten.
type WriteError struct {
	Batch       int
	Destination string
	Err         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("batch %d: write to %s failed: %v", e.Batch, e.Destination, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
