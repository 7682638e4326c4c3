package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConnectivity marks failures reaching a backing store; stages treat
	// it as fatal rather than log-and-continue.
	ErrConnectivity = errors.New("connectivity failure")
	// ErrEndpointMissing marks a relationship upsert whose source or target
	// node is absent from the graph.
	ErrEndpointMissing = errors.New("relationship endpoint missing")
)
