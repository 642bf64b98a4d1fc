// Package syncerr holds the sentinel error kinds shared across the
// synchronization components, so callers can errors.Is against a stable
// taxonomy instead of matching on message text.
package syncerr

import "errors"

var (
	// ErrTransport indicates a send/recv failure. Logged and non-fatal;
	// the affected exchange is retried by its own policy.
	ErrTransport = errors.New("syncerr: transport failure")

	// ErrProtocol indicates an unknown method ID, malformed payload, or
	// missing targets. Logged and discarded.
	ErrProtocol = errors.New("syncerr: protocol violation")

	// ErrUnsynced indicates an operation required a valid offset but none
	// is installed.
	ErrUnsynced = errors.New("syncerr: offset not installed")

	// ErrBackpressure indicates a submission would exceed a per-stream
	// outstanding limit; the producer must drop the buffer it holds.
	ErrBackpressure = errors.New("syncerr: backpressure limit reached")

	// ErrClosed indicates an operation on a closed component.
	ErrClosed = errors.New("syncerr: component closed")

	// ErrPayloadTooLarge indicates an RPC payload exceeds the wire limit.
	ErrPayloadTooLarge = errors.New("syncerr: payload too large")

	// ErrUnknownMethod indicates an RPC method ID has no registered handler.
	ErrUnknownMethod = errors.New("syncerr: unknown method id")
)
