package transport

import "github.com/google/uuid"

// Link is the write-side surface of a live connection. The state manager and
// dispatcher only ever hold a Link; the concrete Connection owns the socket.
type Link interface {
	ID() uuid.UUID
	// Send queues a message for delivery. It never blocks; the return value
	// reports whether the message was accepted into the outbound buffer.
	Send(message []byte) bool
	// Close tears the connection down with the given reason.
	Close(err error)
	// Done is closed once the connection is fully terminated.
	Done() <-chan struct{}
}
