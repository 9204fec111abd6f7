package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrClosed = errors.New("transport closed")
)

// Tag correlates a write with its completion callback. Tags are opaque and
// compared with ==, completions may arrive in any order.
type Tag struct {
	id uuid.UUID
}

func NewTag() Tag {
	return Tag{id: uuid.New()}
}

// IsZero reports whether t is the zero tag, returned by writes that were
// never issued.
func (t Tag) IsZero() bool {
	return t.id == uuid.Nil
}

func (t Tag) String() string {
	return t.id.String()
}

// Handler receives the inbound callbacks of a Conn. DataReceived is never
// called concurrently with itself for a given Conn; the write callbacks may
// arrive from other goroutines.
type Handler interface {
	Connected()
	DataReceived(data []byte)
	WriteCompleted(tag Tag)
	WriteFailed(err error, tag Tag)
	Closed(err error)
}

// Conn is a duplex byte channel. None of its methods block.
type Conn interface {
	// Start binds the handler and reports Connected.
	Start(h Handler)
	// Read arms delivery of the next DataReceived callback.
	Read()
	// Write queues data, the outcome is reported through WriteCompleted or
	// WriteFailed carrying tag.
	Write(data []byte, tag Tag)
	// Stop flushes queued writes and closes, Closed follows.
	Stop()
	// ForceStop closes immediately, queued writes are dropped silently.
	ForceStop()
	RemoteAddr() string
}

// AcceptFunc is invoked once per accepted connection, it is expected to call
// Start.
type AcceptFunc func(c Conn)

// Server accepts connections until ctx is cancelled.
type Server interface {
	Serve(ctx context.Context, accept AcceptFunc) error
}
