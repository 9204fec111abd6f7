package http

import "github.com/sains1/httpframer/app/lib/transport"

// Event is one of RequestReceived, ResponseSent, WriteCompleted, WriteFailed
// or Closed.
type Event interface {
	isEvent()
}

// EventFunc consumes the events of a connection. It is called synchronously
// from transport callbacks. It must not block, nor write to the response
// whose completion it is reporting.
type EventFunc func(Event)

// RequestReceived is published exactly once per framed request. The
// delegate answers through Writer.
type RequestReceived struct {
	Conn    *Connection
	Request *Request
	Writer  *ResponseWriter
}

// ResponseSent reports the outcome of a status line write.
type ResponseSent struct {
	Conn    *Connection
	Request *Request
	Success bool
	Err     error
}

type WriteCompleted struct {
	Conn *Connection
	Tag  transport.Tag
}

type WriteFailed struct {
	Conn *Connection
	Err  error
	Tag  transport.Tag
}

// Closed is published once per connection, Err is nil on orderly close.
type Closed struct {
	Conn *Connection
	Err  error
}

func (RequestReceived) isEvent() {}
func (ResponseSent) isEvent()    {}
func (WriteCompleted) isEvent()  {}
func (WriteFailed) isEvent()     {}
func (Closed) isEvent()          {}
