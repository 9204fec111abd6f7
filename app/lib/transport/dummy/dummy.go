// Package dummy provides an in-memory transport.Conn for driving the framer
// and writer without sockets.
package dummy

import (
	"bytes"
	"sync"

	"github.com/sains1/httpframer/app/lib/transport"
)

type Write struct {
	Data []byte
	Tag  transport.Tag
}

// Conn journals every write. With AutoComplete set, writes are acknowledged
// synchronously from Write, otherwise the test completes them by tag.
type Conn struct {
	AutoComplete bool

	mu      sync.Mutex
	handler transport.Handler
	writes  []Write
	pending map[transport.Tag]struct{}
	reads   int
	stopped bool
	forced  bool
	closed  bool
}

func NewConn() *Conn {
	return &Conn{pending: make(map[transport.Tag]struct{})}
}

func NewAutoConn() *Conn {
	c := NewConn()
	c.AutoComplete = true
	return c
}

func (c *Conn) Start(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	h.Connected()
}

func (c *Conn) Read() {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
}

func (c *Conn) Write(data []byte, tag transport.Tag) {
	c.mu.Lock()
	if c.closed {
		h := c.handler
		c.mu.Unlock()
		h.WriteFailed(transport.ErrClosed, tag)
		return
	}

	c.writes = append(c.writes, Write{Data: bytes.Clone(data), Tag: tag})
	auto := c.AutoComplete
	if !auto {
		c.pending[tag] = struct{}{}
	}
	h := c.handler
	c.mu.Unlock()

	if auto {
		h.WriteCompleted(tag)
	}
}

func (c *Conn) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.Close(nil)
}

func (c *Conn) ForceStop() {
	c.mu.Lock()
	c.forced = true
	c.pending = make(map[transport.Tag]struct{})
	c.mu.Unlock()

	c.Close(nil)
}

func (c *Conn) RemoteAddr() string {
	return "dummy"
}

// Feed delivers data as a single DataReceived callback.
func (c *Conn) Feed(data string) {
	c.handler.DataReceived([]byte(data))
}

// Complete acknowledges a pending write.
func (c *Conn) Complete(tag transport.Tag) {
	if c.take(tag) {
		c.handler.WriteCompleted(tag)
	}
}

// Fail reports a pending write as failed.
func (c *Conn) Fail(tag transport.Tag, err error) {
	if c.take(tag) {
		c.handler.WriteFailed(err, tag)
	}
}

// Close tears the connection down once, reporting err.
func (c *Conn) Close(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h.Closed(err)
	}
}

func (c *Conn) take(tag transport.Tag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[tag]; !ok {
		return false
	}
	delete(c.pending, tag)
	return true
}

func (c *Conn) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// Written returns every write concatenated in issue order.
func (c *Conn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b bytes.Buffer
	for _, w := range c.writes {
		b.Write(w.Data)
	}
	return b.String()
}

func (c *Conn) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *Conn) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Conn) Forced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
