package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const readBufferSize = 4096 // 4KB per read, same as the response copy buffer

type pendingWrite struct {
	data []byte
	tag  Tag
}

// NetConn adapts a blocking net.Conn to the Conn contract. One goroutine
// performs armed reads, another drains the write queue in issue order.
type NetConn struct {
	conn        net.Conn
	handler     Handler
	logger      zerolog.Logger
	idleTimeout time.Duration
	onClose     func(*NetConn)

	readReq chan struct{}
	wake    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	queue     []pendingWrite
	stopping  bool
	forced    bool
	closed    bool
	closeOnce sync.Once
}

func NewNetConn(conn net.Conn, idleTimeout time.Duration, logger zerolog.Logger) *NetConn {
	return &NetConn{
		conn:        conn,
		idleTimeout: idleTimeout,
		logger:      logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		readReq:     make(chan struct{}, 1),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (c *NetConn) Start(h Handler) {
	c.handler = h
	h.Connected()

	go c.readLoop()
	go c.writeLoop()
}

func (c *NetConn) Read() {
	select {
	case c.readReq <- struct{}{}:
	default: // already armed
	}
}

func (c *NetConn) Write(data []byte, tag Tag) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.handler.WriteFailed(ErrClosed, tag)
		return
	}
	c.queue = append(c.queue, pendingWrite{data: data, tag: tag})
	c.mu.Unlock()

	c.signal()
}

func (c *NetConn) Stop() {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()

	c.logger.Debug().Msg("stopping connection")
	c.signal()
}

func (c *NetConn) ForceStop() {
	c.mu.Lock()
	c.forced = true
	c.mu.Unlock()

	c.logger.Debug().Msg("force stopping connection")
	c.close(nil)
}

func (c *NetConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *NetConn) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *NetConn) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-c.readReq:
		case <-c.done:
			return
		}

		if c.idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.handler.DataReceived(buf[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.close(err)
			return
		}
	}
}

func (c *NetConn) writeLoop() {
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}

		for {
			w, ok := c.next()
			if !ok {
				break
			}

			_, err := c.conn.Write(w.data)
			if c.isForced() {
				return
			}

			if err != nil {
				c.logger.Debug().Err(err).Str("tag", w.tag.String()).Msg("write failed")
				c.handler.WriteFailed(err, w.tag)
				continue
			}

			c.handler.WriteCompleted(w.tag)
		}

		if c.drained() {
			c.close(nil)
			return
		}
	}
}

func (c *NetConn) next() (pendingWrite, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced || len(c.queue) == 0 {
		return pendingWrite{}, false
	}

	w := c.queue[0]
	c.queue[0] = pendingWrite{}
	c.queue = c.queue[1:]
	return w, true
}

func (c *NetConn) isForced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced
}

func (c *NetConn) drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping && len(c.queue) == 0
}

func (c *NetConn) close(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		pending := c.queue
		c.queue = nil
		forced := c.forced
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		_ = c.conn.Close()

		c.logger.Debug().AnErr("reason", err).Msg("connection closed")

		if c.handler != nil {
			if !forced {
				for _, w := range pending {
					c.handler.WriteFailed(ErrClosed, w.tag)
				}
			}
			c.handler.Closed(err)
		}

		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
