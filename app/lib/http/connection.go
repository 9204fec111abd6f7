package http

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sains1/httpframer/app/lib/metrics"
	"github.com/sains1/httpframer/app/lib/transport"
)

type Options struct {
	Limits Limits
	// Pipelining dispatches every framed request immediately. When false a
	// request waits until the writer of the previous one calls Finish.
	Pipelining bool
}

// Connection binds a transport.Conn to a Framer and publishes the resulting
// events. It implements transport.Handler.
type Connection struct {
	id        uuid.UUID
	transport transport.Conn
	framer    *Framer
	options   Options
	emit      EventFunc
	logger    zerolog.Logger

	mu      sync.Mutex
	headers map[transport.Tag]*ResponseWriter
	done    chan struct{}
	queue   []*Request
	active  int // dispatched requests whose writer has not called Finish
	broken  bool
	closed  bool
}

func NewConnection(t transport.Conn, options Options, emit EventFunc, logger zerolog.Logger) *Connection {
	id := uuid.New()

	return &Connection{
		id:        id,
		transport: t,
		framer:    NewFramer(options.Limits),
		options:   options,
		emit:      emit,
		logger:    logger.With().Str("conn_id", id.String()).Str("remote", t.RemoteAddr()).Logger(),
		headers:   make(map[transport.Tag]*ResponseWriter),
		done:      make(chan struct{}),
	}
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.transport.RemoteAddr()
}

// Done is closed once the transport reports the connection closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Logger() zerolog.Logger {
	return c.logger
}

// Stop closes the transport after pending writes are flushed.
func (c *Connection) Stop() {
	c.transport.Stop()
}

// ForceStop closes the transport immediately.
func (c *Connection) ForceStop() {
	c.transport.ForceStop()
}

func (c *Connection) Connected() {
	metrics.ConnectionsOpen.Inc()
	c.logger.Debug().Msg("connected")
	c.transport.Read()
}

func (c *Connection) DataReceived(data []byte) {
	metrics.BytesReceived.Add(float64(len(data)))

	c.mu.Lock()
	broken := c.broken
	c.mu.Unlock()
	if broken {
		return
	}

	reqs, err := c.framer.Feed(data)
	for _, req := range reqs {
		c.deliver(req)
	}

	if err != nil {
		c.reject(err)
		return
	}

	c.transport.Read()
}

func (c *Connection) WriteCompleted(tag transport.Tag) {
	if w, ok := c.takeHeader(tag); ok {
		w.confirm()
		metrics.ResponsesSent.WithLabelValues("success").Inc()
		c.emit(ResponseSent{Conn: c, Request: w.request, Success: true})
		return
	}

	c.emit(WriteCompleted{Conn: c, Tag: tag})
}

func (c *Connection) WriteFailed(err error, tag transport.Tag) {
	if w, ok := c.takeHeader(tag); ok {
		w.confirm()
		metrics.ResponsesSent.WithLabelValues("failure").Inc()
		c.logger.Debug().Err(err).Msg("status line write failed")
		c.emit(ResponseSent{Conn: c, Request: w.request, Success: false, Err: err})
		return
	}

	metrics.WritesFailed.Inc()
	c.emit(WriteFailed{Conn: c, Err: err, Tag: tag})
}

func (c *Connection) Closed(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	close(c.done)
	c.mu.Unlock()

	metrics.ConnectionsOpen.Dec()
	c.logger.Debug().AnErr("reason", err).Msg("closed")
	c.emit(Closed{Conn: c, Err: err})
}

func (c *Connection) deliver(req *Request) {
	metrics.RequestsFramed.Inc()
	req.Logger = c.logger.With().Str("path", req.Path).Str("method", req.Method).Logger()

	c.mu.Lock()
	if !c.options.Pipelining && c.active > 0 {
		c.queue = append(c.queue, req)
		queued := len(c.queue)
		c.mu.Unlock()
		req.Logger.Debug().Int("queued", queued).Msg("holding request until previous response finishes")
		return
	}
	c.active++
	c.mu.Unlock()

	c.dispatch(req)
}

func (c *Connection) dispatch(req *Request) {
	c.emit(RequestReceived{Conn: c, Request: req, Writer: newResponseWriter(c, req)})
}

func (c *Connection) finish(w *ResponseWriter) {
	c.mu.Lock()
	c.active--
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	next := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.active++
	c.mu.Unlock()

	c.dispatch(next)
}

func (c *Connection) expectHeader(tag transport.Tag, w *ResponseWriter) {
	c.mu.Lock()
	c.headers[tag] = w
	c.mu.Unlock()
}

func (c *Connection) takeHeader(tag transport.Tag) (*ResponseWriter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.headers[tag]
	if ok {
		delete(c.headers, tag)
	}
	return w, ok
}

// reject answers a request that broke a framing limit and closes the
// connection, the rest of the stream cannot be framed reliably. While an
// earlier response is still being written the status line would land inside
// its body, so the connection is only stopped.
func (c *Connection) reject(err error) {
	c.mu.Lock()
	c.broken = true
	active := c.active
	c.mu.Unlock()

	code, reason := StatusRequestHeaderFieldsTooLarge, "header"
	if errors.Is(err, ErrBodyTooLarge) {
		code, reason = StatusRequestEntityTooLarge, "body"
	}

	metrics.RequestsRejected.WithLabelValues(reason).Inc()
	c.logger.Warn().Err(err).Int("buffered", c.framer.Buffered()).Int("active", active).Msg("rejecting request")
	c.framer.Reset()

	if active > 0 {
		c.transport.Stop()
		return
	}

	req := &Request{
		Method:  DefaultMethod,
		Path:    DefaultPath,
		Version: Http1Dot1Version,
		Headers: make(map[string]string),
		Logger:  c.logger,
	}
	res := NewResponse(code)
	res.Headers[HeaderConnection] = "close"
	res.Headers[HeaderContentLength] = "0"

	newResponseWriter(c, req).WriteResponse(res)
	c.transport.Stop()
}
