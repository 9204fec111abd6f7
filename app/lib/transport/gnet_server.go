package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/rs/zerolog"
)

type GnetServerConfig struct {
	Addr        string
	Multicore   bool
	NumLoops    int
	ReusePort   bool
	IdleTimeout time.Duration // 0 disables the idle sweep
}

// GnetServer runs connections on the gnet event loops. Traffic callbacks for
// one connection always run on the same loop, which gives the serialised
// DataReceived delivery the framer relies on.
type GnetServer struct {
	gnet.BuiltinEventEngine

	config GnetServerConfig
	logger zerolog.Logger
	accept AcceptFunc

	engine gnet.Engine
	booted chan struct{}

	mu    sync.Mutex
	conns map[gnet.Conn]*gnetConn
}

func NewGnetServer(config GnetServerConfig, logger zerolog.Logger) *GnetServer {
	return &GnetServer{
		config: config,
		logger: logger,
		booted: make(chan struct{}),
		conns:  make(map[gnet.Conn]*gnetConn),
	}
}

func (s *GnetServer) Serve(ctx context.Context, accept AcceptFunc) error {
	s.accept = accept

	options := []gnet.Option{
		gnet.WithMulticore(s.config.Multicore),
		gnet.WithReusePort(s.config.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTicker(s.config.IdleTimeout > 0),
	}
	if s.config.NumLoops > 0 {
		options = append(options, gnet.WithNumEventLoop(s.config.NumLoops))
	}

	go func() {
		select {
		case <-s.booted:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.engine.Stop(stopCtx); err != nil {
			s.logger.Err(err).Msg("Error stopping gnet engine")
		}
	}()

	s.logger.Info().Str("address", s.config.Addr).Bool("multicore", s.config.Multicore).Msg("Starting gnet engine")
	return gnet.Run(s, "tcp://"+s.config.Addr, options...)
}

func (s *GnetServer) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	close(s.booted)
	s.logger.Info().Str("address", s.config.Addr).Msg("Waiting for connection")
	return gnet.None
}

func (s *GnetServer) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	gc := newGnetConn(c, s.logger)
	c.SetContext(gc)

	s.mu.Lock()
	s.conns[c] = gc
	s.mu.Unlock()

	s.logger.Debug().Str("remote", gc.RemoteAddr()).Msg("Accepted connection")
	s.accept(gc)
	return nil, gnet.None
}

func (s *GnetServer) OnClose(c gnet.Conn, err error) gnet.Action {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	if gc, ok := c.Context().(*gnetConn); ok {
		gc.closed(err)
	}
	return gnet.None
}

func (s *GnetServer) OnTraffic(c gnet.Conn) gnet.Action {
	gc, ok := c.Context().(*gnetConn)
	if !ok {
		s.logger.Error().Msg("connection context not found")
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil {
		s.logger.Err(err).Msg("error reading data")
		return gnet.Close
	}

	gc.touch()
	gc.received(buf)
	return gnet.None
}

// OnTick closes connections that have been silent for longer than
// IdleTimeout.
func (s *GnetServer) OnTick() (time.Duration, gnet.Action) {
	now := time.Now()

	s.mu.Lock()
	var idle []*gnetConn
	for _, gc := range s.conns {
		if now.Sub(gc.lastActive()) > s.config.IdleTimeout {
			idle = append(idle, gc)
		}
	}
	s.mu.Unlock()

	for _, gc := range idle {
		s.logger.Debug().Str("remote", gc.RemoteAddr()).Msg("closing idle connection")
		gc.ForceStop()
	}

	return s.config.IdleTimeout / 2, gnet.None
}

type gnetConn struct {
	conn    gnet.Conn
	handler Handler
	logger  zerolog.Logger

	mu     sync.Mutex
	forced bool
	active time.Time
}

func newGnetConn(c gnet.Conn, logger zerolog.Logger) *gnetConn {
	remote := ""
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	return &gnetConn{
		conn:   c,
		logger: logger.With().Str("remote", remote).Logger(),
		active: time.Now(),
	}
}

func (c *gnetConn) Start(h Handler) {
	c.handler = h
	h.Connected()
}

// Read is a no-op, gnet delivers traffic whenever the socket is readable.
func (c *gnetConn) Read() {}

func (c *gnetConn) Write(data []byte, tag Tag) {
	err := c.conn.AsyncWrite(data, func(_ gnet.Conn, err error) error {
		if c.isForced() {
			return nil
		}
		if err != nil {
			c.handler.WriteFailed(err, tag)
			return nil
		}
		c.handler.WriteCompleted(tag)
		return nil
	})

	if err != nil {
		c.logger.Debug().Err(err).Str("tag", tag.String()).Msg("async write rejected")
		c.handler.WriteFailed(errors.Join(ErrClosed, err), tag)
	}
}

// Stop closes once the writes queued ahead of it have been flushed by the
// event loop.
func (c *gnetConn) Stop() {
	c.logger.Debug().Msg("stopping connection")
	_ = c.conn.Close()
}

func (c *gnetConn) ForceStop() {
	c.mu.Lock()
	c.forced = true
	c.mu.Unlock()

	c.logger.Debug().Msg("force stopping connection")
	_ = c.conn.Close()
}

func (c *gnetConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *gnetConn) received(data []byte) {
	if c.handler != nil {
		c.handler.DataReceived(data)
	}
}

func (c *gnetConn) closed(err error) {
	if errors.Is(err, io.EOF) {
		err = nil
	}

	c.logger.Debug().AnErr("reason", err).Msg("connection closed")
	if c.handler != nil {
		c.handler.Closed(err)
	}
}

func (c *gnetConn) isForced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced
}

func (c *gnetConn) touch() {
	c.mu.Lock()
	c.active = time.Now()
	c.mu.Unlock()
}

func (c *gnetConn) lastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
