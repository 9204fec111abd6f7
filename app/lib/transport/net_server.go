package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
)

type NetServerConfig struct {
	Addr            string
	MaxConns        int           // 0 means unlimited
	IdleTimeout     time.Duration // inbound silence before a connection is dropped, 0 disables
	ShutdownTimeout time.Duration
}

// NetServer accepts TCP connections with the standard library listener and
// wraps each of them in a NetConn.
type NetServer struct {
	config NetServerConfig
	logger zerolog.Logger

	mu    sync.Mutex
	conns map[*NetConn]struct{}
	wg    sync.WaitGroup
}

func NewNetServer(config NetServerConfig, logger zerolog.Logger) *NetServer {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	return &NetServer{
		config: config,
		logger: logger,
		conns:  make(map[*NetConn]struct{}),
	}
}

func (s *NetServer) Serve(ctx context.Context, accept AcceptFunc) error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Addr, err)
	}

	return s.serve(ctx, l, accept)
}

func (s *NetServer) serve(ctx context.Context, l net.Listener, accept AcceptFunc) error {
	if s.config.MaxConns > 0 {
		l = netutil.LimitListener(l, s.config.MaxConns)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()

	s.logger.Info().Str("address", l.Addr().String()).Int("max_conns", s.config.MaxConns).Msg("Waiting for connection")

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			s.logger.Err(err).Msg("Error accepting connection")
			time.Sleep(5 * time.Millisecond)
			continue
		}

		s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Accepted connection")

		nc := NewNetConn(conn, s.config.IdleTimeout, s.logger)
		s.track(nc)
		accept(nc)
	}

	s.drain()
	return nil
}

func (s *NetServer) track(c *NetConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	c.onClose = func(c *NetConn) {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.wg.Done()
	}
}

func (s *NetServer) snapshot() []*NetConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]*NetConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

// drain stops every live connection and waits for them to close, anything
// still open after ShutdownTimeout is force stopped.
func (s *NetServer) drain() {
	conns := s.snapshot()
	s.logger.Info().Int("connections", len(conns)).Msg("Draining connections")

	for _, c := range conns {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(s.config.ShutdownTimeout):
	}

	remaining := s.snapshot()
	s.logger.Warn().Int("connections", len(remaining)).Msg("Shutdown timeout reached, force stopping")
	for _, c := range remaining {
		c.ForceStop()
	}
	<-done
}
