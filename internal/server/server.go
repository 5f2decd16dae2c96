// Package server accepts TCP connections and runs one frame inspector per
// connection until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"example.com/h2framein/internal/config"
	"example.com/h2framein/internal/http2"
	"example.com/h2framein/internal/inspect"
	"example.com/h2framein/internal/logger"
	"example.com/h2framein/internal/util"
)

const acceptRetryDelay = 5 * time.Millisecond

// ConnResult reports how one connection's inspection ended.
type ConnResult struct {
	RemoteAddr string
	Result     inspect.Result
	Err        error
}

// Server manages the listener lifecycle and the per-connection inspectors.
type Server struct {
	cfg *config.Config
	log *logger.Logger

	// OnConnDone, when set before Serve, is called once per finished connection.
	OnConnDone func(ConnResult)

	mu          sync.Mutex
	listener    net.Listener
	activeConns map[net.Conn]struct{}
	wg          sync.WaitGroup
}

// NewServer creates a new Server instance. Missing configuration fields are defaulted.
func NewServer(cfg *config.Config, lg *logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Server{
		cfg:         cfg,
		log:         lg,
		activeConns: make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe listens on the configured address, or on an inherited
// socket when socket activated, and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, inherited, err := util.Listen(*s.cfg.Inspector.ListenAddress)
	if err != nil {
		if util.IsAddrInUse(err) {
			s.log.Error("Listen address already in use", logger.LogFields{"address": *s.cfg.Inspector.ListenAddress})
		}
		return err
	}
	s.log.Info("Listening", logger.LogFields{"address": l.Addr().String(), "inherited": inherited})
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done or l fails, then waits for
// in-flight inspections to stop. l is closed on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var serveErr error
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("Accept failed, retrying", logger.LogFields{"error": err.Error()})
				time.Sleep(acceptRetryDelay)
				continue
			}
			serveErr = fmt.Errorf("accept: %w", err)
			break
		}
		s.trackConn(conn, true)
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}

	l.Close()
	s.wg.Wait()
	s.log.Info("Server stopped", nil)
	return serveErr
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the number of connections being inspected.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) trackConn(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.activeConns[c] = struct{}{}
	} else {
		delete(s.activeConns, c)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.trackConn(conn, false)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	lg := s.log.With(logger.LogFields{"remote_addr": remote})
	lg.Debug("Connection accepted", nil)

	res, err := s.inspect(ctx, conn, lg)
	if err != nil && !errors.Is(err, context.Canceled) {
		lg.Warn("Connection inspection ended with error", logger.LogFields{
			"error":      err.Error(),
			"error_code": http2.ErrorCodeOf(err).String(),
		})
	}
	if s.OnConnDone != nil {
		s.OnConnDone(ConnResult{RemoteAddr: remote, Result: res, Err: err})
	}
}

func (s *Server) inspect(ctx context.Context, conn net.Conn, lg *logger.Logger) (inspect.Result, error) {
	dec, err := http2.NewFrameDecoder(http2.NewBasicTransportMetrics(),
		*s.cfg.Decoder.BufferLen, int(*s.cfg.Decoder.MaxFrameSize))
	if err != nil {
		return inspect.Result{}, err
	}
	in, err := inspect.New(dec, inspect.OptionsFromConfig(s.cfg.Inspector), lg)
	if err != nil {
		return inspect.Result{}, err
	}
	ch := http2.NewConnChannel(conn, s.cfg.Inspector.PollTimeout.Value())
	return in.Run(ctx, ch)
}
