// Package httpserver is a tiny HTTP/1.x server for probe and status traffic.
// It reads only the request line, hands a Request to a Handler, writes the
// Handler's Response and closes the connection.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"probeserver/internal/metrics"
)

const (
	maxRequestLine = 8 << 10
	maxAcceptDelay = 100 * time.Millisecond
)

// Config describes where the server listens. It is copied at Start and
// never read again while the server runs.
type Config struct {
	Address string
	// Port 0 binds an ephemeral port; see Server.Addr.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowedNetworks restricts peers when non-empty.
	AllowedNetworks []*net.IPNet
}

func (c Config) hostPort() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Handler answers one request.
type Handler interface {
	Call(req Request) (Response, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req Request) (Response, error)

func (f HandlerFunc) Call(req Request) (Response, error) {
	return f(req)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records connection and response counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server owns the listening socket and the running flag. Start, Stop and
// Running are safe to call from any goroutine.
type Server struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger
	metrics *metrics.Metrics

	running atomic.Bool

	mu   sync.Mutex // guards ln and done
	ln   net.Listener
	done chan struct{}

	conns sync.WaitGroup
}

// New returns a stopped server. Call Start to bind.
func New(handler Handler, cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds cfg and launches the accept loop. It returns once the socket
// is listening.
func Start(handler Handler, cfg Config, opts ...Option) (*Server, error) {
	s := New(handler, cfg, opts...)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start binds the configured address and serves in the background. A bind
// failure is returned as *BindError and leaves the server stopped.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return ErrServerRunning
	}

	addr := s.cfg.hostPort()
	if s.cfg.Port < 0 || s.cfg.Port > 65535 {
		return &BindError{Address: addr, Err: fmt.Errorf("port %d out of range", s.cfg.Port)}
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Address: addr, Err: err}
	}

	done := make(chan struct{})
	s.ln = ln
	s.done = done
	s.running.Store(true)
	if s.metrics != nil {
		s.metrics.SetRunning(true)
	}
	s.logger.Info("probe server listening", zap.String("addr", ln.Addr().String()))

	go s.serve(ln, done)
	return nil
}

// Stop clears the running flag, closes the listener and waits for the
// accept loop to exit. Connections already being handled finish on their
// own. Stop is a no-op on a server that is not running.
func (s *Server) Stop() {
	s.running.Store(false)

	s.mu.Lock()
	done := s.done
	ln := s.ln
	if ln != nil {
		s.ln = nil
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("closing probe listener", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.SetRunning(false)
		}
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	if ln != nil {
		s.logger.Info("probe server stopped")
	}
}

// Shutdown stops accepting and then waits for in-flight connections to
// finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Stop()

	idle := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports the running flag without touching the socket.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Done is closed when the current accept loop has exited. It returns nil
// for a server that was never started.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Server) serve(ln net.Listener, done chan struct{}) {
	defer close(done)
	defer s.release(ln)

	var delay time.Duration
	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if transientAcceptError(err) {
				delay = nextAcceptDelay(delay)
				if s.metrics != nil {
					s.metrics.AcceptErrors.Inc()
				}
				s.logger.Debug("accept retry", zap.Error(err), zap.Duration("delay", delay))
				time.Sleep(delay)
				continue
			}
			s.logger.Error("accept failed; stopping probe server", zap.Error(err))
			return
		}
		delay = 0

		if !s.running.Load() {
			_ = conn.Close()
			return
		}
		if !s.allowed(conn.RemoteAddr()) {
			s.logger.Debug("rejected peer", zap.Stringer("remote", conn.RemoteAddr()))
			if s.metrics != nil {
				s.metrics.ConnectionsRejected.Inc()
			}
			_ = conn.Close()
			continue
		}

		if s.metrics != nil {
			s.metrics.ConnectionsAccepted.Inc()
		}
		s.conns.Add(1)
		go s.handleConn(conn)
	}
}

// release closes ln if it is still the active listener. A newer listener
// from a restart is left alone.
func (s *Server) release(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != ln {
		return
	}
	s.running.Store(false)
	s.ln = nil
	_ = ln.Close()
	if s.metrics != nil {
		s.metrics.SetRunning(false)
	}
}

func (s *Server) allowed(addr net.Addr) bool {
	if len(s.cfg.AllowedNetworks) == 0 {
		return true
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return false
	}
	for _, network := range s.cfg.AllowedNetworks {
		if network.Contains(tcp.IP) {
			return true
		}
	}
	return false
}

func transientAcceptError(err error) bool {
	if errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}
