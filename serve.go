package bytestream

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/framing"
	"github.com/moriyoshi/bytestream/internal/expand"
	"github.com/moriyoshi/bytestream/internal/logging"
	"github.com/moriyoshi/bytestream/types"
)

// Server accepts TCP connections, cuts each inbound stream into frames and
// hands every frame to an outlet. The outlet is called concurrently from
// all connections.
type Server struct {
	addr           string
	profile        string
	framer         *framing.Framer
	outlet         types.Outlet
	maxConnections int
	readRate       int64
	ack            string
	tlsConfig      *tls.Config
	logger         *slog.Logger
	readyChan      chan struct{}
	doneChan       chan struct{}
	connSeq        atomic.Uint64

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
}

type OptionFunc func(s *Server) error

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(s *Server) error {
		s.logger = logging.OrDiscard(logger)
		return nil
	}
}

// WithProfile selects the framing profile applied to every connection.
func WithProfile(name string) OptionFunc {
	return func(s *Server) error {
		s.profile = name
		return nil
	}
}

// WithMaxConnections caps the number of simultaneously served
// connections. Further clients wait in the accept queue.
func WithMaxConnections(n int) OptionFunc {
	return func(s *Server) error {
		s.maxConnections = n
		return nil
	}
}

// WithReadRate throttles each connection to bytesPerSecond.
func WithReadRate(bytesPerSecond int64) OptionFunc {
	return func(s *Server) error {
		s.readRate = bytesPerSecond
		return nil
	}
}

// WithAck makes the server reply after every frame. In the template,
// ${seq} expands to the frame's sequence number within the connection and
// ${size} to its length.
func WithAck(template string) OptionFunc {
	return func(s *Server) error {
		s.ack = template
		return nil
	}
}

func WithTLSConfig(tlsConfig *tls.Config) OptionFunc {
	return func(s *Server) error {
		s.tlsConfig = tlsConfig
		return nil
	}
}

func NewServer(bind string, framer *framing.Framer, outlet types.Outlet, options ...OptionFunc) (*Server, error) {
	s := &Server{
		addr:      bind,
		profile:   framing.DefaultProfileName,
		framer:    framer,
		outlet:    outlet,
		logger:    logging.Discard(),
		readyChan: make(chan struct{}),
		doneChan:  make(chan struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	if _, err := framer.Profile(s.profile); err != nil {
		return nil, err
	}
	return s, nil
}

type listenerWithContext struct {
	net.Listener
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *listenerWithContext) Close() error {
	err := l.Listener.Close()
	l.cancel()
	return err
}

func wrapListener(ctx context.Context, ln net.Listener) *listenerWithContext {
	ctx, cancel := context.WithCancel(ctx)
	inner := &listenerWithContext{
		Listener: ln,
		ctx:      ctx,
		cancel:   cancel,
	}
	go func() {
		<-ctx.Done()
		inner.Listener.Close()
	}()
	return inner
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	if s.maxConnections > 0 {
		ln = netutil.LimitListener(ln, s.maxConnections)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	return wrapListener(ctx, ln), nil
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) ackFor(fd *types.FrameDescriptor, frame []byte) string {
	return expand.Expand(s.ack, func(key string) string {
		switch key {
		case "seq":
			return strconv.FormatUint(fd.Sequence, 10)
		case "size":
			return strconv.Itoa(len(frame))
		default:
			return ""
		}
	})
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.track(conn, true)
	defer s.track(conn, false)

	origin := conn.RemoteAddr().String()
	logger := s.logger.With(slog.String("origin", origin), slog.Uint64("conn", s.connSeq.Add(1)))
	logger.Debug("connection accepted")

	capability := types.NewConnCapability(conn)
	var src io.Reader = types.BindSource(ctx, capability)
	if s.readRate > 0 {
		src = ratelimit.Reader(src, ratelimit.NewBucketWithRate(float64(s.readRate), s.readRate))
	}
	var ack *bufio.Writer
	if s.ack != "" {
		ack = bufio.NewContextWriter(ctx, capability, bufio.WithLogger(logger))
	}

	fd := types.FrameDescriptor{Origin: origin, Profile: s.profile}
	for frame, err := range s.framer.Frames(src, s.profile) {
		if err != nil {
			logger.Error("failed to cut frame", slog.Any("error", err))
			return
		}
		fd.Sequence++
		fd.Timestamp = time.Now()
		if err := s.outlet(ctx, &fd, frame); err != nil {
			logger.Error("failed to handle frame", slog.Uint64("seq", fd.Sequence), slog.Any("error", err))
			return
		}
		if ack != nil {
			if _, err := ack.WriteString(s.ackFor(&fd, frame)); err != nil {
				logger.Warn("failed to acknowledge", slog.Any("error", err))
				return
			}
			if err := ack.Flush(); err != nil {
				logger.Warn("failed to acknowledge", slog.Any("error", err))
				return
			}
		}
	}
	logger.Debug("connection finished", slog.Uint64("frames", fd.Sequence))
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.readyChan
}

// Addr returns the address the server listens on, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve listens and serves until ctx is done or Shutdown is called. It
// returns after every connection has finished.
func (s *Server) Serve(ctx context.Context) error {
	defer close(s.doneChan)
	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("listening", slog.String("address", ln.Addr().String()), slog.String("profile", s.profile))
	close(s.readyChan)

	var eg errgroup.Group
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = min(max(2*tempDelay, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept failed", slog.Any("error", err), slog.Duration("retry_in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			eg.Wait()
			return err
		}
		tempDelay = 0
		eg.Go(func() error {
			s.handleConn(ctx, conn)
			return nil
		})
	}
	return eg.Wait()
}

// Shutdown stops accepting connections and waits for the served ones to
// finish. When ctx is done first, the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	select {
	case <-s.doneChan:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-s.doneChan
		return ctx.Err()
	}
}
