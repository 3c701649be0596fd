// Package forwarder delivers frames to a next-hop TCP endpoint.
package forwarder

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/internal/logging"
	"github.com/moriyoshi/bytestream/types"
)

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Forwarder struct {
	nextHop       string
	dialer        Dialer
	connTimeout   time.Duration
	retryCount    int
	retryInterval time.Duration
	separator     []byte
	bufferSize    int
	tlsConfig     *tls.Config
	logger        *slog.Logger
}

// dial connects to the next hop. Network errors are retried with a
// doubling interval; anything else fails at once.
func (fw *Forwarder) dial(ctx context.Context) (net.Conn, error) {
	retryInterval := fw.retryInterval
	for i := 0; ; i++ {
		dctx, cancel := context.WithTimeout(ctx, fw.connTimeout)
		conn, err := fw.dialer.DialContext(dctx, "tcp", fw.nextHop)
		cancel()
		if err == nil {
			if fw.tlsConfig != nil {
				host, _, _ := net.SplitHostPort(fw.nextHop)
				tlsConfig := fw.tlsConfig.Clone()
				if tlsConfig.ServerName == "" {
					tlsConfig.ServerName = host
				}
				conn = tls.Client(conn, tlsConfig)
			}
			return conn, nil
		}
		var ne net.Error
		if !errors.As(err, &ne) || ctx.Err() != nil {
			return nil, err
		}
		if i+1 >= fw.retryCount {
			return nil, fmt.Errorf("failed to connect to %s: retry count exceeded: %w", fw.nextHop, err)
		}
		fw.logger.WarnContext(ctx, "failed to connect", slog.String("address", fw.nextHop), slog.Any("error", err), slog.Duration("retry_in", retryInterval))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
		retryInterval *= 2
	}
}

// Forward opens a connection to the next hop, writes every frame followed
// by the separator, and closes the connection.
func (fw *Forwarder) Forward(ctx context.Context, frames [][]byte) error {
	logger := fw.logger.With(slog.String("next_hop", fw.nextHop))
	conn, err := fw.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	w := bufio.NewContextWriter(
		ctx,
		types.NewConnCapability(conn),
		bufio.WithSize(fw.bufferSize),
		bufio.WithLogger(logger),
	)
	for _, frame := range frames {
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if _, err := w.Write(fw.separator); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Debug("frames forwarded", slog.Int("frames", len(frames)))
	return conn.Close()
}

// Outlet returns an outlet that forwards each frame on its own connection.
func (fw *Forwarder) Outlet() types.Outlet {
	return func(ctx context.Context, fd *types.FrameDescriptor, frame []byte) error {
		err := fw.Forward(ctx, [][]byte{frame})
		if err != nil {
			return fmt.Errorf("frame %d from %s: %w", fd.Sequence, fd.Origin, err)
		}
		return nil
	}
}

type ForwarderOptionFunc func(*Forwarder) (*Forwarder, error)

func WithLogger(logger *slog.Logger) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.logger = logging.OrDiscard(logger)
		return fw, nil
	}
}

func WithConnTimeout(timeout time.Duration) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.connTimeout = timeout
		return fw, nil
	}
}

func WithRetryCount(count int) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		if count < 1 {
			return nil, fmt.Errorf("retry count must be at least 1: %d", count)
		}
		fw.retryCount = count
		return fw, nil
	}
}

func WithRetryInterval(interval time.Duration) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.retryInterval = interval
		return fw, nil
	}
}

// WithSeparator sets the bytes written after every frame.
func WithSeparator(separator []byte) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.separator = separator
		return fw, nil
	}
}

func WithBufferSize(n int) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.bufferSize = n
		return fw, nil
	}
}

func WithDialer(dialer Dialer) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.dialer = dialer
		return fw, nil
	}
}

func WithTLSConfig(config *tls.Config) ForwarderOptionFunc {
	return func(fw *Forwarder) (*Forwarder, error) {
		fw.tlsConfig = config
		return fw, nil
	}
}

func NewForwarder(nextHop string, options ...ForwarderOptionFunc) (*Forwarder, error) {
	fw := &Forwarder{
		nextHop:       nextHop,
		dialer:        &net.Dialer{},
		connTimeout:   5 * time.Second,
		retryCount:    3,
		retryInterval: 1 * time.Second,
		separator:     []byte{'\n'},
		bufferSize:    bufio.DefaultBufSize,
		logger:        logging.Discard(),
	}
	for _, option := range options {
		var err error
		fw, err = option(fw)
		if err != nil {
			return nil, err
		}
	}
	if _, _, err := net.SplitHostPort(nextHop); err != nil {
		return nil, fmt.Errorf("invalid next hop %q: %w", nextHop, err)
	}
	return fw, nil
}
