package types

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// ConnCapability exposes a net.Conn as a ContextSource and a ContextSink.
// The context deadline becomes the I/O deadline, and cancelling the context
// interrupts a pending operation by moving the deadline into the past.
type ConnCapability struct {
	net.Conn
}

func NewConnCapability(conn net.Conn) *ConnCapability {
	return &ConnCapability{Conn: conn}
}

var aLongTimeAgo = time.Unix(1, 0)

func (c *ConnCapability) do(ctx context.Context, setDeadline func(time.Time) error, op func() (int, error)) (int, error) {
	deadline, _ := ctx.Deadline()
	if err := setDeadline(deadline); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() {
		setDeadline(aLongTimeAgo)
	})
	n, err := op()
	if !stop() && err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = ctx.Err()
		}
	}
	return n, err
}

func (c *ConnCapability) ReadContext(ctx context.Context, p []byte) (int, error) {
	return c.do(ctx, c.Conn.SetReadDeadline, func() (int, error) {
		return c.Conn.Read(p)
	})
}

func (c *ConnCapability) WriteContext(ctx context.Context, p []byte) (int, error) {
	return c.do(ctx, c.Conn.SetWriteDeadline, func() (int, error) {
		return c.Conn.Write(p)
	})
}

var (
	_ ContextSource = (*ConnCapability)(nil)
	_ ContextSink   = (*ConnCapability)(nil)
)
