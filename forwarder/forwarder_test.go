package forwarder

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/bytestream/types"
)

func listen(t *testing.T) (net.Listener, <-chan []byte) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(func() { ln.Close() })
	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(received)
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		received <- b
	}()
	return ln, received
}

func TestForward(t *testing.T) {
	t.Parallel()
	ln, received := listen(t)
	fw, err := NewForwarder(ln.Addr().String(), WithSeparator([]byte("\r\n")), WithBufferSize(16))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	err = fw.Forward(context.Background(), [][]byte{[]byte("first"), []byte("a frame longer than the buffer")})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	select {
	case b := <-received:
		assert.Equal(t, "first\r\na frame longer than the buffer\r\n", string(b))
	case <-time.After(5 * time.Second):
		t.Fatal("nothing received")
	}
}

func TestForwarderOutlet(t *testing.T) {
	t.Parallel()
	ln, received := listen(t)
	fw, err := NewForwarder(ln.Addr().String())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	err = fw.Outlet()(context.Background(), &types.FrameDescriptor{Origin: "test", Sequence: 1}, []byte("hello"))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "hello\n", string(<-received))
}

type flakyDialer struct {
	failures int
	err      error
	calls    int
	next     Dialer
}

func (d *flakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, d.err
	}
	return d.next.DialContext(ctx, network, address)
}

var refused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

func TestForwardRetries(t *testing.T) {
	t.Parallel()
	ln, received := listen(t)
	d := &flakyDialer{failures: 2, err: refused, next: &net.Dialer{}}
	fw, err := NewForwarder(ln.Addr().String(), WithDialer(d), WithRetryInterval(time.Millisecond))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	if !assert.NoError(t, fw.Forward(context.Background(), [][]byte{[]byte("x")})) {
		t.FailNow()
	}
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, "x\n", string(<-received))
}

func TestForwardGivesUp(t *testing.T) {
	t.Parallel()
	d := &flakyDialer{failures: 10, err: refused}
	fw, err := NewForwarder("127.0.0.1:1", WithDialer(d), WithRetryCount(2), WithRetryInterval(time.Millisecond))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	err = fw.Forward(context.Background(), [][]byte{[]byte("x")})
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 2, d.calls)
}

func TestForwardDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	d := &flakyDialer{failures: 10, err: boom}
	fw, err := NewForwarder("127.0.0.1:1", WithDialer(d), WithRetryInterval(time.Millisecond))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.ErrorIs(t, fw.Forward(context.Background(), nil), boom)
	assert.Equal(t, 1, d.calls)
}

func TestForwardCancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	d := &flakyDialer{failures: 10, err: refused}
	fw, err := NewForwarder("127.0.0.1:1", WithDialer(d), WithRetryInterval(time.Hour))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, fw.Forward(ctx, nil), context.DeadlineExceeded)
	assert.Equal(t, 1, d.calls)
}

func TestNewForwarderValidates(t *testing.T) {
	t.Parallel()
	_, err := NewForwarder("no-port")
	assert.Error(t, err)
	_, err = NewForwarder("127.0.0.1:1", WithRetryCount(0))
	assert.Error(t, err)
}
