package bufio

import (
	"context"
	"io"
	"log/slog"

	"github.com/moriyoshi/bytestream/types"
)

// Writer adds buffering to a sink. Once a write to the sink fails, the
// error sticks: every later Write and Flush returns it until Reset.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf    []byte
	n      int
	wr     io.Writer
	err    error
	logger *slog.Logger
}

// NewWriter returns a Writer writing to w. If w is already a Writer with a
// buffer at least as large as requested, it is returned as is.
func NewWriter(w io.Writer, options ...OptionFunc) *Writer {
	o := newOptions(options)
	if o.size <= 0 {
		o.size = DefaultBufSize
	}
	if b, ok := w.(*Writer); ok && len(b.buf) >= o.size {
		return b
	}
	return &Writer{
		buf:    make([]byte, o.size),
		wr:     w,
		logger: o.logger,
	}
}

// NewWriterSize returns a Writer with a buffer of size bytes.
func NewWriterSize(w io.Writer, size int) *Writer {
	return NewWriter(w, WithSize(size))
}

// NewContextWriter returns a Writer whose writes to w run under ctx.
func NewContextWriter(ctx context.Context, w types.ContextSink, options ...OptionFunc) *Writer {
	return NewWriter(types.BindSink(ctx, w), options...)
}

func (b *Writer) Size() int {
	return len(b.buf)
}

// Available returns how many bytes fit before the next flush.
func (b *Writer) Available() int {
	return len(b.buf) - b.n
}

// Buffered returns how many bytes are waiting to be flushed.
func (b *Writer) Buffered() int {
	return b.n
}

// Err returns the sticky error, if any.
func (b *Writer) Err() error {
	return b.err
}

// Reset drops buffered data and the sticky error, and switches the writer
// to w. Nothing is flushed.
func (b *Writer) Reset(w io.Writer) {
	b.n = 0
	b.err = nil
	b.wr = w
}

func (b *Writer) fail(err error) error {
	b.err = err
	b.logger.Debug("sink write failed", slog.Any("error", err))
	return err
}

// writeSink writes p to the sink once, latching any error. A write that
// makes no progress without reporting an error fails with
// io.ErrShortWrite.
func (b *Writer) writeSink(p []byte) (int, error) {
	n, err := b.wr.Write(p)
	if n < 0 || n > len(p) {
		return 0, b.fail(ErrInvalidWrite)
	}
	if err == nil && n == 0 {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, b.fail(err)
	}
	return n, nil
}

// Flush writes all buffered data to the sink, retrying partial writes.
func (b *Writer) Flush() error {
	if b.err != nil {
		return b.err
	}
	if b.n == 0 {
		return nil
	}
	p := b.buf[:b.n]
	for written := 0; written < len(p); {
		n, err := b.writeSink(p[written:])
		if err != nil {
			return err
		}
		written += n
	}
	b.buf = make([]byte, len(b.buf))
	b.n = 0
	return nil
}

// Write buffers p. Data that does not fit is flushed in buffer-sized
// pieces, except that when the buffer is empty an oversized p goes to the
// sink directly.
func (b *Writer) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	total := 0
	for len(p) > b.Available() {
		var n int
		if b.n == 0 {
			var err error
			n, err = b.writeSink(p)
			if err != nil {
				return total + n, err
			}
		} else {
			n = copy(b.buf[b.n:], p)
			b.n += n
			if err := b.Flush(); err != nil {
				return total + n, err
			}
		}
		total += n
		p = p[n:]
	}
	n := copy(b.buf[b.n:], p)
	b.n += n
	return total + n, nil
}

func (b *Writer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

func (b *Writer) WriteByte(c byte) error {
	if b.err != nil {
		return b.err
	}
	if b.Available() <= 0 {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	b.buf[b.n] = c
	b.n++
	return nil
}

var (
	_ io.Writer       = (*Writer)(nil)
	_ io.StringWriter = (*Writer)(nil)
	_ io.ByteWriter   = (*Writer)(nil)
)
