package bufio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/moriyoshi/bytestream/types"
)

// Reader adds buffering to a source. Slices returned by Peek, ReadSlice
// and ReadLine point into the reader's buffer and are only valid until the
// next read operation.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	buf           []byte
	rd            io.Reader
	r, w          int // unread data is buf[r:w]
	eof           bool
	err           error
	maxEmptyReads int
	logger        *slog.Logger
}

// NewReader returns a Reader reading from rd. If rd is already a Reader
// with a buffer at least as large as requested, it is returned as is.
func NewReader(rd io.Reader, options ...OptionFunc) *Reader {
	o := newOptions(options)
	if o.size < MinBufSize {
		o.size = MinBufSize
	}
	if b, ok := rd.(*Reader); ok && len(b.buf) >= o.size {
		return b
	}
	return &Reader{
		buf:           make([]byte, o.size),
		rd:            rd,
		maxEmptyReads: o.maxEmptyReads,
		logger:        o.logger,
	}
}

// NewReaderSize returns a Reader with a buffer of at least size bytes.
func NewReaderSize(rd io.Reader, size int) *Reader {
	return NewReader(rd, WithSize(size))
}

// NewContextReader returns a Reader whose reads from rd run under ctx.
func NewContextReader(ctx context.Context, rd types.ContextSource, options ...OptionFunc) *Reader {
	return NewReader(types.BindSource(ctx, rd), options...)
}

// Size returns the size of the internal buffer.
func (b *Reader) Size() int {
	return len(b.buf)
}

// Buffered returns the number of bytes that can be read without touching
// the source.
func (b *Reader) Buffered() int {
	return b.w - b.r
}

// Reset discards any buffered data and state, and switches the reader to
// rd.
func (b *Reader) Reset(rd io.Reader) {
	b.rd = rd
	b.r, b.w = 0, 0
	b.eof = false
	b.err = nil
}

func (b *Reader) readErr() error {
	err := b.err
	b.err = nil
	return err
}

// fill slides unread data to the front and performs source reads until at
// least one byte arrives, the source ends, or it fails.
func (b *Reader) fill() {
	if b.r > 0 {
		copy(b.buf, b.buf[b.r:b.w])
		b.w -= b.r
		b.r = 0
	}
	if b.w >= len(b.buf) {
		panic("bufio: tried to fill full buffer")
	}
	for i := b.maxEmptyReads; i > 0; i-- {
		n, err := b.rd.Read(b.buf[b.w:])
		if n < 0 {
			b.err = ErrNegativeRead
			return
		}
		b.w += n
		if err == io.EOF {
			b.eof = true
			return
		}
		if err != nil {
			b.err = err
			return
		}
		if n > 0 {
			return
		}
	}
	b.logger.Warn("source made no progress", slog.Int("attempts", b.maxEmptyReads))
	b.err = io.ErrNoProgress
}

// Read reads up to len(p) bytes into p. It performs at most one read on the
// underlying source, so n may be less than len(p). When the buffer is empty
// and p is at least as large as the buffer, the data is read directly into
// p.
func (b *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		if b.Buffered() > 0 {
			return 0, nil
		}
		return 0, b.readErr()
	}
	if b.r == b.w {
		if b.err != nil {
			return 0, b.readErr()
		}
		if b.eof {
			return 0, io.EOF
		}
		if len(p) >= len(b.buf) {
			n, err := b.rd.Read(p)
			if n < 0 {
				return 0, ErrNegativeRead
			}
			if err == io.EOF {
				b.eof = true
				if n > 0 {
					err = nil
				}
			}
			return n, err
		}
		b.r, b.w = 0, 0
		n, err := b.rd.Read(b.buf)
		if n < 0 {
			return 0, ErrNegativeRead
		}
		b.w += n
		if err == io.EOF {
			b.eof = true
		} else if err != nil {
			b.err = err
		}
		if n == 0 {
			if b.eof {
				return 0, io.EOF
			}
			return 0, b.readErr()
		}
	}
	n := copy(p, b.buf[b.r:b.w])
	b.r += n
	return n, nil
}

// ReadFull fills p completely. It returns io.EOF if the stream ended before
// a single byte was read, and a *PartialReadError if it ended or failed
// after some but not all of p was filled.
func (b *Reader) ReadFull(p []byte) ([]byte, error) {
	n := 0
	empty := 0
	for n < len(p) {
		nn, err := b.Read(p[n:])
		n += nn
		if err != nil {
			if n == 0 {
				return nil, err
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, &PartialReadError{Partial: p[:n], Err: err}
		}
		if nn > 0 {
			empty = 0
		} else if empty++; empty >= b.maxEmptyReads {
			if n == 0 {
				return nil, io.ErrNoProgress
			}
			return nil, &PartialReadError{Partial: p[:n], Err: io.ErrNoProgress}
		}
	}
	return p, nil
}

// ReadByte reads and returns a single byte.
func (b *Reader) ReadByte() (byte, error) {
	for b.r == b.w {
		if b.err != nil {
			return 0, b.readErr()
		}
		if b.eof {
			return 0, io.EOF
		}
		b.fill()
	}
	c := b.buf[b.r]
	b.r++
	return c, nil
}

// UnreadByte steps back over the last consumed byte while it is still in
// the buffer.
func (b *Reader) UnreadByte() error {
	if b.r <= 0 {
		return ErrInvalidUnreadByte
	}
	b.r--
	return nil
}

// Peek returns the next n bytes without consuming them. If the stream ends
// first, the shorter remainder is returned without an error; io.EOF is
// returned only when nothing at all is left. Asking for more than the
// buffer can hold yields a *BufferFullError, and a failing source yields a
// *PartialReadError carrying what was buffered.
func (b *Reader) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	avail := b.w - b.r
	for avail < n && avail < len(b.buf) && !b.eof && b.err == nil {
		b.fill()
		avail = b.w - b.r
	}
	switch {
	case b.eof && avail == 0:
		return nil, io.EOF
	case avail >= n:
		return b.buf[b.r : b.r+n], nil
	case b.err != nil:
		partial := b.buf[b.r:b.w]
		return partial, &PartialReadError{Partial: partial, Err: b.readErr()}
	case b.eof:
		return b.buf[b.r:b.w], nil
	default:
		partial := b.buf[b.r:b.w]
		return partial, &BufferFullError{Partial: partial}
	}
}

// Discard skips the next n bytes and returns how many were skipped.
func (b *Reader) Discard(n int) (int, error) {
	if n < 0 {
		return 0, ErrNegativeCount
	}
	remain := n
	for remain > 0 {
		skip := b.Buffered()
		if skip == 0 {
			if b.err != nil {
				return n - remain, b.readErr()
			}
			if b.eof {
				return n - remain, io.EOF
			}
			b.fill()
			continue
		}
		if skip > remain {
			skip = remain
		}
		b.r += skip
		remain -= skip
	}
	return n, nil
}

// ReadSlice reads through the first occurrence of delim and returns a slice
// of the buffer holding the data including the delimiter. At the end of
// the stream the remaining bytes are returned as if delimited; io.EOF is
// returned only when nothing is left.
//
// If the buffer fills up without a delimiter, ReadSlice consumes the whole
// buffer and returns it together with a *BufferFullError. The reader then
// continues on a fresh copy of its storage, so that slice is never
// overwritten.
func (b *Reader) ReadSlice(delim byte) ([]byte, error) {
	s := 0 // bytes of buf[r:w] already searched
	for {
		if i := bytes.IndexByte(b.buf[b.r+s:b.w], delim); i >= 0 {
			i += s
			line := b.buf[b.r : b.r+i+1]
			b.r += i + 1
			return line, nil
		}
		if b.eof {
			if b.r == b.w {
				return nil, io.EOF
			}
			line := b.buf[b.r:b.w]
			b.r = b.w
			return line, nil
		}
		if b.err != nil {
			return nil, b.readErr()
		}
		if b.Buffered() >= len(b.buf) {
			b.r = b.w
			full := b.buf
			b.buf = append(make([]byte, 0, len(full)), full...)
			b.logger.Debug("delimiter not found within buffer", slog.Int("size", len(full)))
			return full, &BufferFullError{Partial: full}
		}
		s = b.w - b.r
		b.fill()
	}
}

// ReadUpTo implements Scanner.
func (b *Reader) ReadUpTo(delim byte) ([]byte, bool, error) {
	line, err := b.ReadSlice(delim)
	return line, errors.Is(err, ErrBufferFull), err
}

// ReadLine returns the next line without its terminating "\n" or "\r\n".
// A line longer than the buffer is returned in pieces with more set to
// true on all but the last one. io.EOF is returned once no data is left.
func (b *Reader) ReadLine() (line []byte, more bool, err error) {
	line, err = b.ReadSlice('\n')
	var full *BufferFullError
	if errors.As(err, &full) {
		line = full.Partial
		// "\r\n" straddling the buffer boundary: hand the '\r' back so the
		// next call sees the pair.
		if !b.eof && len(line) > 0 && line[len(line)-1] == '\r' {
			if b.r == 0 {
				panic("bufio: tried to rewind past start of buffer")
			}
			b.r--
			line = line[:len(line)-1]
		}
		return line, !b.eof, nil
	}
	if err != nil {
		return nil, false, err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		drop := 1
		if n > 1 && line[n-2] == '\r' {
			drop = 2
		}
		line = line[:n-drop]
	}
	return line, false, nil
}

// ReadString is ReadSlice returning a string. delim must be exactly one
// byte long.
func (b *Reader) ReadString(delim string) (string, error) {
	if len(delim) != 1 {
		return "", ErrInvalidDelimiter
	}
	line, err := b.ReadSlice(delim[0])
	if err != nil && !errors.Is(err, ErrBufferFull) {
		return "", err
	}
	return string(line), err
}
