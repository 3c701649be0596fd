package buffer

import (
	"context"
	"io"
	"log/slog"
	"math"

	"github.com/moriyoshi/bytestream/internal/logging"
	"github.com/moriyoshi/bytestream/types"
)

const (
	// MaxSize is the hard ceiling of a buffer's capacity.
	MaxSize = math.MaxUint32 - 1
	// MinRead is the smallest free space ReadFrom asks for before each
	// read.
	MinRead = 32 * 1024
)

var defaultMaxSize = int(min(int64(MaxSize), int64(math.MaxInt)))

// Buffer is a variable-sized byte queue. Written bytes are appended at the
// end and read from the front. The zero value is an empty buffer ready to
// use.
//
// A Buffer owns its storage. Slices handed out by View are only valid until
// the next call that modifies the buffer.
type Buffer struct {
	buf      []byte // unread bytes are buf[off:]; cap(buf) is the capacity
	off      int
	maxSize  int
	reallocs int
	logger   *slog.Logger
}

// New returns a buffer whose initial content is initial. The buffer takes
// ownership of initial; the caller must not use it afterwards.
func New(initial []byte, options ...OptionFunc) *Buffer {
	b := &Buffer{
		buf:     initial,
		maxSize: defaultMaxSize,
		logger:  logging.Discard(),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

func (b *Buffer) limit() int {
	if b.maxSize <= 0 {
		return defaultMaxSize
	}
	return b.maxSize
}

func (b *Buffer) log() *slog.Logger {
	return logging.OrDiscard(b.logger)
}

func (b *Buffer) empty() bool {
	return len(b.buf) <= b.off
}

// Bytes returns a copy of the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.BytesCopy(true)
}

// View returns the unread portion of the buffer without copying it. The
// slice aliases the buffer storage.
func (b *Buffer) View() []byte {
	return b.BytesCopy(false)
}

// BytesCopy returns the unread portion of the buffer. With copyBytes set
// the result is a fresh copy; otherwise it aliases the buffer storage like
// View.
func (b *Buffer) BytesCopy(copyBytes bool) []byte {
	if !copyBytes {
		return b.buf[b.off:]
	}
	return append([]byte(nil), b.buf[b.off:]...)
}

func (b *Buffer) String() string {
	if b == nil {
		return "<nil>"
	}
	return string(b.buf[b.off:])
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Cap returns the capacity of the underlying storage.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Reallocations reports how many times the storage has been replaced by a
// larger allocation.
func (b *Buffer) Reallocations() int {
	return b.reallocs
}

// Truncate discards all but the first n unread bytes.
func (b *Buffer) Truncate(n int) error {
	if n == 0 {
		b.Reset()
		return nil
	}
	if n < 0 || n > b.Len() {
		return ErrTruncateOutOfRange
	}
	b.buf = b.buf[:b.off+n]
	return nil
}

// Reset empties the buffer but keeps its storage.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
}

// Read reads up to len(p) unread bytes into p. It returns io.EOF only if
// the buffer has no data and p is not empty.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.empty() {
		b.Reset()
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.off:])
	b.off += n
	if b.empty() {
		b.Reset()
	}
	return n, nil
}

// ReadByte reads the next unread byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.empty() {
		b.Reset()
		return 0, io.EOF
	}
	c := b.buf[b.off]
	b.off++
	return c, nil
}

func (b *Buffer) tryGrowByReslice(n int) (int, bool) {
	if l := len(b.buf); n <= cap(b.buf)-l {
		b.buf = b.buf[:l+n]
		return l, true
	}
	return 0, false
}

// grow makes room for n more bytes and returns the index at which they
// should be written.
func (b *Buffer) grow(n int) (int, error) {
	m := b.Len()
	if m == 0 && b.off != 0 {
		b.Reset()
	}
	if i, ok := b.tryGrowByReslice(n); ok {
		return i, nil
	}
	c := cap(b.buf)
	limit := b.limit()
	switch {
	case n <= c/2-m:
		// Sliding keeps at least half the allocation free, which is as
		// good as a fresh allocation for amortizing later writes.
		copy(b.buf, b.buf[b.off:])
	case c > limit-n:
		return 0, ErrTooLarge
	default:
		newCap := limit
		if c <= limit-c-n {
			newCap = 2*c + n
		}
		buf := make([]byte, newCap)
		copy(buf, b.buf[b.off:])
		b.buf = buf
		b.reallocs++
		b.log().Debug("buffer reallocated", slog.Int("capacity", newCap), slog.Int("length", m))
	}
	b.off = 0
	b.buf = b.buf[:m+n]
	return m, nil
}

// Grow guarantees that n more bytes can be written without another
// allocation.
func (b *Buffer) Grow(n int) error {
	if n < 0 {
		return ErrNegativeCount
	}
	m, err := b.grow(n)
	if err != nil {
		return err
	}
	b.buf = b.buf[:m]
	return nil
}

// Write appends p to the buffer, growing it as needed. The only possible
// error is ErrTooLarge.
func (b *Buffer) Write(p []byte) (int, error) {
	m, ok := b.tryGrowByReslice(len(p))
	if !ok {
		var err error
		m, err = b.grow(len(p))
		if err != nil {
			return 0, err
		}
	}
	return copy(b.buf[m:], p), nil
}

// WriteString is Write for a string.
func (b *Buffer) WriteString(s string) (int, error) {
	m, ok := b.tryGrowByReslice(len(s))
	if !ok {
		var err error
		m, err = b.grow(len(s))
		if err != nil {
			return 0, err
		}
	}
	return copy(b.buf[m:], s), nil
}

// WriteByte appends c to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	m, ok := b.tryGrowByReslice(1)
	if !ok {
		var err error
		m, err = b.grow(1)
		if err != nil {
			return err
		}
	}
	b.buf[m] = c
	return nil
}

// ReadFrom reads from r until EOF and appends the data to the buffer. It
// returns the number of bytes read. io.EOF is not reported as an error.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		want := MinRead
		if rem := b.limit() - b.Len(); rem < want {
			want = rem
		}
		if want <= 0 {
			// Full: only fail if the source really has more to give.
			var scratch [64]byte
			n, err := r.Read(scratch[:])
			switch {
			case n < 0:
				return total, ErrNegativeRead
			case n > 0:
				return total, ErrTooLarge
			case err == io.EOF:
				return total, nil
			case err != nil:
				return total, err
			}
			continue
		}
		i, err := b.grow(want)
		if err != nil {
			return total, err
		}
		b.buf = b.buf[:i]
		n, err := r.Read(b.buf[i:cap(b.buf)])
		if n < 0 {
			return total, ErrNegativeRead
		}
		b.buf = b.buf[:i+n]
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// ReadFromContext is ReadFrom for a source whose reads suspend under ctx.
func (b *Buffer) ReadFromContext(ctx context.Context, r types.ContextSource) (int64, error) {
	return b.ReadFrom(types.BindSource(ctx, r))
}

// WriteTo drains the buffer into w.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for !b.empty() {
		n, err := w.Write(b.buf[b.off:])
		if n < 0 || n > b.Len() {
			panic("buffer: invalid Write count")
		}
		b.off += n
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	b.Reset()
	return total, nil
}

var (
	_ io.ReadWriter   = (*Buffer)(nil)
	_ io.ReaderFrom   = (*Buffer)(nil)
	_ io.WriterTo     = (*Buffer)(nil)
	_ io.ByteReader   = (*Buffer)(nil)
	_ io.StringWriter = (*Buffer)(nil)
)
