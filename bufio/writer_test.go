package bufio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/bytestream/buffer"
	"github.com/moriyoshi/bytestream/internal/streamtest"
	"github.com/moriyoshi/bytestream/types"
)

func TestWriterBuffersSmallWrites(t *testing.T) {
	t.Parallel()
	sink := &streamtest.ShortSink{}
	w := NewWriterSize(sink, 16)
	n, err := w.Write([]byte("abc"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, w.WriteByte('d'))
	_, err = w.WriteString("ef")
	assert.NoError(t, err)
	assert.Equal(t, 0, sink.Writes)
	assert.Equal(t, 6, w.Buffered())
	assert.Equal(t, 10, w.Available())
	assert.NoError(t, w.Flush())
	assert.Equal(t, "abcdef", string(sink.Data))
	assert.Equal(t, 1, sink.Writes)
	assert.Equal(t, 0, w.Buffered())
	assert.NoError(t, w.Flush())
	assert.Equal(t, 1, sink.Writes)
}

func TestWriterLargeWriteGoesDirect(t *testing.T) {
	t.Parallel()
	sink := &streamtest.ShortSink{}
	w := NewWriterSize(sink, 16)
	data := bytes.Repeat([]byte("x"), 40)
	n, err := w.Write(data)
	assert.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, 1, sink.Writes)
	assert.Equal(t, 0, w.Buffered())
}

func TestWriterOverflowFlushesFullBuffer(t *testing.T) {
	t.Parallel()
	sink := &streamtest.ShortSink{}
	w := NewWriterSize(sink, 16)
	_, err := w.Write([]byte("0123456789"))
	assert.NoError(t, err)
	n, err := w.Write([]byte("abcdefghij"))
	assert.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789abcdef", string(sink.Data))
	assert.Equal(t, 4, w.Buffered())
}

func TestWriterRetriesPartialWrites(t *testing.T) {
	t.Parallel()
	sink := &streamtest.ShortSink{Max: 3}
	w := NewWriterSize(sink, 16)
	_, err := w.Write([]byte("0123456789"))
	assert.NoError(t, err)
	assert.NoError(t, w.Flush())
	assert.Equal(t, "0123456789", string(sink.Data))
	assert.Equal(t, 4, sink.Writes)
}

func TestWriterStickyError(t *testing.T) {
	t.Parallel()
	calls := 0
	failing := types.SinkFunc(func(p []byte) (int, error) {
		calls++
		return 0, errBoom
	})
	w := NewWriterSize(failing, 16)
	_, err := w.Write([]byte("abc"))
	assert.NoError(t, err)
	assert.ErrorIs(t, w.Flush(), errBoom)
	assert.Equal(t, 1, calls)
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, w.WriteByte('x'), errBoom)
	assert.ErrorIs(t, w.Flush(), errBoom)
	assert.ErrorIs(t, w.Err(), errBoom)
	assert.Equal(t, 1, calls)

	sink := &streamtest.ShortSink{}
	w.Reset(sink)
	assert.NoError(t, w.Err())
	assert.Equal(t, 0, w.Buffered())
	_, err = w.Write([]byte("ok"))
	assert.NoError(t, err)
	assert.NoError(t, w.Flush())
	assert.Equal(t, "ok", string(sink.Data))
}

func TestWriterDirectWriteErrorSticks(t *testing.T) {
	t.Parallel()
	sink := &streamtest.ShortSink{FailAfter: 1, Err: errBoom}
	w := NewWriterSize(sink, 16)
	_, err := w.Write(bytes.Repeat([]byte("y"), 20))
	assert.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("y"), 20))
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, w.Flush(), errBoom)
}

func TestWriterNoProgressSink(t *testing.T) {
	t.Parallel()
	stuck := types.SinkFunc(func(p []byte) (int, error) { return 0, nil })
	w := NewWriterSize(stuck, 16)
	_, err := w.WriteString("abc")
	assert.NoError(t, err)
	assert.ErrorIs(t, w.Flush(), io.ErrShortWrite)
	assert.ErrorIs(t, w.Err(), io.ErrShortWrite)
}

func TestWriterDefaultSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultBufSize, NewWriterSize(io.Discard, 0).Size())
	assert.Equal(t, 8, NewWriterSize(io.Discard, 8).Size())
	w := NewWriterSize(io.Discard, 64)
	assert.Same(t, w, NewWriter(w, WithSize(32)))
}

func TestWriterReset(t *testing.T) {
	t.Parallel()
	run := func(w *Writer, sink *streamtest.ShortSink) string {
		_, _ = w.WriteString("hello, ")
		_, _ = w.Write(bytes.Repeat([]byte("z"), 20))
		_ = w.Flush()
		return fmt.Sprintf("%q %d %d", sink.Data, sink.Writes, w.Buffered())
	}
	s1 := &streamtest.ShortSink{Max: 5}
	fresh := run(NewWriterSize(s1, 16), s1)

	w := NewWriterSize(types.SinkFunc(func(p []byte) (int, error) { return 0, errBoom }), 16)
	_, _ = w.WriteString("junk")
	_ = w.Flush()
	s2 := &streamtest.ShortSink{Max: 5}
	w.Reset(s2)
	assert.Equal(t, fresh, run(w, s2))
}

func TestWriterContextSink(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var got []byte
	sink := contextSinkFunc(func(ctx context.Context, p []byte) (int, error) {
		got = append(got, p...)
		return len(p), nil
	})
	w := NewContextWriter(ctx, sink, WithSize(16))
	_, err := w.WriteString("before")
	assert.NoError(t, err)
	assert.NoError(t, w.Flush())
	cancel()
	_, err = w.WriteString("after")
	assert.NoError(t, err)
	assert.ErrorIs(t, w.Flush(), context.Canceled)
	assert.Equal(t, "before", string(got))
}

type contextSinkFunc func(ctx context.Context, p []byte) (int, error)

func (f contextSinkFunc) WriteContext(ctx context.Context, p []byte) (int, error) {
	return f(ctx, p)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(1))
	for i, size := range []int{1, 15, 16, 17, 100, 4096, 10000} {
		t.Run(fmt.Sprintf("#%d: %d bytes", i, size), func(t *testing.T) {
			data := make([]byte, size)
			rng.Read(data)
			var medium buffer.Buffer
			w := NewWriterSize(&streamtest.ShortSink{}, 16)
			w.Reset(&medium)
			for rest := data; len(rest) > 0; {
				n := 1 + rng.Intn(40)
				if n > len(rest) {
					n = len(rest)
				}
				_, err := w.Write(rest[:n])
				if !assert.NoError(t, err) {
					t.FailNow()
				}
				rest = rest[n:]
			}
			if !assert.NoError(t, w.Flush()) {
				t.FailNow()
			}
			r := NewReaderSize(&medium, 16)
			got, err := r.ReadFull(make([]byte, size))
			if assert.NoError(t, err) {
				assert.Equal(t, data, got)
			}
			_, err = r.ReadByte()
			assert.Equal(t, io.EOF, err)
		})
	}
}
