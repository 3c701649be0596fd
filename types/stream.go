package types

import (
	"context"
	"errors"
	"io"
)

// Source is something bytes can be pulled from. A Read may return fewer
// bytes than asked for, and returns io.EOF once the source is exhausted.
type Source = io.Reader

// Sink is something bytes can be pushed to. A Write may accept fewer bytes
// than offered; callers retry the remainder.
type Sink = io.Writer

// ErrAbandoned is returned by a source that wants its consumer to stop and
// discard whatever it has buffered so far. A negative byte count from Read
// means the same thing.
var ErrAbandoned = errors.New("source abandoned")

// ContextSource is a source whose reads suspend until data arrives or ctx
// is done.
type ContextSource interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// ContextSink is a sink whose writes suspend until the data is accepted or
// ctx is done.
type ContextSink interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

type boundSource struct {
	ctx context.Context
	s   ContextSource
}

func (b boundSource) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	return b.s.ReadContext(b.ctx, p)
}

type boundSink struct {
	ctx context.Context
	s   ContextSink
}

func (b boundSink) Write(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	return b.s.WriteContext(b.ctx, p)
}

// BindSource turns a suspending source into a plain Source whose reads run
// under ctx.
func BindSource(ctx context.Context, s ContextSource) Source {
	return boundSource{ctx: ctx, s: s}
}

// BindSink turns a suspending sink into a plain Sink whose writes run under
// ctx.
func BindSink(ctx context.Context, s ContextSink) Sink {
	return boundSink{ctx: ctx, s: s}
}

// SourceFunc adapts a function to Source.
type SourceFunc func(p []byte) (int, error)

func (f SourceFunc) Read(p []byte) (int, error) {
	return f(p)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(p []byte) (int, error)

func (f SinkFunc) Write(p []byte) (int, error) {
	return f(p)
}
