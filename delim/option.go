package delim

import (
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/internal/logging"
)

// MinChunkSize is the smallest read ReadDelim issues against its source.
const MinChunkSize = 1024

type options struct {
	encoding      string
	bufferSize    int
	maxEmptyReads int
	logger        *slog.Logger
}

func newOptions(opts []OptionFunc) options {
	o := options{
		encoding:      "utf-8",
		maxEmptyReads: bufio.MaxConsecutiveEmptyReads,
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolveEncoding looks the configured label up in the WHATWG encoding
// index.
func (o *options) resolveEncoding() (encoding.Encoding, error) {
	enc, err := htmlindex.Get(o.encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, o.encoding)
	}
	return enc, nil
}

type OptionFunc func(o *options)

// WithEncoding selects the text encoding used to decode segments into
// strings. Labels follow the WHATWG Encoding Standard ("utf-8",
// "shift_jis", "latin1", ...).
func WithEncoding(label string) OptionFunc {
	return func(o *options) {
		o.encoding = label
	}
}

// WithBufferSize overrides the read size of ReadDelim and the buffer size
// of the Reader behind ReadLines.
func WithBufferSize(n int) OptionFunc {
	return func(o *options) {
		o.bufferSize = n
	}
}

func WithMaxEmptyReads(n int) OptionFunc {
	return func(o *options) {
		if n > 0 {
			o.maxEmptyReads = n
		}
	}
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(o *options) {
		o.logger = logging.OrDiscard(logger)
	}
}
