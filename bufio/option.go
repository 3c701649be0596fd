package bufio

import (
	"log/slog"

	"github.com/moriyoshi/bytestream/internal/logging"
)

const (
	DefaultBufSize = 4096
	MinBufSize     = 16
	// MaxConsecutiveEmptyReads is how many reads in a row may return no
	// data and no error before the source is declared stuck.
	MaxConsecutiveEmptyReads = 100
)

type options struct {
	size          int
	maxEmptyReads int
	logger        *slog.Logger
}

func newOptions(opts []OptionFunc) options {
	o := options{
		size:          DefaultBufSize,
		maxEmptyReads: MaxConsecutiveEmptyReads,
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OptionFunc configures a Reader or a Writer.
type OptionFunc func(o *options)

// WithSize sets the internal buffer size. Readers never go below
// MinBufSize; writers treat a non-positive size as DefaultBufSize.
func WithSize(n int) OptionFunc {
	return func(o *options) {
		o.size = n
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
