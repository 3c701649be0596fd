package buffer

import (
	"log/slog"

	"github.com/moriyoshi/bytestream/internal/logging"
)

type OptionFunc func(b *Buffer)

// WithMaxSize lowers the ceiling the buffer may grow to. Values outside
// (0, MaxSize] select MaxSize.
func WithMaxSize(n int) OptionFunc {
	return func(b *Buffer) {
		if n <= 0 || n > defaultMaxSize {
			n = defaultMaxSize
		}
		b.maxSize = n
	}
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(b *Buffer) {
		b.logger = logging.OrDiscard(logger)
	}
}
