package buffer

import (
	"errors"

	"github.com/moriyoshi/bytestream/types"
)

var (
	ErrNegativeCount      = types.NewRangeError("buffer: negative count")
	ErrTruncateOutOfRange = types.NewRangeError("buffer: truncation out of range")
	ErrTooLarge           = errors.New("buffer: cannot grow beyond the maximum size")
	ErrNegativeRead       = errors.New("buffer: reader returned negative count from Read")
)
