package delim

import (
	"errors"

	"github.com/moriyoshi/bytestream/types"
)

var (
	ErrInvalidDelimiter = types.NewRangeError("delim: delimiter must not be empty")
	ErrUnknownEncoding  = errors.New("delim: unknown encoding")
)
