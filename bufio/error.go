package bufio

import (
	"errors"
	"fmt"

	"github.com/moriyoshi/bytestream/types"
)

var (
	ErrBufferFull        = errors.New("bufio: buffer full")
	ErrNegativeCount     = types.NewRangeError("bufio: negative count")
	ErrInvalidDelimiter  = types.NewRangeError("bufio: delimiter must be a single byte")
	ErrInvalidUnreadByte = errors.New("bufio: invalid use of UnreadByte")
	ErrNegativeRead      = errors.New("bufio: reader returned negative count from Read")
	ErrInvalidWrite      = errors.New("bufio: writer returned invalid count from Write")
)

// BufferFullError is returned when a delimiter could not be found within
// the reader's buffer. Partial holds the whole buffer content and stays
// valid after further reads.
type BufferFullError struct {
	Partial []byte
}

func (e *BufferFullError) Error() string {
	return fmt.Sprintf("bufio: buffer full (%d bytes without delimiter)", len(e.Partial))
}

func (e *BufferFullError) Is(err error) bool {
	return err == ErrBufferFull
}

// PartialReadError is returned when an operation needing an exact amount of
// data consumed some bytes but could not finish. Partial holds what was
// obtained; Err is io.ErrUnexpectedEOF if the stream ended, or the error
// reported by the source.
type PartialReadError struct {
	Partial []byte
	Err     error
}

func (e *PartialReadError) Error() string {
	return fmt.Sprintf("bufio: data only partially read (%d bytes): %v", len(e.Partial), e.Err)
}

func (e *PartialReadError) Unwrap() error {
	return e.Err
}
