package bufio

import (
	"io"
)

type Peeker interface {
	Buffered() int
	Peek(n int) ([]byte, error)
	Discard(n int) (int, error)
}

// Scanner reads through the next occurrence of delim. The boolean result
// reports whether the returned slice may be retained by the caller; a
// false value means it aliases storage that the next read overwrites.
type Scanner interface {
	ReadUpTo(delim byte) ([]byte, bool, error)
}

type BufferedReader interface {
	io.Reader
	io.ByteScanner
	Peeker
	Scanner
}

var _ BufferedReader = (*Reader)(nil)
