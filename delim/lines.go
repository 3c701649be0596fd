package delim

import (
	"errors"
	"io"
	"iter"

	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/types"
)

// ReadLines returns the lines of src, split at "\n" or "\r\n", decoded with
// the configured encoding. Lines longer than the reader's buffer are
// reassembled before being yielded. A final line without a terminator is
// yielded as is; a trailing terminator does not produce an empty line.
func ReadLines(src io.Reader, options ...OptionFunc) iter.Seq2[string, error] {
	o := newOptions(options)
	return func(yield func(string, error) bool) {
		enc, err := o.resolveEncoding()
		if err != nil {
			yield("", err)
			return
		}
		size := o.bufferSize
		if size <= 0 {
			size = bufio.DefaultBufSize
		}
		r := bufio.NewReader(
			src,
			bufio.WithSize(size),
			bufio.WithMaxEmptyReads(o.maxEmptyReads),
			bufio.WithLogger(o.logger),
		)
		var pending []byte
		fragmented := false
		for {
			line, more, err := r.ReadLine()
			if err != nil {
				if err == io.EOF {
					if fragmented {
						s, err := decode(enc, pending)
						yield(s, err)
					}
					return
				}
				if errors.Is(err, types.ErrAbandoned) {
					o.logger.Debug("source abandoned")
					return
				}
				yield("", err)
				return
			}
			pending = append(pending, line...)
			if more {
				fragmented = true
				continue
			}
			s, err := decode(enc, pending)
			if !yield(s, err) || err != nil {
				return
			}
			pending = pending[:0]
			fragmented = false
		}
	}
}
