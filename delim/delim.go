// Package delim splits byte streams at multi-byte delimiters and into text
// lines, producing lazy sequences.
package delim

import (
	"errors"
	"io"
	"iter"
	"log/slog"

	"golang.org/x/text/encoding"

	"github.com/moriyoshi/bytestream/internal/chunklist"
	"github.com/moriyoshi/bytestream/types"
)

// LPS returns the longest-proper-prefix-which-is-also-suffix table of
// pat: entry i is the length of the longest proper prefix of pat[:i+1]
// that is also its suffix.
func LPS(pat []byte) []int {
	lps := make([]int, len(pat))
	k := 0
	for i := 1; i < len(pat); {
		switch {
		case pat[i] == pat[k]:
			k++
			lps[i] = k
			i++
		case k == 0:
			lps[i] = 0
			i++
		default:
			k = lps[k-1]
		}
	}
	return lps
}

type scanner struct {
	src     io.Reader
	delim   []byte
	lps     []int
	chunks  chunklist.List
	inspect int
	match   int
	logger  *slog.Logger
}

// advance runs the matcher over everything not inspected yet, yielding each
// segment completed along the way. It reports false once the consumer
// stops.
func (s *scanner) advance(yield func([]byte, error) bool) bool {
	for s.inspect < s.chunks.Len() {
		if s.chunks.At(s.inspect) == s.delim[s.match] {
			s.inspect++
			s.match++
			if s.match < len(s.delim) {
				continue
			}
			seg := s.chunks.Slice(0, s.inspect-len(s.delim))
			s.chunks.Shift(s.inspect)
			// a completed match starts the search over from scratch
			s.inspect, s.match = 0, 0
			if !yield(seg, nil) {
				return false
			}
			continue
		}
		if s.match == 0 {
			s.inspect++
		} else {
			s.match = s.lps[s.match-1]
		}
	}
	return true
}

// ReadDelim returns the segments of src separated by delim. The delimiter
// itself is never part of a segment. When src ends, whatever follows the
// last delimiter is yielded as the final segment, even when it is empty.
//
// A source error is yielded once and ends the sequence. A source that
// returns a negative count or types.ErrAbandoned ends the sequence
// silently, dropping the pending bytes. Every yielded slice is freshly
// allocated.
func ReadDelim(src io.Reader, delim []byte, options ...OptionFunc) iter.Seq2[[]byte, error] {
	o := newOptions(options)
	return func(yield func([]byte, error) bool) {
		if len(delim) == 0 {
			yield(nil, ErrInvalidDelimiter)
			return
		}
		s := &scanner{
			src:    src,
			delim:  delim,
			lps:    LPS(delim),
			logger: o.logger,
		}
		defer s.chunks.Reset()
		size := max(MinChunkSize, len(delim)+1)
		if o.bufferSize > len(delim) {
			size = o.bufferSize
		}
		buf := make([]byte, size)
		empty := 0
		for {
			n, err := s.src.Read(buf)
			if n < 0 || errors.Is(err, types.ErrAbandoned) {
				s.logger.Debug("source abandoned", slog.Int("discarded", s.chunks.Len()))
				return
			}
			if n > 0 {
				empty = 0
				s.chunks.Add(buf[:n])
				if !s.advance(yield) {
					return
				}
			}
			switch {
			case err == io.EOF:
				yield(s.chunks.Concat(), nil)
				return
			case err != nil:
				yield(nil, err)
				return
			case n == 0:
				empty++
				if empty >= o.maxEmptyReads {
					s.logger.Warn("source made no progress", slog.Int("attempts", empty))
					yield(nil, io.ErrNoProgress)
					return
				}
			}
		}
	}
}

func decode(enc encoding.Encoding, p []byte) (string, error) {
	b, err := enc.NewDecoder().Bytes(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringDelim is ReadDelim with each segment decoded to a string using
// the configured encoding. Malformed input decodes to U+FFFD.
func ReadStringDelim(src io.Reader, delim string, options ...OptionFunc) iter.Seq2[string, error] {
	o := newOptions(options)
	return func(yield func(string, error) bool) {
		enc, err := o.resolveEncoding()
		if err != nil {
			yield("", err)
			return
		}
		for seg, err := range ReadDelim(src, []byte(delim), options...) {
			if err != nil {
				yield("", err)
				return
			}
			s, err := decode(enc, seg)
			if !yield(s, err) || err != nil {
				return
			}
		}
	}
}
